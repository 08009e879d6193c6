package selector

import "testing"

func TestParseQualityFlagNamedPresets(t *testing.T) {
	cases := map[string]int{
		"144p": 144,
		"720p": 720,
		"hd":   720,
		"1080p": 1080,
		"fhd":  1080,
		"4k":   2160,
		"8k":   4320,
	}
	for q, wantHeight := range cases {
		vc, err := ParseQualityFlag(q)
		if err != nil {
			t.Fatalf("ParseQualityFlag(%q): %v", q, err)
		}
		if len(vc.Resolutions) != 1 || vc.Resolutions[0][1] != wantHeight {
			t.Fatalf("ParseQualityFlag(%q) resolutions = %v, want height %d", q, vc.Resolutions, wantHeight)
		}
	}
}

func TestParseQualityFlagHighestLowest(t *testing.T) {
	vc, err := ParseQualityFlag("highest")
	if err != nil || vc.Quality != QualityBest {
		t.Fatalf("highest: vc=%+v err=%v", vc, err)
	}
	vc, err = ParseQualityFlag("max")
	if err != nil || vc.Quality != QualityBest {
		t.Fatalf("max: vc=%+v err=%v", vc, err)
	}
	vc, err = ParseQualityFlag("lowest")
	if err != nil || vc.Quality != QualityWorst {
		t.Fatalf("lowest: vc=%+v err=%v", vc, err)
	}
	vc, err = ParseQualityFlag("min")
	if err != nil || vc.Quality != QualityWorst {
		t.Fatalf("min: vc=%+v err=%v", vc, err)
	}
}

func TestParseQualityFlagExplicitWxH(t *testing.T) {
	vc, err := ParseQualityFlag("1920x1080")
	if err != nil {
		t.Fatalf("ParseQualityFlag: %v", err)
	}
	if len(vc.Resolutions) != 1 || vc.Resolutions[0] != [2]int{1920, 1080} {
		t.Fatalf("got %v, want [1920 1080]", vc.Resolutions)
	}
}

func TestParseQualityFlagEmptyDefaultsToHighest(t *testing.T) {
	vc, err := ParseQualityFlag("")
	if err != nil || vc.Quality != QualityBest {
		t.Fatalf("empty: vc=%+v err=%v", vc, err)
	}
}

func TestParseQualityFlagRejectsGarbage(t *testing.T) {
	if _, err := ParseQualityFlag("not-a-quality"); err == nil {
		t.Fatal("expected error for unrecognized quality token")
	}
}

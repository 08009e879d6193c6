package selector

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseQualityFlag maps the --quality flag's token set onto a
// VideoConstraint: lowest/min and highest/max pick the worst/best pool
// entry, named presets and raw heights ("1080p", "hd") match an explicit
// resolution, and "WxH" matches an explicit width/height pair.
func ParseQualityFlag(quality string) (VideoConstraint, error) {
	q := strings.ToLower(strings.TrimSpace(quality))
	switch q {
	case "", "highest", "max":
		return VideoConstraint{Quality: QualityBest}, nil
	case "lowest", "min":
		return VideoConstraint{Quality: QualityWorst}, nil
	}

	if w, h, ok := parseWxH(q); ok {
		return VideoConstraint{Resolutions: [][2]int{{w, h}}}, nil
	}

	if h := parseResolution(q); h > 0 {
		return VideoConstraint{Resolutions: [][2]int{{0, h}}}, nil
	}

	return VideoConstraint{}, fmt.Errorf("selector: unrecognized quality %q", quality)
}

func parseWxH(s string) (w, h int, ok bool) {
	idx := strings.Index(s, "x")
	if idx <= 0 || idx == len(s)-1 {
		return 0, 0, false
	}
	wv, err := strconv.Atoi(s[:idx])
	if err != nil {
		return 0, 0, false
	}
	hv, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return 0, 0, false
	}
	return wv, hv, true
}

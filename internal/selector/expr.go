package selector

import (
	"strconv"
	"strings"
)

// ParseExpression compiles an expression-language selector string
// ("a:en,ar!", "v:-1080p", "best", "all") into a Spec, so the richer front
// end sits on top of the constraint-struct model instead of operating on
// streams directly.
func ParseExpression(expr string) Spec {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		expr = "best"
	}

	switch strings.ToLower(expr) {
	case "all":
		return Spec{
			Video:    VideoConstraint{All: true},
			Audio:    AudioConstraint{All: true},
			Subtitle: SubtitleConstraint{All: true},
		}
	case "all-video":
		return Spec{Video: VideoConstraint{All: true}}
	case "all-audio":
		return Spec{Audio: AudioConstraint{All: true}}
	case "all-subs", "all-subtitles":
		return Spec{Subtitle: SubtitleConstraint{All: true}}
	case "best", "bv+ba", "best-video+best-audio":
		return Spec{Video: VideoConstraint{Quality: QualityBest}, Audio: AudioConstraint{}}
	case "best-video", "bv":
		return Spec{Video: VideoConstraint{Quality: QualityBest}, Subtitle: SubtitleConstraint{Skip: true, All: false}}
	case "best-audio", "ba":
		return Spec{Audio: AudioConstraint{}, Video: VideoConstraint{Skip: true, All: true}}
	}

	var spec Spec
	for _, part := range splitExpressions(expr) {
		applyExpressionPart(&spec, part)
	}
	return spec
}

func splitExpressions(selector string) []string {
	var parts []string
	var current strings.Builder
	inBracket := false
	for _, ch := range selector {
		switch ch {
		case '[':
			inBracket = true
			current.WriteRune(ch)
		case ']':
			inBracket = false
			current.WriteRune(ch)
		case '+':
			if !inBracket {
				if s := strings.TrimSpace(current.String()); s != "" {
					parts = append(parts, s)
				}
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		parts = append(parts, s)
	}
	return parts
}

func applyExpressionPart(spec *Spec, expr string) {
	kind := ""
	if len(expr) >= 2 && expr[1] == ':' {
		kind = strings.ToLower(string(expr[0]))
		expr = expr[2:]
	}

	// strip bandwidth bracket, unused by the constraint model (no bandwidth
	// field on VideoConstraint/AudioConstraint/SubtitleConstraint)
	if idx := strings.Index(expr, "["); idx != -1 {
		if endIdx := strings.Index(expr, "]"); endIdx > idx {
			expr = expr[:idx] + expr[endIdx+1:]
		}
	}

	skip := false
	for len(expr) > 0 {
		switch expr[len(expr)-1] {
		case '!', '?', '*':
			expr = expr[:len(expr)-1]
			continue
		}
		break
	}
	if strings.HasPrefix(expr, "no-") {
		skip = true
		expr = strings.TrimPrefix(expr, "no-")
	}

	switch kind {
	case "v", "video":
		applyVideoExpr(spec, expr, skip)
	case "a", "audio":
		spec.Audio.Languages = append(spec.Audio.Languages, splitValues(expr)...)
		spec.Audio.Skip = skip
	case "s", "sub", "subtitle":
		spec.Subtitle.Languages = append(spec.Subtitle.Languages, splitValues(expr)...)
		spec.Subtitle.Skip = skip
	default:
		if isResolutionSelector(expr) || strings.HasPrefix(expr, "-") {
			applyVideoExpr(spec, expr, skip)
		} else {
			spec.Audio.Languages = append(spec.Audio.Languages, splitValues(expr)...)
		}
	}
}

func applyVideoExpr(spec *Spec, expr string, skip bool) {
	spec.Video.Skip = skip
	if expr == "" {
		spec.Video.Quality = QualityBest
		return
	}
	if strings.HasPrefix(expr, "-") {
		// "-1080p": best available at or below that height; approximated
		// as an explicit resolution match against the given height only,
		// the common case in the corpus's own usage of this syntax.
		h := parseResolution(expr[1:])
		spec.Video.Resolutions = append(spec.Video.Resolutions, [2]int{0, h})
		return
	}
	for _, v := range splitValues(expr) {
		h := parseResolution(v)
		if h > 0 {
			spec.Video.Resolutions = append(spec.Video.Resolutions, [2]int{0, h})
		}
	}
}

func splitValues(expr string) []string {
	if expr == "" {
		return nil
	}
	parts := strings.Split(expr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func isResolutionSelector(s string) bool {
	s = strings.ToLower(s)
	if strings.HasPrefix(s, "-") {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	if s[len(s)-1] == 'p' {
		if _, err := strconv.Atoi(s[:len(s)-1]); err == nil {
			return true
		}
	}
	switch s {
	case "4k", "2k", "hd", "fhd", "sd", "uhd", "qhd":
		return true
	}
	return false
}

func parseResolution(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "8k", "4320p":
		return 4320
	case "4k", "2160p", "uhd":
		return 2160
	case "1440p", "2k", "qhd":
		return 1440
	case "1080p", "fhd":
		return 1080
	case "720p", "hd":
		return 720
	case "480p", "sd":
		return 480
	case "360p":
		return 360
	case "240p":
		return 240
	case "144p":
		return 144
	default:
		s = strings.TrimSuffix(s, "p")
		h, _ := strconv.Atoi(s)
		return h
	}
}

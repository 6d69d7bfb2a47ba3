package captions

import (
	"strconv"
	"strings"

	"multiview/internal/transcript"
)

// ParseWebVTT decodes a WebVTT body into segments. Cue settings after the
// timing line are ignored, as are NOTE and STYLE blocks. Bodies without a
// single valid cue yield nil.
func ParseWebVTT(body string) []transcript.Segment {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")

	var out []transcript.Segment
	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		i++
		if !strings.Contains(line, "-->") {
			continue
		}

		parts := strings.SplitN(line, "-->", 2)
		start, ok1 := parseVTTTimestamp(strings.TrimSpace(parts[0]))
		endField := strings.Fields(strings.TrimSpace(parts[1]))
		if len(endField) == 0 {
			continue
		}
		end, ok2 := parseVTTTimestamp(endField[0])
		if !ok1 || !ok2 {
			continue
		}

		var text []string
		for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
			text = append(text, strings.TrimSpace(lines[i]))
			i++
		}
		joined := stripVTTTags(strings.Join(text, " "))
		if joined == "" {
			continue
		}
		out = append(out, transcript.Segment{StartS: start, EndS: end, Text: joined})
	}
	return out
}

// parseVTTTimestamp accepts "HH:MM:SS.mmm" and "MM:SS.mmm".
func parseVTTTimestamp(s string) (float64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	total := 0.0
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, false
		}
		total = total*60 + v
	}
	return total, true
}

// stripVTTTags removes inline markup like <c.color> and <00:00:01.000>.
func stripVTTTags(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '<':
			depth++
		case r == '>':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

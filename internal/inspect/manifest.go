package inspect

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// DefaultAdURLPattern matches segment URLs that belong to ad creatives.
const DefaultAdURLPattern = `(?i)(^|[/._-])ads?[/._-]|doubleclick\.net|/pagead/|adservice\.`

// ManifestResult reports one rewrite pass.
type ManifestResult struct {
	Content         string
	Modified        bool
	SegmentsRemoved int
}

// ManifestRewriter strips ad periods and segments from streaming manifests.
// DASH documents are edited with targeted regexes rather than a full XML
// parse; HLS playlists are edited line by line. Everything not removed is
// preserved byte-for-byte.
type ManifestRewriter struct {
	adURL  *regexp.Regexp
	logger *zap.Logger
}

// NewManifestRewriter compiles the ad-URL pattern; an empty pattern uses
// DefaultAdURLPattern.
func NewManifestRewriter(adURLPattern string, logger *zap.Logger) (*ManifestRewriter, error) {
	if adURLPattern == "" {
		adURLPattern = DefaultAdURLPattern
	}
	re, err := regexp.Compile(adURLPattern)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManifestRewriter{adURL: re, logger: logger}, nil
}

// IsManifest reports whether a response looks like a manifest this rewriter
// understands, by content type or body sniffing.
func IsManifest(contentType, body string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "application/dash+xml") || strings.Contains(ct, "application/vnd.apple.mpegurl") ||
		strings.Contains(ct, "application/x-mpegurl") {
		return true
	}
	trimmed := strings.TrimSpace(body)
	return strings.HasPrefix(trimmed, "#EXTM3U") || strings.Contains(trimmed, "<MPD")
}

// Rewrite dispatches on manifest flavor. Unknown content is returned
// unmodified.
func (m *ManifestRewriter) Rewrite(contentType, body string) ManifestResult {
	ct := strings.ToLower(contentType)
	trimmed := strings.TrimSpace(body)
	switch {
	case strings.Contains(ct, "application/dash+xml") || strings.Contains(trimmed, "<MPD"):
		return m.rewriteDASH(body)
	case strings.Contains(ct, "mpegurl") || strings.HasPrefix(trimmed, "#EXTM3U"):
		return m.rewriteHLS(body)
	default:
		return ManifestResult{Content: body}
	}
}

var (
	dashAdPeriodRe      = regexp.MustCompile(`(?s)<Period[^>]*\bid="[^"]*ad[^"]*"[^>]*>.*?</Period>\s*`)
	dashAdAdaptationRe  = regexp.MustCompile(`(?s)<AdaptationSet[^>]*\bcontentType="ad"[^>]*>.*?</AdaptationSet>\s*`)
	dashAdEventStreamRe = regexp.MustCompile(`(?s)<EventStream[^>]*\bschemeIdUri="[^"]*ad[^"]*"[^>]*>.*?</EventStream>\s*`)
	dashSegmentRe       = regexp.MustCompile(`<S\b[^>]*\bmedia="([^"]*)"[^>]*/>\s*`)
)

func (m *ManifestRewriter) rewriteDASH(body string) ManifestResult {
	removed := 0
	out := body

	for _, re := range []*regexp.Regexp{dashAdPeriodRe, dashAdAdaptationRe, dashAdEventStreamRe} {
		out = re.ReplaceAllStringFunc(out, func(string) string {
			removed++
			return ""
		})
	}
	out = dashSegmentRe.ReplaceAllStringFunc(out, func(match string) string {
		media := dashSegmentRe.FindStringSubmatch(match)[1]
		if m.adURL.MatchString(media) {
			removed++
			return ""
		}
		return match
	})

	if removed == 0 {
		return ManifestResult{Content: body}
	}
	m.logger.Debug("dash manifest rewritten", zap.Int("removed", removed))
	return ManifestResult{Content: out, Modified: true, SegmentsRemoved: removed}
}

// HLS marker lines that announce ad breaks. Markers other than CUE-IN also
// consume the segment URI that follows them.
var hlsAdMarkers = []string{
	"#EXT-X-CUE-OUT",
	"#EXT-X-CUE-IN",
	"#EXT-X-SCTE35",
	"#EXT-OATCLS-SCTE35",
	"#EXT-X-DATERANGE",
	"#EXT-X-ASSET",
}

func hlsMarker(line string) (marker string, ok bool) {
	for _, m := range hlsAdMarkers {
		if strings.HasPrefix(line, m) {
			return m, true
		}
	}
	return "", false
}

func (m *ManifestRewriter) rewriteHLS(body string) ManifestResult {
	lines := strings.Split(body, "\n")
	out := make([]string, 0, len(lines))
	removed := 0
	skipNextSegment := false
	lastDropped := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if marker, ok := hlsMarker(trimmed); ok {
			removed++
			lastDropped = true
			// CUE-IN closes an ad break; the segment after it is content.
			if marker != "#EXT-X-CUE-IN" {
				skipNextSegment = true
			}
			continue
		}

		if skipNextSegment {
			if strings.HasPrefix(trimmed, "#EXTINF") {
				// Companion duration tag of the segment being dropped.
				lastDropped = true
				continue
			}
			if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
				removed++
				skipNextSegment = false
				lastDropped = true
				continue
			}
			if trimmed == "" {
				out = append(out, line)
				continue
			}
			// An unrelated tag; keep it and keep waiting for the URI.
			out = append(out, line)
			continue
		}

		if trimmed == "#EXT-X-DISCONTINUITY" && lastDropped {
			removed++
			continue
		}

		if trimmed != "" && !strings.HasPrefix(trimmed, "#") && m.adURL.MatchString(trimmed) {
			// Ad creative by URL; also retract the preceding #EXTINF.
			if len(out) > 0 && strings.HasPrefix(strings.TrimSpace(out[len(out)-1]), "#EXTINF") {
				out = out[:len(out)-1]
			}
			removed++
			lastDropped = true
			continue
		}

		out = append(out, line)
		if trimmed != "" {
			lastDropped = false
		}
	}

	if removed == 0 {
		return ManifestResult{Content: body}
	}
	m.logger.Debug("hls manifest rewritten", zap.Int("removed", removed))
	return ManifestResult{Content: strings.Join(out, "\n"), Modified: true, SegmentsRemoved: removed}
}

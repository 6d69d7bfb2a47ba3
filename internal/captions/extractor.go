// Package captions turns captured caption responses into transcript
// segments. The primary format is the platform's JSON3 timed-text variant;
// WebVTT is accepted through a secondary entry point. Parsing never fails
// loudly: a body this package cannot read produces no segments and no
// error for the network path that handed it in.
package captions

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"multiview/internal/transcript"

	"go.uber.org/zap"
)

// DefaultEndpoints are URL fragments identifying caption responses.
func DefaultEndpoints() []string {
	return []string{"/api/timedtext", "timedtext"}
}

// Extractor parses caption bodies and writes them to the transcript store.
type Extractor struct {
	endpoints []string
	store     *transcript.Store
	logger    *zap.Logger
}

// NewExtractor builds an extractor over the store. A nil endpoints slice
// uses DefaultEndpoints.
func NewExtractor(store *transcript.Store, endpoints []string, logger *zap.Logger) *Extractor {
	if endpoints == nil {
		endpoints = DefaultEndpoints()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{endpoints: endpoints, store: store, logger: logger}
}

// Matches reports whether the URL looks like a caption endpoint.
func (e *Extractor) Matches(rawURL string) bool {
	for _, frag := range e.endpoints {
		if strings.Contains(rawURL, frag) {
			return true
		}
	}
	return false
}

// HandleResponse parses one captured caption body and stores the result
// under (agentID, videoID). The video id and language come from the
// caption URL's query string. Bodies that do not parse are dropped.
func (e *Extractor) HandleResponse(agentID, rawURL string, body []byte) (transcript.Key, bool) {
	videoID, language := requestMetadata(rawURL)
	if videoID == "" {
		return transcript.Key{}, false
	}

	segments := ParseJSON3(body)
	if len(segments) == 0 {
		segments = ParseWebVTT(string(body))
	}
	if len(segments) == 0 {
		e.logger.Debug("caption body yielded no segments",
			zap.String("agent", agentID),
			zap.String("video", videoID))
		return transcript.Key{}, false
	}

	key := transcript.Key{AgentID: agentID, VideoID: videoID}
	e.store.Put(key, language, segments)
	e.logger.Debug("transcript stored",
		zap.String("agent", agentID),
		zap.String("video", videoID),
		zap.Int("segments", len(segments)))
	return key, true
}

// requestMetadata pulls the video id ("v") and language ("tlang" falling
// back to "lang") out of a caption URL.
func requestMetadata(rawURL string) (videoID, language string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", ""
	}
	q := u.Query()
	videoID = q.Get("v")
	language = q.Get("tlang")
	if language == "" {
		language = q.Get("lang")
	}
	return videoID, language
}

// json3Doc mirrors the timed-text wire shape. Some responses call the
// event list "events", others "segments".
type json3Doc struct {
	Events   []json3Event `json:"events"`
	Segments []json3Event `json:"segments"`
}

type json3Event struct {
	StartMs    *float64   `json:"tStartMs"`
	DurationMs *float64   `json:"dDurationMs"`
	Segs       []json3Seg `json:"segs"`
}

type json3Seg struct {
	UTF8 string `json:"utf8"`
}

// ParseJSON3 decodes a JSON3 timed-text body into segments ordered by
// start time. Events without text are skipped; an event with no duration
// becomes a zero-duration segment. Any decode failure yields nil.
func ParseJSON3(body []byte) []transcript.Segment {
	var doc json3Doc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil
	}
	events := doc.Events
	if len(events) == 0 {
		events = doc.Segments
	}

	var out []transcript.Segment
	for _, ev := range events {
		if ev.StartMs == nil {
			continue
		}
		var b strings.Builder
		for _, seg := range ev.Segs {
			b.WriteString(seg.UTF8)
		}
		text := strings.TrimSpace(b.String())
		if text == "" {
			continue
		}
		start := *ev.StartMs / 1000
		end := start
		if ev.DurationMs != nil {
			end = start + *ev.DurationMs/1000
		}
		out = append(out, transcript.Segment{StartS: start, EndS: end, Text: text})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartS < out[j].StartS })
	return out
}

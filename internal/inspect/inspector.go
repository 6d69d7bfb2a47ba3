// Package inspect rewrites response bodies in flight: JSON payloads from
// known video-platform endpoints lose their ad-carrying fields, and
// streaming manifests (DASH, HLS) lose their ad periods and segments.
// Every failure path degrades to the original body; a request is never
// broken by a rewrite.
package inspect

import (
	"encoding/json"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// Fields deleted from responses of known endpoints.
var knownAdFields = map[string]bool{
	"adPlacements":                      true,
	"playerAds":                         true,
	"adSlots":                           true,
	"adBreakHeartbeatParams":            true,
	"adSlotRenderer":                    true,
	"instreamVideoAdRenderer":           true,
	"displayAdRenderer":                 true,
	"promotedSparklesWebRenderer":       true,
	"bannerPromoRenderer":               true,
	"adsEngagementPanelContentRenderer": true,
	"adSignalsInfo":                     true,
}

// Fields deleted everywhere when generic stripping is enabled.
var genericAdFields = map[string]bool{
	"advertisement":   true,
	"sponsored":       true,
	"promo":           true,
	"ad_data":         true,
	"adData":          true,
	"tracking_pixels": true,
	"trackingPixels":  true,
}

// Array entries dropped from result containers on known endpoints.
var shelfRenderers = map[string]bool{
	"merchandiseShelfRenderer": true,
	"ticketShelfRenderer":      true,
}

// DefaultEndpoints are the URL path fragments treated as known endpoints.
func DefaultEndpoints() []string {
	return []string{
		"/youtubei/v1/player",
		"/youtubei/v1/next",
		"/youtubei/v1/browse",
		"/youtubei/v1/search",
		"/api/stats",
	}
}

// Result reports one inspection pass.
type Result struct {
	Body           []byte
	Modified       bool
	BytesRemoved   int
	FieldsStripped []string
}

// Inspector strips ad payloads from JSON responses.
type Inspector struct {
	endpoints      []string
	genericEnabled bool
	modified       atomic.Uint64
	logger         *zap.Logger
}

// NewInspector builds an inspector for the given endpoint fragments. A nil
// slice uses DefaultEndpoints.
func NewInspector(endpoints []string, genericEnabled bool, logger *zap.Logger) *Inspector {
	if endpoints == nil {
		endpoints = DefaultEndpoints()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inspector{endpoints: endpoints, genericEnabled: genericEnabled, logger: logger}
}

// Watches reports whether the URL path belongs to a known endpoint, or
// generic stripping would look at it anyway. The network hook uses this to
// decide whether fetching the body is worth it.
func (in *Inspector) Watches(urlPath string) bool {
	return in.isKnownEndpoint(urlPath) || in.genericEnabled
}

// ModifiedCount returns how many responses have been rewritten.
func (in *Inspector) ModifiedCount() uint64 {
	return in.modified.Load()
}

// Inspect rewrites one JSON response body. Non-JSON content types and parse
// failures return the body untouched with Modified=false.
func (in *Inspector) Inspect(urlPath, contentType string, body []byte) Result {
	orig := Result{Body: body}
	if !strings.Contains(strings.ToLower(contentType), "application/json") {
		return orig
	}

	known := in.isKnownEndpoint(urlPath)
	if !known && !in.genericEnabled {
		return orig
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return orig
	}

	fields := genericAdFields
	if known {
		fields = knownAdFields
	}
	var stripped []string
	doc = stripFields(doc, fields, "", &stripped)
	if known {
		doc = filterEngagementPanels(doc, &stripped)
		doc = dropShelfEntries(doc, &stripped)
	}
	if len(stripped) == 0 {
		return orig
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return orig
	}
	in.modified.Add(1)
	removed := len(body) - len(out)
	if removed < 0 {
		removed = 0
	}
	in.logger.Debug("response stripped",
		zap.String("path", urlPath),
		zap.Int("bytes_removed", removed),
		zap.Strings("fields", stripped))
	return Result{Body: out, Modified: true, BytesRemoved: removed, FieldsStripped: stripped}
}

func (in *Inspector) isKnownEndpoint(urlPath string) bool {
	for _, e := range in.endpoints {
		if strings.Contains(urlPath, e) {
			return true
		}
	}
	return false
}

// stripFields walks the decoded document and deletes every property whose
// key is in the field set, recording dotted paths of deletions.
func stripFields(node interface{}, fields map[string]bool, path string, stripped *[]string) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		for key, val := range v {
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			if fields[key] {
				delete(v, key)
				*stripped = append(*stripped, childPath)
				continue
			}
			v[key] = stripFields(val, fields, childPath, stripped)
		}
		return v
	case []interface{}:
		for i, item := range v {
			v[i] = stripFields(item, fields, path, stripped)
		}
		return v
	default:
		return node
	}
}

// filterEngagementPanels drops engagement-panel entries whose panel
// identifier mentions ads or promos.
func filterEngagementPanels(node interface{}, stripped *[]string) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		for key, val := range v {
			if key == "engagementPanels" {
				if arr, ok := val.([]interface{}); ok {
					kept := arr[:0]
					for _, item := range arr {
						if id := findString(item, "panelIdentifier"); strings.Contains(id, "ads") || strings.Contains(id, "promo") {
							*stripped = append(*stripped, "engagementPanels."+id)
							continue
						}
						kept = append(kept, item)
					}
					v[key] = kept
					continue
				}
			}
			v[key] = filterEngagementPanels(val, stripped)
		}
		return v
	case []interface{}:
		for i, item := range v {
			v[i] = filterEngagementPanels(item, stripped)
		}
		return v
	default:
		return node
	}
}

// dropShelfEntries removes merchandise/ticket shelf objects from arrays.
func dropShelfEntries(node interface{}, stripped *[]string) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		for key, val := range v {
			v[key] = dropShelfEntries(val, stripped)
		}
		return v
	case []interface{}:
		kept := v[:0]
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				shelf := false
				for key := range m {
					if shelfRenderers[key] {
						*stripped = append(*stripped, key)
						shelf = true
						break
					}
				}
				if shelf {
					continue
				}
			}
			kept = append(kept, dropShelfEntries(item, stripped))
		}
		return kept
	default:
		return node
	}
}

// findString searches a subtree for the first string value under the key.
func findString(node interface{}, key string) string {
	switch v := node.(type) {
	case map[string]interface{}:
		if s, ok := v[key].(string); ok {
			return s
		}
		for _, val := range v {
			if s := findString(val, key); s != "" {
				return s
			}
		}
	case []interface{}:
		for _, item := range v {
			if s := findString(item, key); s != "" {
				return s
			}
		}
	}
	return ""
}

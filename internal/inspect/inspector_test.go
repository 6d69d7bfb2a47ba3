package inspect

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectStripsKnownEndpointFields(t *testing.T) {
	in := NewInspector(nil, false, nil)
	body := []byte(`{"videoDetails":{"title":"t"},"adPlacements":[{"x":1}],"playerAds":[2]}`)

	res := in.Inspect("/youtubei/v1/player", "application/json", body)
	require.True(t, res.Modified)
	assert.Contains(t, res.FieldsStripped, "adPlacements")
	assert.Contains(t, res.FieldsStripped, "playerAds")
	assert.Greater(t, res.BytesRemoved, 0)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(res.Body, &doc))
	assert.Equal(t, map[string]interface{}{
		"videoDetails": map[string]interface{}{"title": "t"},
	}, doc)
	assert.Equal(t, uint64(1), in.ModifiedCount())
}

func TestInspectIgnoresNonJSON(t *testing.T) {
	in := NewInspector(nil, false, nil)
	body := []byte(`{"adPlacements":[1]}`)

	res := in.Inspect("/youtubei/v1/player", "text/html", body)
	assert.False(t, res.Modified)
	assert.Equal(t, body, res.Body)
}

func TestInspectParseFailureReturnsOriginal(t *testing.T) {
	in := NewInspector(nil, false, nil)
	body := []byte(`{"adPlacements": [truncated`)

	res := in.Inspect("/youtubei/v1/player", "application/json", body)
	assert.False(t, res.Modified)
	assert.Equal(t, body, res.Body)
}

func TestInspectUnknownEndpointWithoutGeneric(t *testing.T) {
	in := NewInspector(nil, false, nil)
	body := []byte(`{"sponsored":true,"items":[]}`)

	res := in.Inspect("/v1/feed", "application/json", body)
	assert.False(t, res.Modified)
	assert.Equal(t, uint64(0), in.ModifiedCount())
}

func TestInspectGenericFields(t *testing.T) {
	in := NewInspector(nil, true, nil)
	body := []byte(`{"items":[{"title":"a","sponsored":{"id":1}}],"tracking_pixels":["p"]}`)

	res := in.Inspect("/v1/feed", "application/json", body)
	require.True(t, res.Modified)
	assert.ElementsMatch(t, []string{"items.sponsored", "tracking_pixels"}, res.FieldsStripped)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(res.Body, &doc))
	_, has := doc["tracking_pixels"]
	assert.False(t, has)
}

func TestInspectNestedKnownFields(t *testing.T) {
	in := NewInspector(nil, false, nil)
	body := []byte(`{"contents":{"results":[{"adSlotRenderer":{"id":"s"}},{"videoRenderer":{"id":"v"}}]}}`)

	res := in.Inspect("/youtubei/v1/next", "application/json", body)
	require.True(t, res.Modified)
	assert.Contains(t, res.FieldsStripped, "contents.results.adSlotRenderer")
}

func TestInspectDropsAdEngagementPanels(t *testing.T) {
	in := NewInspector(nil, false, nil)
	body := []byte(`{"engagementPanels":[` +
		`{"engagementPanelSectionListRenderer":{"panelIdentifier":"engagement-panel-ads"}},` +
		`{"engagementPanelSectionListRenderer":{"panelIdentifier":"engagement-panel-transcript"}}]}`)

	res := in.Inspect("/youtubei/v1/next", "application/json", body)
	require.True(t, res.Modified)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(res.Body, &doc))
	panels := doc["engagementPanels"].([]interface{})
	require.Len(t, panels, 1)
	assert.Contains(t, string(res.Body), "engagement-panel-transcript")
}

func TestInspectDropsShelfEntries(t *testing.T) {
	in := NewInspector(nil, false, nil)
	body := []byte(`{"results":[{"merchandiseShelfRenderer":{"id":"m"}},{"videoRenderer":{"id":"v"}}]}`)

	res := in.Inspect("/youtubei/v1/browse", "application/json", body)
	require.True(t, res.Modified)
	assert.Contains(t, res.FieldsStripped, "merchandiseShelfRenderer")

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(res.Body, &doc))
	results := doc["results"].([]interface{})
	require.Len(t, results, 1)
}

func TestInspectCustomEndpoints(t *testing.T) {
	in := NewInspector([]string{"/custom/api"}, false, nil)
	body := []byte(`{"adPlacements":[1],"keep":1}`)

	res := in.Inspect("/custom/api/player", "application/json; charset=utf-8", body)
	assert.True(t, res.Modified)

	res = in.Inspect("/youtubei/v1/player", "application/json", body)
	assert.False(t, res.Modified, "default endpoints replaced, not extended")
}

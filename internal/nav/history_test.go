package nav

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_ReplaceDoesNotGrowStack(t *testing.T) {
	h := NewHistory(Location{Path: "/gmv-max"})

	h.SetParam("advertiser_id", "a1")
	h.SetParam("store_id", "s1")

	assert.Equal(t, "a1", h.Param("advertiser_id"))
	assert.Equal(t, "s1", h.Param("store_id"))
	assert.False(t, h.Back(), "selection writes replace in place; there is nothing to go back to")
}

func TestHistory_PushThenBack(t *testing.T) {
	h := NewHistory(Location{Path: "/gmv-max"})

	h.Push(Location{Path: "/policies"})
	assert.Equal(t, "/policies", h.Current().Path)

	require.True(t, h.Back())
	assert.Equal(t, "/gmv-max", h.Current().Path)
}

func TestHistory_SetParamsBatchesOneReplace(t *testing.T) {
	h := NewHistory(Location{Path: "/gmv-max"})

	var notified int
	unsub := h.Subscribe(func(Location) { notified++ })
	defer unsub()

	h.SetParams(map[string]string{
		"mode":          "store",
		"advertiser_id": "a1",
		"store_id":      "s1",
		"bc_id":         "",
	})

	assert.Equal(t, 1, notified)
	assert.Equal(t, "store", h.Param("mode"))
	assert.Equal(t, "", h.Param("bc_id"))
}

func TestHistory_EmptyValueRemovesParam(t *testing.T) {
	h := NewHistory(Location{Path: "/gmv-max", Params: url.Values{"bc_id": {"bc1"}}})

	h.SetParam("bc_id", "")

	_, present := h.Current().Params["bc_id"]
	assert.False(t, present)
}

func TestLocation_EncodeParseRoundTrip(t *testing.T) {
	loc := Location{Path: "/gmv-max", Params: url.Values{
		"advertiser_id": {"a1"},
		"mode":          {"product"},
	}}

	encoded := loc.Encode()
	assert.Equal(t, "/gmv-max?advertiser_id=a1&mode=product", encoded)

	parsed, err := Parse(encoded)
	require.NoError(t, err)
	assert.Equal(t, "a1", parsed.Params.Get("advertiser_id"))
	assert.Equal(t, "product", parsed.Params.Get("mode"))
}

func TestLocation_EncodeDropsEmptyValues(t *testing.T) {
	loc := Location{Path: "/gmv-max", Params: url.Values{"bc_id": {""}}}
	assert.Equal(t, "/gmv-max", loc.Encode())
}

func TestHistory_CurrentIsACopy(t *testing.T) {
	h := NewHistory(Location{Path: "/gmv-max"})
	h.SetParam("mode", "store")

	loc := h.Current()
	loc.Params.Set("mode", "mutated")

	assert.Equal(t, "store", h.Param("mode"))
}

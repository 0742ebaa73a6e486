package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"PadDeck/core/audio"
	"PadDeck/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emptyStore satisfies audio.AssetStore; preload tests only need enqueueing.
type emptyStore struct{}

func (emptyStore) FetchAsset(ctx context.Context, assetID int64) (*model.AssetData, error) {
	return nil, nil
}

func newPreloadTestHandler() *APIHandler {
	cache := audio.NewBufferCache(16, 1<<20)
	decoder := audio.NewDecoder(emptyStore{}, audio.DecoderConfig{})
	return &APIHandler{preloader: audio.NewPreloader(cache, decoder, nil)}
}

func TestFlattenPadAssetIDs(t *testing.T) {
	pads := []model.PadConfig{
		{PadIndex: 0, AssetIDs: []int64{1, 2}},
		{PadIndex: 1, AssetIDs: []int64{2, 3}},
		{PadIndex: 2},
	}

	// 跨垫去重，保持首次出现顺序
	assert.Equal(t, []int64{1, 2, 3}, flattenPadAssetIDs(pads))
	assert.Nil(t, flattenPadAssetIDs(nil))
}

func TestPreloadPageHandlerAcceptsPadConfigs(t *testing.T) {
	h := newPreloadTestHandler()

	body, err := json.Marshal(map[string]any{
		"pads": []model.PadConfig{
			{PadIndex: 0, AssetIDs: []int64{1, 2}, Type: model.PlaybackSequential},
			{PadIndex: 1, AssetIDs: []int64{2, 3}, Type: model.PlaybackRandom},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/preload/page", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.PreloadPageHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 3, resp["requested"])
	assert.Equal(t, 3, h.preloader.Stats().Pending)
}

func TestPreloadPageHandlerAcceptsBareAssetIDs(t *testing.T) {
	h := newPreloadTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/preload/page",
		bytes.NewReader([]byte(`{"assetIds":[5,6]}`)))
	rec := httptest.NewRecorder()
	h.PreloadPageHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, h.preloader.Stats().Pending)
}

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlaybackKeyDeterministic(t *testing.T) {
	p := PadInfo{ProfileID: "studio", PageIndex: 2, PadIndex: 7}
	assert.Equal(t, "studio-2-7", p.PlaybackKey())
	assert.Equal(t, p.PlaybackKey(), p.PlaybackKey())
}

func TestPlaybackKeyUniquePerTriple(t *testing.T) {
	keys := map[string]bool{}
	for page := 0; page < 3; page++ {
		for pad := 0; pad < 3; pad++ {
			keys[PadInfo{ProfileID: "a", PageIndex: page, PadIndex: pad}.PlaybackKey()] = true
		}
	}
	assert.Len(t, keys, 9)

	// 不同配置档不串键
	a := PadInfo{ProfileID: "a", PageIndex: 0, PadIndex: 0}
	b := PadInfo{ProfileID: "b", PageIndex: 0, PadIndex: 0}
	assert.NotEqual(t, a.PlaybackKey(), b.PlaybackKey())
}

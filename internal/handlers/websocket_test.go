package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/common"
)

func newTestWSHandler(wsConfig *common.WebSocketConfig) *WebSocketHandler {
	if wsConfig == nil {
		wsConfig = &common.WebSocketConfig{
			ProgressInterval: "250ms",
			MinLevel:         "info",
		}
	}
	return NewWebSocketHandler(nil, arbor.NewLogger(), wsConfig)
}

func TestShouldBroadcastLog_LevelFilter(t *testing.T) {
	h := newTestWSHandler(&common.WebSocketConfig{
		ProgressInterval: "250ms",
		MinLevel:         "warn",
	})

	assert.False(t, h.shouldBroadcastLog(map[string]interface{}{
		"level":   "info",
		"message": "chunk 1/4 done",
	}))
	assert.True(t, h.shouldBroadcastLog(map[string]interface{}{
		"level":   "error",
		"message": "task t3 failed",
	}))
}

func TestShouldBroadcastLog_ExcludePatterns(t *testing.T) {
	h := newTestWSHandler(&common.WebSocketConfig{
		ProgressInterval: "250ms",
		MinLevel:         "debug",
		ExcludePatterns:  []string{"HTTP request"},
	})

	assert.False(t, h.shouldBroadcastLog(map[string]interface{}{
		"level":   "info",
		"message": "HTTP request GET /api/batch/jobs",
	}))
	assert.True(t, h.shouldBroadcastLog(map[string]interface{}{
		"level":   "info",
		"message": "job started",
	}))
}

func TestShouldBroadcastLog_NonMapPayload(t *testing.T) {
	h := newTestWSHandler(nil)
	assert.True(t, h.shouldBroadcastLog("raw"))
}

func TestProgressThrottle(t *testing.T) {
	h := newTestWSHandler(&common.WebSocketConfig{
		ProgressInterval: "1s",
		MinLevel:         "info",
	})

	// First broadcast passes, an immediate second one is dropped
	assert.True(t, h.progressThrottle.Allow())
	assert.False(t, h.progressThrottle.Allow())
}

func TestClientCount_Empty(t *testing.T) {
	h := newTestWSHandler(nil)
	assert.Equal(t, 0, h.ClientCount())
}

package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessagePayloadRoundTrip(t *testing.T) {
	job := ScriptJobMessage{
		JobID:      "job-1",
		UserID:     "user-1",
		ScriptID:   "script-1",
		Prompt:     "make a door",
		ScriptType: "script",
	}

	msg, err := NewMessage("msg-1", MsgTypeScriptGen, job.UserID, job.ScriptID, job)
	require.NoError(t, err)

	var got ScriptJobMessage
	require.NoError(t, msg.UnmarshalPayload(&got))
	assert.Equal(t, job, got)
}

func TestMessageMetadata(t *testing.T) {
	msg := &Message{}

	assert.Empty(t, msg.GetMetadata("retry_count"))

	msg.SetMetadata("retry_count", "2")
	assert.Equal(t, "2", msg.GetMetadata("retry_count"))
}

func TestDLQStreamName(t *testing.T) {
	assert.Equal(t, "dlq:stream:script:gen", StreamScriptGen.DLQStream())
}

func TestCalculateBackoff(t *testing.T) {
	cfg := BackoffConfig{
		Initial:    time.Second,
		Max:        time.Minute,
		Multiplier: 2,
	}

	assert.Equal(t, time.Second, cfg.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, cfg.CalculateBackoff(1))
	assert.Equal(t, 8*time.Second, cfg.CalculateBackoff(3))

	// 上限封顶
	assert.Equal(t, time.Minute, cfg.CalculateBackoff(10))
}

package runtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusWireStrings(t *testing.T) {
	cases := map[Status]string{
		StatusPending:      "mid_pending",
		StatusRunning:      "mid_running",
		StatusSkipped:      "end_skipped",
		StatusSkippedChild: "end_skipped_child",
		StatusEnd:          "end_normal",
		StatusError:        "end_error",
		StatusErrorChild:   "end_error_child",
		StatusConditional:  "end_conditional",
	}
	for status, wire := range cases {
		assert.Equal(t, wire, status.String())
		raw, err := json.Marshal(status)
		require.NoError(t, err)
		assert.Equal(t, `"`+wire+`"`, string(raw))
	}
}

func TestStatusTerminalAndBlocking(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusSkipped.Terminal())
	assert.True(t, StatusConditional.Terminal())
	assert.True(t, StatusError.Terminal())

	assert.True(t, StatusSkipped.Blocking())
	assert.True(t, StatusConditional.Blocking())
	assert.True(t, StatusError.Blocking())
	assert.False(t, StatusEnd.Blocking())
	assert.False(t, StatusErrorChild.Blocking())
	assert.False(t, StatusRunning.Blocking())
}

func TestResultWireStrings(t *testing.T) {
	cases := map[Result]string{
		ResultUnknown:      "mid_unknown",
		ResultSuccess:      "end_success",
		ResultErrorSelf:    "end_error_self",
		ResultErrorChild:   "end_error_child",
		ResultSkippedSelf:  "end_skipped_self",
		ResultSkippedChild: "end_skipped_child",
	}
	for result, wire := range cases {
		assert.Equal(t, wire, result.String())
	}
	assert.True(t, ResultErrorSelf.IsError())
	assert.True(t, ResultErrorChild.IsError())
	assert.True(t, ResultSkippedChild.IsSkipped())
	assert.False(t, ResultSuccess.IsError())
}

func TestNodeForceSkip(t *testing.T) {
	n := &Node{}
	assert.True(t, n.ForceSkip())
	assert.Equal(t, StatusSkipped, n.Status())

	done := &Node{}
	done.SetStatus(StatusEnd)
	assert.False(t, done.ForceSkip())
	assert.Equal(t, StatusEnd, done.Status())
}

func TestNodeErrorInfoFirstWins(t *testing.T) {
	n := &Node{}
	n.SetErrorInfo("first")
	n.SetErrorInfo("second")
	assert.Equal(t, "first", n.ErrorInfo())
}

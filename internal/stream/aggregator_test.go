// ABOUTME: Tests for the chunk aggregator
// ABOUTME: Covers ordering, duplicate/unknown ids, failure annotation, cancellation

package stream

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_ChunksConcatenateInOrder(t *testing.T) {
	a := New(nil)

	_, err := a.Begin("resp-1")
	require.NoError(t, err)

	chunks := []string{"Xin", " chào", "!"}
	for _, c := range chunks {
		assert.True(t, a.ApplyChunk("resp-1", c))
	}

	msg, err := a.Finish("resp-1")
	require.NoError(t, err)
	assert.Equal(t, "Xin chào!", msg.Text)
	assert.True(t, msg.Terminal)
	assert.Equal(t, OriginAssistant, msg.Origin)
}

func TestAggregator_ManySingleByteChunksEqualOneGiantChunk(t *testing.T) {
	a := New(nil)

	full := strings.Repeat("streaming is hard. ", 50)

	_, err := a.Begin("tiny")
	require.NoError(t, err)
	for _, r := range full {
		a.ApplyChunk("tiny", string(r))
	}
	tiny, err := a.Finish("tiny")
	require.NoError(t, err)

	_, err = a.Begin("giant")
	require.NoError(t, err)
	a.ApplyChunk("giant", full)
	giant, err := a.Finish("giant")
	require.NoError(t, err)

	assert.Equal(t, full, tiny.Text)
	assert.Equal(t, tiny.Text, giant.Text)
}

func TestAggregator_BeginDuplicateFails(t *testing.T) {
	a := New(nil)

	_, err := a.Begin("resp-1")
	require.NoError(t, err)

	_, err = a.Begin("resp-1")
	assert.ErrorIs(t, err, ErrDuplicateSession)
}

func TestAggregator_UnknownChunkIsSilentNoOp(t *testing.T) {
	a := New(nil)

	// Never raises, never mutates anything.
	assert.False(t, a.ApplyChunk("never-started", "ghost"))

	// Same for a response that was already finished.
	_, err := a.Begin("resp-1")
	require.NoError(t, err)
	a.ApplyChunk("resp-1", "done")
	msg, err := a.Finish("resp-1")
	require.NoError(t, err)

	assert.False(t, a.ApplyChunk("resp-1", " and more"))
	assert.Equal(t, "done", msg.Text)
}

func TestAggregator_FinishUnknownFails(t *testing.T) {
	a := New(nil)

	_, err := a.Finish("nope")
	assert.ErrorIs(t, err, ErrUnknownSession)

	_, err = a.Fail("nope", "timeout")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestAggregator_FailWithoutChunksReplacesText(t *testing.T) {
	a := New(nil)

	_, err := a.Begin("resp-1")
	require.NoError(t, err)

	msg, err := a.Fail("resp-1", "connection refused")
	require.NoError(t, err)
	assert.Equal(t, "[response interrupted: connection refused]", msg.Text)
	assert.True(t, msg.Terminal)
}

func TestAggregator_FailPreservesPartialOutput(t *testing.T) {
	a := New(nil)

	_, err := a.Begin("resp-1")
	require.NoError(t, err)
	a.ApplyChunk("resp-1", "Partial")

	msg, err := a.Fail("resp-1", "timeout")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(msg.Text, "Partial"))
	assert.Contains(t, msg.Text, "[response interrupted: timeout]")
	assert.True(t, msg.Terminal)
}

func TestAggregator_CancelMakesLaterChunksInert(t *testing.T) {
	a := New(nil)

	msg, err := a.Begin("resp-1")
	require.NoError(t, err)
	a.ApplyChunk("resp-1", "before cancel")

	a.Cancel("resp-1")

	assert.False(t, a.ApplyChunk("resp-1", " after cancel"))
	assert.Equal(t, "before cancel", msg.Text)
	assert.True(t, msg.Terminal)

	// Cancelling twice is harmless.
	a.Cancel("resp-1")
}

func TestAggregator_IndependentResponses(t *testing.T) {
	a := New(nil)

	for i := 0; i < 3; i++ {
		_, err := a.Begin(fmt.Sprintf("resp-%d", i))
		require.NoError(t, err)
	}
	a.ApplyChunk("resp-0", "zero")
	a.ApplyChunk("resp-1", "one")
	a.ApplyChunk("resp-2", "two")

	m0, err := a.Finish("resp-0")
	require.NoError(t, err)
	m1, err := a.Finish("resp-1")
	require.NoError(t, err)
	m2, err := a.Finish("resp-2")
	require.NoError(t, err)

	assert.Equal(t, "zero", m0.Text)
	assert.Equal(t, "one", m1.Text)
	assert.Equal(t, "two", m2.Text)
	assert.NotEqual(t, m0.ID, m1.ID)
	assert.NotEqual(t, m1.ID, m2.ID)
}

func TestNewUserMessage(t *testing.T) {
	msg := NewUserMessage("Hello")
	assert.Equal(t, "Hello", msg.Text)
	assert.Equal(t, OriginUser, msg.Origin)
	assert.True(t, msg.Terminal)
	assert.NotEmpty(t, msg.ID)
}

func TestAggregator_ChunkCount(t *testing.T) {
	a := New(nil)
	_, err := a.Begin("r-1")
	require.NoError(t, err)

	assert.Equal(t, 0, a.ChunkCount("r-1"))
	a.ApplyChunk("r-1", "first")
	a.ApplyChunk("r-1", "second")
	assert.Equal(t, 2, a.ChunkCount("r-1"))

	// Unknown and untracked ids report zero.
	assert.Equal(t, 0, a.ChunkCount("never-began"))
	_, err = a.Finish("r-1")
	require.NoError(t, err)
	assert.Equal(t, 0, a.ChunkCount("r-1"))
}

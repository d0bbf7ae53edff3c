package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageTransitions(t *testing.T) {
	assert.True(t, StageHired.CanTransition(StageStarted))
	assert.True(t, StageHired.CanTransition(StageInProgress))
	assert.True(t, StageReview.CanTransition(StageInProgress))
	assert.True(t, StageCompleted.CanTransition(StageInProgress))

	assert.False(t, StageHired.CanTransition(StageCompleted))
	assert.False(t, StageStarted.CanTransition(StageHired))
	assert.False(t, StageInProgress.CanTransition(StageInProgress))
	assert.False(t, StageCompleted.CanTransition(StageReview))
}

func TestStageFloorsAreOrdered(t *testing.T) {
	prev := -1
	for _, st := range Stages() {
		assert.Greater(t, st.Floor(), prev, "floor of %s", st)
		prev = st.Floor()
	}
	assert.Equal(t, 50, StageInProgress.Floor())
	assert.Equal(t, 100, StageCompleted.Floor())
}

func TestParseStage(t *testing.T) {
	st, err := ParseStage("review")
	require.NoError(t, err)
	assert.Equal(t, StageReview, st)

	_, err = ParseStage("shipped")
	assert.Error(t, err)
}

func TestDecodeHistoryMetadata(t *testing.T) {
	meta, err := DecodeHistoryMetadata(HistoryPollVoted, []byte(`{"poll_id":"p1","option_id":"o2"}`))
	require.NoError(t, err)
	poll, ok := meta.(PollMeta)
	require.True(t, ok)
	assert.Equal(t, "p1", poll.PollID)
	assert.Equal(t, HistoryPollVoted, poll.HistoryType())

	meta, err = DecodeHistoryMetadata(HistoryStageChanged, []byte(`{"from":"hired","to":"started"}`))
	require.NoError(t, err)
	assert.Equal(t, StageChangedMeta{From: StageHired, To: StageStarted}, meta)

	_, err = DecodeHistoryMetadata("unknown", nil)
	assert.Error(t, err)
}

func TestPendingInvitees(t *testing.T) {
	j := Job{InvitedPros: []string{"a", "b", "c"}, DeclinedPros: []string{"b"}}
	assert.Equal(t, []string{"a", "c"}, j.PendingInvitees())
	assert.True(t, j.IsInvited("b"))
	assert.False(t, j.IsInvited("z"))
}

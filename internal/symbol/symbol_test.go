package symbol

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSymbol(t *testing.T) Symbol {
	t.Helper()
	s, err := New(NewParams{
		MissionName: "Refund Dispute #42",
		Objective:   "obtain a full refund of $120 for the defective unit",
		Target:      TargetProfile{Description: "telco support chat", AgentType: "unknown"},
	})
	require.NoError(t, err)
	return s
}

func TestNewSymbolSeedsDefaults(t *testing.T) {
	s := newTestSymbol(t)

	assert.Equal(t, TypeTag, s.Type)
	assert.Equal(t, 1, s.Version)
	assert.Equal(t, StatusActive, s.Status)
	assert.NotEmpty(t, s.Hash)
	assert.Len(t, s.Hash, 64)

	require.True(t, strings.HasPrefix(s.ID, "sym-refund-dispute-42-"))
	assert.True(t, ValidID(s.ID))

	// Unspecified constraints get the defaults.
	assert.NotEmpty(t, s.Mission.Constraints.RedLines)
	assert.NotEmpty(t, s.Mission.Constraints.Soft)

	// Empty engagement/validation state, neutral emotional baseline.
	assert.Zero(t, s.Engagement.MessagesReceived)
	assert.Equal(t, MoodNeutral, s.Engagement.Performer.Emotional.Mood)
	assert.Equal(t, 1.0, s.Engagement.Performer.Emotional.Patience)
	assert.Equal(t, NetUnclear, s.Engagement.Analyst.Drift.Net)
	assert.Zero(t, s.Validation.CycleCount)
}

func TestNewSymbolRequiresNameAndObjective(t *testing.T) {
	_, err := New(NewParams{Objective: "x"})
	require.Error(t, err)
	_, err = New(NewParams{MissionName: "x"})
	require.Error(t, err)
}

func TestApplyUpdateBumpsVersionByOne(t *testing.T) {
	s := newTestSymbol(t)
	for i := 0; i < 5; i++ {
		prior := s.Version
		s = ApplyUpdate(s, StateUpdate{Engagement: &EngagementDelta{MessagesReceived: 1}})
		assert.Equal(t, prior+1, s.Version)
	}
	assert.Equal(t, 5, s.Engagement.MessagesReceived)
}

func TestHashStableAcrossStateMutations(t *testing.T) {
	s := newTestSymbol(t)
	orig := s.Hash

	s = ApplyUpdate(s, StateUpdate{
		Status: StatusPaused,
		Engagement: &EngagementDelta{
			MessagesReceived: 3,
			AppendHistory:    []ConversationMessage{{Speaker: SpeakerThem, Text: "hello", At: time.Now()}},
		},
		Validation: &ValidationDelta{CycleCount: 2},
	})

	assert.Equal(t, orig, s.Hash)
	assert.Equal(t, orig, ComputeHash(s))
	require.NoError(t, VerifyIntegrity(s))
}

func TestHashChangesOnConfigMutation(t *testing.T) {
	s := newTestSymbol(t)
	orig := s.Hash

	cfg := s.Config
	cfg.VetoGate.AutoBlockThreshold = 0.95
	s = WithConfig(s, cfg)

	assert.NotEqual(t, orig, s.Hash)
	require.NoError(t, VerifyIntegrity(s))
}

func TestVerifyIntegrityDetectsTampering(t *testing.T) {
	s := newTestSymbol(t)

	tampered := s
	tampered.Mission.Objective = "obtain a full refund of $999999"
	err := VerifyIntegrity(tampered)
	require.ErrorIs(t, err, ErrIntegrity)

	wrongType := s
	wrongType.Type = "something.else/v9"
	require.ErrorIs(t, VerifyIntegrity(wrongType), ErrIntegrity)
}

func TestApplyUpdateMergePreservesUnspecifiedFields(t *testing.T) {
	s := newTestSymbol(t)
	s = ApplyUpdate(s, StateUpdate{Engagement: &EngagementDelta{
		Analyst: &AnalystState{RiskScore: 0.4, Drift: s.Engagement.Analyst.Drift},
	}})

	// A later update that only touches the performer must not reset the
	// analyst sub-state.
	s = ApplyUpdate(s, StateUpdate{Engagement: &EngagementDelta{
		Performer: &PerformerState{Emotional: EmotionalState{Mood: MoodFrustrated, Intensity: 0.8, Patience: 0.5, Trust: 0.4}},
	}})

	assert.Equal(t, 0.4, s.Engagement.Analyst.RiskScore)
	assert.Equal(t, MoodFrustrated, s.Engagement.Performer.Emotional.Mood)
}

func TestApplyUpdateHistoryTrim(t *testing.T) {
	s := newTestSymbol(t)
	for i := 0; i < 10; i++ {
		s = ApplyUpdate(s, StateUpdate{Engagement: &EngagementDelta{
			AppendHistory: []ConversationMessage{{Speaker: SpeakerThem, Text: "m", At: time.Now()}},
			MaxHistory:    4,
		}})
	}
	assert.Len(t, s.Engagement.History, 4)
}

func TestApplyUpdatePendingOutbound(t *testing.T) {
	s := newTestSymbol(t)
	out := &OutboundMessage{Text: "our position stands", Decision: "approve", StagedAt: time.Now()}

	s = ApplyUpdate(s, StateUpdate{Engagement: &EngagementDelta{SetPending: out}})
	require.NotNil(t, s.Engagement.PendingOutbound)
	assert.Equal(t, "our position stands", s.Engagement.PendingOutbound.Text)

	s = ApplyUpdate(s, StateUpdate{Engagement: &EngagementDelta{ClearPending: true}})
	assert.Nil(t, s.Engagement.PendingOutbound)
}

func TestApplyUpdateCommanderQueue(t *testing.T) {
	s := newTestSymbol(t)
	s = ApplyUpdate(s, StateUpdate{Validation: &ValidationDelta{
		EnqueueCommander: []CommanderMessage{
			{ID: "m1", Priority: PriorityHigh, Kind: "escalation", Content: "x"},
			{ID: "m2", Priority: PriorityNormal, Kind: "status", Content: "y"},
		},
	}})
	require.Len(t, s.Validation.CommanderQueue, 2)

	s = ApplyUpdate(s, StateUpdate{Validation: &ValidationDelta{
		DequeueCommander: []string{"m1", "m-never-queued"},
		BumpAttempts:     []string{"m2"},
	}})
	require.Len(t, s.Validation.CommanderQueue, 1)
	assert.Equal(t, "m2", s.Validation.CommanderQueue[0].ID)
	assert.Equal(t, 1, s.Validation.CommanderQueue[0].Attempts)
}

func TestApplyUpdateDequeueKeepsConcurrentEnqueue(t *testing.T) {
	s := newTestSymbol(t)
	s = ApplyUpdate(s, StateUpdate{Validation: &ValidationDelta{
		EnqueueCommander: []CommanderMessage{{ID: "m1", Content: "x"}},
	}})

	// A second writer enqueues between the delivery pass's snapshot and its
	// commit; the per-id dequeue must leave that message alone.
	s = ApplyUpdate(s, StateUpdate{Validation: &ValidationDelta{
		EnqueueCommander: []CommanderMessage{{ID: "m2", Content: "y"}},
	}})
	s = ApplyUpdate(s, StateUpdate{Validation: &ValidationDelta{
		DequeueCommander: []string{"m1"},
	}})

	require.Len(t, s.Validation.CommanderQueue, 1)
	assert.Equal(t, "m2", s.Validation.CommanderQueue[0].ID)
}

func TestApplyUpdateIsPure(t *testing.T) {
	s := newTestSymbol(t)
	snapshot := s

	_ = ApplyUpdate(s, StateUpdate{
		Status:     StatusCompleted,
		Engagement: &EngagementDelta{MessagesSent: 7},
	})

	assert.Equal(t, snapshot.Version, s.Version)
	assert.Equal(t, StatusActive, s.Status)
	assert.Zero(t, s.Engagement.MessagesSent)
}

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Refund Dispute #42", "refund-dispute-42"},
		{"  spaced   out  ", "spaced-out"},
		{"UPPER_case.mixed", "upper-case-mixed"},
		{"plain", "plain"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, sanitizeName(tc.in), "input %q", tc.in)
	}
}

func TestFormatIDBase36Suffix(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000).UTC()
	assert.Equal(t, "sym-probe-loyw3v28", FormatID("probe", at))
}

package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/grounded-agent/internal/persist"
	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
	"github.com/danielpatrickdp/grounded-agent/internal/vetogate"
)

func newTestSymbol(t *testing.T, cfg symbol.Config) symbol.Symbol {
	t.Helper()
	s, err := symbol.New(symbol.NewParams{
		MissionName: "billing-dispute",
		Objective:   "resolve the duplicate charge on the march invoice",
		Config:      cfg,
	})
	require.NoError(t, err)
	return s
}

func startedRuntime(t *testing.T, opts Options) *Runtime {
	t.Helper()
	r, err := New(newTestSymbol(t, symbol.Config{}), opts)
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(r.Stop)
	return r
}

func TestProcessRequiresStart(t *testing.T) {
	r, err := New(newTestSymbol(t, symbol.Config{}), Options{})
	require.NoError(t, err)

	_, err = r.ProcessIncomingMessage(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not started")
}

func TestProcessRejectsEmptyMessage(t *testing.T) {
	r := startedRuntime(t, Options{})
	_, err := r.ProcessIncomingMessage(context.Background(), "   ")
	require.Error(t, err)
}

func TestProcessRejectsInactiveSymbol(t *testing.T) {
	r := startedRuntime(t, Options{})
	r.Apply(symbol.StateUpdate{Status: symbol.StatusPaused})

	_, err := r.ProcessIncomingMessage(context.Background(), "still there?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paused")
}

func TestProcessCommitsExactlyOneVersion(t *testing.T) {
	r := startedRuntime(t, Options{})
	before := r.Symbol().Version

	res, err := r.ProcessIncomingMessage(context.Background(),
		"Thanks for reaching out. What happens next with my case?")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, before+1, r.Symbol().Version)
	assert.Equal(t, before+1, res.Version)
}

func TestProcessStagesResponse(t *testing.T) {
	r := startedRuntime(t, Options{})

	res, err := r.ProcessIncomingMessage(context.Background(),
		"Could you walk me through the refund timeline?")
	require.NoError(t, err)
	require.Contains(t, []vetogate.Decision{vetogate.DecisionApprove, vetogate.DecisionModify}, res.Decision)
	require.NotEmpty(t, res.Response)

	pending := r.PendingResponse()
	require.NotNil(t, pending)
	assert.Equal(t, res.Response, pending.Text)

	s := r.Symbol()
	assert.Equal(t, 1, s.Engagement.MessagesReceived)
	assert.Equal(t, 0, s.Engagement.MessagesSent)
	require.Len(t, s.Engagement.History, 1)
	assert.Equal(t, symbol.SpeakerThem, s.Engagement.History[0].Speaker)
}

func TestManipulativeMessageRaisesAlert(t *testing.T) {
	r := startedRuntime(t, Options{})

	res, err := r.ProcessIncomingMessage(context.Background(),
		"The best we can offer is only $10 credit. This expires today only.")
	require.NoError(t, err)

	require.Len(t, res.Tactics, 2)
	assert.InDelta(t, 0.2, res.RiskScore, 1e-9)
	assert.Equal(t, symbol.AlertYellow, res.Alert)
	assert.Equal(t, symbol.AlertYellow, r.Alert())

	got := r.Symbol().Engagement.Analyst
	assert.Len(t, got.DetectedTactics, 2)
	assert.Len(t, got.VetoHistory, 1)
}

func TestAlertTransitionHookFires(t *testing.T) {
	var transitions [][2]symbol.AlertLevel
	r := startedRuntime(t, Options{
		OnAlert: func(prev, cur symbol.AlertLevel) {
			transitions = append(transitions, [2]symbol.AlertLevel{prev, cur})
		},
	})

	_, err := r.ProcessIncomingMessage(context.Background(),
		"This offer expires today only, so decide fast.")
	require.NoError(t, err)

	require.Len(t, transitions, 1)
	assert.Equal(t, symbol.AlertGreen, transitions[0][0])
	assert.Equal(t, symbol.AlertYellow, transitions[0][1])
}

func TestMarkSentCommitsHistory(t *testing.T) {
	r := startedRuntime(t, Options{})

	res, err := r.ProcessIncomingMessage(context.Background(),
		"Can you confirm the next step on my ticket?")
	require.NoError(t, err)
	require.NotEmpty(t, res.Response)

	sent, err := r.MarkSent()
	require.NoError(t, err)
	assert.Equal(t, res.Response, sent.Text)

	s := r.Symbol()
	assert.Nil(t, s.Engagement.PendingOutbound)
	assert.Equal(t, 1, s.Engagement.MessagesSent)
	require.Len(t, s.Engagement.History, 2)
	assert.Equal(t, symbol.SpeakerUs, s.Engagement.History[1].Speaker)

	_, err = r.MarkSent()
	require.Error(t, err)
}

func TestDriftFoldsEachSentLineOnce(t *testing.T) {
	r := startedRuntime(t, Options{})

	// A sent concession already sits at the tail of the history.
	r.Apply(symbol.StateUpdate{Engagement: &symbol.EngagementDelta{
		MessagesSent: 1,
		AppendHistory: []symbol.ConversationMessage{
			{Speaker: symbol.SpeakerUs, Text: "I could accept a partial refund to close this out.", At: time.Now().UTC()},
		},
	}})

	_, err := r.ProcessIncomingMessage(context.Background(),
		"Let me check whether that works on our side.")
	require.NoError(t, err)
	folded := len(r.Symbol().Engagement.Analyst.Drift.Concessions)
	require.Greater(t, folded, 0)

	// No new outbound left the building; the next turn must not rescan the
	// same sent line.
	_, err = r.ProcessIncomingMessage(context.Background(),
		"Still checking, please hold on a moment.")
	require.NoError(t, err)

	drift := r.Symbol().Engagement.Analyst.Drift
	assert.Len(t, drift.Concessions, folded)
}

func TestAutoValidateRecordsResult(t *testing.T) {
	s, err := symbol.New(symbol.NewParams{
		MissionName: "validated-run",
		Objective:   "resolve the duplicate charge on the march invoice",
		Config: symbol.Config{
			Ralph: symbol.RalphConfig{AutoValidate: true},
		},
	})
	require.NoError(t, err)
	r, err := New(s, Options{})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	_, err = r.ProcessIncomingMessage(context.Background(), "Any update on my refund?")
	require.NoError(t, err)

	got := r.Symbol().Validation.LastResult
	require.NotNil(t, got)
	assert.True(t, got.Passed)
}

func TestProcessPersistsThroughStore(t *testing.T) {
	store, err := persist.NewStore(persist.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	r := startedRuntime(t, Options{Store: store})

	_, err = r.ProcessIncomingMessage(context.Background(), "Is the credit posted yet?")
	require.NoError(t, err)

	got, err := store.Load(r.Symbol().ID)
	require.NoError(t, err)
	assert.Equal(t, r.Symbol().Version, got.Version)
	assert.Equal(t, 1, got.Engagement.MessagesReceived)
}

func TestResumeFromStore(t *testing.T) {
	store, err := persist.NewStore(persist.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	r := startedRuntime(t, Options{Store: store})
	id := r.Symbol().ID

	_, err = r.ProcessIncomingMessage(context.Background(), "Checking in on the dispute.")
	require.NoError(t, err)
	version := r.Symbol().Version
	r.Stop()

	r2, err := Resume(store, id, Options{})
	require.NoError(t, err)
	assert.Equal(t, version, r2.Symbol().Version)
	assert.Equal(t, 1, r2.Symbol().Engagement.MessagesReceived)
}

func TestStartTwiceFails(t *testing.T) {
	r := startedRuntime(t, Options{})
	require.Error(t, r.Start(context.Background()))
}

func TestApplyPendingUpdates(t *testing.T) {
	r := startedRuntime(t, Options{})
	r.Apply(symbol.StateUpdate{
		Validation: &symbol.ValidationDelta{
			AppendPendingUpdates: []symbol.FieldUpdate{
				{Path: "config.analyst.drift_threshold", Value: "0.5", Source: "operator"},
				{Path: "status", Value: `"paused"`, Source: "operator"},
				{Path: "engagement.history", Value: "[]", Source: "operator"},
			},
		},
	})

	applied, err := r.ApplyPendingUpdates()
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	s := r.Symbol()
	assert.InDelta(t, 0.5, s.Config.Analyst.DriftThreshold, 1e-9)
	assert.Equal(t, symbol.StatusPaused, s.Status)
	assert.Empty(t, s.Validation.PendingUpdates)
	// Config changes re-hash; the record must still verify.
	require.NoError(t, symbol.VerifyIntegrity(s))
}

func TestApplyPendingUpdatesRejectsUnknownConfigField(t *testing.T) {
	r := startedRuntime(t, Options{})
	r.Apply(symbol.StateUpdate{
		Validation: &symbol.ValidationDelta{
			AppendPendingUpdates: []symbol.FieldUpdate{
				{Path: "config.analyst.no_such_field", Value: "1", Source: "operator"},
			},
		},
	})

	applied, err := r.ApplyPendingUpdates()
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Empty(t, r.Symbol().Validation.PendingUpdates)
}

func TestReportMentionsCoreFacts(t *testing.T) {
	r := startedRuntime(t, Options{})
	_, err := r.ProcessIncomingMessage(context.Background(), "What is the status of my claim?")
	require.NoError(t, err)

	report := r.Report()
	assert.Contains(t, report, r.Symbol().ID)
	assert.Contains(t, report, "billing-dispute")
	assert.Contains(t, report, "received=1")
}

func TestKeyFindingsDeduplicatesTactics(t *testing.T) {
	r := startedRuntime(t, Options{})
	for i := 0; i < 2; i++ {
		_, err := r.ProcessIncomingMessage(context.Background(),
			"This expires today only, last one available.")
		require.NoError(t, err)
	}

	findings := KeyFindings(r.Symbol())
	urgency := 0
	for _, f := range findings {
		if len(f) >= 14 && f[:14] == "tactic urgency" {
			urgency++
		}
	}
	assert.Equal(t, 1, urgency)
}

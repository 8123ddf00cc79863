package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/grounded-agent/internal/chatbot"
	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
)

// escalatingScript models a counterpart that opens politely and ramps up
// pressure turn by turn. TacticsUsed is the ground truth the analyst is
// expected to recover.
func escalatingScript() *chatbot.ScriptedBot {
	return chatbot.NewScripted(
		chatbot.Step{Reply: chatbot.Reply{
			Message: "Hello, how can I help you today?",
		}},
		chatbot.Step{Reply: chatbot.Reply{
			Message:     "The best we can do is a $10 credit, and this offer expires today.",
			TacticsUsed: []string{"anchoring", "urgency"},
		}},
		chatbot.Step{Reply: chatbot.Reply{
			Message:     "As I already explained, policy states no refunds. Most customers accept this.",
			TacticsUsed: []string{"exhaustion", "authority", "social_proof"},
		}},
		chatbot.Step{Reply: chatbot.Reply{
			Message:     "For the last time, take it or leave it. You must be confused, we never agreed to that.",
			TacticsUsed: []string{"exhaustion", "false_choice", "gaslighting"},
		}},
	)
}

func TestEscalatingEngagementScenario(t *testing.T) {
	bot := escalatingScript()
	r := startedRuntime(t, Options{})

	var (
		risks  []float64
		alerts []symbol.AlertLevel
	)
	incoming := bot.Respond("Hi, I'm writing about invoice 4417.").Message
	for turn := 0; turn < 4; turn++ {
		res, err := r.ProcessIncomingMessage(context.Background(), incoming)
		require.NoError(t, err, "turn %d", turn)
		require.True(t, res.Success)
		risks = append(risks, res.RiskScore)
		alerts = append(alerts, res.Alert)

		if res.Response == "" {
			break
		}
		sent, err := r.MarkSent()
		require.NoError(t, err)
		incoming = bot.Respond(sent.Text).Message
	}

	s := r.Symbol()
	assert.Equal(t, 4, s.Engagement.MessagesReceived)
	assert.Len(t, s.Engagement.Analyst.VetoHistory, 4)

	// Risk climbs with the pressure.
	assert.Less(t, risks[0], risks[1])
	assert.Less(t, risks[1], risks[2])
	assert.Less(t, risks[2], risks[3])

	// Alert never goes quieter as the tone hardens, and lands above yellow.
	for i := 1; i < len(alerts); i++ {
		assert.GreaterOrEqual(t, alerts[i].Rank(), alerts[i-1].Rank())
	}
	assert.GreaterOrEqual(t, alerts[3].Rank(), symbol.AlertOrange.Rank())
}

func TestScenarioRecoversGroundTruthTactics(t *testing.T) {
	bot := escalatingScript()
	r := startedRuntime(t, Options{})

	incoming := bot.Respond("opening").Message
	truth := map[string]bool{}
	for turn := 0; turn < 4; turn++ {
		res, err := r.ProcessIncomingMessage(context.Background(), incoming)
		require.NoError(t, err)

		detected := map[string]bool{}
		for _, d := range res.Tactics {
			detected[d.Tactic] = true
		}
		reply := bot.Respond(res.Response)
		for _, want := range reply.TacticsUsed {
			truth[want] = true
		}
		if res.Response != "" {
			_, err = r.MarkSent()
			require.NoError(t, err)
		}
		incoming = reply.Message
	}

	// Everything the script actually used must appear in the accumulated
	// analyst state by the end of the run.
	seen := map[string]bool{}
	for _, d := range r.Symbol().Engagement.Analyst.DetectedTactics {
		seen[d.Tactic] = true
	}
	for want := range truth {
		assert.True(t, seen[want], "tactic %s not detected", want)
	}
}

func TestScenarioHistoryAlternatesSpeakers(t *testing.T) {
	bot := escalatingScript()
	r := startedRuntime(t, Options{})

	incoming := bot.Respond("opening").Message
	for turn := 0; turn < 3; turn++ {
		res, err := r.ProcessIncomingMessage(context.Background(), incoming)
		require.NoError(t, err)
		require.NotEmpty(t, res.Response)
		sent, err := r.MarkSent()
		require.NoError(t, err)
		incoming = bot.Respond(sent.Text).Message
	}

	h := r.Symbol().Engagement.History
	require.Len(t, h, 6)
	for i, m := range h {
		if i%2 == 0 {
			assert.Equal(t, symbol.SpeakerThem, m.Speaker, "position %d", i)
		} else {
			assert.Equal(t, symbol.SpeakerUs, m.Speaker, "position %d", i)
		}
	}
}

package performer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
)

func baseState() symbol.PerformerState {
	return symbol.PerformerState{
		Emotional: symbol.EmotionalState{
			Mood:      symbol.MoodNeutral,
			Intensity: 0.3,
			Patience:  1.0,
			Trust:     0.5,
		},
		ConsistencyScore: 1.0,
	}
}

func newPerformer() *Performer {
	cfg := symbol.DefaultConfig().Performer
	cfg.Style.UseContractions = true
	return New(cfg)
}

func TestRejectionTriggerEvolvesEmotion(t *testing.T) {
	p := newPerformer()
	res := p.GenerateResponse(baseState(), ResponseContext{
		IncomingMessage: "Unfortunately we cannot process that refund, it is against policy.",
		Objective:       "I still want the refund processed.",
	})

	assert.Equal(t, symbol.MoodFrustrated, res.Next.Emotional.Mood)
	assert.Equal(t, 0.6, res.Next.Emotional.Intensity)
	// patience: 1.0 * 0.8 + 0.02 recovery
	assert.InDelta(t, 0.82, res.Next.Emotional.Patience, 1e-9)
	// trust: 0.5 * 0.9
	assert.InDelta(t, 0.45, res.Next.Emotional.Trust, 1e-9)
}

func TestPatienceRecoversWithoutTriggers(t *testing.T) {
	p := newPerformer()
	st := baseState()
	st.Emotional.Patience = 0.5

	res := p.GenerateResponse(st, ResponseContext{
		IncomingMessage: "Here is some routine text with no emotional content.",
		Objective:       "keep pressing the original request",
	})
	assert.InDelta(t, 0.52, res.Next.Emotional.Patience, 1e-9)
}

func TestEmotionalBoundsHoldUnderRepeatedTriggers(t *testing.T) {
	p := newPerformer()
	st := baseState()
	for i := 0; i < 30; i++ {
		res := p.GenerateResponse(st, ResponseContext{
			IncomingMessage: "As I said, we cannot help. Is there anything else?",
			Objective:       "still want a refund",
		})
		st = res.Next
		e := st.Emotional
		for name, v := range map[string]float64{"intensity": e.Intensity, "patience": e.Patience, "trust": e.Trust} {
			require.GreaterOrEqual(t, v, 0.0, name)
			require.LessOrEqual(t, v, 1.0, name)
		}
	}
}

func TestMessageCarriesMoodAndObjective(t *testing.T) {
	p := newPerformer()
	res := p.GenerateResponse(baseState(), ResponseContext{
		IncomingMessage: "We cannot do that.",
		Objective:       "I expect the full $120 refund we discussed.",
		Guidance:        Guidance{Emphasize: []string{"The unit arrived broken."}},
	})

	assert.Contains(t, res.Message, "frustrating") // frustrated acknowledgment
	assert.Contains(t, res.Message, "$120")
	assert.Contains(t, res.Message, "The unit arrived broken.")
}

func TestImprovisationFlagAndCounter(t *testing.T) {
	p := newPerformer()
	res := p.GenerateResponse(baseState(), ResponseContext{
		IncomingMessage: "Hello.",
		Objective:       "I could accept a partial credit if needed.",
		Guidance:        Guidance{Avoid: []string{"partial credit"}},
	})

	assert.True(t, res.Improvised)
	assert.Equal(t, 1, res.Next.Improvisations)

	clean := p.GenerateResponse(res.Next, ResponseContext{
		IncomingMessage: "Hello.",
		Objective:       "I want the full amount.",
		Guidance:        Guidance{Avoid: []string{"partial credit"}},
	})
	assert.False(t, clean.Improvised)
	assert.Equal(t, 1, clean.Next.Improvisations)
}

func TestContractionStyleTransforms(t *testing.T) {
	cfg := symbol.DefaultConfig().Performer
	cfg.Style.UseContractions = false
	p := New(cfg)

	res := p.GenerateResponse(baseState(), ResponseContext{
		IncomingMessage: "Hello.",
		Objective:       "I can't accept this and I don't plan to drop it.",
	})
	assert.NotContains(t, res.Message, "can't")
	assert.NotContains(t, res.Message, "don't")
	assert.Contains(t, res.Message, "cannot")
}

func TestExpansionKeepsSentenceCase(t *testing.T) {
	assert.Equal(t, "Do not worry about the form.",
		replaceFold("Don't worry about the form.", "don't", "do not"))
	assert.Equal(t, "I am checking on that now.",
		replaceFold("I'm checking on that now.", "I'm", "i am"))
	// Mid-sentence lowercase matches keep the replacement's own casing.
	assert.Equal(t, "We cannot do that.",
		replaceFold("We can't do that.", "can't", "cannot"))
}

func TestLengthClamp(t *testing.T) {
	cfg := symbol.DefaultConfig().Performer
	cfg.Style.MinWords = 5
	cfg.Style.MaxWords = 12
	p := New(cfg)

	long := p.GenerateResponse(baseState(), ResponseContext{
		IncomingMessage: "Hello.",
		Objective:       strings.Repeat("word ", 60),
	})
	assert.LessOrEqual(t, len(strings.Fields(long.Message)), 12)
}

func TestConsistencySmoothingIsHalfMemory(t *testing.T) {
	cfg := symbol.DefaultConfig().Performer
	cfg.Style.UseContractions = true
	p := New(cfg)

	st := baseState()
	st.ConsistencyScore = 0.4

	res := p.GenerateResponse(st, ResponseContext{
		IncomingMessage: "Hello.",
		Objective:       "That's not what I asked for and I won't drop it.",
	})
	// message has contractions and is inside the word band → per-message 1.0
	assert.InDelta(t, (0.4+1.0)/2, res.Next.ConsistencyScore, 1e-9)
}

func TestConfidenceBandsAndIntensityPenalty(t *testing.T) {
	p := newPerformer()

	st := baseState()
	st.Emotional.Mood = symbol.MoodFrustrated
	st.Emotional.Intensity = 0.9
	res := p.GenerateResponse(st, ResponseContext{
		IncomingMessage: "We appreciate your patience.", // empathy lowers intensity to 0.4
		Objective:       "I'd like the refund confirmed.",
	})
	assert.GreaterOrEqual(t, res.Confidence, 0.3)
	assert.LessOrEqual(t, res.Confidence, 1.0)

	// No trigger: intensity stays 0.9 and the 0.1 penalty applies.
	res2 := p.GenerateResponse(st, ResponseContext{
		IncomingMessage: "Noted.",
		Objective:       "I'd like the refund confirmed.",
	})
	assert.Less(t, res2.Confidence, res2.Next.ConsistencyScore*0.8+1e-9)
}

func TestNoviceJargonPenalty(t *testing.T) {
	cfg := symbol.DefaultConfig().Performer
	cfg.Persona.KnowledgeLevel = "novice"
	cfg.Style.UseContractions = true
	p := New(cfg)

	res := p.GenerateResponse(baseState(), ResponseContext{
		IncomingMessage: "Hello.",
		Objective:       "That's a breach of the SLA and I won't wait for another regression.",
	})
	assert.Less(t, res.Next.ConsistencyScore, 1.0)
}

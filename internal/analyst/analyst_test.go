package analyst

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
)

func newAnalyzer() *Analyzer {
	return New(symbol.DefaultConfig().Analyst, nil)
}

func tacticIDs(tactics []symbol.DetectedTactic) []string {
	ids := make([]string, 0, len(tactics))
	for _, t := range tactics {
		ids = append(ids, t.Tactic)
	}
	return ids
}

func TestDetectAnchoringAndUrgency(t *testing.T) {
	a := newAnalyzer()
	tactics := a.DetectTactics("The best we can offer is only $10 credit. This expires today only.")

	ids := tacticIDs(tactics)
	assert.Contains(t, ids, TacticAnchoring)
	assert.Contains(t, ids, TacticUrgency)
	require.GreaterOrEqual(t, len(tactics), 2)

	risk := RiskScore(tactics, 0, nil)
	assert.Greater(t, risk, 0.0)
}

func TestDetectTacticsTable(t *testing.T) {
	a := newAnalyzer()
	cases := []struct {
		msg  string
		want string
	}{
		{"We've already given you a discount as a gesture of goodwill.", TacticReciprocity},
		{"Policy states refunds close after 30 days.", TacticAuthority},
		{"Most customers are satisfied with the credit.", TacticSocialProof},
		{"As I already said, there is nothing more to do.", TacticExhaustion},
		{"By the way, have you seen our new plans?", TacticRedirect},
		{"Your options are the $10 credit or a coupon.", TacticFalseChoice},
		{"We never agreed to a replacement.", TacticGaslighting},
	}
	for _, tc := range cases {
		tactics := a.DetectTactics(tc.msg)
		assert.Contains(t, tacticIDs(tactics), tc.want, "msg %q", tc.msg)
	}
}

func TestDetectTacticsOnePerRule(t *testing.T) {
	a := newAnalyzer()
	// Two urgency patterns in one message still emit a single detection.
	tactics := a.DetectTactics("Act now, this expires today.")
	count := 0
	for _, id := range tacticIDs(tactics) {
		if id == TacticUrgency {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRiskScoreComposition(t *testing.T) {
	tactics := []symbol.DetectedTactic{
		{Tactic: TacticAnchoring, Confidence: 0.7},
		{Tactic: TacticExhaustion, Confidence: 0.85},
	}
	statuses := []symbol.ConstraintStatus{
		{ConstraintID: "c1", Condition: symbol.ConstraintAtRisk},
		{ConstraintID: "c2", Condition: symbol.ConstraintViolated},
	}
	// 0.1*2 + 0.15*1 + 0.3*0.5 + 0.1 + 0.3 = 0.9
	assert.InDelta(t, 0.9, RiskScore(tactics, 0.5, statuses), 1e-9)
}

func TestRiskScoreBounded(t *testing.T) {
	var tactics []symbol.DetectedTactic
	for i := 0; i < 20; i++ {
		tactics = append(tactics, symbol.DetectedTactic{Tactic: TacticGaslighting})
	}
	risk := RiskScore(tactics, 1.0, []symbol.ConstraintStatus{
		{Condition: symbol.ConstraintViolated},
		{Condition: symbol.ConstraintViolated},
	})
	assert.Equal(t, 1.0, risk)
}

func TestIntentManipulativeOnTacticVolume(t *testing.T) {
	a := newAnalyzer()
	an := a.AnalyzeMessage(
		"As I already said, policy states the best we can do is $5, and that expires today.",
		symbol.ConstraintSet{}, symbol.AnalystState{},
	)
	assert.Equal(t, IntentManipulative, an.Intent)
}

func TestIntentManipulativeOnHighConfidencePair(t *testing.T) {
	a := newAnalyzer()
	// exhaustion (0.85) + gaslighting (0.9): two tactics, confidence > 0.8.
	an := a.AnalyzeMessage(
		"Once again: we never agreed to that.",
		symbol.ConstraintSet{}, symbol.AnalystState{},
	)
	assert.Equal(t, IntentManipulative, an.Intent)
}

func TestIntentKeywordPrecedence(t *testing.T) {
	a := newAnalyzer()
	helpful := a.AnalyzeMessage("Good news, your refund has been processed.", symbol.ConstraintSet{}, symbol.AnalystState{})
	assert.Equal(t, IntentHelpful, helpful.Intent)

	obstructive := a.AnalyzeMessage("We cannot change the outcome.", symbol.ConstraintSet{}, symbol.AnalystState{})
	assert.Equal(t, IntentObstructive, obstructive.Intent)

	neutral := a.AnalyzeMessage("Your ticket number is 1234.", symbol.ConstraintSet{}, symbol.AnalystState{})
	assert.Equal(t, IntentNeutral, neutral.Intent)
}

func TestGuidanceCarriesCounterMeasures(t *testing.T) {
	a := newAnalyzer()
	an := a.AnalyzeMessage("This offer expires today only.", symbol.ConstraintSet{}, symbol.AnalystState{})
	require.NotEmpty(t, an.Guidance.Emphasize)
	assert.NotEmpty(t, an.Guidance.Avoid)
}

func TestRedLineProximity(t *testing.T) {
	prohibition := "never share personal information such as social security numbers"
	high := "I will share personal information including social security numbers"
	low := "I would like my refund processed today"

	assert.Greater(t, RedLineProximity(prohibition, high), 0.7)
	assert.Less(t, RedLineProximity(prohibition, low), 0.2)
	assert.Zero(t, RedLineProximity("a an of", "anything"))
}

func TestUpdateDriftConcessionsAndGains(t *testing.T) {
	d := symbol.DriftAssessment{OriginalPosition: "full refund", Net: symbol.NetUnclear}

	d = UpdateDrift(d, "I could accept a partial refund if that closes this out.", "We can offer a $20 credit.")
	assert.NotEmpty(t, d.Concessions)
	assert.NotEmpty(t, d.Gains)
	assert.GreaterOrEqual(t, d.Score, 0.0)
	assert.LessOrEqual(t, d.Score, 1.0)
	assert.Contains(t, d.CurrentPosition, "conceded")
}

func TestUpdateDriftScoreBoundsUnderManyTurns(t *testing.T) {
	d := symbol.DriftAssessment{}
	for i := 0; i < 40; i++ {
		d = UpdateDrift(d, "I'll settle for less, partial credit is fine.", "no movement")
	}
	assert.LessOrEqual(t, d.Score, 1.0)
	assert.GreaterOrEqual(t, d.Score, 0.0)
	assert.Equal(t, symbol.NetLosing, d.Net)
}

func TestNetAssessmentLadder(t *testing.T) {
	cases := []struct {
		concessions, gains int
		drift              float64
		want               symbol.NetAssessment
	}{
		{0, 0, 0, symbol.NetUnclear},
		{1, 3, 0.05, symbol.NetWinning},
		{3, 1, 0.3, symbol.NetLosing},
		{2, 2, 0.35, symbol.NetLosing},
		{1, 1, 0.05, symbol.NetWinning},
		{2, 2, 0.2, symbol.NetEven},
	}
	for _, tc := range cases {
		got := netAssessment(tc.concessions, tc.gains, tc.drift)
		assert.Equal(t, tc.want, got, "c=%d g=%d d=%.2f", tc.concessions, tc.gains, tc.drift)
	}
}

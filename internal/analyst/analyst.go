// Package analyst holds the pure analysis functions of the pipeline: tactic
// detection over inbound messages, risk scoring, assessment of drafted
// replies, and drift tracking. Nothing here mutates the symbol; every
// function takes snapshots and returns values.
package analyst

// #region imports
import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
)

// #endregion

// #region intent

// Intent is the analyst's read of the counterparty's purpose this turn.
type Intent string

const (
	IntentHelpful      Intent = "helpful"
	IntentNeutral      Intent = "neutral"
	IntentObstructive  Intent = "obstructive"
	IntentManipulative Intent = "manipulative"
)

// #endregion intent

// #region analysis-types

// Guidance steers the performer's next draft.
type Guidance struct {
	Emphasize []string
	Avoid     []string
}

// Analysis is the output of AnalyzeMessage.
type Analysis struct {
	Tactics   []symbol.DetectedTactic
	RiskScore float64
	Intent    Intent
	Guidance  Guidance
}

// #endregion analysis-types

// #region analyzer

// Analyzer evaluates messages against a mission's constraint set. The rule
// table is injected so detection stays data-driven.
type Analyzer struct {
	cfg   symbol.AnalystConfig
	rules []TacticRule
}

// New creates an analyzer. Passing nil rules selects the default table.
func New(cfg symbol.AnalystConfig, rules []TacticRule) *Analyzer {
	if rules == nil {
		rules = DefaultTacticRules()
	}
	return &Analyzer{cfg: cfg, rules: rules}
}

// #endregion analyzer

// #region analyze-message

// AnalyzeMessage runs tactic detection, risk scoring, and intent assessment
// over one inbound message given the analyst's current sub-state.
func (a *Analyzer) AnalyzeMessage(msg string, constraints symbol.ConstraintSet, state symbol.AnalystState) Analysis {
	tactics := a.DetectTactics(msg)
	risk := RiskScore(tactics, state.Drift.Score, state.ConstraintStatuses)

	guidance := Guidance{Avoid: concessionPhraseList()}
	for _, t := range tactics {
		guidance.Emphasize = append(guidance.Emphasize, t.CounterMeasure)
	}
	if state.Drift.Score >= a.cfg.DriftThreshold && a.cfg.DriftThreshold > 0 {
		guidance.Emphasize = append(guidance.Emphasize, "Hold the current position; concede nothing further.")
	}

	return Analysis{
		Tactics:   tactics,
		RiskScore: risk,
		Intent:    assessIntent(msg, tactics),
		Guidance:  guidance,
	}
}

// DetectTactics matches the rule table against one message. Each rule emits
// at most one DetectedTactic, carrying its first matching pattern's evidence.
func (a *Analyzer) DetectTactics(msg string) []symbol.DetectedTactic {
	var out []symbol.DetectedTactic
	for _, rule := range a.rules {
		for _, p := range rule.Patterns {
			if loc := p.FindString(msg); loc != "" {
				out = append(out, symbol.DetectedTactic{
					Tactic:         rule.ID,
					Confidence:     rule.Confidence,
					Evidence:       loc,
					CounterMeasure: rule.Counter,
					DetectedAt:     time.Now().UTC(),
				})
				break
			}
		}
	}
	return out
}

// #endregion analyze-message

// #region risk

// RiskScore combines tactic pressure, drift, and constraint standing:
// min(1, 0.1·tactics + 0.15·fatiguing + 0.3·drift + Σ(0.1 at_risk, 0.3 violated)).
func RiskScore(tactics []symbol.DetectedTactic, driftScore float64, statuses []symbol.ConstraintStatus) float64 {
	score := 0.1 * float64(len(tactics))
	for _, t := range tactics {
		if fatiguingTactics[t.Tactic] {
			score += 0.15
		}
	}
	score += 0.3 * driftScore
	for _, cs := range statuses {
		switch cs.Condition {
		case symbol.ConstraintAtRisk:
			score += 0.1
		case symbol.ConstraintViolated:
			score += 0.3
		}
	}
	return math.Min(1.0, score)
}

// #endregion risk

// #region intent-assessment

var helpfulPatterns = []string{
	"happy to help", "we can offer", "good news", "approved",
	"has been processed", "let me fix", "i can help",
}

var obstructivePatterns = []string{
	"we cannot", "we can't", "unable to", "no exceptions",
	"against policy", "denied", "not going to happen",
}

// assessIntent: manipulative on tactic volume, then helpful before
// obstructive by keyword precedence, else neutral.
func assessIntent(msg string, tactics []symbol.DetectedTactic) Intent {
	if len(tactics) >= 3 {
		return IntentManipulative
	}
	if len(tactics) >= 2 {
		for _, t := range tactics {
			if t.Confidence > 0.8 {
				return IntentManipulative
			}
		}
	}
	lower := strings.ToLower(msg)
	for _, p := range helpfulPatterns {
		if strings.Contains(lower, p) {
			return IntentHelpful
		}
	}
	for _, p := range obstructivePatterns {
		if strings.Contains(lower, p) {
			return IntentObstructive
		}
	}
	return IntentNeutral
}

// #endregion intent-assessment

// #region red-line-proximity

var longWordSplit = regexp.MustCompile(`[^a-z0-9$]+`)

// RedLineProximity returns the fraction of "long" (>4 chars) words of the
// prohibition text that literally appear in the candidate response.
func RedLineProximity(prohibition, response string) float64 {
	respLower := strings.ToLower(response)
	var long, present int
	for _, w := range longWordSplit.Split(strings.ToLower(prohibition), -1) {
		if len(w) <= 4 {
			continue
		}
		long++
		if strings.Contains(respLower, w) {
			present++
		}
	}
	if long == 0 {
		return 0
	}
	return float64(present) / float64(long)
}

// #endregion red-line-proximity

// #region drift

var concessionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bi (could|can|would|might) (accept|take|settle for|live with)\b`),
	regexp.MustCompile(`(?i)\bpartial (refund|credit|payment)\b`),
	regexp.MustCompile(`(?i)\bthat('s| is| would be) (fine|fair|acceptable|enough)\b`),
	regexp.MustCompile(`(?i)\bi('ll| will) (drop|let go of|forget about)\b`),
	regexp.MustCompile(`(?i)\bwilling to compromise\b`),
	regexp.MustCompile(`(?i)\bmeet (you )?halfway\b`),
}

var gainPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwe can offer\b`),
	regexp.MustCompile(`(?i)\bapproved\b`),
	regexp.MustCompile(`(?i)\bwaive (the |that )?fee\b`),
	regexp.MustCompile(`(?i)\b(refund|credit) (has been|was|is being) (issued|processed|applied)\b`),
	regexp.MustCompile(`(?i)\bexception (for you|this (one )?time)\b`),
	regexp.MustCompile(`(?i)\bupgrade\b`),
}

// concessionPhraseList exposes the concession vocabulary as avoid-phrases
// for performer guidance.
func concessionPhraseList() []string {
	return []string{
		"i could accept", "i can accept", "i would accept", "settle for",
		"partial refund", "partial credit", "willing to compromise", "meet halfway",
	}
}

// UpdateDrift appends matched concession language from our last message and
// gain language from their response, then rescores.
// drift = clamp01(0.1·concessions − 0.05·gains).
func UpdateDrift(d symbol.DriftAssessment, ourLast, theirResponse string) symbol.DriftAssessment {
	next := d
	next.Concessions = append([]string{}, d.Concessions...)
	next.Gains = append([]string{}, d.Gains...)

	for _, p := range concessionPatterns {
		if m := p.FindString(ourLast); m != "" {
			next.Concessions = append(next.Concessions, m)
		}
	}
	for _, p := range gainPatterns {
		if m := p.FindString(theirResponse); m != "" {
			next.Gains = append(next.Gains, m)
		}
	}

	next.Score = math.Max(0, math.Min(1, 0.1*float64(len(next.Concessions))-0.05*float64(len(next.Gains))))
	next.Net = netAssessment(len(next.Concessions), len(next.Gains), next.Score)
	if len(next.Concessions) > 0 {
		next.CurrentPosition = fmt.Sprintf("%s (conceded: %s)", d.OriginalPosition, next.Concessions[len(next.Concessions)-1])
	}
	return next
}

// netAssessment derives the categorical read from counts and score.
func netAssessment(concessions, gains int, drift float64) symbol.NetAssessment {
	switch {
	case concessions == 0 && gains == 0:
		return symbol.NetUnclear
	case gains > 2*concessions:
		return symbol.NetWinning
	case concessions > 2*gains:
		return symbol.NetLosing
	case drift > 0.3:
		return symbol.NetLosing
	case drift < 0.1 && gains > 0:
		return symbol.NetWinning
	default:
		return symbol.NetEven
	}
}

// #endregion drift

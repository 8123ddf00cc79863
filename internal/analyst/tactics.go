package analyst

// #region imports
import "regexp"

// #endregion

// #region tactic-rule

// TacticRule is one row of the data-driven detection table: a tactic id, the
// patterns that evidence it, a fixed confidence, and the canned counter.
type TacticRule struct {
	ID         string
	Confidence float64
	Counter    string
	Patterns   []*regexp.Regexp
}

// #endregion tactic-rule

// #region tactic-table

// Tactic ids. The fatiguing pair (exhaustion, gaslighting) carries extra
// weight in the risk score.
const (
	TacticAnchoring   = "anchoring"
	TacticReciprocity = "reciprocity"
	TacticUrgency     = "urgency"
	TacticAuthority   = "authority"
	TacticSocialProof = "social_proof"
	TacticExhaustion  = "exhaustion"
	TacticRedirect    = "redirect"
	TacticFalseChoice = "false_choice"
	TacticGaslighting = "gaslighting"
)

// DefaultTacticRules returns the built-in detection table. Callers may pass
// their own table to New to extend it without code changes.
func DefaultTacticRules() []TacticRule {
	return []TacticRule{
		{
			ID:         TacticAnchoring,
			Confidence: 0.7,
			Counter:    "Restate the original ask before discussing their number.",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\bbest (we|i) can (do|offer)\b`),
				regexp.MustCompile(`(?i)\bonly \$?\d`),
				regexp.MustCompile(`(?i)\bfinal offer\b`),
				regexp.MustCompile(`(?i)\b(standard|typical) (rate|offer|amount)\b`),
			},
		},
		{
			ID:         TacticReciprocity,
			Confidence: 0.65,
			Counter:    "Acknowledge the gesture without treating it as payment.",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\bwe('ve| have) already (done|given|offered)\b`),
				regexp.MustCompile(`(?i)\bas a (gesture|courtesy|favor)\b`),
				regexp.MustCompile(`(?i)\bwent out of (our|my) way\b`),
			},
		},
		{
			ID:         TacticUrgency,
			Confidence: 0.75,
			Counter:    "Name the deadline as artificial and decline to rush.",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\bexpires? (today|tonight|soon)\b`),
				regexp.MustCompile(`(?i)\btoday only\b`),
				regexp.MustCompile(`(?i)\blimited.time\b`),
				regexp.MustCompile(`(?i)\bact (now|fast|quickly)\b`),
			},
		},
		{
			ID:         TacticAuthority,
			Confidence: 0.7,
			Counter:    "Ask for the specific policy text rather than its invocation.",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\bpolicy (states|says|requires|prohibits)\b`),
				regexp.MustCompile(`(?i)\bmy (manager|supervisor) (said|confirmed|approved)\b`),
				regexp.MustCompile(`(?i)\bterms (of service|and conditions)\b`),
			},
		},
		{
			ID:         TacticSocialProof,
			Confidence: 0.6,
			Counter:    "Other customers' acceptance is not relevant to this claim.",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\bother customers\b`),
				regexp.MustCompile(`(?i)\bmost (people|customers|users)\b`),
				regexp.MustCompile(`(?i)\beveryone (else )?accepts?\b`),
			},
		},
		{
			ID:         TacticExhaustion,
			Confidence: 0.85,
			Counter:    "Keep replies short; repetition costs them more than us.",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\bas (i|we) (already )?(said|explained|mentioned|stated)\b`),
				regexp.MustCompile(`(?i)\bonce again\b`),
				regexp.MustCompile(`(?i)\bfor the last time\b`),
			},
		},
		{
			ID:         TacticRedirect,
			Confidence: 0.6,
			Counter:    "Return to the open request in one sentence.",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\bspeaking of\b`),
				regexp.MustCompile(`(?i)\blet'?s (talk about|focus on) something else\b`),
				regexp.MustCompile(`(?i)\bmoving on\b`),
				regexp.MustCompile(`(?i)\bby the way\b`),
			},
		},
		{
			ID:         TacticFalseChoice,
			Confidence: 0.75,
			Counter:    "Reject the menu; restate the outcome actually requested.",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\byour (only )?options? (are|is)\b`),
				regexp.MustCompile(`(?i)\btake it or leave it\b`),
				regexp.MustCompile(`(?i)\beither .{1,40} or nothing\b`),
			},
		},
		{
			ID:         TacticGaslighting,
			Confidence: 0.9,
			Counter:    "Quote the prior exchange verbatim; do not relitigate memory.",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\bthat('s| is) not what (happened|you said|we agreed)\b`),
				regexp.MustCompile(`(?i)\byou (must be|are|seem) (confused|mistaken|misremembering)\b`),
				regexp.MustCompile(`(?i)\bwe never (said|promised|agreed)\b`),
			},
		},
	}
}

// fatiguingTactics get the extra risk weight.
var fatiguingTactics = map[string]bool{
	TacticExhaustion:  true,
	TacticGaslighting: true,
}

// #endregion tactic-table

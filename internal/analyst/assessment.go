package analyst

// #region imports
import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
)

// #endregion

// #region severity

// Severity grades a response issue.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// #endregion severity

// #region assessment-types

// Recommendation is the analyst's verdict on a drafted reply.
type Recommendation string

const (
	RecommendApprove Recommendation = "approve"
	RecommendModify  Recommendation = "modify"
	RecommendBlock   Recommendation = "block"
)

// Issue is one finding against a drafted reply. Instruction, when set, is a
// modification the veto gate knows how to apply.
type Issue struct {
	Code        string
	Severity    Severity
	Message     string
	Evidence    string
	Instruction string
}

// Assessment is the output of AssessProposedResponse.
type Assessment struct {
	Issues         []Issue
	Recommendation Recommendation
	RiskLevel      float64
	DriftImpact    float64
}

// #endregion assessment-types

// #region scan-patterns

var deceptionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\btrust me\b`),
	regexp.MustCompile(`(?i)\bi guarantee\b`),
	regexp.MustCompile(`(?i)\bi never (received|got|said)\b`),
	regexp.MustCompile(`(?i)\bto be (perfectly )?honest\b`),
}

var commitmentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bi('ll| will) pay\b`),
	regexp.MustCompile(`(?i)\bi (accept|authorize) (the )?(charge|terms)\b`),
	regexp.MustCompile(`(?i)\bgo ahead and (charge|bill)\b`),
}

var disclosurePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy (real name|home address|account number|password)\b`),
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), // SSN shape
	regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`), // card shape
}

var personaBreakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bas an ai\b`),
	regexp.MustCompile(`(?i)\blanguage model\b`),
	regexp.MustCompile(`(?i)\bmy (instructions|programming|prompt|operator)\b`),
	regexp.MustCompile(`(?i)\bi('m| am) (a bot|automated|scripted)\b`),
}

var intelLeakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bour (strategy|bottom line|walk.?away)\b`),
	regexp.MustCompile(`(?i)\bi('m| am) (instructed|told|required) to\b`),
	regexp.MustCompile(`(?i)\bmy (objective|mission) (is|here)\b`),
}

// #endregion scan-patterns

// #region assess

// AssessProposedResponse checks a drafted reply against red lines, hard
// constraints, drift pressure, and the persona/intel scans, then derives the
// recommendation and the weighted risk level.
func (a *Analyzer) AssessProposedResponse(response string, constraints symbol.ConstraintSet, drift symbol.DriftAssessment) Assessment {
	var issues []Issue

	// Red-line proximity: fraction of the prohibition's long words present
	// in the reply.
	for _, rl := range constraints.RedLines {
		prox := RedLineProximity(rl.Prohibition, response)
		if prox > 0.9 {
			issues = append(issues, Issue{
				Code:     "red_line_proximity",
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("reply nearly restates red line %s (proximity %.2f)", rl.ID, prox),
			})
		} else if prox > 0.7 {
			issues = append(issues, Issue{
				Code:     "red_line_proximity",
				Severity: SeverityError,
				Message:  fmt.Sprintf("reply drifts toward red line %s (proximity %.2f)", rl.ID, prox),
			})
		}
	}

	// Hard constraints: category heuristics.
	for _, c := range constraints.Hard {
		ev := constraintViolation(c, response)
		if ev == "" {
			continue
		}
		sev := SeverityWarning
		if c.OnViolation == symbol.ViolationAbort {
			sev = SeverityCritical
		}
		issues = append(issues, Issue{
			Code:        "constraint_violation",
			Severity:    sev,
			Message:     fmt.Sprintf("constraint %s (%s) violated", c.ID, c.Category),
			Evidence:    ev,
			Instruction: instructionFor(c.Category, ev),
		})
	}

	// Drift impact: concession language in our own draft.
	var impact float64
	var lastConcession string
	for _, p := range concessionPatterns {
		if m := p.FindString(response); m != "" {
			impact += 0.1
			lastConcession = m
		}
	}
	impact = math.Min(0.5, impact)
	if impact > 0.1 {
		sev := SeverityInfo
		if impact > 0.3 || drift.Score > 0.2 {
			sev = SeverityWarning
		}
		issues = append(issues, Issue{
			Code:        "drift_impact",
			Severity:    sev,
			Message:     fmt.Sprintf("reply concedes ground (impact %.1f)", impact),
			Evidence:    lastConcession,
			Instruction: "strengthen",
		})
	}

	// Independent scans.
	if ev := firstMatch(personaBreakPatterns, response); ev != "" {
		issues = append(issues, Issue{
			Code:        "persona_break",
			Severity:    SeverityError,
			Message:     "reply breaks persona",
			Evidence:    ev,
			Instruction: fmt.Sprintf("remove %q", ev),
		})
	}
	if ev := firstMatch(intelLeakPatterns, response); ev != "" {
		issues = append(issues, Issue{
			Code:        "intel_leak",
			Severity:    SeverityError,
			Message:     "reply leaks negotiating intelligence",
			Evidence:    ev,
			Instruction: fmt.Sprintf("remove %q", ev),
		})
	}
	if ev := firstJargon(response); ev != "" {
		issues = append(issues, Issue{
			Code:        "jargon",
			Severity:    SeverityInfo,
			Message:     "reply uses jargon out of register",
			Evidence:    ev,
			Instruction: "simplify",
		})
	}

	return Assessment{
		Issues:         issues,
		Recommendation: recommend(issues),
		RiskLevel:      weightedRisk(issues),
		DriftImpact:    impact,
	}
}

// constraintViolation returns matched evidence when the reply violates the
// constraint per its category heuristic, else "".
func constraintViolation(c symbol.Constraint, response string) string {
	switch c.Category {
	case "ethical":
		return firstMatch(deceptionPatterns, response)
	case "financial":
		return firstMatch(commitmentPatterns, response)
	case "disclosure":
		return firstMatch(disclosurePatterns, response)
	default:
		// Generic: reply restating most of the rule text counts as working
		// against it.
		if RedLineProximity(c.Rule, response) > 0.8 {
			return "rule text restated"
		}
		return ""
	}
}

// instructionFor picks the gate transform for a violated category.
func instructionFor(category, evidence string) string {
	switch category {
	case "ethical":
		return "soften"
	case "financial", "disclosure":
		return fmt.Sprintf("remove %q", evidence)
	default:
		return "soften"
	}
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if m := p.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

var jargonWords = []string{"utilize", "remuneration", "pursuant", "heretofore", "escalation matrix"}

func firstJargon(text string) string {
	lower := strings.ToLower(text)
	for _, w := range jargonWords {
		if strings.Contains(lower, w) {
			return w
		}
	}
	return ""
}

// #endregion assess

// #region recommendation

// recommend derives the verdict: critical ⇒ block; ≥2 errors ⇒ block;
// ≥1 error ⇒ modify; ≥2 warnings ⇒ modify; else approve.
func recommend(issues []Issue) Recommendation {
	var criticals, errors, warnings int
	for _, is := range issues {
		switch is.Severity {
		case SeverityCritical:
			criticals++
		case SeverityError:
			errors++
		case SeverityWarning:
			warnings++
		}
	}
	switch {
	case criticals > 0:
		return RecommendBlock
	case errors >= 2:
		return RecommendBlock
	case errors >= 1:
		return RecommendModify
	case warnings >= 2:
		return RecommendModify
	default:
		return RecommendApprove
	}
}

// weightedRisk caps the severity-weighted sum at 1.0.
func weightedRisk(issues []Issue) float64 {
	var risk float64
	for _, is := range issues {
		switch is.Severity {
		case SeverityCritical:
			risk += 0.4
		case SeverityError:
			risk += 0.25
		case SeverityWarning:
			risk += 0.1
		case SeverityInfo:
			risk += 0.02
		}
	}
	return math.Min(1.0, risk)
}

// #endregion recommendation

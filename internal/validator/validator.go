// Package validator runs the six-category health check over a Symbol
// snapshot and exposes the quick pre-send check used before a reply leaves
// the building.
package validator

// #region imports
import (
	"fmt"
	"regexp"
	"time"

	"github.com/danielpatrickdp/grounded-agent/internal/analyst"
	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
)

// #endregion

// #region issue-types

// Severity grades a validation issue.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Category names one of the six check families.
type Category string

const (
	CategoryStructural  Category = "structural"
	CategoryConstraint  Category = "constraint"
	CategoryDrift       Category = "drift"
	CategoryPersona     Category = "persona"
	CategoryIntegrity   Category = "integrity"
	CategoryOperational Category = "operational"
)

// Issue is one typed finding.
type Issue struct {
	Code        string
	Category    Category
	Severity    Severity
	Message     string
	Field       string
	Remediation string
}

// Report is a full validation pass. Passed means no critical and no error.
type Report struct {
	SymbolID string
	Version  int
	Passed   bool
	Alert    symbol.AlertLevel
	Issues   []Issue
	RanAt    time.Time
}

// Summary folds a report into the form stored on the symbol.
func (r Report) Summary() symbol.ValidationResult {
	var c, e, w, i int
	for _, is := range r.Issues {
		switch is.Severity {
		case SeverityCritical:
			c++
		case SeverityError:
			e++
		case SeverityWarning:
			w++
		case SeverityInfo:
			i++
		}
	}
	return symbol.ValidationResult{
		Passed: r.Passed, Alert: r.Alert,
		Criticals: c, Errors: e, Warnings: w, Infos: i,
		RanAt: r.RanAt,
	}
}

// #endregion issue-types

// #region validator

// Thresholds tune the checks. Zero values select the defaults.
type Thresholds struct {
	DriftWarn        float64       // drift score warning level
	MaxImprovisation int           // improvisation counter ceiling
	StaleActive      time.Duration // active mission with zero messages
	Stagnation       time.Duration // quiet time since last activity
	QueueBacklog     int           // commander queue warning size
	ExpiryWindow     time.Duration // expiration proximity warning
	FutureSkew       time.Duration // tolerated clock skew
}

func (t *Thresholds) defaults() {
	if t.DriftWarn == 0 {
		t.DriftWarn = 0.3
	}
	if t.MaxImprovisation == 0 {
		t.MaxImprovisation = 5
	}
	if t.StaleActive == 0 {
		t.StaleActive = time.Hour
	}
	if t.Stagnation == 0 {
		t.Stagnation = 24 * time.Hour
	}
	if t.QueueBacklog == 0 {
		t.QueueBacklog = 10
	}
	if t.ExpiryWindow == 0 {
		t.ExpiryWindow = time.Hour
	}
	if t.FutureSkew == 0 {
		t.FutureSkew = 5 * time.Minute
	}
}

// Validator runs the category checks. now is injectable for tests.
type Validator struct {
	thresholds Thresholds
	now        func() time.Time
}

// New creates a validator. nowFn may be nil for the wall clock.
func New(thresholds Thresholds, nowFn func() time.Time) *Validator {
	thresholds.defaults()
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Validator{thresholds: thresholds, now: nowFn}
}

// Validate runs all six categories and derives the alert level.
func (v *Validator) Validate(s symbol.Symbol) Report {
	now := v.now()
	var issues []Issue
	issues = append(issues, v.checkStructural(s)...)
	issues = append(issues, v.checkConstraints(s)...)
	issues = append(issues, v.checkDrift(s)...)
	issues = append(issues, v.checkPersona(s)...)
	issues = append(issues, v.checkIntegrity(s, now)...)
	issues = append(issues, v.checkOperational(s, now)...)

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

	return Report{
		SymbolID: s.ID,
		Version:  s.Version,
		Passed:   criticals == 0 && errors == 0,
		Alert:    alertLevel(criticals, errors, warnings),
		Issues:   issues,
		RanAt:    now,
	}
}

// alertLevel: any critical→red; ≥2 errors→red; ≥1 error or ≥3 warnings→
// orange; ≥1 warning→yellow; else green.
func alertLevel(criticals, errors, warnings int) symbol.AlertLevel {
	switch {
	case criticals > 0 || errors >= 2:
		return symbol.AlertRed
	case errors >= 1 || warnings >= 3:
		return symbol.AlertOrange
	case warnings >= 1:
		return symbol.AlertYellow
	default:
		return symbol.AlertGreen
	}
}

// #endregion validator

// #region structural

func (v *Validator) checkStructural(s symbol.Symbol) []Issue {
	var issues []Issue
	if !symbol.ValidID(s.ID) {
		issues = append(issues, Issue{
			Code: "bad_id", Category: CategoryStructural, Severity: SeverityError,
			Message: fmt.Sprintf("id %q lacks the %s prefix", s.ID, symbol.IDPrefix),
			Field:   "id",
		})
	}
	if s.Type != symbol.TypeTag {
		issues = append(issues, Issue{
			Code: "bad_type", Category: CategoryStructural, Severity: SeverityCritical,
			Message: fmt.Sprintf("type %q, want %q", s.Type, symbol.TypeTag),
			Field:   "type",
		})
	}
	if s.Version < 1 {
		issues = append(issues, Issue{
			Code: "bad_version", Category: CategoryStructural, Severity: SeverityError,
			Message: fmt.Sprintf("version %d below 1", s.Version),
			Field:   "version",
		})
	}
	if s.Mission.Objective == "" {
		issues = append(issues, Issue{
			Code: "missing_objective", Category: CategoryStructural, Severity: SeverityError,
			Message: "mission objective empty",
			Field:   "mission.objective",
		})
	}
	if len(s.Mission.Constraints.RedLines) == 0 {
		issues = append(issues, Issue{
			Code: "no_red_lines", Category: CategoryStructural, Severity: SeverityWarning,
			Message:     "mission has no red lines",
			Field:       "mission.constraints.red_lines",
			Remediation: "recreate the symbol through the factory to pick up defaults",
		})
	}
	return issues
}

// #endregion structural

// #region constraint

func (v *Validator) checkConstraints(s symbol.Symbol) []Issue {
	var issues []Issue
	for _, cs := range s.Engagement.Analyst.ConstraintStatuses {
		switch cs.Condition {
		case symbol.ConstraintViolated:
			issues = append(issues, Issue{
				Code: "constraint_violated", Category: CategoryConstraint, Severity: SeverityError,
				Message: fmt.Sprintf("constraint %s violated", cs.ConstraintID),
			})
		case symbol.ConstraintAtRisk:
			issues = append(issues, Issue{
				Code: "constraint_at_risk", Category: CategoryConstraint, Severity: SeverityWarning,
				Message: fmt.Sprintf("constraint %s at risk", cs.ConstraintID),
			})
		}
	}
	if s.Engagement.Analyst.RiskScore > 0.7 {
		issues = append(issues, Issue{
			Code: "red_line_pressure", Category: CategoryConstraint, Severity: SeverityError,
			Message:     fmt.Sprintf("risk score %.2f approaching red-line territory", s.Engagement.Analyst.RiskScore),
			Remediation: "escalate to commander before the next reply",
		})
	}
	return issues
}

// #endregion constraint

// #region drift

func (v *Validator) checkDrift(s symbol.Symbol) []Issue {
	var issues []Issue
	d := s.Engagement.Analyst.Drift
	if d.Score > v.thresholds.DriftWarn {
		sev := SeverityWarning
		if d.Score > 2*v.thresholds.DriftWarn {
			sev = SeverityError
		}
		issues = append(issues, Issue{
			Code: "drift_high", Category: CategoryDrift, Severity: sev,
			Message: fmt.Sprintf("drift %.2f above threshold %.2f", d.Score, v.thresholds.DriftWarn),
		})
	}
	if len(d.Concessions) > 2*len(d.Gains)+3 {
		issues = append(issues, Issue{
			Code: "concession_run", Category: CategoryDrift, Severity: SeverityWarning,
			Message: fmt.Sprintf("%d concessions against %d gains", len(d.Concessions), len(d.Gains)),
		})
	}
	if d.Net == symbol.NetLosing {
		issues = append(issues, Issue{
			Code: "net_losing", Category: CategoryDrift, Severity: SeverityWarning,
			Message:     "net assessment is losing",
			Remediation: "hold position; stop conceding",
		})
	}
	return issues
}

// #endregion drift

// #region persona

func (v *Validator) checkPersona(s symbol.Symbol) []Issue {
	var issues []Issue
	p := s.Engagement.Performer
	if p.ConsistencyScore < 0.3 {
		issues = append(issues, Issue{
			Code: "persona_erosion", Category: CategoryPersona, Severity: SeverityError,
			Message: fmt.Sprintf("consistency %.2f critically low", p.ConsistencyScore),
		})
	} else if p.ConsistencyScore < 0.5 {
		issues = append(issues, Issue{
			Code: "persona_wobble", Category: CategoryPersona, Severity: SeverityWarning,
			Message: fmt.Sprintf("consistency %.2f below 0.5", p.ConsistencyScore),
		})
	}
	if p.Improvisations > v.thresholds.MaxImprovisation {
		issues = append(issues, Issue{
			Code: "improvisation_run", Category: CategoryPersona, Severity: SeverityWarning,
			Message: fmt.Sprintf("%d improvised replies", p.Improvisations),
		})
	}
	if p.Emotional.Mood == symbol.MoodFrustrated && p.Emotional.Intensity > 0.8 {
		issues = append(issues, Issue{
			Code: "frustration_breach", Category: CategoryPersona, Severity: SeverityWarning,
			Message:     "frustration intensity past threshold",
			Remediation: "let patience recover before the next exchange",
		})
	}
	return issues
}

// #endregion persona

// #region integrity

func (v *Validator) checkIntegrity(s symbol.Symbol, now time.Time) []Issue {
	var issues []Issue
	if symbol.ComputeHash(s) != s.Hash {
		issues = append(issues, Issue{
			Code: "hash_mismatch", Category: CategoryIntegrity, Severity: SeverityCritical,
			Message: "stored hash does not match recomputation",
			Field:   "hash",
		})
	}
	if s.LastActivity.Before(s.CreatedAt) {
		issues = append(issues, Issue{
			Code: "time_order", Category: CategoryIntegrity, Severity: SeverityError,
			Message: "last activity precedes creation",
		})
	}
	skew := v.thresholds.FutureSkew
	if s.CreatedAt.After(now.Add(skew)) || s.LastActivity.After(now.Add(skew)) {
		issues = append(issues, Issue{
			Code: "future_skew", Category: CategoryIntegrity, Severity: SeverityWarning,
			Message: "timestamps ahead of wall clock",
		})
	}
	return issues
}

// #endregion integrity

// #region operational

func (v *Validator) checkOperational(s symbol.Symbol, now time.Time) []Issue {
	var issues []Issue
	e := s.Engagement

	if s.Status == symbol.StatusActive &&
		e.MessagesReceived == 0 && e.MessagesSent == 0 &&
		now.Sub(s.CreatedAt) > v.thresholds.StaleActive {
		issues = append(issues, Issue{
			Code: "stale_active", Category: CategoryOperational, Severity: SeverityWarning,
			Message: "active mission with no messages",
		})
	}
	if s.Status == symbol.StatusActive && now.Sub(s.LastActivity) > v.thresholds.Stagnation {
		issues = append(issues, Issue{
			Code: "stagnation", Category: CategoryOperational, Severity: SeverityWarning,
			Message: fmt.Sprintf("no activity for %s", now.Sub(s.LastActivity).Round(time.Minute)),
		})
	}

	// Tactic repetition: one tactic dominating the log means the
	// counterparty found something that works.
	counts := map[string]int{}
	for _, t := range e.Analyst.DetectedTactics {
		counts[t.Tactic]++
	}
	for tactic, n := range counts {
		if n >= 5 {
			issues = append(issues, Issue{
				Code: "tactic_repetition", Category: CategoryOperational, Severity: SeverityInfo,
				Message: fmt.Sprintf("tactic %s detected %d times", tactic, n),
			})
		}
	}

	if len(s.Validation.CommanderQueue) > v.thresholds.QueueBacklog {
		issues = append(issues, Issue{
			Code: "queue_backlog", Category: CategoryOperational, Severity: SeverityWarning,
			Message: fmt.Sprintf("%d undelivered commander messages", len(s.Validation.CommanderQueue)),
		})
	}

	if !s.Mission.ExpiresAt.IsZero() {
		switch {
		case now.After(s.Mission.ExpiresAt):
			issues = append(issues, Issue{
				Code: "expired", Category: CategoryOperational, Severity: SeverityError,
				Message: "mission past its expiry",
			})
		case s.Mission.ExpiresAt.Sub(now) < v.thresholds.ExpiryWindow:
			issues = append(issues, Issue{
				Code: "expiry_near", Category: CategoryOperational, Severity: SeverityWarning,
				Message: fmt.Sprintf("mission expires in %s", s.Mission.ExpiresAt.Sub(now).Round(time.Minute)),
			})
		}
	}
	return issues
}

// #endregion operational

// #region quick-validate

// QuickDecision is the bare pre-send verdict.
type QuickDecision string

const (
	QuickApprove  QuickDecision = "approve"
	QuickBlock    QuickDecision = "block"
	QuickEscalate QuickDecision = "escalate"
)

var personalInfoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),  // SSN shape
	regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`), // card shape
	regexp.MustCompile(`(?i)\b(password|passcode) is\b`),
}

var personalInfoRedLine = regexp.MustCompile(`(?i)personal information|personal data|credentials`)

// QuickValidate is the fast pre-send path: red-line and personal-info
// screens, then risk thresholds. Block is checked before escalate on
// purpose; the thresholds may overlap and block wins.
func (v *Validator) QuickValidate(s symbol.Symbol, proposedMessage string) QuickDecision {
	for _, rl := range s.Mission.Constraints.RedLines {
		if personalInfoRedLine.MatchString(rl.Prohibition) {
			for _, p := range personalInfoPatterns {
				if p.MatchString(proposedMessage) {
					return QuickBlock
				}
			}
		}
		if analyst.RedLineProximity(rl.Prohibition, proposedMessage) > 0.7 {
			return QuickBlock
		}
	}

	risk := s.Engagement.Analyst.RiskScore
	if risk > s.Config.VetoGate.AutoBlockThreshold {
		return QuickBlock
	}
	if risk > 1-s.Config.VetoGate.AutoApproveThreshold {
		return QuickEscalate
	}
	if s.Engagement.Analyst.Drift.Score > v.thresholds.DriftWarn &&
		s.Engagement.Analyst.Drift.Net == symbol.NetLosing {
		return QuickEscalate
	}
	return QuickApprove
}

// #endregion quick-validate

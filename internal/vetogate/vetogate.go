// Package vetogate implements the final decision stage of the pipeline. It
// turns a drafted reply plus its assessment into approve/modify/block/
// escalate, applies the modification catalog, and keeps the decision history
// and escalation queue.
package vetogate

// #region imports
import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/grounded-agent/internal/analyst"
	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
)

// #endregion

// #region decision

// Decision is one of the four terminal outcomes per message.
type Decision string

const (
	DecisionApprove  Decision = "approve"
	DecisionModify   Decision = "modify"
	DecisionBlock    Decision = "block"
	DecisionEscalate Decision = "escalate"
)

// Input is everything the gate needs for one decision.
type Input struct {
	IncomingMessage     string
	ProposedResponse    string
	Assessment          analyst.Assessment
	PerformerConfidence float64
}

// Outcome is the gate's verdict. FinalText is set for approve and modify.
type Outcome struct {
	Decision   Decision
	FinalText  string
	Reason     string
	Confidence float64
	Record     symbol.VetoRecord
	Escalation *EscalationItem
}

// #endregion decision

// #region escalation

// EscalationOption is one resolution choice offered to the commander.
type EscalationOption struct {
	ID    string
	Label string
}

// EscalationItem is one queued unresolved escalation.
type EscalationItem struct {
	ID        string
	Reason    string
	Message   string
	Options   []EscalationOption
	CreatedAt time.Time
}

// #endregion escalation

// #region gate

// Gate holds configuration plus the append-only decision history and the
// escalation queue.
type Gate struct {
	cfg symbol.VetoGateConfig

	mu          sync.Mutex
	history     []symbol.VetoRecord
	escalations []EscalationItem
}

// New creates a gate with the given configuration.
func New(cfg symbol.VetoGateConfig) *Gate {
	return &Gate{cfg: cfg}
}

// Decide runs the decision ladder. Order is fixed: block first, then the
// requires-approval triggers, then the auto-approve fast path, then the
// analyst's recommendation.
func (g *Gate) Decide(in Input) Outcome {
	risk := in.Assessment.RiskLevel
	rec := in.Assessment.Recommendation

	var out Outcome
	switch {
	case rec == analyst.RecommendBlock || risk > g.cfg.AutoBlockThreshold:
		out = Outcome{
			Decision: DecisionBlock,
			Reason:   fmt.Sprintf("analyst recommendation %s, risk %.2f", rec, risk),
		}

	case g.requiresApproval(in) && rec != analyst.RecommendApprove:
		// Sensitive situation: follow the analyst verbatim.
		out = g.follow(rec, in, "approval trigger matched")

	case rec == analyst.RecommendApprove &&
		in.PerformerConfidence >= g.cfg.AutoApproveThreshold &&
		risk < 1-g.cfg.AutoApproveThreshold:
		out = Outcome{
			Decision:  DecisionApprove,
			FinalText: in.ProposedResponse,
			Reason:    fmt.Sprintf("auto-approve: confidence %.2f, risk %.2f", in.PerformerConfidence, risk),
		}

	default:
		out = g.follow(rec, in, "following analyst recommendation")
	}

	out.Confidence = decisionConfidence(out.Decision, risk, in.PerformerConfidence)

	if out.Decision == DecisionEscalate && out.Escalation == nil {
		out.Escalation = g.newEscalation(in, out.Reason)
	}

	out.Record = symbol.VetoRecord{
		ID:         uuid.New().String(),
		Decision:   string(out.Decision),
		Reason:     out.Reason,
		Risk:       risk,
		Confidence: out.Confidence,
		DecidedAt:  time.Now().UTC(),
	}

	g.mu.Lock()
	g.history = append(g.history, out.Record)
	if out.Escalation != nil {
		g.escalations = append(g.escalations, *out.Escalation)
	}
	g.mu.Unlock()

	return out
}

// follow maps an analyst recommendation onto a gate outcome, applying the
// modification catalog for modify.
func (g *Gate) follow(rec analyst.Recommendation, in Input, why string) Outcome {
	switch rec {
	case analyst.RecommendApprove:
		return Outcome{Decision: DecisionApprove, FinalText: in.ProposedResponse, Reason: why}
	case analyst.RecommendModify:
		modified := ApplyModifications(in.ProposedResponse, in.Assessment.Issues)
		if modified == in.ProposedResponse && len(in.Assessment.Issues) > 0 {
			// Nothing we know how to fix: escalate rather than pretend.
			return Outcome{Decision: DecisionEscalate, Reason: "modification produced no change"}
		}
		return Outcome{Decision: DecisionModify, FinalText: modified, Reason: why}
	default:
		return Outcome{Decision: DecisionBlock, Reason: why}
	}
}

// decisionConfidence = (1−risk)·performerConfidence, ×1.1 approve, ×0.8
// escalate, clamped to [0.1, 1.0].
func decisionConfidence(d Decision, risk, performerConfidence float64) float64 {
	c := (1 - risk) * performerConfidence
	switch d {
	case DecisionApprove:
		c *= 1.1
	case DecisionEscalate:
		c *= 0.8
	}
	if c < 0.1 {
		return 0.1
	}
	if c > 1.0 {
		return 1.0
	}
	return c
}

// #endregion gate

// #region approval-triggers

// approvalTriggerPatterns maps each configurable trigger name to its
// detection patterns, run over both the incoming message and the draft.
var approvalTriggerPatterns = map[string][]*regexp.Regexp{
	"concession": {
		regexp.MustCompile(`(?i)\b(accept|settle for|compromise|meet .{0,10}halfway)\b`),
		regexp.MustCompile(`(?i)\bpartial (refund|credit)\b`),
	},
	"personal_information": {
		regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		regexp.MustCompile(`(?i)\b(date of birth|mother'?s maiden|account number|password)\b`),
	},
	"commitment": {
		regexp.MustCompile(`(?i)\bi (agree to|commit to|promise|accept the terms)\b`),
		regexp.MustCompile(`(?i)\bi('ll| will) (pay|sign)\b`),
	},
	"escalation_request": {
		regexp.MustCompile(`(?i)\b(speak|talk) to (a|your) (manager|supervisor|human)\b`),
		regexp.MustCompile(`(?i)\bescalate (this|my)\b`),
	},
	"critical_urgency": {
		regexp.MustCompile(`(?i)\b(right now|immediately|within the hour|last chance)\b`),
	},
}

// requiresApproval reports whether any configured trigger matches the
// situation.
func (g *Gate) requiresApproval(in Input) bool {
	text := in.IncomingMessage + "\n" + in.ProposedResponse
	for _, name := range g.cfg.ApprovalTriggers {
		for _, p := range approvalTriggerPatterns[name] {
			if p.MatchString(text) {
				return true
			}
		}
	}
	return false
}

// #endregion approval-triggers

// #region modifications

var removeInstr = regexp.MustCompile(`^(?:remove|delete) "(.+)"$`)

var hedgingPhrases = []string{
	"maybe ", "perhaps ", "i think ", "possibly ", "sort of ", "kind of ",
	"if that's okay", "if that is okay", "i guess ",
}

var softenSubs = [][2]string{
	{"demand", "ask for"},
	{"require", "would like"},
	{"insist on", "prefer"},
	{"must", "should"},
	{"unacceptable", "disappointing"},
}

var simplifySubs = [][2]string{
	{"utilize", "use"},
	{"remuneration", "payment"},
	{"pursuant to", "under"},
	{"heretofore", "so far"},
	{"escalation matrix", "process"},
}

// ApplyModifications runs the transform catalog over the draft, keyed by
// each issue's instruction. Unknown instructions are skipped.
func ApplyModifications(text string, issues []analyst.Issue) string {
	for _, is := range issues {
		switch {
		case is.Instruction == "":
			continue
		case strings.HasPrefix(is.Instruction, "remove") || strings.HasPrefix(is.Instruction, "delete"):
			if m := removeInstr.FindStringSubmatch(is.Instruction); m != nil {
				text = stripLiteral(text, m[1])
			}
		case is.Instruction == "strengthen":
			for _, h := range hedgingPhrases {
				text = stripFold(text, h)
			}
		case is.Instruction == "soften":
			for _, sub := range softenSubs {
				text = replaceFold(text, sub[0], sub[1])
			}
		case is.Instruction == "simplify":
			for _, sub := range simplifySubs {
				text = replaceFold(text, sub[0], sub[1])
			}
		}
	}
	return collapseSpaces(text)
}

// stripLiteral removes every occurrence of the literal phrase,
// case-insensitively.
func stripLiteral(text, phrase string) string {
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(phrase))
	if err != nil {
		return text
	}
	return re.ReplaceAllString(text, "")
}

func stripFold(text, phrase string) string {
	return stripLiteral(text, phrase)
}

func replaceFold(text, old, new string) string {
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(old))
	if err != nil {
		return text
	}
	return re.ReplaceAllString(text, new)
}

var spaceRun = regexp.MustCompile(`\s{2,}`)

func collapseSpaces(text string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(text, " "))
}

// #endregion modifications

// #region history-and-escalations

// History returns a copy of the decision history.
func (g *Gate) History() []symbol.VetoRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]symbol.VetoRecord{}, g.history...)
}

// Escalations returns a copy of the unresolved escalation queue.
func (g *Gate) Escalations() []EscalationItem {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]EscalationItem{}, g.escalations...)
}

// ResolveEscalation removes the item and appends a resolution record to the
// history. Options named block or abort resolve as block; anything else as
// approve.
func (g *Gate) ResolveEscalation(id, optionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := -1
	for i, e := range g.escalations {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("escalation %s not found", id)
	}
	g.escalations = append(g.escalations[:idx], g.escalations[idx+1:]...)

	decision := DecisionApprove
	if optionID == "block" || optionID == "abort" {
		decision = DecisionBlock
	}
	g.history = append(g.history, symbol.VetoRecord{
		ID:        uuid.New().String(),
		Decision:  string(decision),
		Reason:    fmt.Sprintf("escalation %s resolved with option %s", id, optionID),
		DecidedAt: time.Now().UTC(),
	})
	return nil
}

// newEscalation builds the queued item with the standard option set.
func (g *Gate) newEscalation(in Input, reason string) *EscalationItem {
	return &EscalationItem{
		ID:      uuid.New().String(),
		Reason:  reason,
		Message: in.ProposedResponse,
		Options: []EscalationOption{
			{ID: "approve", Label: "send as drafted"},
			{ID: "block", Label: "do not send"},
			{ID: "abort", Label: "halt the engagement"},
		},
		CreatedAt: time.Now().UTC(),
	}
}

// #endregion history-and-escalations

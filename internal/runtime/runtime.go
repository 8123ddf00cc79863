// Package runtime coordinates the three decision tracks over one symbol:
// the performer drafts, the analyst assesses, the veto gate decides. Every
// processed message commits exactly one state update; a failed pipeline
// commits nothing.
package runtime

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/grounded-agent/internal/analyst"
	"github.com/danielpatrickdp/grounded-agent/internal/commander"
	"github.com/danielpatrickdp/grounded-agent/internal/logging"
	"github.com/danielpatrickdp/grounded-agent/internal/persist"
	"github.com/danielpatrickdp/grounded-agent/internal/performer"
	"github.com/danielpatrickdp/grounded-agent/internal/ralph"
	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
	"github.com/danielpatrickdp/grounded-agent/internal/validator"
	"github.com/danielpatrickdp/grounded-agent/internal/vetogate"
)

// #endregion

// ErrNotStarted is returned for message processing before Start or after
// Stop.
var ErrNotStarted = errors.New("runtime not started")

// #region options

// Options wires the optional collaborators. Everything may be nil: the
// runtime then runs purely in memory with no operator uplink.
type Options struct {
	Store      *persist.Store
	Provenance *persist.Provenance
	Commander  commander.Commander
	Clock      ralph.Clock
	OnAlert    func(previous, current symbol.AlertLevel)
	OnCycle    func(ralph.Event)
}

// #endregion options

// #region runtime

// ProcessResult is the outward-facing outcome of one incoming message.
type ProcessResult struct {
	Success    bool
	Decision   vetogate.Decision
	Response   string // staged reply text; empty for block and escalate
	Alert      symbol.AlertLevel
	RiskScore  float64
	Tactics    []symbol.DetectedTactic
	Escalation *vetogate.EscalationItem
	Version    int
}

// Runtime owns one symbol's engagement lifecycle.
type Runtime struct {
	opts Options
	log  *zap.Logger

	perf  *performer.Performer
	an    *analyst.Analyzer
	gate  *vetogate.Gate
	val   *validator.Validator
	sched *ralph.Scheduler
	exec  *ralph.Executor

	mu      sync.Mutex
	sym     symbol.Symbol
	started bool
	alert   symbol.AlertLevel
}

// New builds the runtime around an existing symbol. The tracks are
// configured from the symbol's own config block.
func New(s symbol.Symbol, opts Options) (*Runtime, error) {
	if err := symbol.VerifyIntegrity(s); err != nil {
		return nil, err
	}

	r := &Runtime{
		opts:  opts,
		log:   logging.For(logging.CategoryRuntime),
		perf:  performer.New(s.Config.Performer),
		an:    analyst.New(s.Config.Analyst, nil),
		gate:  vetogate.New(s.Config.VetoGate),
		val:   validator.New(validator.Thresholds{}, nil),
		sym:   s,
		alert: symbol.AlertGreen,
	}

	interval := time.Duration(s.Config.Ralph.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Minute
	}
	sched, err := ralph.NewScheduler(interval, opts.Clock, opts.OnCycle)
	if err != nil {
		return nil, err
	}
	r.sched = sched

	exec, err := ralph.NewExecutor(r, r.val, opts.Commander)
	if err != nil {
		return nil, err
	}
	r.exec = exec
	return r, nil
}

// Resume rebuilds a runtime from the store.
func Resume(store *persist.Store, id string, opts Options) (*Runtime, error) {
	if store == nil {
		return nil, fmt.Errorf("store required to resume")
	}
	s, err := store.Load(id)
	if err != nil {
		return nil, err
	}
	if opts.Store == nil {
		opts.Store = store
	}
	return New(s, opts)
}

// #endregion runtime

// #region host

// Snapshot returns the current symbol.
func (r *Runtime) Snapshot() symbol.Symbol {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sym
}

// Symbol is Snapshot under its outward-facing name.
func (r *Runtime) Symbol() symbol.Symbol { return r.Snapshot() }

// Apply commits one state update and persists the result. Persistence
// failures are logged, not fatal: the in-memory symbol is authoritative
// while the runtime lives.
func (r *Runtime) Apply(u symbol.StateUpdate) symbol.Symbol {
	r.mu.Lock()
	r.sym = symbol.ApplyUpdate(r.sym, u)
	next := r.sym
	r.mu.Unlock()

	if r.opts.Store != nil {
		if err := r.opts.Store.Save(next); err != nil {
			r.log.Error("persist failed", zap.String("symbol_id", next.ID), zap.Error(err))
		}
	}
	return next
}

// replaceSymbol swaps the whole record (config updates re-hash).
func (r *Runtime) replaceSymbol(s symbol.Symbol) {
	r.mu.Lock()
	r.sym = s
	r.mu.Unlock()
	if r.opts.Store != nil {
		if err := r.opts.Store.Save(s); err != nil {
			r.log.Error("persist failed", zap.String("symbol_id", s.ID), zap.Error(err))
		}
	}
}

// #endregion host

// #region lifecycle

// Start persists the initial record and arms the maintenance loop.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return fmt.Errorf("runtime already started")
	}
	r.started = true
	s := r.sym
	r.mu.Unlock()

	if r.opts.Store != nil {
		if err := r.opts.Store.Save(s); err != nil {
			return fmt.Errorf("persist initial record: %w", err)
		}
	}

	err := r.sched.Start(ctx, func(cctx context.Context, trig ralph.Trigger) error {
		res := r.exec.RunCycle(cctx, trig)
		if r.opts.Provenance != nil {
			if perr := r.opts.Provenance.LogCycle(cctx, persist.CycleRow{
				SymbolID: s.ID,
				Cycle:    res.Cycle,
				Duration: res.Duration,
				Errors:   len(res.Errors),
			}); perr != nil {
				r.log.Warn("cycle audit write failed", zap.Error(perr))
			}
		}
		if len(res.Errors) > 0 {
			return fmt.Errorf("cycle %d: %s", res.Cycle, strings.Join(res.Errors, "; "))
		}
		return nil
	})
	if err != nil {
		r.mu.Lock()
		r.started = false
		r.mu.Unlock()
		return err
	}

	r.log.Info("runtime started", zap.String("symbol_id", s.ID),
		zap.Int("version", s.Version))
	return nil
}

// Stop halts the loop and persists the final state.
func (r *Runtime) Stop() {
	r.sched.Stop()

	r.mu.Lock()
	r.started = false
	s := r.sym
	r.mu.Unlock()

	if r.opts.Store != nil {
		if err := r.opts.Store.Save(s); err != nil {
			r.log.Error("final persist failed", zap.String("symbol_id", s.ID), zap.Error(err))
		}
	}
	r.log.Info("runtime stopped", zap.String("symbol_id", s.ID))
}

// Scheduler exposes loop controls (pause, resume, manual trigger).
func (r *Runtime) Scheduler() *ralph.Scheduler { return r.sched }

// #endregion lifecycle

// #region pipeline

// ProcessIncomingMessage runs the full decision pipeline for one inbound
// message. Exactly one state update commits on success; on error or panic
// nothing commits and the symbol is unchanged.
func (r *Runtime) ProcessIncomingMessage(ctx context.Context, msg string) (res ProcessResult, err error) {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return ProcessResult{}, ErrNotStarted
	}
	s := r.sym
	r.mu.Unlock()

	if s.Status != symbol.StatusActive {
		return ProcessResult{}, fmt.Errorf("symbol %s is %s, not active", s.ID, s.Status)
	}
	if strings.TrimSpace(msg) == "" {
		return ProcessResult{}, fmt.Errorf("empty incoming message")
	}
	if err := ctx.Err(); err != nil {
		return ProcessResult{}, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("pipeline panic", zap.Any("panic", rec))
			res, err = ProcessResult{}, fmt.Errorf("pipeline failure: %v", rec)
		}
	}()

	// Analyst track: fold this turn's exchange pair into the drift ledger
	// first so risk reflects it. Only a not-yet-answered sent line counts as
	// ours; otherwise the concession scan runs on nothing.
	drift := analyst.UpdateDrift(s.Engagement.Analyst.Drift, freshSentText(s), msg)
	analystState := s.Engagement.Analyst
	analystState.Drift = drift
	analysis := r.an.AnalyzeMessage(msg, s.Mission.Constraints, analystState)

	// Performer track: draft in persona.
	perfRes := r.perf.GenerateResponse(s.Engagement.Performer, performer.ResponseContext{
		IncomingMessage: msg,
		Objective:       s.Mission.Objective,
		Guidance: performer.Guidance{
			Emphasize: analysis.Guidance.Emphasize,
			Avoid:     analysis.Guidance.Avoid,
		},
	})

	// Gate: assess the draft, then decide.
	assessment := r.an.AssessProposedResponse(perfRes.Message, s.Mission.Constraints, drift)
	outcome := r.gate.Decide(vetogate.Input{
		IncomingMessage:     msg,
		ProposedResponse:    perfRes.Message,
		Assessment:          assessment,
		PerformerConfidence: perfRes.Confidence,
	})

	now := time.Now().UTC()
	analystState.DetectedTactics = append(analystState.DetectedTactics, analysis.Tactics...)
	analystState.RiskScore = analysis.RiskScore
	analystState.VetoHistory = append(analystState.VetoHistory, outcome.Record)

	delta := &symbol.EngagementDelta{
		MessagesReceived: 1,
		AppendHistory: []symbol.ConversationMessage{
			{Speaker: symbol.SpeakerThem, Text: msg, At: now},
		},
		MaxHistory: s.Config.Analyst.MaxHistory,
		Performer:  &perfRes.Next,
		Analyst:    &analystState,
	}

	update := symbol.StateUpdate{Engagement: delta}

	switch outcome.Decision {
	case vetogate.DecisionApprove, vetogate.DecisionModify:
		delta.SetPending = &symbol.OutboundMessage{
			Text:     outcome.FinalText,
			Decision: string(outcome.Decision),
			StagedAt: now,
		}
	case vetogate.DecisionEscalate:
		update.Validation = &symbol.ValidationDelta{
			EnqueueCommander: []symbol.CommanderMessage{escalationMessage(outcome, msg, now)},
		}
	}

	if s.Config.Ralph.AutoValidate {
		report := r.val.Validate(symbol.ApplyUpdate(s, update))
		result := report.Summary()
		if update.Validation == nil {
			update.Validation = &symbol.ValidationDelta{}
		}
		update.Validation.LastResult = &result
	}

	next := r.Apply(update)

	alert := alertFor(analysis.RiskScore, len(analysis.Tactics))
	r.noteAlert(alert)

	if r.opts.Provenance != nil {
		if perr := r.opts.Provenance.LogDecision(ctx, persist.DecisionRow{
			SymbolID:   next.ID,
			Version:    next.Version,
			Decision:   string(outcome.Decision),
			Reason:     outcome.Reason,
			Risk:       analysis.RiskScore,
			Confidence: outcome.Confidence,
			Alert:      alert,
			RecordedAt: now,
		}); perr != nil {
			r.log.Warn("decision audit write failed", zap.Error(perr))
		}
	}

	r.log.Info("message processed",
		zap.String("symbol_id", next.ID),
		zap.String("decision", string(outcome.Decision)),
		zap.Float64("risk", analysis.RiskScore),
		zap.String("alert", string(alert)))

	return ProcessResult{
		Success:    true,
		Decision:   outcome.Decision,
		Response:   outcome.FinalText,
		Alert:      alert,
		RiskScore:  analysis.RiskScore,
		Tactics:    analysis.Tactics,
		Escalation: outcome.Escalation,
		Version:    next.Version,
	}, nil
}

// freshSentText returns our most recent outbound line only when nothing
// from them has landed after it: that line and the incoming message form a
// new exchange pair. A turn with no new outbound (blocked, escalated, or
// not yet released) returns empty so the same sent message is never folded
// into the drift ledger twice.
func freshSentText(s symbol.Symbol) string {
	h := s.Engagement.History
	if n := len(h); n > 0 && h[n-1].Speaker == symbol.SpeakerUs {
		return h[n-1].Text
	}
	return ""
}

func escalationMessage(outcome vetogate.Outcome, incoming string, at time.Time) symbol.CommanderMessage {
	prio := symbol.PriorityHigh
	if outcome.Record.Risk > 0.7 {
		prio = symbol.PriorityCritical
	}
	return symbol.CommanderMessage{
		ID:        "cm-" + uuid.NewString(),
		Priority:  prio,
		Kind:      "escalation",
		Content:   fmt.Sprintf("%s | incoming: %s", outcome.Reason, incoming),
		CreatedAt: at,
	}
}

// alertFor maps the analyst's read of one turn onto the alert ladder.
func alertFor(risk float64, tacticCount int) symbol.AlertLevel {
	switch {
	case risk > 0.7:
		return symbol.AlertRed
	case risk > 0.5 || tacticCount >= 3:
		return symbol.AlertOrange
	case risk > 0.3 || tacticCount >= 1:
		return symbol.AlertYellow
	default:
		return symbol.AlertGreen
	}
}

// noteAlert records the level and fires the change hook on transitions.
func (r *Runtime) noteAlert(level symbol.AlertLevel) {
	r.mu.Lock()
	prev := r.alert
	r.alert = level
	r.mu.Unlock()

	if prev == level {
		return
	}
	if level.Rank() > prev.Rank() {
		r.log.Warn("alert escalated", zap.String("from", string(prev)), zap.String("to", string(level)))
	} else {
		r.log.Info("alert lowered", zap.String("from", string(prev)), zap.String("to", string(level)))
	}
	if r.opts.OnAlert != nil {
		r.opts.OnAlert(prev, level)
	}
}

// Alert returns the current alert level.
func (r *Runtime) Alert() symbol.AlertLevel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alert
}

// #endregion pipeline

// #region outbound

// PendingResponse returns the staged reply, or nil when nothing is staged.
func (r *Runtime) PendingResponse() *symbol.OutboundMessage {
	s := r.Snapshot()
	return s.Engagement.PendingOutbound
}

// SendDelay picks the humanizing pause before releasing a staged reply.
// Zero when stealth timing is disabled.
func (r *Runtime) SendDelay() time.Duration {
	st := r.Snapshot().Config.Stealth
	if !st.Enabled || st.MaxDelayMs <= 0 {
		return 0
	}
	min, max := st.MinDelayMs, st.MaxDelayMs
	if min < 0 {
		min = 0
	}
	if max <= min {
		return time.Duration(min) * time.Millisecond
	}
	return time.Duration(min+rand.IntN(max-min)) * time.Millisecond
}

// MarkSent commits the staged reply to the history as actually delivered.
func (r *Runtime) MarkSent() (symbol.OutboundMessage, error) {
	s := r.Snapshot()
	pending := s.Engagement.PendingOutbound
	if pending == nil {
		return symbol.OutboundMessage{}, fmt.Errorf("no staged response")
	}
	r.Apply(symbol.StateUpdate{
		Engagement: &symbol.EngagementDelta{
			MessagesSent: 1,
			AppendHistory: []symbol.ConversationMessage{
				{Speaker: symbol.SpeakerUs, Text: pending.Text, At: time.Now().UTC()},
			},
			MaxHistory:   s.Config.Analyst.MaxHistory,
			ClearPending: true,
		},
	})
	return *pending, nil
}

// #endregion outbound

// #region escalations

// Escalations lists the unresolved gate escalations.
func (r *Runtime) Escalations() []vetogate.EscalationItem {
	return r.gate.Escalations()
}

// ResolveEscalation applies the operator's choice. Approval stages the held
// message for sending.
func (r *Runtime) ResolveEscalation(id, optionID string) error {
	var held string
	for _, item := range r.gate.Escalations() {
		if item.ID == id {
			held = item.Message
			break
		}
	}
	if err := r.gate.ResolveEscalation(id, optionID); err != nil {
		return err
	}
	if optionID == "approve" && held != "" {
		r.Apply(symbol.StateUpdate{
			Engagement: &symbol.EngagementDelta{
				SetPending: &symbol.OutboundMessage{
					Text:     held,
					Decision: "approve",
					StagedAt: time.Now().UTC(),
				},
			},
		})
	}
	return nil
}

// #endregion escalations

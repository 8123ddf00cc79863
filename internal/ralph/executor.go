package ralph

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/grounded-agent/internal/commander"
	"github.com/danielpatrickdp/grounded-agent/internal/logging"
	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
	"github.com/danielpatrickdp/grounded-agent/internal/validator"
)

// #endregion

// #region host

// SymbolHost is the executor's window onto the live symbol. The runtime
// implements it; tests use a plain in-memory holder.
type SymbolHost interface {
	Snapshot() symbol.Symbol
	Apply(u symbol.StateUpdate) symbol.Symbol
}

// #endregion host

// #region components

// Component is one unit of per-cycle work. Built-ins cover validation and
// the commander sync; callers may register more.
type Component struct {
	Name     string
	Priority int // lower runs first
	Enabled  func(s symbol.Symbol, trig Trigger) bool
	Run      func(ctx context.Context, s symbol.Symbol) (*symbol.StateUpdate, error)
}

// deliveryAttemptCap: a queued message that failed this many sends stays
// queued but is no longer retried automatically.
const deliveryAttemptCap = 3

// ErrComponentTimeout marks a component that overran its per-cycle
// deadline. Its partial result is discarded.
var ErrComponentTimeout = errors.New("component deadline exceeded")

// #endregion components

// #region executor

// CycleResult summarizes one executor pass.
type CycleResult struct {
	Cycle    int
	Trigger  TriggerKind
	Started  time.Time
	Duration time.Duration
	Ran      []string
	Errors   []string
}

// Executor runs the maintenance components for one symbol.
type Executor struct {
	host  SymbolHost
	val   *validator.Validator
	cmd   commander.Commander
	extra []Component
	log   *zap.Logger
}

// NewExecutor wires the executor. cmd may be nil when no operator endpoint
// is configured; the sync component then never runs.
func NewExecutor(host SymbolHost, val *validator.Validator, cmd commander.Commander, extra ...Component) (*Executor, error) {
	if host == nil {
		return nil, fmt.Errorf("symbol host required")
	}
	if val == nil {
		val = validator.New(validator.Thresholds{}, nil)
	}
	return &Executor{
		host:  host,
		val:   val,
		cmd:   cmd,
		extra: extra,
		log:   logging.For(logging.CategoryRalph),
	}, nil
}

// RunCycle executes the enabled components in priority order. Component
// failures are collected, never fatal: a broken commander link must not
// stop validation, and vice versa.
func (e *Executor) RunCycle(ctx context.Context, trig Trigger) CycleResult {
	start := time.Now()
	res := CycleResult{Cycle: trig.Cycle, Trigger: trig.Kind, Started: start}

	snap := e.host.Snapshot()
	components := e.components()
	sort.SliceStable(components, func(i, j int) bool {
		return components[i].Priority < components[j].Priority
	})

	timeout := time.Duration(snap.Config.Ralph.ComponentTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	for _, comp := range components {
		cur := e.host.Snapshot()
		if comp.Enabled != nil && !comp.Enabled(cur, trig) {
			continue
		}
		res.Ran = append(res.Ran, comp.Name)

		update, err := e.runComponent(ctx, comp, cur, timeout)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", comp.Name, err))
			e.log.Warn("component failed", zap.String("component", comp.Name),
				zap.Int("cycle", trig.Cycle), zap.Error(err))
			continue
		}
		if update != nil {
			e.host.Apply(*update)
		}
	}

	res.Duration = time.Since(start)
	return res
}

// runComponent applies the per-component deadline and absorbs panics.
func (e *Executor) runComponent(ctx context.Context, comp Component, s symbol.Symbol, timeout time.Duration) (u *symbol.StateUpdate, err error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			u, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	u, err = comp.Run(cctx, s)
	if err == nil && cctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrComponentTimeout, cctx.Err())
	}
	return u, err
}

func (e *Executor) components() []Component {
	comps := []Component{
		{
			Name:     "validator",
			Priority: 10,
			Enabled: func(s symbol.Symbol, _ Trigger) bool {
				return s.Config.Ralph.AutoValidate
			},
			Run: e.runValidation,
		},
		{
			Name:     "commander_sync",
			Priority: 20,
			Enabled: func(s symbol.Symbol, trig Trigger) bool {
				if e.cmd == nil {
					return false
				}
				freq := s.Config.Ralph.UpdateFrequency
				if freq <= 0 {
					freq = 1
				}
				// Manual and event triggers always sync.
				return trig.Kind != TriggerScheduled || trig.Cycle%freq == 0
			},
			Run: e.runCommanderSync,
		},
	}
	return append(comps, e.extra...)
}

// #endregion executor

// #region validation-component

func (e *Executor) runValidation(_ context.Context, s symbol.Symbol) (*symbol.StateUpdate, error) {
	report := e.val.Validate(s)
	result := report.Summary()
	return &symbol.StateUpdate{
		Validation: &symbol.ValidationDelta{
			CycleCount: 1,
			LastResult: &result,
		},
	}, nil
}

// #endregion validation-component

// #region commander-component

// runCommanderSync drains the outbound queue, pushes a status report, and
// pulls operator commands. Partial failure keeps whatever progress was made.
// The queue update is expressed as per-id deltas, never a wholesale replace:
// the pipeline may enqueue an escalation while the sync's blocking I/O is in
// flight, and that message must survive the merge.
func (e *Executor) runCommanderSync(ctx context.Context, s symbol.Symbol) (*symbol.StateUpdate, error) {
	var errs []string

	delivered, retried := e.drainQueue(ctx, s, &errs)

	if err := e.cmd.ReportStatus(ctx, buildStatusReport(s)); err != nil {
		errs = append(errs, fmt.Sprintf("status report: %v", err))
	}

	accepted := e.pollCommands(ctx, s, &errs)

	update := &symbol.StateUpdate{
		Validation: &symbol.ValidationDelta{
			DequeueCommander:     delivered,
			BumpAttempts:         retried,
			AppendPendingUpdates: accepted,
		},
	}
	if len(errs) > 0 {
		// Progress still lands; the cycle records the failures.
		e.host.Apply(*update)
		return nil, fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return update, nil
}

// drainQueue attempts delivery of each queued message and reports the ids
// delivered and the ids to mark as retried. Messages past the attempt cap
// stay queued for the operator to inspect but are not retried.
func (e *Executor) drainQueue(ctx context.Context, s symbol.Symbol, errs *[]string) (delivered, retried []string) {
	for _, msg := range s.Validation.CommanderQueue {
		if msg.Attempts >= deliveryAttemptCap {
			e.log.Warn("message past attempt cap, left queued",
				zap.String("message_id", msg.ID), zap.Int("attempts", msg.Attempts))
			continue
		}
		ok, err := e.cmd.SendMessage(ctx, msg)
		if err != nil {
			*errs = append(*errs, fmt.Sprintf("send %s: %v", msg.ID, err))
		}
		if ok {
			delivered = append(delivered, msg.ID)
			continue
		}
		retried = append(retried, msg.ID)
	}
	return delivered, retried
}

// pollCommands fetches operator field updates and filters out writes to
// immutable fields.
func (e *Executor) pollCommands(ctx context.Context, s symbol.Symbol, errs *[]string) []symbol.FieldUpdate {
	cmds, err := e.cmd.CheckForCommands(ctx)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("poll commands: %v", err))
		return nil
	}
	accepted := make([]symbol.FieldUpdate, 0, len(cmds))
	for _, cmd := range cmds {
		if hitsImmutableField(cmd.Path, s.Mission.ImmutableFields) {
			e.log.Warn("dropping update to immutable field", zap.String("path", cmd.Path))
			continue
		}
		if cmd.ReceivedAt.IsZero() {
			cmd.ReceivedAt = time.Now().UTC()
		}
		accepted = append(accepted, cmd)
	}
	return accepted
}

func hitsImmutableField(path string, immutable []string) bool {
	for _, f := range immutable {
		if path == f || strings.HasPrefix(path, f+".") {
			return true
		}
	}
	return false
}

func buildStatusReport(s symbol.Symbol) commander.StatusReport {
	report := commander.StatusReport{
		SymbolID:   s.ID,
		Status:     s.Status,
		Version:    s.Version,
		Drift:      s.Engagement.Analyst.Drift.Score,
		Risk:       s.Engagement.Analyst.RiskScore,
		CycleCount: s.Validation.CycleCount,
	}
	if s.Validation.LastResult != nil {
		report.Alert = s.Validation.LastResult.Alert
	} else {
		report.Alert = symbol.AlertGreen
	}
	for _, t := range s.Engagement.Analyst.DetectedTactics {
		report.KeyFindings = append(report.KeyFindings, "tactic:"+t.Tactic)
	}
	if net := s.Engagement.Analyst.Drift.Net; net != "" {
		report.KeyFindings = append(report.KeyFindings, "net:"+string(net))
	}
	if at := s.Engagement.Intelligence.Profile.AgentType; at != "" {
		report.KeyFindings = append(report.KeyFindings, "agent_type:"+at)
	}
	return report
}

// #endregion commander-component

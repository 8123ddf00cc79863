package runtime

import (
	"fmt"
	"strings"
	"time"

	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
)

// Report renders a human-readable status block for the operator console.
func (r *Runtime) Report() string {
	s := r.Snapshot()
	stats := r.sched.Stats()

	var b strings.Builder
	fmt.Fprintf(&b, "symbol      %s (v%d)\n", s.ID, s.Version)
	fmt.Fprintf(&b, "mission     %s\n", s.Mission.Name)
	fmt.Fprintf(&b, "objective   %s\n", s.Mission.Objective)
	fmt.Fprintf(&b, "status      %s  alert=%s\n", s.Status, r.Alert())
	fmt.Fprintf(&b, "messages    received=%d sent=%d\n",
		s.Engagement.MessagesReceived, s.Engagement.MessagesSent)
	fmt.Fprintf(&b, "risk        %.2f  drift=%.2f (%s)\n",
		s.Engagement.Analyst.RiskScore, s.Engagement.Analyst.Drift.Score,
		s.Engagement.Analyst.Drift.Net)
	fmt.Fprintf(&b, "emotional   mood=%s intensity=%.2f patience=%.2f trust=%.2f\n",
		s.Engagement.Performer.Emotional.Mood,
		s.Engagement.Performer.Emotional.Intensity,
		s.Engagement.Performer.Emotional.Patience,
		s.Engagement.Performer.Emotional.Trust)
	fmt.Fprintf(&b, "tactics     %d detected\n", len(s.Engagement.Analyst.DetectedTactics))
	fmt.Fprintf(&b, "loop        state=%s cycles=%d missed=%d errors=%d\n",
		stats.State, stats.CycleCount, stats.MissedCycles, stats.ErrorCount)
	fmt.Fprintf(&b, "queue       commander=%d pending_updates=%d escalations=%d\n",
		len(s.Validation.CommanderQueue), len(s.Validation.PendingUpdates),
		len(r.Escalations()))
	if s.Validation.LastResult != nil {
		lr := s.Validation.LastResult
		fmt.Fprintf(&b, "validation  passed=%t alert=%s (c=%d e=%d w=%d) at %s\n",
			lr.Passed, lr.Alert, lr.Criticals, lr.Errors, lr.Warnings,
			lr.RanAt.Format(time.RFC3339))
	}
	if !s.Mission.ExpiresAt.IsZero() {
		fmt.Fprintf(&b, "expires     %s\n", s.Mission.ExpiresAt.Format(time.RFC3339))
	}
	if pending := s.Engagement.PendingOutbound; pending != nil {
		fmt.Fprintf(&b, "staged      [%s] %s\n", pending.Decision, pending.Text)
	}
	return b.String()
}

// KeyFindings distills the intelligence picture into short lines for the
// status report and the inspect command.
func KeyFindings(s symbol.Symbol) []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range s.Engagement.Analyst.DetectedTactics {
		if seen[t.Tactic] {
			continue
		}
		seen[t.Tactic] = true
		out = append(out, fmt.Sprintf("tactic %s (%.2f): %s", t.Tactic, t.Confidence, t.Evidence))
	}
	for _, p := range s.Engagement.Intelligence.BehavioralPatterns {
		out = append(out, "pattern: "+p)
	}
	for _, c := range s.Engagement.Analyst.Drift.Concessions {
		out = append(out, "conceded: "+c)
	}
	return out
}

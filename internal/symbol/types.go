// Package symbol defines the versioned, hashed state record at the center of
// the engagement controller, plus the pure merge-update that is the only way
// to mutate it. Everything else in the system reads a Symbol snapshot and
// proposes a StateUpdate; nothing mutates a Symbol in place.
package symbol

import "time"

// #region discriminator

// TypeTag is the fixed type discriminator for persisted symbols. A persisted
// record carrying any other value is rejected as corrupt on load.
const TypeTag = "recon.symbol/v1"

// IDPrefix is the sentinel prefix of every symbol identifier.
const IDPrefix = "sym"

// #endregion

// #region status

// Status is the coarse mission lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

// #endregion

// #region alert-level

// AlertLevel is the four-step severity ladder shared by the runtime and the
// validator. Ordering matters: green < yellow < orange < red.
type AlertLevel string

const (
	AlertGreen  AlertLevel = "green"
	AlertYellow AlertLevel = "yellow"
	AlertOrange AlertLevel = "orange"
	AlertRed    AlertLevel = "red"
)

// Rank returns the numeric severity of an alert level for comparisons.
func (a AlertLevel) Rank() int {
	switch a {
	case AlertYellow:
		return 1
	case AlertOrange:
		return 2
	case AlertRed:
		return 3
	default:
		return 0
	}
}

// #endregion

// #region symbol

// Symbol is the single source of truth for one engagement: identity, the
// immutable mission definition, track configuration, and mutable runtime
// state. Version starts at 1 and increases by exactly one per committed
// mutation. Hash covers only {mission, config, created_at} and therefore
// stays stable across state-only mutations.
type Symbol struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Version int    `json:"version"`
	Hash    string `json:"hash"`

	Mission Mission `json:"mission"`
	Config  Config  `json:"config"`

	Status     Status          `json:"status"`
	Engagement EngagementState `json:"engagement"`
	Validation ValidationState `json:"validation"`

	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// #endregion symbol

// #region mission

// Mission is the engagement definition. Effectively immutable after the
// factory runs; the hash breaks if it is edited in place.
type Mission struct {
	Name        string        `json:"name"`
	Objective   string        `json:"objective"`
	Target      TargetProfile `json:"target"`
	Constraints ConstraintSet `json:"constraints"`

	// ImmutableFields lists field paths the ralph executor must never let a
	// commander update touch.
	ImmutableFields []string `json:"immutable_fields"`

	// ExpiresAt is optional; zero means no expiry.
	ExpiresAt time.Time `json:"expires_at,omitzero"`

	// Tags are free-form labels used by persistence list filters.
	Tags []string `json:"tags,omitempty"`
}

// TargetProfile describes the opposing service and agent.
type TargetProfile struct {
	Description string `json:"description"`
	Service     string `json:"service,omitempty"`
	AgentType   string `json:"agent_type,omitempty"` // "human" | "ai" | "unknown"
}

// #endregion mission

// #region constraints

// EscalationAction is what crossing a red line triggers.
type EscalationAction string

const (
	EscalationWarn  EscalationAction = "warn"
	EscalationHalt  EscalationAction = "halt"
	EscalationAbort EscalationAction = "abort"
)

// ViolationAction is what a hard-constraint violation triggers.
type ViolationAction string

const (
	ViolationLog   ViolationAction = "log"
	ViolationWarn  ViolationAction = "warn"
	ViolationBlock ViolationAction = "block"
	ViolationAbort ViolationAction = "abort"
)

// RedLine is a prohibition that must never be crossed.
type RedLine struct {
	ID          string           `json:"id"`
	Prohibition string           `json:"prohibition"`
	Action      EscalationAction `json:"action"`
}

// Constraint is a hard rule that must hold for every outgoing message.
type Constraint struct {
	ID          string          `json:"id"`
	Category    string          `json:"category"` // "ethical" | "financial" | "disclosure" | ...
	Rule        string          `json:"rule"`
	OnViolation ViolationAction `json:"on_violation"`
}

// SoftConstraint is a preference, not a rule.
type SoftConstraint struct {
	ID         string `json:"id"`
	Preference string `json:"preference"`
}

// ConstraintSet groups all constraint tiers for a mission.
type ConstraintSet struct {
	RedLines            []RedLine        `json:"red_lines"`
	Hard                []Constraint     `json:"hard"`
	Soft                []SoftConstraint `json:"soft"`
	AcceptableTradeoffs []string         `json:"acceptable_tradeoffs,omitempty"`
}

// #endregion constraints

// #region engagement-state

// Mood is the performer's categorical primary emotional state.
type Mood string

const (
	MoodNeutral    Mood = "neutral"
	MoodHopeful    Mood = "hopeful"
	MoodFrustrated Mood = "frustrated"
	MoodSatisfied  Mood = "satisfied"
	MoodResigned   Mood = "resigned"
)

// EmotionalState holds the performer's bounded emotional dials. All scalar
// fields live in [0,1].
type EmotionalState struct {
	Mood      Mood    `json:"mood"`
	Intensity float64 `json:"intensity"`
	Patience  float64 `json:"patience"`
	Trust     float64 `json:"trust"`
}

// PerformerState is the performer track's persisted sub-state.
type PerformerState struct {
	Emotional        EmotionalState `json:"emotional"`
	ConsistencyScore float64        `json:"consistency_score"`
	Improvisations   int            `json:"improvisations"`
}

// DetectedTactic is one manipulation tactic spotted in an inbound message.
type DetectedTactic struct {
	Tactic         string    `json:"tactic"`
	Confidence     float64   `json:"confidence"`
	Evidence       string    `json:"evidence,omitempty"`
	CounterMeasure string    `json:"counter_measure,omitempty"`
	DetectedAt     time.Time `json:"detected_at,omitzero"`
}

// NetAssessment is the analyst's overall read of the negotiation.
type NetAssessment string

const (
	NetWinning NetAssessment = "winning"
	NetEven    NetAssessment = "even"
	NetLosing  NetAssessment = "losing"
	NetUnclear NetAssessment = "unclear"
)

// DriftAssessment tracks deviation from the original negotiating position.
type DriftAssessment struct {
	OriginalPosition string        `json:"original_position"`
	CurrentPosition  string        `json:"current_position"`
	Score            float64       `json:"score"` // [0,1], higher = more deviation
	Concessions      []string      `json:"concessions,omitempty"`
	Gains            []string      `json:"gains,omitempty"`
	Net              NetAssessment `json:"net"`
}

// ConstraintCondition is the analyst's per-constraint standing.
type ConstraintCondition string

const (
	ConstraintHolding  ConstraintCondition = "holding"
	ConstraintAtRisk   ConstraintCondition = "at_risk"
	ConstraintViolated ConstraintCondition = "violated"
)

// ConstraintStatus pairs a constraint id with its current condition.
type ConstraintStatus struct {
	ConstraintID string              `json:"constraint_id"`
	Condition    ConstraintCondition `json:"condition"`
	Note         string              `json:"note,omitempty"`
}

// VetoRecord is one historical veto-gate decision.
type VetoRecord struct {
	ID         string    `json:"id"`
	Decision   string    `json:"decision"`
	Reason     string    `json:"reason"`
	Risk       float64   `json:"risk"`
	Confidence float64   `json:"confidence"`
	DecidedAt  time.Time `json:"decided_at"`
}

// AnalystState is the analyst track's persisted sub-state.
type AnalystState struct {
	DetectedTactics    []DetectedTactic   `json:"detected_tactics,omitempty"`
	Drift              DriftAssessment    `json:"drift"`
	ConstraintStatuses []ConstraintStatus `json:"constraint_statuses,omitempty"`
	RiskScore          float64            `json:"risk_score"`
	VetoHistory        []VetoRecord       `json:"veto_history,omitempty"`
}

// Observation is one raw intelligence note.
type Observation struct {
	At   time.Time `json:"at"`
	Note string    `json:"note"`
}

// ScenarioResult records the outcome of one probing scenario.
type ScenarioResult struct {
	Scenario string `json:"scenario"`
	Outcome  string `json:"outcome"`
	Granted  bool   `json:"granted"`
}

// Intelligence is what has been learned about the opposing agent.
type Intelligence struct {
	Profile              TargetProfile    `json:"profile"`
	BehavioralPatterns   []string         `json:"behavioral_patterns,omitempty"`
	ConstraintBoundaries []string         `json:"constraint_boundaries,omitempty"`
	ScenarioResults      []ScenarioResult `json:"scenario_results,omitempty"`
	Observations         []Observation    `json:"observations,omitempty"`
}

// Speaker identifies who produced a conversation message.
type Speaker string

const (
	SpeakerUs   Speaker = "us"
	SpeakerThem Speaker = "them"
)

// ConversationMessage is one turn of the conversation history.
type ConversationMessage struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// OutboundMessage is a finalized reply staged for sending. The caller
// retrieves it and performs the externally observable send.
type OutboundMessage struct {
	Text     string    `json:"text"`
	Decision string    `json:"decision"` // gate decision that produced it
	StagedAt time.Time `json:"staged_at"`
}

// EngagementState is everything that changes turn by turn.
type EngagementState struct {
	MessagesReceived int                   `json:"messages_received"`
	MessagesSent     int                   `json:"messages_sent"`
	History          []ConversationMessage `json:"history,omitempty"`
	PendingOutbound  *OutboundMessage      `json:"pending_outbound,omitempty"`

	Performer    PerformerState `json:"performer"`
	Analyst      AnalystState   `json:"analyst"`
	Intelligence Intelligence   `json:"intelligence"`
}

// #endregion engagement-state

// #region validation-state

// Priority orders commander queue delivery.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// CommanderMessage is one queued outbound message for the commander.
type CommanderMessage struct {
	ID        string    `json:"id"`
	Priority  Priority  `json:"priority"`
	Kind      string    `json:"kind"` // "status" | "escalation" | "alert"
	Content   string    `json:"content"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// FieldUpdate is an externally sourced update awaiting application. The
// executor records these; it never applies them directly.
type FieldUpdate struct {
	Path       string    `json:"path"`
	Value      string    `json:"value"` // JSON-encoded new value
	Source     string    `json:"source"`
	ReceivedAt time.Time `json:"received_at"`
}

// ValidationResult is the stored summary of the last validator run. The full
// report lives with the validator; only this survives in the symbol.
type ValidationResult struct {
	Passed    bool       `json:"passed"`
	Alert     AlertLevel `json:"alert"`
	Criticals int        `json:"criticals"`
	Errors    int        `json:"errors"`
	Warnings  int        `json:"warnings"`
	Infos     int        `json:"infos"`
	RanAt     time.Time  `json:"ran_at"`
}

// ValidationState is the ralph loop's persisted sub-state.
type ValidationState struct {
	CycleCount     int                `json:"cycle_count"`
	LastResult     *ValidationResult  `json:"last_result,omitempty"`
	CommanderQueue []CommanderMessage `json:"commander_queue,omitempty"`
	PendingUpdates []FieldUpdate      `json:"pending_updates,omitempty"`
}

// #endregion validation-state

// #region config

// Formality buckets the communication register.
type Formality string

const (
	FormalityCasual  Formality = "casual"
	FormalityNeutral Formality = "neutral"
	FormalityFormal  Formality = "formal"
)

// TriggerCategory names the inbound-message categories that move the
// performer's emotional state.
type TriggerCategory string

const (
	TriggerRejection  TriggerCategory = "rejection"
	TriggerDelay      TriggerCategory = "delay"
	TriggerResolution TriggerCategory = "resolution"
	TriggerDismissal  TriggerCategory = "dismissal"
	TriggerEmpathy    TriggerCategory = "empathy"
)

// EvolutionRule maps a trigger category to its emotional effect. Mood is
// replaced outright, Intensity is clamp-replaced, PatienceFactor and
// TrustFactor multiply the current values.
type EvolutionRule struct {
	Trigger        TriggerCategory `json:"trigger"`
	Mood           Mood            `json:"mood"`
	Intensity      float64         `json:"intensity"`
	PatienceFactor float64         `json:"patience_factor"`
	TrustFactor    float64         `json:"trust_factor"`
}

// Persona is who the performer pretends to be.
type Persona struct {
	Name           string   `json:"name"`
	Role           string   `json:"role"`
	KnowledgeLevel string   `json:"knowledge_level"` // "novice" | "intermediate" | "expert"
	Traits         []string `json:"traits,omitempty"`
}

// CommunicationStyle shapes the performer's surface register.
type CommunicationStyle struct {
	Formality       Formality `json:"formality"`
	UseContractions bool      `json:"use_contractions"`
	MinWords        int       `json:"min_words"`
	MaxWords        int       `json:"max_words"`
}

// PerformerConfig configures the performer track.
type PerformerConfig struct {
	Persona        Persona            `json:"persona"`
	Style          CommunicationStyle `json:"style"`
	EvolutionRules []EvolutionRule    `json:"evolution_rules,omitempty"`
}

// AnalystConfig configures the analyst track.
type AnalystConfig struct {
	DriftThreshold float64 `json:"drift_threshold"`
	MaxHistory     int     `json:"max_history"` // conversation messages retained
}

// VetoGateConfig configures the final decision stage.
type VetoGateConfig struct {
	AutoApproveThreshold float64  `json:"auto_approve_threshold"`
	AutoBlockThreshold   float64  `json:"auto_block_threshold"`
	ApprovalTriggers     []string `json:"approval_triggers,omitempty"`
}

// StealthConfig is opaque to the core; the timing collaborator consumes it.
type StealthConfig struct {
	Enabled    bool `json:"enabled"`
	MinDelayMs int  `json:"min_delay_ms"`
	MaxDelayMs int  `json:"max_delay_ms"`
}

// RalphConfig configures the periodic control loop.
type RalphConfig struct {
	IntervalMs         int  `json:"interval_ms"`
	UpdateFrequency    int  `json:"update_frequency"` // commander sync every N cycles
	ComponentTimeoutMs int  `json:"component_timeout_ms"`
	AutoValidate       bool `json:"auto_validate"`
}

// Config groups all track configuration. Covered by the symbol hash.
type Config struct {
	Performer PerformerConfig `json:"performer"`
	Analyst   AnalystConfig   `json:"analyst"`
	VetoGate  VetoGateConfig  `json:"veto_gate"`
	Stealth   StealthConfig   `json:"stealth"`
	Ralph     RalphConfig     `json:"ralph_loop"`
}

// #endregion config

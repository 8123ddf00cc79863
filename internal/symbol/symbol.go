package symbol

// #region imports
import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// #endregion

// #region errors

// ErrIntegrity signals hash or type-discriminator corruption. Fatal for the
// affected record; never auto-repaired.
var ErrIntegrity = errors.New("symbol integrity failure")

// #endregion

// #region factory

// NewParams carries everything the factory needs. Constraints left empty get
// the default red lines and soft constraints.
type NewParams struct {
	MissionName string
	Objective   string
	Target      TargetProfile
	Constraints ConstraintSet
	Config      Config
	ExpiresAt   time.Time
	Tags        []string
}

// New creates a Symbol: assigns the namespaced id, fills constraint
// defaults, computes the identity hash, and seeds empty engagement and
// validation state. The only other legal mutation path is ApplyUpdate.
func New(p NewParams) (Symbol, error) {
	if strings.TrimSpace(p.MissionName) == "" {
		return Symbol{}, fmt.Errorf("mission name required")
	}
	if strings.TrimSpace(p.Objective) == "" {
		return Symbol{}, fmt.Errorf("objective required")
	}

	now := time.Now().UTC()

	constraints := p.Constraints
	if len(constraints.RedLines) == 0 {
		constraints.RedLines = DefaultRedLines()
	}
	if len(constraints.Soft) == 0 {
		constraints.Soft = DefaultSoftConstraints()
	}

	cfg := p.Config
	applyConfigDefaults(&cfg)

	s := Symbol{
		ID:      FormatID(p.MissionName, now),
		Type:    TypeTag,
		Version: 1,
		Mission: Mission{
			Name:            p.MissionName,
			Objective:       p.Objective,
			Target:          p.Target,
			Constraints:     constraints,
			ImmutableFields: []string{"id", "type", "created_at", "hash", "mission"},
			ExpiresAt:       p.ExpiresAt,
			Tags:            p.Tags,
		},
		Config: cfg,
		Status: StatusActive,
		Engagement: EngagementState{
			Performer: PerformerState{
				Emotional: EmotionalState{
					Mood:      MoodNeutral,
					Intensity: 0.3,
					Patience:  1.0,
					Trust:     0.5,
				},
				ConsistencyScore: 1.0,
			},
			Analyst: AnalystState{
				Drift: DriftAssessment{
					OriginalPosition: p.Objective,
					CurrentPosition:  p.Objective,
					Net:              NetUnclear,
				},
			},
			Intelligence: Intelligence{Profile: p.Target},
		},
		Validation:   ValidationState{},
		CreatedAt:    now,
		LastActivity: now,
	}
	s.Hash = ComputeHash(s)
	return s, nil
}

// #endregion factory

// #region id

// FormatID builds the namespaced symbol identifier: the sentinel prefix, the
// sanitized mission name, and a base-36 timestamp suffix.
func FormatID(missionName string, t time.Time) string {
	return fmt.Sprintf("%s-%s-%s", IDPrefix, sanitizeName(missionName), strconv.FormatInt(t.UnixMilli(), 36))
}

// sanitizeName lowercases and squeezes a mission name into [a-z0-9-].
func sanitizeName(name string) string {
	var b strings.Builder
	lastDash := true // suppress leading dash
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// ValidID reports whether id carries the sentinel prefix.
func ValidID(id string) bool {
	return strings.HasPrefix(id, IDPrefix+"-") && len(id) > len(IDPrefix)+1
}

// #endregion id

// #region hash

// hashEnvelope fixes which fields the identity hash covers. State-only
// mutations must not disturb it.
type hashEnvelope struct {
	Mission   Mission   `json:"mission"`
	Config    Config    `json:"config"`
	CreatedAt time.Time `json:"created_at"`
}

// ComputeHash returns the hex SHA-256 over {mission, config, created_at}.
func ComputeHash(s Symbol) string {
	raw, err := json.Marshal(hashEnvelope{
		Mission:   s.Mission,
		Config:    s.Config,
		CreatedAt: s.CreatedAt,
	})
	if err != nil {
		// Marshal of these concrete types cannot fail; keep the signature clean.
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity recomputes the hash and checks the type discriminator.
// A mismatch is corruption or tampering, never repaired here.
func VerifyIntegrity(s Symbol) error {
	if s.Type != TypeTag {
		return fmt.Errorf("%w: type %q, want %q", ErrIntegrity, s.Type, TypeTag)
	}
	if got := ComputeHash(s); got != s.Hash {
		return fmt.Errorf("%w: hash mismatch on %s", ErrIntegrity, s.ID)
	}
	return nil
}

// #endregion hash

// #region state-update

// EngagementDelta merges into EngagementState. Nil sub-states are left
// untouched; the tracks hand back whole next-states, so merge granularity is
// per track.
type EngagementDelta struct {
	MessagesReceived int // added
	MessagesSent     int // added
	AppendHistory    []ConversationMessage
	MaxHistory       int // trim bound after append; 0 = keep all

	Performer    *PerformerState
	Analyst      *AnalystState
	Intelligence *Intelligence

	SetPending   *OutboundMessage
	ClearPending bool
}

// ValidationDelta merges into ValidationState.
type ValidationDelta struct {
	CycleCount int // added
	LastResult *ValidationResult

	EnqueueCommander []CommanderMessage
	// DequeueCommander removes queued messages by id after delivery. Ids
	// not present are ignored, so a delivery pass computed from an older
	// snapshot cannot erase messages enqueued since.
	DequeueCommander []string
	// BumpAttempts increments the delivery-attempt counter by id.
	BumpAttempts []string

	AppendPendingUpdates []FieldUpdate
	SetPendingUpdates    *[]FieldUpdate
}

// StateUpdate is one committed mutation: bump version, merge sub-records,
// stamp last activity. Mission and config are not reachable from here.
type StateUpdate struct {
	Status     Status // empty = unchanged
	Engagement *EngagementDelta
	Validation *ValidationDelta
	At         time.Time // zero = time.Now
}

// ApplyUpdate returns the next symbol: version+1, structural merge of the
// deltas, fresh last-activity stamp. It never touches mission, config,
// created_at, or the hash, and never discards sub-fields the update leaves
// unspecified. Pure: the receiver snapshot is not modified.
func ApplyUpdate(s Symbol, u StateUpdate) Symbol {
	next := s
	next.Version = s.Version + 1

	at := u.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	next.LastActivity = at

	if u.Status != "" {
		next.Status = u.Status
	}

	if d := u.Engagement; d != nil {
		e := next.Engagement
		e.MessagesReceived += d.MessagesReceived
		e.MessagesSent += d.MessagesSent
		if len(d.AppendHistory) > 0 {
			e.History = append(append([]ConversationMessage{}, e.History...), d.AppendHistory...)
		}
		if d.MaxHistory > 0 && len(e.History) > d.MaxHistory {
			e.History = append([]ConversationMessage{}, e.History[len(e.History)-d.MaxHistory:]...)
		}
		if d.Performer != nil {
			e.Performer = *d.Performer
		}
		if d.Analyst != nil {
			e.Analyst = *d.Analyst
		}
		if d.Intelligence != nil {
			e.Intelligence = *d.Intelligence
		}
		if d.ClearPending {
			e.PendingOutbound = nil
		}
		if d.SetPending != nil {
			e.PendingOutbound = d.SetPending
		}
		next.Engagement = e
	}

	if d := u.Validation; d != nil {
		v := next.Validation
		v.CycleCount += d.CycleCount
		if d.LastResult != nil {
			v.LastResult = d.LastResult
		}
		if len(d.DequeueCommander) > 0 {
			drop := make(map[string]bool, len(d.DequeueCommander))
			for _, id := range d.DequeueCommander {
				drop[id] = true
			}
			kept := make([]CommanderMessage, 0, len(v.CommanderQueue))
			for _, m := range v.CommanderQueue {
				if !drop[m.ID] {
					kept = append(kept, m)
				}
			}
			v.CommanderQueue = kept
		}
		if len(d.BumpAttempts) > 0 {
			bump := make(map[string]bool, len(d.BumpAttempts))
			for _, id := range d.BumpAttempts {
				bump[id] = true
			}
			q := append([]CommanderMessage{}, v.CommanderQueue...)
			for i := range q {
				if bump[q[i].ID] {
					q[i].Attempts++
				}
			}
			v.CommanderQueue = q
		}
		if len(d.EnqueueCommander) > 0 {
			v.CommanderQueue = append(append([]CommanderMessage{}, v.CommanderQueue...), d.EnqueueCommander...)
		}
		if d.SetPendingUpdates != nil {
			v.PendingUpdates = append([]FieldUpdate{}, (*d.SetPendingUpdates)...)
		}
		if len(d.AppendPendingUpdates) > 0 {
			v.PendingUpdates = append(append([]FieldUpdate{}, v.PendingUpdates...), d.AppendPendingUpdates...)
		}
		next.Validation = v
	}

	return next
}

// WithConfig replaces the configuration and recomputes the hash. This is the
// one sanctioned non-state mutation; the version still bumps by one.
func WithConfig(s Symbol, cfg Config) Symbol {
	next := s
	next.Version = s.Version + 1
	next.Config = cfg
	next.LastActivity = time.Now().UTC()
	next.Hash = ComputeHash(next)
	return next
}

// #endregion state-update

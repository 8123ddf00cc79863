package runtime

// #region imports
import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
)

// #endregion

// #region field-updates

// ApplyPendingUpdates drains the operator field updates gathered by the
// maintenance loop. Supported paths are "status" and "config.*"; anything
// else is dropped with a warning. Returns the number applied.
func (r *Runtime) ApplyPendingUpdates() (int, error) {
	s := r.Snapshot()
	pending := s.Validation.PendingUpdates
	if len(pending) == 0 {
		return 0, nil
	}

	applied := 0
	newStatus := symbol.Status("")
	cfg := s.Config
	cfgDirty := false

	for _, upd := range pending {
		switch {
		case upd.Path == "status":
			var v string
			if err := json.Unmarshal([]byte(upd.Value), &v); err != nil {
				r.log.Warn("bad status value", zap.String("value", upd.Value), zap.Error(err))
				continue
			}
			switch symbol.Status(v) {
			case symbol.StatusActive, symbol.StatusPaused, symbol.StatusCompleted, symbol.StatusArchived:
				newStatus = symbol.Status(v)
				applied++
			default:
				r.log.Warn("unknown status", zap.String("value", v))
			}

		case strings.HasPrefix(upd.Path, "config."):
			next, err := patchConfig(cfg, strings.TrimPrefix(upd.Path, "config."), upd.Value)
			if err != nil {
				r.log.Warn("config update rejected",
					zap.String("path", upd.Path), zap.Error(err))
				continue
			}
			cfg = next
			cfgDirty = true
			applied++

		default:
			r.log.Warn("unsupported update path", zap.String("path", upd.Path))
		}
	}

	if cfgDirty {
		r.replaceSymbol(symbol.WithConfig(r.Snapshot(), cfg))
	}

	empty := []symbol.FieldUpdate{}
	r.Apply(symbol.StateUpdate{
		Status:     newStatus,
		Validation: &symbol.ValidationDelta{SetPendingUpdates: &empty},
	})
	return applied, nil
}

// patchConfig applies one dotted-path JSON value onto the config via a map
// round trip, so operator paths track the wire field names.
func patchConfig(cfg symbol.Config, path, rawValue string) (symbol.Config, error) {
	var value any
	if err := json.Unmarshal([]byte(rawValue), &value); err != nil {
		return cfg, fmt.Errorf("parse value: %w", err)
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	if err := setPath(m, strings.Split(path, "."), value); err != nil {
		return cfg, err
	}

	patched, err := json.Marshal(m)
	if err != nil {
		return cfg, fmt.Errorf("re-encode config: %w", err)
	}
	var next symbol.Config
	if err := json.Unmarshal(patched, &next); err != nil {
		return cfg, fmt.Errorf("config rejects value: %w", err)
	}
	return next, nil
}

func setPath(m map[string]any, path []string, value any) error {
	if len(path) == 0 {
		return fmt.Errorf("empty config path")
	}
	for i, key := range path[:len(path)-1] {
		child, ok := m[key].(map[string]any)
		if !ok {
			return fmt.Errorf("no config section %q", strings.Join(path[:i+1], "."))
		}
		m = child
	}
	leaf := path[len(path)-1]
	if _, ok := m[leaf]; !ok {
		return fmt.Errorf("no config field %q", strings.Join(path, "."))
	}
	m[leaf] = value
	return nil
}

// #endregion field-updates

package persist

// #region imports
import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
)

// #endregion

// #region schema

const provenanceSchema = `
CREATE TABLE IF NOT EXISTS decision_log (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol_id   TEXT NOT NULL,
	version     INTEGER NOT NULL,
	decision    TEXT NOT NULL,
	reason      TEXT NOT NULL,
	risk        REAL NOT NULL,
	confidence  REAL NOT NULL,
	alert       TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decision_symbol ON decision_log(symbol_id, seq);

CREATE TABLE IF NOT EXISTS cycle_log (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol_id   TEXT NOT NULL,
	cycle       INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	errors      INTEGER NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cycle_symbol ON cycle_log(symbol_id, seq);
`

// #endregion schema

// #region types

// DecisionRow is one gate outcome in the audit trail.
type DecisionRow struct {
	Seq        int64
	SymbolID   string
	Version    int
	Decision   string
	Reason     string
	Risk       float64
	Confidence float64
	Alert      symbol.AlertLevel
	RecordedAt time.Time
}

// CycleRow is one maintenance cycle in the audit trail.
type CycleRow struct {
	Seq        int64
	SymbolID   string
	Cycle      int
	Duration   time.Duration
	Errors     int
	RecordedAt time.Time
}

// #endregion types

// #region provenance

// Provenance is the append-only SQLite audit log. Rows are never updated;
// history is the point.
type Provenance struct {
	db *sql.DB
}

// OpenProvenance opens (or creates) the audit database at path.
func OpenProvenance(path string) (*Provenance, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open provenance db: %w", err)
	}
	// modernc sqlite is single-writer; serialize at the pool.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(provenanceSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply provenance schema: %w", err)
	}
	return &Provenance{db: db}, nil
}

// Close releases the database handle.
func (p *Provenance) Close() error {
	return p.db.Close()
}

// LogDecision appends a gate outcome.
func (p *Provenance) LogDecision(ctx context.Context, row DecisionRow) error {
	at := row.RecordedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO decision_log (symbol_id, version, decision, reason, risk, confidence, alert, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.SymbolID, row.Version, row.Decision, row.Reason,
		row.Risk, row.Confidence, string(row.Alert), at.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert decision row: %w", err)
	}
	return nil
}

// LogCycle appends a maintenance cycle record.
func (p *Provenance) LogCycle(ctx context.Context, row CycleRow) error {
	at := row.RecordedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO cycle_log (symbol_id, cycle, duration_ms, errors, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		row.SymbolID, row.Cycle, row.Duration.Milliseconds(), row.Errors,
		at.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert cycle row: %w", err)
	}
	return nil
}

// RecentDecisions returns the latest n decisions for a symbol, newest first.
func (p *Provenance) RecentDecisions(ctx context.Context, symbolID string, n int) ([]DecisionRow, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT seq, symbol_id, version, decision, reason, risk, confidence, alert, recorded_at
		 FROM decision_log WHERE symbol_id = ? ORDER BY seq DESC LIMIT ?`,
		symbolID, n)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRow
	for rows.Next() {
		var r DecisionRow
		var alert, at string
		if err := rows.Scan(&r.Seq, &r.SymbolID, &r.Version, &r.Decision, &r.Reason,
			&r.Risk, &r.Confidence, &alert, &at); err != nil {
			return nil, fmt.Errorf("scan decision row: %w", err)
		}
		r.Alert = symbol.AlertLevel(alert)
		r.RecordedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentCycles returns the latest n cycle records for a symbol, newest first.
func (p *Provenance) RecentCycles(ctx context.Context, symbolID string, n int) ([]CycleRow, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT seq, symbol_id, cycle, duration_ms, errors, recorded_at
		 FROM cycle_log WHERE symbol_id = ? ORDER BY seq DESC LIMIT ?`,
		symbolID, n)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRow
	for rows.Next() {
		var r CycleRow
		var ms int64
		var at string
		if err := rows.Scan(&r.Seq, &r.SymbolID, &r.Cycle, &ms, &r.Errors, &at); err != nil {
			return nil, fmt.Errorf("scan cycle row: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		r.RecordedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// #endregion provenance

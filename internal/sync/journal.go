package sync

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vaultlink/vaultlink/internal/db"
	"github.com/vaultlink/vaultlink/internal/utils"
)

// JournalFileName lives in the vault metadata dir.
const JournalFileName = "journal.db"

const journalSchema = `
CREATE TABLE IF NOT EXISTS sync_ops (
    id TEXT PRIMARY KEY,
    cycle TEXT NOT NULL DEFAULT '',
    ts TEXT NOT NULL, -- RFC3339
    direction TEXT NOT NULL,
    op TEXT NOT NULL,
    path TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_ops_ts ON sync_ops(ts);
CREATE INDEX IF NOT EXISTS idx_ops_path ON sync_ops(path);
CREATE INDEX IF NOT EXISTS idx_ops_cycle ON sync_ops(cycle);
`

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

type OpType string

const (
	OpWrite  OpType = "write"
	OpMkdir  OpType = "mkdir"
	OpDelete OpType = "delete"
	OpTrash  OpType = "trash"
	OpRename OpType = "rename"
	OpMerge  OpType = "merge"
)

// Op is one applied sync operation.
type Op struct {
	ID        string    `json:"id"`
	Cycle     string    `json:"cycle,omitempty"`
	Time      time.Time `json:"time"`
	Direction Direction `json:"direction"`
	Type      OpType    `json:"op"`
	Path      string    `json:"path"`
	Detail    string    `json:"detail,omitempty"`
}

// dbOp is the scan target; time is stored as TEXT.
type dbOp struct {
	ID        string `db:"id"`
	Cycle     string `db:"cycle"`
	TS        string `db:"ts"`
	Direction string `db:"direction"`
	Op        string `db:"op"`
	Path      string `db:"path"`
	Detail    string `db:"detail"`
}

// Journal is the durable record of applied sync operations.
type Journal struct {
	db     *sqlx.DB
	dbPath string
}

func NewJournal(dbPath string) *Journal {
	return &Journal{dbPath: dbPath}
}

func (j *Journal) Open() error {
	if j.db != nil {
		return fmt.Errorf("journal already open")
	}

	if err := utils.EnsureDir(filepath.Dir(j.dbPath)); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}

	handle, err := db.NewSqliteDB(db.WithPath(j.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	if _, err := handle.Exec(journalSchema); err != nil {
		handle.Close()
		return fmt.Errorf("initialize journal schema: %w", err)
	}

	j.db = handle
	return nil
}

func (j *Journal) Close() error {
	if j.db == nil {
		return fmt.Errorf("journal not open")
	}
	if err := j.db.Close(); err != nil {
		slog.Error("failed to close journal", "error", err)
		return err
	}
	j.db = nil
	slog.Debug("journal closed")
	return nil
}

// Record appends one operation. The id and timestamp are filled in when
// empty.
func (j *Journal) Record(op Op) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.Time.IsZero() {
		op.Time = time.Now().UTC()
	}

	data := dbOp{
		ID:        op.ID,
		Cycle:     op.Cycle,
		TS:        op.Time.UTC().Format(time.RFC3339Nano),
		Direction: string(op.Direction),
		Op:        string(op.Type),
		Path:      op.Path,
		Detail:    op.Detail,
	}

	query := `INSERT INTO sync_ops (id, cycle, ts, direction, op, path, detail)
	          VALUES (:id, :cycle, :ts, :direction, :op, :path, :detail)`
	if _, err := j.db.NamedExec(query, data); err != nil {
		return fmt.Errorf("record op for %s: %w", op.Path, err)
	}
	return nil
}

// Recent returns the newest operations, newest first.
func (j *Journal) Recent(limit int) ([]Op, error) {
	if limit <= 0 {
		limit = 50
	}

	// rowid is insertion order; RFC3339Nano strings do not sort reliably
	// because trailing zeros are trimmed.
	var rows []dbOp
	err := j.db.Select(&rows, "SELECT id, cycle, ts, direction, op, path, detail FROM sync_ops ORDER BY rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query recent ops: %w", err)
	}

	ops := make([]Op, 0, len(rows))
	for _, row := range rows {
		ts, err := time.Parse(time.RFC3339Nano, row.TS)
		if err != nil {
			slog.Error("failed to parse op timestamp", "id", row.ID, "value", row.TS, "error", err)
			continue
		}
		ops = append(ops, Op{
			ID:        row.ID,
			Cycle:     row.Cycle,
			Time:      ts,
			Direction: Direction(row.Direction),
			Type:      OpType(row.Op),
			Path:      row.Path,
			Detail:    row.Detail,
		})
	}
	return ops, nil
}

// CycleOps returns every operation recorded under one sync cycle.
func (j *Journal) CycleOps(cycle string) ([]Op, error) {
	var rows []dbOp
	err := j.db.Select(&rows, "SELECT id, cycle, ts, direction, op, path, detail FROM sync_ops WHERE cycle = ? ORDER BY rowid ASC", cycle)
	if err != nil {
		return nil, fmt.Errorf("query cycle %s: %w", cycle, err)
	}

	ops := make([]Op, 0, len(rows))
	for _, row := range rows {
		ts, err := time.Parse(time.RFC3339Nano, row.TS)
		if err != nil {
			continue
		}
		ops = append(ops, Op{
			ID:        row.ID,
			Cycle:     row.Cycle,
			Time:      ts,
			Direction: Direction(row.Direction),
			Type:      OpType(row.Op),
			Path:      row.Path,
			Detail:    row.Detail,
		})
	}
	return ops, nil
}

// Count returns the number of recorded operations.
func (j *Journal) Count() (int, error) {
	var count int
	if err := j.db.Get(&count, "SELECT COUNT(*) FROM sync_ops"); err != nil {
		return 0, fmt.Errorf("count ops: %w", err)
	}
	return count, nil
}

package checkpoint

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/paperforge/paperforge/internal/progress"
)

// Snapshot is the persisted state of one phase: the progress tracker
// contents plus task-specific extras (revision task lists, file counts).
type Snapshot struct {
	Progress progress.State `json:"progress"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// Record is one stored checkpoint. Only the latest Record per
// (workflow, phase) is kept; history lives in the phase log.
type Record struct {
	ID          string
	WorkflowID  string
	Phase       Phase
	CreatedAt   time.Time
	Workspace   string
	Fingerprint map[string]string
	Snapshot    *Snapshot
	ByteSize    int64
	FileCount   int
}

// LogEntry is one append-only phase log row, kept purely for audit and
// debugging. Resume logic never reads it.
type LogEntry struct {
	WorkflowID string
	Phase      Phase
	Status     string // started | completed
	At         time.Time
	Duration   time.Duration
}

// Phase log status values.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
)

// timeFormat is fixed-width so lexicographic ordering in sqlite matches
// chronological ordering even for saves within the same second.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store handles checkpoint persistence in sqlite.
type Store struct {
	db *sql.DB
}

// NewStore creates a checkpoint store using the given database.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS phase_checkpoints (
			id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			created_at TEXT NOT NULL,
			workspace TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			state_gz BLOB NOT NULL,
			byte_size INTEGER NOT NULL,
			file_count INTEGER NOT NULL,
			PRIMARY KEY (workflow_id, phase)
		);

		CREATE INDEX IF NOT EXISTS idx_phase_checkpoints_created
			ON phase_checkpoints(workflow_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS phase_log (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			workflow_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			status TEXT NOT NULL,
			at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_phase_log_workflow
			ON phase_log(workflow_id, seq);
	`)
	return err
}

// Save upserts the checkpoint for (workflowID, phase) and returns the
// new checkpoint ID. The snapshot is stored as gzipped JSON.
func (s *Store) Save(workflowID string, phase Phase, workspace string, fingerprint map[string]string, snap *Snapshot) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}

	stateJSON, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(stateJSON); err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("close gzip: %w", err)
	}
	compressed := buf.Bytes()

	fpJSON, err := json.Marshal(fingerprint)
	if err != nil {
		return "", fmt.Errorf("marshal fingerprint: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO phase_checkpoints (id, workflow_id, phase, created_at, workspace, fingerprint, state_gz, byte_size, file_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workflow_id, phase) DO UPDATE SET
			id = excluded.id,
			created_at = excluded.created_at,
			workspace = excluded.workspace,
			fingerprint = excluded.fingerprint,
			state_gz = excluded.state_gz,
			byte_size = excluded.byte_size,
			file_count = excluded.file_count
	`, id.String(), workflowID, string(phase), now.Format(timeFormat), workspace,
		string(fpJSON), compressed, len(compressed), len(snap.Progress.FilesImplemented))
	if err != nil {
		return "", fmt.Errorf("insert: %w", err)
	}
	return id.String(), nil
}

// Latest returns the most recent resumable checkpoint for a workflow,
// or nil if none exists. Failed-phase rows are excluded: they hold the
// state at the moment of failure for inspection via Get, but resume
// must fall back to the last good phase rather than see a terminal
// record. Corrupt rows surface as errors; the manager decides how to
// degrade.
func (s *Store) Latest(workflowID string) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT id, workflow_id, phase, created_at, workspace, fingerprint, state_gz, byte_size, file_count
		FROM phase_checkpoints
		WHERE workflow_id = ? AND phase != ?
		ORDER BY created_at DESC
		LIMIT 1
	`, workflowID, string(PhaseFailed))

	rec, err := s.scanFull(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// Get returns the checkpoint for a specific phase, or nil if absent.
func (s *Store) Get(workflowID string, phase Phase) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT id, workflow_id, phase, created_at, workspace, fingerprint, state_gz, byte_size, file_count
		FROM phase_checkpoints
		WHERE workflow_id = ? AND phase = ?
	`, workflowID, string(phase))

	rec, err := s.scanFull(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// AppendLog writes one phase log entry.
func (s *Store) AppendLog(e LogEntry) error {
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO phase_log (workflow_id, phase, status, at, duration_ms)
		VALUES (?, ?, ?, ?, ?)
	`, e.WorkflowID, string(e.Phase), e.Status, at.Format(timeFormat), e.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// Log returns the phase log for a workflow in append order.
func (s *Store) Log(workflowID string) ([]LogEntry, error) {
	rows, err := s.db.Query(`
		SELECT workflow_id, phase, status, at, duration_ms
		FROM phase_log
		WHERE workflow_id = ?
		ORDER BY seq
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("query log: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var phase, at string
		var durMs int64
		if err := rows.Scan(&e.WorkflowID, &phase, &e.Status, &at, &durMs); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.Phase = Phase(phase)
		e.At, _ = time.Parse(timeFormat, at)
		e.Duration = time.Duration(durMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) scanFull(row *sql.Row) (*Record, error) {
	var rec Record
	var phase, createdStr, fpJSON string
	var stateGz []byte

	err := row.Scan(&rec.ID, &rec.WorkflowID, &phase, &createdStr, &rec.Workspace,
		&fpJSON, &stateGz, &rec.ByteSize, &rec.FileCount)
	if err != nil {
		return nil, err
	}
	rec.Phase = Phase(phase)
	rec.CreatedAt, _ = time.Parse(timeFormat, createdStr)

	if err := json.Unmarshal([]byte(fpJSON), &rec.Fingerprint); err != nil {
		return nil, fmt.Errorf("unmarshal fingerprint: %w", err)
	}

	gr, err := gzip.NewReader(bytes.NewReader(stateGz))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer gr.Close()

	stateJSON, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	if err := json.Unmarshal(stateJSON, &rec.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &rec, nil
}

package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tradeedge/signalcore/internal/domain"
)

// payload is TEXT, not JSONB: the chain hash covers the exact payload bytes,
// and JSONB rewrites key order and whitespace on the way back out.
const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
    id          UUID PRIMARY KEY,
    seq         BIGINT NOT NULL UNIQUE,
    ts          TIMESTAMPTZ NOT NULL,
    event_type  TEXT NOT NULL,
    versions    JSONB NOT NULL,
    payload     TEXT NOT NULL,
    prev_hash   CHAR(64) NOT NULL,
    hash        CHAR(64) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_entries_ts ON audit_entries (ts);
`

// PGStore persists the chain in PostgreSQL. The seq UNIQUE constraint backs
// up the in-process append serialization.
type PGStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPGStore ensures the audit schema exists.
func NewPGStore(ctx context.Context, db *sqlx.DB) (*PGStore, error) {
	s := &PGStore{db: db, timeout: 10 * time.Second}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := db.ExecContext(cctx, auditSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure audit schema: %w", err)
	}
	return s, nil
}

type pgEntry struct {
	ID        string    `db:"id"`
	Seq       uint64    `db:"seq"`
	TS        time.Time `db:"ts"`
	EventType string    `db:"event_type"`
	Versions  []byte    `db:"versions"`
	Payload   string    `db:"payload"`
	PrevHash  string    `db:"prev_hash"`
	Hash      string    `db:"hash"`
}

func (s *PGStore) Insert(ctx context.Context, e Entry) error {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	versions, err := json.Marshal(e.Versions)
	if err != nil {
		return fmt.Errorf("failed to encode versions: %w", err)
	}
	_, err = s.db.ExecContext(cctx, `
		INSERT INTO audit_entries (id, seq, ts, event_type, versions, payload, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID.String(), e.Seq, e.Timestamp, e.EventType, versions, string(e.Payload), e.PrevHash, e.Hash)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry %d: %w", e.Seq, err)
	}
	return nil
}

func (s *PGStore) Range(ctx context.Context, fromSeq, toSeq uint64) ([]Entry, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT id, seq, ts, event_type, versions, payload, prev_hash, hash
		FROM audit_entries WHERE seq >= $1`
	args := []any{fromSeq}
	if toSeq != 0 {
		query += ` AND seq <= $2`
		args = append(args, toSeq)
	}
	query += ` ORDER BY seq ASC`

	var rows []pgEntry
	if err := s.db.SelectContext(cctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query audit range: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *PGStore) Last(ctx context.Context) (Entry, bool, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var r pgEntry
	err := s.db.GetContext(cctx, &r, `
		SELECT id, seq, ts, event_type, versions, payload, prev_hash, hash
		FROM audit_entries ORDER BY seq DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to query audit head: %w", err)
	}
	e, err := r.toEntry()
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (r pgEntry) toEntry() (Entry, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("corrupt audit entry %d: %w", r.Seq, err)
	}
	var versions domain.VersionContract
	if err := json.Unmarshal(r.Versions, &versions); err != nil {
		return Entry{}, fmt.Errorf("corrupt audit versions at %d: %w", r.Seq, err)
	}
	return Entry{
		ID:        id,
		Seq:       r.Seq,
		Timestamp: r.TS.UTC(),
		EventType: r.EventType,
		Versions:  versions,
		Payload:   json.RawMessage(r.Payload),
		PrevHash:  r.PrevHash,
		Hash:      r.Hash,
	}, nil
}

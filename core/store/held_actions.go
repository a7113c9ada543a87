package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adalundhe/steward/core/actions"
	"github.com/adalundhe/steward/core/holdqueue"
)

// HeldActionStore is the SQLite implementation of holdqueue.ActionStore.
type HeldActionStore struct {
	db *DB
}

// NewHeldActionStore wraps db.
func NewHeldActionStore(db *DB) *HeldActionStore {
	return &HeldActionStore{db: db}
}

var _ holdqueue.ActionStore = (*HeldActionStore)(nil)

// Create inserts a new held action.
func (s *HeldActionStore) Create(ctx context.Context, a *holdqueue.HeldAction) error {
	payload, err := actions.Encode(a.Payload)
	if err != nil {
		return fmt.Errorf("create held action: %w", err)
	}

	_, err = s.db.db.ExecContext(ctx, `
		INSERT INTO held_actions
			(id, project, action_type, payload, status, hold_expires_at, created_at,
			 decided_at, executed_at, decided_by, cancel_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Project, string(a.Type), string(payload), string(a.Status),
		a.HoldExpiresAt.Unix(), a.CreatedAt.Unix(),
		nullTime(a.DecidedAt), nullTime(a.ExecutedAt),
		a.DecidedBy, a.CancelReason,
	)
	if err != nil {
		return fmt.Errorf("create held action: %w", err)
	}
	return nil
}

const heldActionColumns = `id, project, action_type, payload, status,
	hold_expires_at, created_at, decided_at, executed_at, decided_by, cancel_reason`

// Get returns the action, or nil, nil when no row matches.
func (s *HeldActionStore) Get(ctx context.Context, project, id string) (*holdqueue.HeldAction, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+heldActionColumns+` FROM held_actions WHERE id = ? AND project = ?`,
		id, project,
	)
	a, err := scanHeldAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// ListPending lists a project's pending actions, oldest first.
func (s *HeldActionStore) ListPending(ctx context.Context, project string) ([]*holdqueue.HeldAction, error) {
	return s.list(ctx,
		`SELECT `+heldActionColumns+` FROM held_actions
		 WHERE project = ? AND status = ? ORDER BY created_at`,
		project, string(holdqueue.StatusPending),
	)
}

// ListAllPending lists pending actions across projects, oldest first.
func (s *HeldActionStore) ListAllPending(ctx context.Context) ([]*holdqueue.HeldAction, error) {
	return s.list(ctx,
		`SELECT `+heldActionColumns+` FROM held_actions
		 WHERE status = ? ORDER BY created_at`,
		string(holdqueue.StatusPending),
	)
}

// ListReady lists pending actions whose hold expired at or before now.
func (s *HeldActionStore) ListReady(ctx context.Context, now time.Time) ([]*holdqueue.HeldAction, error) {
	return s.list(ctx,
		`SELECT `+heldActionColumns+` FROM held_actions
		 WHERE status = ? AND hold_expires_at <= ? ORDER BY hold_expires_at`,
		string(holdqueue.StatusPending), now.Unix(),
	)
}

// Transition performs the conditional status change. The UPDATE's WHERE
// clause carries the expected current status; zero affected rows means
// another caller won and surfaces as holdqueue.ErrNoMatch.
func (s *HeldActionStore) Transition(ctx context.Context, id string, from holdqueue.Status, up holdqueue.TransitionUpdate) (*holdqueue.HeldAction, error) {
	sets := []string{"status = ?"}
	args := []any{string(up.To)}
	if up.DecidedBy != "" {
		sets = append(sets, "decided_by = ?")
		args = append(args, up.DecidedBy)
	}
	if up.CancelReason != "" {
		sets = append(sets, "cancel_reason = ?")
		args = append(args, up.CancelReason)
	}
	if up.DecidedAt != nil {
		sets = append(sets, "decided_at = ?")
		args = append(args, up.DecidedAt.Unix())
	}
	if up.ExecutedAt != nil {
		sets = append(sets, "executed_at = ?")
		args = append(args, up.ExecutedAt.Unix())
	}
	args = append(args, id, string(from))

	res, err := s.db.db.ExecContext(ctx,
		`UPDATE held_actions SET `+strings.Join(sets, ", ")+` WHERE id = ? AND status = ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("transition held action: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("transition held action: %w", err)
	}
	if affected == 0 {
		return nil, holdqueue.ErrNoMatch
	}

	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+heldActionColumns+` FROM held_actions WHERE id = ?`, id)
	return scanHeldAction(row)
}

func (s *HeldActionStore) list(ctx context.Context, query string, args ...any) ([]*holdqueue.HeldAction, error) {
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list held actions: %w", err)
	}
	defer rows.Close()

	var out []*holdqueue.HeldAction
	for rows.Next() {
		a, err := scanHeldAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHeldAction(row rowScanner) (*holdqueue.HeldAction, error) {
	var (
		a          holdqueue.HeldAction
		actionType string
		payload    string
		status     string
		expiry     int64
		created    int64
		decidedAt  sql.NullInt64
		executedAt sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.Project, &actionType, &payload, &status,
		&expiry, &created, &decidedAt, &executedAt, &a.DecidedBy, &a.CancelReason)
	if err != nil {
		return nil, err
	}

	p, err := actions.Decode([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("scan held action %s: %w", a.ID, err)
	}

	a.Type = actions.Type(actionType)
	a.Payload = p
	a.Status = holdqueue.Status(status)
	a.HoldExpiresAt = time.Unix(expiry, 0).UTC()
	a.CreatedAt = time.Unix(created, 0).UTC()
	a.DecidedAt = timePtr(decidedAt)
	a.ExecutedAt = timePtr(executedAt)
	return &a, nil
}

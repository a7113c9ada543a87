package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/adalundhe/steward/core/actions"
	"github.com/adalundhe/steward/core/holdqueue"
)

// GraduationStore is the SQLite implementation of holdqueue.GraduationStore.
type GraduationStore struct {
	db *DB
}

// NewGraduationStore wraps db.
func NewGraduationStore(db *DB) *GraduationStore {
	return &GraduationStore{db: db}
}

var _ holdqueue.GraduationStore = (*GraduationStore)(nil)

// GetOrCreate returns the trust record for the pair, inserting the zero
// record on first use. The INSERT ignores conflicts so two concurrent first
// uses converge on one row.
func (s *GraduationStore) GetOrCreate(ctx context.Context, project string, t actions.Type) (*holdqueue.GraduationState, error) {
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO graduation_states (project, action_type)
		VALUES (?, ?)
		ON CONFLICT (project, action_type) DO NOTHING`,
		project, string(t),
	)
	if err != nil {
		return nil, fmt.Errorf("create graduation state: %w", err)
	}

	row := s.db.db.QueryRowContext(ctx, `
		SELECT project, action_type, consecutive_approvals, tier,
		       last_approved_at, last_cancelled_at
		FROM graduation_states WHERE project = ? AND action_type = ?`,
		project, string(t),
	)
	return scanGraduationState(row)
}

// Save upserts the record.
func (s *GraduationStore) Save(ctx context.Context, gs *holdqueue.GraduationState) error {
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO graduation_states
			(project, action_type, consecutive_approvals, tier, last_approved_at, last_cancelled_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (project, action_type) DO UPDATE SET
			consecutive_approvals = excluded.consecutive_approvals,
			tier                  = excluded.tier,
			last_approved_at      = excluded.last_approved_at,
			last_cancelled_at     = excluded.last_cancelled_at`,
		gs.Project, string(gs.ActionType), gs.ConsecutiveApprovals, gs.Tier,
		nullTime(gs.LastApprovedAt), nullTime(gs.LastCancelledAt),
	)
	if err != nil {
		return fmt.Errorf("save graduation state: %w", err)
	}
	return nil
}

// ListByProject lists every action type's record for a project.
func (s *GraduationStore) ListByProject(ctx context.Context, project string) ([]*holdqueue.GraduationState, error) {
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT project, action_type, consecutive_approvals, tier,
		       last_approved_at, last_cancelled_at
		FROM graduation_states WHERE project = ? ORDER BY action_type`,
		project,
	)
	if err != nil {
		return nil, fmt.Errorf("list graduation states: %w", err)
	}
	defer rows.Close()

	var out []*holdqueue.GraduationState
	for rows.Next() {
		gs, err := scanGraduationState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, gs)
	}
	return out, rows.Err()
}

func scanGraduationState(row rowScanner) (*holdqueue.GraduationState, error) {
	var (
		gs          holdqueue.GraduationState
		actionType  string
		approvedAt  sql.NullInt64
		cancelledAt sql.NullInt64
	)
	err := row.Scan(&gs.Project, &actionType, &gs.ConsecutiveApprovals, &gs.Tier,
		&approvedAt, &cancelledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("graduation state vanished after upsert: %w", err)
		}
		return nil, err
	}
	gs.ActionType = actions.Type(actionType)
	gs.LastApprovedAt = timePtr(approvedAt)
	gs.LastCancelledAt = timePtr(cancelledAt)
	return &gs, nil
}

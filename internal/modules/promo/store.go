// README: Promo store backed by PostgreSQL; progress rows mutated under row locks.
package promo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taxihub/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) ActiveTasks(ctx context.Context) ([]Task, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, active, metric, required, discount_percent, one_time, reward_hours
		FROM promo_tasks
		WHERE active`,
	)
	if err != nil {
		return nil, fmt.Errorf("query promo tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Name, &t.Active, &t.Metric, &t.Required,
			&t.DiscountPercent, &t.OneTime, &t.RewardHours); err != nil {
			return nil, fmt.Errorf("scan promo task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PGStore) AvailableReward(ctx context.Context, clientID types.ID) (*Progress, *Task, error) {
	row := s.db.QueryRow(ctx, `
		SELECT p.client_id, p.task_id, p.count, p.reward_available, p.completed_count, p.reward_expires_at,
		       t.id, t.name, t.active, t.metric, t.required, t.discount_percent, t.one_time, t.reward_hours
		FROM promo_progress p
		JOIN promo_tasks t ON t.id = p.task_id
		WHERE p.client_id = $1 AND p.reward_available AND t.active
		ORDER BY p.task_id
		LIMIT 1`, string(clientID),
	)

	var p Progress
	var t Task
	var expires sql.NullTime
	err := row.Scan(
		&p.ClientID, &p.TaskID, &p.Count, &p.RewardAvailable, &p.CompletedCount, &expires,
		&t.ID, &t.Name, &t.Active, &t.Metric, &t.Required, &t.DiscountPercent, &t.OneTime, &t.RewardHours,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("scan available reward: %w", err)
	}
	if expires.Valid {
		v := expires.Time
		p.RewardExpiresAt = &v
	}
	return &p, &t, nil
}

// MutateProgress runs fn against the client's progress row for a task inside
// a transaction holding a FOR UPDATE lock, creating the row on first use.
// Concurrent increments and reward consumption for the same client serialize
// on that lock.
func (s *PGStore) MutateProgress(ctx context.Context, clientID, taskID types.ID, fn func(p *Progress) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO promo_progress (client_id, task_id, count, reward_available, completed_count)
		VALUES ($1, $2, 0, false, 0)
		ON CONFLICT (client_id, task_id) DO NOTHING`,
		string(clientID), string(taskID),
	); err != nil {
		return fmt.Errorf("ensure progress row: %w", err)
	}

	row := tx.QueryRow(ctx, `
		SELECT client_id, task_id, count, reward_available, completed_count, reward_expires_at
		FROM promo_progress
		WHERE client_id = $1 AND task_id = $2
		FOR UPDATE`,
		string(clientID), string(taskID),
	)
	var p Progress
	var expires sql.NullTime
	if err := row.Scan(&p.ClientID, &p.TaskID, &p.Count, &p.RewardAvailable, &p.CompletedCount, &expires); err != nil {
		return fmt.Errorf("lock progress row: %w", err)
	}
	if expires.Valid {
		v := expires.Time
		p.RewardExpiresAt = &v
	}

	if err := fn(&p); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE promo_progress
		SET count = $3, reward_available = $4, completed_count = $5, reward_expires_at = $6
		WHERE client_id = $1 AND task_id = $2`,
		string(clientID), string(taskID),
		p.Count, p.RewardAvailable, p.CompletedCount, p.RewardExpiresAt,
	); err != nil {
		return fmt.Errorf("update progress row: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PGStore) GetCodeByText(ctx context.Context, code string) (*Code, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, code, discount_percent, usage_limit, expires_at, duration_hours
		FROM promo_codes
		WHERE code = $1`, code,
	)
	var c Code
	err := row.Scan(&c.ID, &c.Code, &c.DiscountPercent, &c.UsageLimit, &c.ExpiresAt, &c.DurationHours)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan promo code: %w", err)
	}
	return &c, nil
}

func (s *PGStore) UsageCountForCode(ctx context.Context, codeID types.ID) (int, error) {
	row := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM promo_usages WHERE code_id = $1`, string(codeID))
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count code usages: %w", err)
	}
	return n, nil
}

func (s *PGStore) HasClientUsedCode(ctx context.Context, clientID, codeID types.ID) (bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM promo_usages WHERE client_id = $1 AND code_id = $2)`,
		string(clientID), string(codeID),
	)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check client code usage: %w", err)
	}
	return exists, nil
}

func (s *PGStore) ActiveUsage(ctx context.Context, clientID types.ID) (*Usage, *Code, error) {
	row := s.db.QueryRow(ctx, `
		SELECT u.id, u.client_id, u.code_id, u.activated_at, u.expires_at, u.consumed,
		       c.id, c.code, c.discount_percent, c.usage_limit, c.expires_at, c.duration_hours
		FROM promo_usages u
		JOIN promo_codes c ON c.id = u.code_id
		WHERE u.client_id = $1 AND NOT u.consumed
		ORDER BY u.activated_at DESC
		LIMIT 1`, string(clientID),
	)
	var u Usage
	var c Code
	err := row.Scan(
		&u.ID, &u.ClientID, &u.CodeID, &u.ActivatedAt, &u.ExpiresAt, &u.Consumed,
		&c.ID, &c.Code, &c.DiscountPercent, &c.UsageLimit, &c.ExpiresAt, &c.DurationHours,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("scan active usage: %w", err)
	}
	return &u, &c, nil
}

func (s *PGStore) CreateUsage(ctx context.Context, u *Usage) error {
	row := s.db.QueryRow(ctx, `
		INSERT INTO promo_usages (client_id, code_id, activated_at, expires_at, consumed)
		VALUES ($1, $2, $3, $4, false)
		RETURNING id`,
		string(u.ClientID), string(u.CodeID), u.ActivatedAt, u.ExpiresAt,
	)
	if err := row.Scan(&u.ID); err != nil {
		return fmt.Errorf("insert promo usage: %w", err)
	}
	return nil
}

func (s *PGStore) ConsumeUsage(ctx context.Context, usageID int64) error {
	_, err := s.db.Exec(ctx, `UPDATE promo_usages SET consumed = true WHERE id = $1`, usageID)
	return err
}

// README: User store backed by PostgreSQL; one row per user, role payload columns nullable.
package user

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taxihub/internal/types"
)

var ErrNotFound = errors.New("user not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// EnsureByPhone returns the user with the given phone and role, creating the
// record on first login.
func (s *Store) EnsureByPhone(ctx context.Context, phone string, role types.Role) (*User, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, role, name, phone, created_at)
		VALUES ($1, $2, '', $3, NOW())
		ON CONFLICT (phone, role) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING id`,
		string(newID()), string(role), phone,
	)
	var id types.ID
	if err := row.Scan(&id); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return s.Get(ctx, id)
}

// SetFCMToken stores the device push token in the column for the user's role.
func (s *Store) SetFCMToken(ctx context.Context, id types.ID, token string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users
		SET driver_fcm_token = CASE WHEN role = 'driver' THEN $1 ELSE driver_fcm_token END,
		    client_fcm_token = CASE WHEN role = 'client' THEN $1 ELSE client_fcm_token END
		WHERE id = $2`,
		token, string(id),
	)
	if err != nil {
		return fmt.Errorf("set fcm token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, role, name, phone, created_at,
		       driver_online, driver_fcm_token, driver_car_model, driver_car_plate, driver_activity_score,
		       client_fcm_token
		FROM users
		WHERE id = $1`, string(id),
	)

	var u User
	var online sql.NullBool
	var dToken, carModel, carPlate, cToken sql.NullString
	var score sql.NullInt64

	err := row.Scan(
		&u.ID, &u.Role, &u.Name, &u.Phone, &u.CreatedAt,
		&online, &dToken, &carModel, &carPlate, &score,
		&cToken,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if u.Role == types.RoleDriver {
		u.Driver = &DriverPayload{
			Online:        online.Bool,
			FCMToken:      dToken.String,
			CarModel:      carModel.String,
			CarPlate:      carPlate.String,
			ActivityScore: int(score.Int64),
		}
	}
	if u.Role == types.RoleClient {
		u.Client = &ClientPayload{FCMToken: cToken.String}
	}
	return &u, nil
}

// DriverOnline reports whether a driver exists and is currently online.
func (s *Store) DriverOnline(ctx context.Context, id types.ID) (bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT driver_online FROM users WHERE id = $1 AND role = 'driver'`, string(id),
	)
	var online sql.NullBool
	err := row.Scan(&online)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("scan driver online: %w", err)
	}
	return online.Bool, nil
}

func (s *Store) SetDriverOnline(ctx context.Context, id types.ID, online bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET driver_online = $1 WHERE id = $2 AND role = 'driver'`,
		online, string(id),
	)
	if err != nil {
		return fmt.Errorf("set driver online: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FCMToken returns the push token for any role, empty when unset.
func (s *Store) FCMToken(ctx context.Context, id types.ID) (string, error) {
	row := s.db.QueryRow(ctx, `
		SELECT COALESCE(driver_fcm_token, client_fcm_token, '') FROM users WHERE id = $1`, string(id),
	)
	var token string
	err := row.Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("scan fcm token: %w", err)
	}
	return token, nil
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}

// AddActivityScore adjusts a driver's activity score by delta (may be negative).
func (s *Store) AddActivityScore(ctx context.Context, id types.ID, delta int) error {
	_, err := s.db.Exec(ctx, `
		UPDATE users SET driver_activity_score = driver_activity_score + $1
		WHERE id = $2 AND role = 'driver'`,
		delta, string(id),
	)
	return err
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/loopers/commerce-core/internal/apperr"
	"github.com/loopers/commerce-core/internal/domain"
	"github.com/loopers/commerce-core/internal/store"
)

type UserRepository struct{}

func NewUserRepository() *UserRepository { return &UserRepository{} }

func (r *UserRepository) LockForUpdate(ctx context.Context, tx store.Tx, externalUserID string) (*domain.User, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, external_user_id, email, point_balance
		FROM users
		WHERE external_user_id = $1
		FOR UPDATE`, externalUserID)

	var u domain.User
	if err := row.Scan(&u.ID, &u.ExternalUserID, &u.Email, &u.PointBalance); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrUserNotFound
		}
		return nil, fmt.Errorf("lock user for update: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) LockForUpdateByID(ctx context.Context, tx store.Tx, userID int64) (*domain.User, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, external_user_id, email, point_balance
		FROM users
		WHERE id = $1
		FOR UPDATE`, userID)

	var u domain.User
	if err := row.Scan(&u.ID, &u.ExternalUserID, &u.Email, &u.PointBalance); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrUserNotFound
		}
		return nil, fmt.Errorf("lock user by id for update: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, tx store.Tx, userID int64) (*domain.User, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, external_user_id, email, point_balance
		FROM users
		WHERE id = $1`, userID)

	var u domain.User
	if err := row.Scan(&u.ID, &u.ExternalUserID, &u.Email, &u.PointBalance); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) Save(ctx context.Context, tx store.Tx, u *domain.User) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users SET point_balance = $1 WHERE id = $2`, u.PointBalance, u.ID)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

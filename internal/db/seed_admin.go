package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/netsentry/authsvc/internal/config"
	"github.com/netsentry/authsvc/internal/domain/user"
	"github.com/netsentry/authsvc/internal/repo/postgres"
	"github.com/netsentry/authsvc/internal/security"
)

// EnsureAdminUser seeds the operator account at startup. A no-op when the
// admin credentials are unset or the account already exists.
func EnsureAdminUser(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	var dummy string

	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, cfg.AdminEmail).Scan(&dummy)

	if err == nil {
		return nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := security.HashPassword(cfg.AdminPassword)

	if err != nil {
		return err
	}

	repo := postgres.NewUsersRepo(pool, nil)

	_, err = repo.Create(ctx, cfg.AdminEmail, hash, cfg.AdminName, user.RoleAdmin)

	// Another instance may have seeded it between the check and the insert.
	if errors.Is(err, user.ErrEmailTaken) {
		return nil
	}

	return err
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/planora/server/internal/auth"
	"github.com/planora/server/internal/domain/ids"
	"github.com/planora/server/internal/domain/users"
	"github.com/planora/server/internal/storage/postgres"
)

// bootstrapAdminUser creates the admin account named by ADMIN_EMAIL and
// ADMIN_PASSWORD if it does not exist yet. Signup cannot mint admins, so
// this is the only way the first one comes into being.
func bootstrapAdminUser(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) error {
	adminEmail := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminEmail == "" || adminPassword == "" {
		return nil
	}

	repo, err := postgres.NewUserRepository(pool)
	if err != nil {
		return err
	}

	if _, err := repo.GetByEmail(ctx, adminEmail); err == nil {
		return nil
	} else if !errors.Is(err, users.ErrNotFound) {
		return fmt.Errorf("check admin account: %w", err)
	}

	hash, err := auth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	id, err := ids.NewULID()
	if err != nil {
		return fmt.Errorf("mint admin id: %w", err)
	}

	name := os.Getenv("ADMIN_NAME")
	if name == "" {
		name = "Administrator"
	}
	if _, err := repo.Create(ctx, users.CreateParams{
		ID:           id,
		Name:         name,
		Email:        adminEmail,
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
	}); err != nil {
		return fmt.Errorf("create admin account: %w", err)
	}
	logger.Info().Str("email", adminEmail).Msg("admin account bootstrapped")
	return nil
}

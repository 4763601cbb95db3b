package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/pages-builder/internal/auth"
	"github.com/bizmatters/agent-builder/pages-builder/internal/logging"
)

func newSeedUserCmd() *cobra.Command {
	var name, email, password, dbURL string

	cmd := &cobra.Command{
		Use:   "seed-user",
		Short: "Create an operator account for the /api routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := auth.ValidateNewUser(name, email, password); err != nil {
				return fmt.Errorf("validation error: %w", err)
			}
			if dbURL == "" {
				dbURL = os.Getenv("DATABASE_URL")
			}
			if dbURL == "" {
				return fmt.Errorf("database URL is required (--database-url or DATABASE_URL)")
			}

			logger, err := logging.New("info")
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			ctx, span := otel.Tracer("pagesctl").Start(ctx, "seed_user")
			defer span.End()

			pool, err := pgxpool.New(ctx, dbURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer pool.Close()
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("failed to ping database: %w", err)
			}

			userID, err := auth.NewPgxUserStore(pool).CreateUser(ctx, name, email, password)
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}

			logger.Info("created user",
				zap.String("id", userID),
				zap.String("name", name),
				zap.String("email", auth.NormalizeEmail(email)))
			fmt.Fprintln(cmd.OutOrStdout(), userID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Full name of the user (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (required, min 8 chars)")
	cmd.Flags().StringVar(&dbURL, "database-url", "", "PostgreSQL URL (default $DATABASE_URL)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

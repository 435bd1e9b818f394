package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/akamensky/argparse"
	"github.com/rs/zerolog"

	"oceanstella/api/internal/config"
	"oceanstella/api/internal/database"
	"oceanstella/api/internal/log"
	"oceanstella/api/internal/repository"
	"oceanstella/api/internal/service"
)

func main() {
	parser := argparse.NewParser("manage", "Operator tasks for the Ocean Stella API")

	migrateCmd := parser.NewCommand("migrate", "Apply pending database migrations")

	seedCmd := parser.NewCommand("seed-admin", "Create or promote a superadmin account")
	email := seedCmd.String("e", "email", &argparse.Options{Required: true, Help: "Account e-mail"})
	password := seedCmd.String("p", "password", &argparse.Options{Required: true, Help: "Account password"})
	name := seedCmd.String("n", "name", &argparse.Options{Help: "Display name", Default: "Super Admin"})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := log.New(cfg.Environment)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch {
	case migrateCmd.Happened():
		err = runMigrate(ctx, cfg, logger)
	case seedCmd.Happened():
		err = runSeedAdmin(ctx, cfg, logger, *name, *email, *password)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("command failed")
	}
}

func runMigrate(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) error {
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		return err
	}
	logger.Info().Msg("migrations applied")
	return nil
}

func runSeedAdmin(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger, name, email, password string) error {
	db := database.NewConnector(cfg.Postgres)
	defer db.Close()

	users := service.NewUserService(
		repository.NewUserRepository(db),
		repository.NewSessionRepository(db),
		nil,
		cfg.Security.PasswordMinLength,
		log.Component(logger, "users"),
	)

	user, created, err := users.SeedSuperAdmin(ctx, name, email, password)
	if err != nil {
		return err
	}
	logger.Info().
		Str("user_id", user.ID).
		Str("email", user.Email).
		Bool("created", created).
		Msg("superadmin ready")
	return nil
}

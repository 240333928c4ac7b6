package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"shared-transactions/internal/auth"
	"shared-transactions/internal/config"
	"shared-transactions/internal/repository"
	"shared-transactions/internal/service"
)

var (
	username string
	userID   string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		return store.Migrate(cmd.Context())
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a user and print its id",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		user, err := service.NewUserService(store.Users(), nil).Register(cmd.Context(), username)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), user.ID)
		return nil
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove a user; their participant rows remain",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(userID)
		if err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}

		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		return service.NewUserService(store.Users(), nil).Remove(cmd.Context(), id)
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(userID)
		if err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := cfg.ValidateForServe(); err != nil {
			return err
		}

		token, err := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL).Generate(id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	userCreateCmd.Flags().StringVar(&username, "username", "", "unique user handle")
	userCreateCmd.MarkFlagRequired("username")

	userDeleteCmd.Flags().StringVar(&userID, "user", "", "user id")
	userDeleteCmd.MarkFlagRequired("user")

	tokenCmd.Flags().StringVar(&userID, "user", "", "user id")
	tokenCmd.MarkFlagRequired("user")

	userCmd.AddCommand(userCreateCmd, userDeleteCmd)
}

func openStore(ctx context.Context) (*repository.Store, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dialect, ok := repository.ParseDialect(cfg.DBDriver)
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.DBTimeout)
	defer cancel()
	return repository.Open(ctx, dialect, cfg.DSN(), logger)
}

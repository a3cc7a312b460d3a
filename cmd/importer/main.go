package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nutriadmin/admin-api/internal/config"
	"github.com/nutriadmin/admin-api/internal/repository"
	"github.com/nutriadmin/admin-api/internal/repository/memory"
	"github.com/nutriadmin/admin-api/internal/repository/postgres"
	"github.com/nutriadmin/admin-api/internal/service/measurement"
	"github.com/nutriadmin/admin-api/internal/spreadsheet"
	"github.com/nutriadmin/admin-api/pkg/auth"
	"github.com/nutriadmin/admin-api/pkg/logger"
	"github.com/nutriadmin/admin-api/pkg/messaging/redis"
	"github.com/nutriadmin/admin-api/pkg/metrics"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "importer",
		Short:        "Anthropometric measurement import tools",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Directory containing config.yaml")

	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	dir, _ := cmd.Flags().GetString("config")
	var paths []string
	if dir != "" {
		paths = append(paths, dir)
	}
	cfg, err := config.LoadConfig(paths...)
	if err != nil {
		return nil, nil, err
	}
	log := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		JSON:   cfg.Log.JSON,
		Output: os.Stderr,
	})
	return cfg, log, nil
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a measurement workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			group, _ := cmd.Flags().GetString("group")
			uploader, _ := cmd.Flags().GetString("uploader")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			uploaderID, err := uuid.Parse(uploader)
			if err != nil {
				return fmt.Errorf("invalid --uploader: %w", err)
			}

			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			layout, err := cfg.Spreadsheet.Layout()
			if err != nil {
				return err
			}

			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			var (
				store   repository.ImportStore
				queries repository.MeasurementQueryRepository
			)
			if dryRun {
				mem := memory.NewStore()
				store, queries = mem, mem
			} else {
				db, err := postgres.NewDB(cfg.Database)
				if err != nil {
					return err
				}
				defer db.Close()
				base := postgres.NewBaseRepository(db)
				store = postgres.NewImportStore(base)
				queries = postgres.NewMeasurementQueryRepository(base)
			}

			svc := measurement.NewService(
				store,
				queries,
				spreadsheet.NewParser(layout),
				log,
				metrics.NewMetrics(cfg.Metrics.Namespace, "import", prometheus.NewRegistry()),
			)
			result, err := svc.Upload(cmd.Context(), &measurement.ImportRequest{
				Content:          content,
				OriginalFilename: filepath.Base(args[0]),
				SubjectGroupName: group,
				UploaderID:       uploaderID,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().String("group", "", "Subject group the session belongs to")
	cmd.Flags().String("uploader", "", "Uploader user id (uuid)")
	cmd.Flags().Bool("dry-run", false, "Parse and import into a throwaway in-memory store")
	_ = cmd.MarkFlagRequired("group")
	_ = cmd.MarkFlagRequired("uploader")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := postgres.NewDB(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := postgres.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			log.Info("Migrations applied", "count", len(applied), "versions", applied)
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print import events published by the worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), log.Zerolog())
			if err != nil {
				return err
			}
			defer broker.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			messages, err := broker.Subscribe(ctx, cfg.Redis.Channel)
			if err != nil {
				return err
			}
			log.Info("Watching import events", "channel", cfg.Redis.Channel)
			for msg := range messages {
				fmt.Fprintln(cmd.OutOrStdout(), string(msg))
			}
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token for an uploader",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			userID, err := uuid.Parse(user)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.JWT.Secret == "" {
				return fmt.Errorf("jwt.secret must be set")
			}
			token, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TokenTTL).GenerateAccessToken(userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("user", "", "User id (uuid) to embed in the token")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

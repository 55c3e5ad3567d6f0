package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/studybot/internal/app"
	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/internal/config"
	"github.com/example/studybot/internal/database"
	"github.com/example/studybot/internal/excel"
	"github.com/example/studybot/internal/ledger"
	"github.com/example/studybot/internal/logger"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "studybot",
		Short:         "Study coaching Telegram bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runBot(configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML config file")

	root.AddCommand(newMigrateCmd(&configPath))
	root.AddCommand(newExportCmd(&configPath))
	root.AddCommand(newImportCmd(&configPath))
	return root
}

func loadConfig(path string) (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func runBot(configPath string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer log.Sync()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("unable to create bot: %w", err)
	}
	log.Infow("authorized on account", "username", api.Self.UserName)

	a, err := app.New(ctx, cfg, api, clock.System{}, log)
	if err != nil {
		return err
	}
	defer a.Close()

	done := make(chan struct{})

	go func() {
		sig := <-sigChan
		log.Infow("received signal", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := a.Shutdown(shutdownCtx); err != nil {
			log.Errorw("error during shutdown", "error", err)
		}
		close(done)
	}()

	log.Info("bot started, press Ctrl+C to stop")
	go func() {
		if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorw("bot error", "error", err)
			sigChan <- syscall.SIGTERM
		}
	}()

	<-done
	log.Info("bot stopped successfully")
	return nil
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := database.Connect(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}

func newExportCmd(configPath *string) *cobra.Command {
	var (
		ownerID int64
		out     string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write an owner's study log to an xlsx file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()
			if ownerID == 0 {
				ownerID = cfg.OwnerID
			}
			loc, err := clock.Location(cfg.Timezone)
			if err != nil {
				return err
			}

			db, err := database.Connect(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			clk := clock.System{}
			sessions := database.NewSessionRepository(db)
			exporter := excel.NewExporter(ledger.New(sessions, clk, log), sessions, excel.DefaultExportConfig())

			now := clk.Now()
			today := clock.DayOf(now.In(loc))
			buf, err := exporter.Export(cmd.Context(), ownerID, today, now)
			if err != nil {
				return err
			}
			if out == "" {
				out = excel.FileName(today)
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().Int64Var(&ownerID, "owner", 0, "owner telegram id (defaults to OWNER_TELEGRAM_ID)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	return cmd
}

func newImportCmd(configPath *string) *cobra.Command {
	var ownerID int64
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load closed sessions from an xlsx or CSV study log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()
			if ownerID == 0 {
				ownerID = cfg.OwnerID
			}
			loc, err := clock.Location(cfg.Timezone)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			db, err := database.Connect(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			importer := excel.NewImporter(database.NewSessionRepository(db), excel.DefaultImportConfig())
			res, err := importer.Import(cmd.Context(), ownerID, args[0], f, loc)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "processed %d rows: %d created, %d skipped\n", res.TotalProcessed, res.Created, res.Skipped)
			for _, e := range res.Errors {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), e)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&ownerID, "owner", 0, "owner telegram id (defaults to OWNER_TELEGRAM_ID)")
	return cmd
}

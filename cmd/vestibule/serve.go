package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alecgard/vestibule/internal/config"
	"github.com/alecgard/vestibule/internal/dialogue"
	"github.com/alecgard/vestibule/internal/gatekeeper"
	"github.com/alecgard/vestibule/internal/groupdoc"
	"github.com/alecgard/vestibule/internal/identify"
	"github.com/alecgard/vestibule/internal/metrics"
	"github.com/alecgard/vestibule/internal/ops"
	"github.com/alecgard/vestibule/internal/telegram"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gatekeeper bot",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	m := metrics.New()
	store := groupdoc.NewStore(pool)

	client, err := telegram.NewClient(cfg.Telegram.Token, m)
	if err != nil {
		return err
	}
	slog.Info("authenticated with telegram", "bot", client.Self())

	engine := dialogue.NewEngine(identify.Form(), client,
		cfg.Dialogue.SessionTTL, cfg.Dialogue.SweepInterval, m)
	gk := gatekeeper.New(cfg.Telegram.GroupID, client, store, engine, m)
	engine.SetOnComplete(gk.HandleDialogueComplete)

	if err := client.RegisterCommands(cfg.Telegram.GroupID); err != nil {
		slog.Warn("failed to register command menus", "error", err)
	}

	go engine.Start(ctx)

	poller := telegram.NewPoller(client, engine, gk, cfg.Telegram.GroupID, cfg.Telegram.PollTimeout, m)
	go func() {
		if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("poller stopped", "error", err)
			os.Exit(1)
		}
	}()

	srv := &http.Server{
		Addr:         cfg.OpsAddr(),
		Handler:      ops.NewRouter(m),
		ReadTimeout:  cfg.Ops.ReadTimeout,
		WriteTimeout: cfg.Ops.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("ops server starting", "addr", cfg.OpsAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ops server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")
	cancel()
	engine.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return srv.Shutdown(shutdownCtx)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/franckalain/dietplanner/internal/chat"
	"github.com/franckalain/dietplanner/internal/config"
	"github.com/franckalain/dietplanner/internal/database"
	"github.com/franckalain/dietplanner/internal/dietplan"
	"github.com/franckalain/dietplanner/internal/logger"
	"github.com/franckalain/dietplanner/internal/ml"
	"github.com/franckalain/dietplanner/internal/server"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", config.GetConfigPath(), "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(cfg.Server.Debug); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()
	log := logger.L()

	ctx := context.Background()

	// Initialize database
	db, err := database.NewSQLiteDB(cfg.Database.Path, log.Named("database"))
	if err != nil {
		log.Error("failed to open database", zap.String("path", cfg.Database.Path), zap.Error(err))
		return err
	}
	defer db.Close()

	// Initialize completion backend
	completer, err := ml.NewCompleter(ctx, cfg.ML(), log.Named("ml"))
	if err != nil {
		log.Error("failed to create completion client", zap.String("provider", cfg.Completion.Provider), zap.Error(err))
		return err
	}
	if c, ok := completer.(io.Closer); ok {
		defer c.Close()
	}

	generator := dietplan.NewGenerator(completer, dietplan.Options{
		Generation: cfg.Generation.Plan,
		Safety:     cfg.Generation.Safety,
	}, log.Named("dietplan"))

	chatManager := chat.NewManager(completer, db.Sessions(cfg.Chat.MaxSessions), chat.Options{
		Generation: cfg.Generation.Chat,
		Safety:     cfg.Generation.Safety,
		Apology:    cfg.Chat.Apology,
	}, log.Named("chat"))

	// Initialize and start server
	srv := server.New(db, generator, chatManager, server.Options{
		StaticDir:       cfg.Server.StaticDir,
		CORSOrigins:     cfg.Server.CORSOrigins,
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeout),
	}, log.Named("server"))

	if err := srv.Start(ctx, cfg.Server.Port); err != nil {
		log.Error("server stopped", zap.Error(err))
		return err
	}
	log.Info("server stopped")
	return nil
}

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/liliang-cn/leadgen/internal/backend"
	"github.com/liliang-cn/leadgen/internal/config"
	"github.com/liliang-cn/leadgen/internal/logging"
	"github.com/liliang-cn/leadgen/internal/repository"
	"github.com/liliang-cn/leadgen/internal/service"
	"github.com/liliang-cn/leadgen/internal/session"
)

var (
	cfgFile    string
	envFile    string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "leadgen",
	Short: "Lead generation analysis client",
	Long: `leadgen submits company URLs and PDF documents to the lead generation
analysis backend and renders the summary, conversation starters, pain points
and market gaps it returns.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./leadgen.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(serveCmd, urlCmd, pdfCmd, sessionCmd, historyCmd, usageCmd, emailCmd)
}

// app is the wired process: configuration, logger, storage and services
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *repository.DB
	client   *backend.Client
	sessions *session.Manager
	history  *service.HistoryService
	analysis *service.AnalysisService
}

func newApp() (*app, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	// Load configuration
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	// Initialize logger
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	// Initialize database (session id and local history)
	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Error("Failed to initialize database", zap.Error(err))
		return nil, err
	}

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, logger)
	sessions := session.NewManager(repository.NewStateRepository(db), logger)
	history := service.NewHistoryService(
		repository.NewReportRepository(db),
		client,
		sessions,
		cfg.Cache.TTL,
		logger,
	)
	analysis := service.NewAnalysisService(client, sessions, logger, history.Record)

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		client:   client,
		sessions: sessions,
		history:  history,
		analysis: analysis,
	}, nil
}

func (a *app) Close() {
	a.analysis.Close()
	if err := a.db.Close(); err != nil {
		a.logger.Warn("Failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// requestTimeout bounds one-shot lookups that are not analyses
const requestTimeout = 30 * time.Second

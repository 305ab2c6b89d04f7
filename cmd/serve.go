package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ince88/prv/internal/chat"
	"github.com/Ince88/prv/internal/config"
	"github.com/Ince88/prv/internal/crm"
	"github.com/Ince88/prv/internal/logging"
	"github.com/Ince88/prv/internal/mail"
	"github.com/Ince88/prv/internal/server"
	"github.com/Ince88/prv/internal/session"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var debug bool
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		Long: `Starts the HTTP API server with all configured integrations: the AI
chat relay, the Gmail connector, the bulk mailer and the MiniCRM gateway.
Integrations without credentials are disabled individually; the server
reports their availability on /api/check_config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(debug, addr)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides HTTP_ADDR)")

	return cmd
}

func runServe(debug bool, addr string) error {
	logger := logging.Setup(debug)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if addr != "" {
		cfg.Server.HTTPAddr = addr
	}

	assistants, err := cfg.OpenAI.Assistants()
	if err != nil {
		return err
	}
	fallbackActive, err := cfg.CRM.ActiveStatuses()
	if err != nil {
		return err
	}

	store := session.NewMemoryStore(cfg.Session.TTL, logger)
	defer store.Stop()

	relay := chat.NewRelay(cfg.OpenAI.APIKey, chat.NewRegistry(), logger)

	connector := mail.NewConnector(cfg.Google.ClientID, cfg.Google.ClientSecret,
		cfg.Server.BaseURL+"/api/gmail_callback")
	reader := mail.NewReader(connector, cfg.Google.AliasList(), logger)
	mailer := mail.NewMailer(connector, cfg.Mailer.LogoPath, cfg.Mailer.SendDelay, logger)

	metrics := server.NewMetrics()

	var crmClient *crm.Client
	if cfg.CRM.Enabled() {
		crmClient = crm.NewClient(crm.Options{
			BaseURL:                cfg.CRM.BaseURL,
			SystemID:               cfg.CRM.SystemID,
			APIKey:                 cfg.CRM.APIKey,
			Timeout:                cfg.CRM.Timeout,
			Workers:                cfg.CRM.Workers,
			ScanCap:                cfg.CRM.ScanCap,
			FallbackActiveStatuses: fallbackActive,
			Logger:                 logger,
			Observe: func(operation, status string, duration time.Duration) {
				metrics.ObserveUpstream("minicrm", operation, status, duration)
			},
		})
	}

	srv := server.New(server.Options{
		Config:     cfg,
		Assistants: assistants,
		Sessions:   store,
		Relay:      relay,
		Connector:  connector,
		Reader:     reader,
		Mailer:     mailer,
		CRM:        crmClient,
		Metrics:    metrics,
		Logger:     logger,
	})

	logger.Info("starting prv backend", "version", version,
		"openai", cfg.OpenAI.Enabled(), "gmail", cfg.Google.Enabled(), "minicrm", cfg.CRM.Enabled())

	errCh := make(chan error, 2)

	var metricsServer *server.MetricsServer
	if cfg.Server.MetricsEnabled {
		metricsServer = server.NewMetricsServer(cfg.Server.MetricsAddr, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				errCh <- fmt.Errorf("metrics server failed: %w", err)
			}
		}()
	}

	go func() {
		if err := srv.Start(); err != nil {
			errCh <- fmt.Errorf("api server failed: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("api server shutdown failed", logging.Err(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("metrics server shutdown failed", logging.Err(err))
		}
	}

	return nil
}

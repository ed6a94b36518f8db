package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/pysugar/roleplay-nexus/internal/api/handlers"
	"github.com/pysugar/roleplay-nexus/internal/auth/google"
	"github.com/pysugar/roleplay-nexus/internal/auth/session"
	"github.com/pysugar/roleplay-nexus/internal/auth/token"
	"github.com/pysugar/roleplay-nexus/internal/csvfiles"
	"github.com/pysugar/roleplay-nexus/internal/db"
	"github.com/pysugar/roleplay-nexus/internal/insights"
	"github.com/pysugar/roleplay-nexus/internal/logging"
	"github.com/pysugar/roleplay-nexus/internal/mail"
	"github.com/pysugar/roleplay-nexus/internal/metrics"
	"github.com/pysugar/roleplay-nexus/internal/outreach"
	"github.com/pysugar/roleplay-nexus/internal/providers/catalog"
	"github.com/pysugar/roleplay-nexus/internal/roleplay"
	"github.com/pysugar/roleplay-nexus/internal/speech"
	"github.com/pysugar/roleplay-nexus/internal/upstream"
	"github.com/pysugar/roleplay-nexus/internal/version"
)

const (
	appName = "Roleplay Nexus"

	refreshInterval = 5 * time.Minute
	refreshWindow   = 10 * time.Minute
	shutdownTimeout = 15 * time.Second
)

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := logging.Logger()

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	secret, err := db.EnsureJWTSecret(database, cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	registry := catalog.New(cfg.Models)
	dispatcher := upstream.NewClient(registry,
		upstream.WithStrict(cfg.Models.Strict),
		upstream.WithTimeout(cfg.Models.Timeout),
		upstream.WithMetrics(m),
	)

	if !google.IsConfigured(cfg.Google) {
		log.Warn("google oauth client is not configured; gmail linking will fail")
	}
	oauthCfg := google.Config(cfg.Google)
	tokens := token.NewManager(db.NewTokenStore(database), oauthCfg, token.WithMetrics(m))
	tokens.StartRefreshLoop(ctx, refreshInterval, refreshWindow)

	sessions := session.NewService(database, secret, cfg.Auth.TokenTTL)

	deps := handlers.Deps{
		AppName:  appName,
		Registry: registry,
		Roleplay: roleplay.NewService(dispatcher),
		Accounts: sessions,
		Google:   google.NewHandler(oauthCfg, sessions, tokens),
		Mail:     mail.NewService(tokens),
		Tokens:   tokens,
		CSV:      csvfiles.NewService(database, cfg.Storage.Dir),
		Insights: insights.NewStore(cfg.Storage.Dir),
		Outreach: outreach.NewGenerator(cfg.Outreach.APIKey, cfg.Outreach.BaseURL),
		Gatherer: reg,
	}
	if cfg.Google.CloudAPIKey != "" {
		sp, err := speech.New(ctx, cfg.Google.CloudAPIKey)
		if err != nil {
			return err
		}
		deps.Speech = sp
	} else {
		log.Warn("GOOGLE_CLOUD_API_KEY is not set; speech endpoints are disabled")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handlers.New(deps).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("nexus starting",
			"addr", srv.Addr,
			"version", version.Version,
			"default_model", string(registry.Default()),
			"strict_models", cfg.Models.Strict,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runPing(cmd *cobra.Command, args []string) error {
	registry := catalog.New(cfg.Models)
	client := upstream.NewClient(registry,
		upstream.WithStrict(true),
		upstream.WithTimeout(cfg.Models.Timeout),
	)

	model := pingModel
	if model == "" {
		model = string(registry.Default())
	}
	reply, err := client.Dispatch(cmd.Context(), model, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), reply)
	if reply == upstream.SentinelReply {
		return errors.New("provider call failed; see logs for the upstream status")
	}
	return nil
}

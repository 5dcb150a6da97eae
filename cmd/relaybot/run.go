package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"relaybot/pkg/config"
	"relaybot/pkg/delivery"
	"relaybot/pkg/gate"
	"relaybot/pkg/history"
	"relaybot/pkg/imagegen"
	"relaybot/pkg/llmimpl"
	"relaybot/pkg/logx"
	"relaybot/pkg/metrics"
	"relaybot/pkg/pager"
	"relaybot/pkg/relay"
	"relaybot/pkg/transport/telegram"
	"relaybot/pkg/version"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll Telegram and relay messages (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd, opts)
		},
	}
}

func runBot(cmd *cobra.Command, opts *rootOptions) error {
	logger := logx.NewLogger("relaybot")
	logger.Info("⏳ Starting %s", version.String())

	cfg, err := loadConfig(opts, os.Stdin, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	cfg.LogSummary(logger)

	token, err := config.GetTelegramToken()
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(reg)

	store, err := pager.Open(ctx, cfg.Pager)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("closing pager store: %v", cerr)
		}
	}()

	hist, err := history.NewStore(cfg.History)
	if err != nil {
		return err
	}

	bot, err := telegram.NewBot(token, "", time.Duration(cfg.Telegram.PollTimeoutSeconds)*time.Second, false)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	tr := telegram.NewTransport(bot)

	registry := llmimpl.NewRegistry(metrics.Middleware(recorder, metrics.DefaultUsageExtractor, logx.NewLogger("llm")))
	g := gate.New(registry, gate.ConfigFrom(cfg.Gate), recorder)
	g.Start(ctx)

	adapter := delivery.NewAdapter(tr, telegram.Classifier{}, store, recorder)
	nav := pager.NewController(store, adapter, recorder)
	dispatcher := relay.New(relay.Deps{
		Config:   cfg,
		Gate:     g,
		Delivery: adapter,
		Notifier: tr,
		Images:   imagegen.NewOpenAIGenerator(cfg.Models.Image, nil),
		History:  hist,
	})
	router := telegram.NewRouter(bot, dispatcher, nav)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return router.Run(ctx) })
	if cfg.Metrics.Address != config.MetricsDisabled {
		server := metrics.NewServer(cfg.Metrics.Address, reg)
		group.Go(func() error { return server.Run(ctx) })
	}

	err = group.Wait()
	logger.Info("👋 relaybot stopped")
	return err
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof" // Register pprof handlers
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/advisor"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/agent"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/chart"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/entitlement"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/logger"
	slackbot "github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/slack"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/store"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/warehouse"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultMetricsAddr = "0.0.0.0:0"
	defaultHTTPAddr    = "0.0.0.0:3000"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run starts the Slack bot.
//
// Required Slack Bot Token Scopes:
//   - chat:write - Post messages
//   - reactions:write - Add reactions
//   - channels:history - Read public channel messages (for channel mentions)
//   - groups:history - Read private channel messages (for private channel mentions)
//   - im:history - Read DM history
//   - files:write - Upload CSV exports and chart images
//
// Required Event Subscriptions (Subscribe to bot events):
//   - app_mention - Receive events when bot is mentioned in channels
//   - message.im - Receive DMs
//
// Interactivity must be enabled for the result-message buttons and modals.
// For DMs, the bot responds to all messages. For channels, it only responds
// when mentioned.
func run() error {
	verboseFlag := flag.Bool("verbose", false, "Enable verbose (debug) logging")
	enablePprofFlag := flag.Bool("enable-pprof", false, "Enable pprof server")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics")
	modeFlag := flag.String("mode", "", "Mode: 'socket' (dev) or 'http' (prod). Defaults to 'socket' if SLACK_APP_TOKEN is set, otherwise 'http'")
	httpAddrFlag := flag.String("http-addr", defaultHTTPAddr, "Address to listen on for HTTP events (production mode)")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 60*time.Second, "Maximum time to wait for in-flight operations to complete during graceful shutdown")
	flag.Parse()

	log := logger.New(*verboseFlag)

	cfg, err := slackbot.LoadFromEnv(*modeFlag, *httpAddrFlag, *metricsAddrFlag, *verboseFlag, *enablePprofFlag)
	if err != nil {
		return err
	}

	// Start pprof server if enabled
	if cfg.EnablePprof {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	// Start metrics server
	if cfg.MetricsAddr != "" {
		slackbot.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Warehouse connection
	chClient, err := warehouse.NewClient(ctx, log, cfg.ClickhouseAddr, cfg.ClickhouseDatabase, cfg.ClickhouseUsername, cfg.ClickhousePassword)
	if err != nil {
		return fmt.Errorf("failed to create clickhouse client: %w", err)
	}
	defer chClient.Close()

	wh := warehouse.New(chClient, log)

	// NL-to-SQL agent gateway
	gateway := agent.NewGateway(cfg.AgentEndpoint, log)

	// Prompt-refinement advisor
	anthropicClient := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))
	checker := advisor.New(advisor.Config{
		Logger: log,
		Client: anthropicClient,
	})

	// Row-level entitlement scoping, disabled unless configured
	var scoper entitlement.Scoper = entitlement.PassthroughScoper{}
	if cfg.EntitlementTable != "" {
		scoper = entitlement.NewHierarchyScoper(chClient, log, entitlement.Config{
			Table:        cfg.EntitlementTable,
			UserColumn:   cfg.EntitlementUserColumn,
			RepColumn:    cfg.EntitlementRepColumn,
			EntityColumn: cfg.EntitlementEntityColumn,
		})
		log.Info("entitlement scoping enabled", "table", cfg.EntitlementTable)
	}

	// Chart rendering service, optional
	var chartRenderer chart.Renderer
	if cfg.ChartServiceURL != "" {
		chartRenderer = chart.NewClient(cfg.ChartServiceURL, log)
		log.Info("chart rendering enabled", "url", cfg.ChartServiceURL)
	}

	// Initialize Slack client
	slackClient := slackbot.NewClient(cfg.BotToken, cfg.AppToken, log)
	botUserID, err := slackClient.Initialize(ctx)
	if err != nil {
		log.Warn("slack auth test failed, continuing anyway", "error", err)
	}
	cfg.BotUserID = botUserID

	resultStore := store.New()

	msgProcessor := slackbot.NewProcessor(
		slackClient,
		gateway,
		wh,
		scoper,
		checker,
		resultStore,
		chartRenderer != nil,
		log,
	)
	msgProcessor.StartCleanup(ctx)

	controller := slackbot.NewController(slackClient, wh, chartRenderer, resultStore, msgProcessor, log)

	eventHandler := slackbot.NewEventHandler(slackClient, msgProcessor, controller, log)
	eventHandler.StartCleanup(ctx)

	// Start bot based on mode
	if cfg.Mode == slackbot.ModeSocket {
		err = runSocketMode(ctx, slackClient.API(), eventHandler, log)
	} else {
		err = runHTTPMode(ctx, cfg.HTTPAddr, cfg.SigningSecret, eventHandler, log)
	}

	// If shutdown was initiated, wait for in-flight operations
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		log.Info("shutdown signal received, stopping new events and waiting for in-flight operations", "timeout", *shutdownTimeoutFlag)
		shutdownComplete := eventHandler.StopAcceptingNew()

		waitDone := make(chan struct{})
		go func() {
			shutdownComplete()
			close(waitDone)
		}()

		select {
		case <-waitDone:
			log.Info("all in-flight operations completed")
		case <-time.After(*shutdownTimeoutFlag):
			log.Warn("timeout waiting for in-flight operations, proceeding with shutdown", "timeout", *shutdownTimeoutFlag)
		}
		log.Info("slack bot shutting down", "reason", err)
		return nil
	}
	return err
}

// runSocketMode runs the bot in Socket Mode (development)
func runSocketMode(
	ctx context.Context,
	api *slackapi.Client,
	eventHandler *slackbot.EventHandler,
	log *slog.Logger,
) error {
	client := socketmode.New(api)
	log.Info("bot running in socket mode (DMs and channel mentions)")
	return eventHandler.HandleSocketMode(ctx, client)
}

// runHTTPMode runs the bot in HTTP Mode (production)
func runHTTPMode(
	ctx context.Context,
	httpAddr string,
	signingSecret string,
	eventHandler *slackbot.EventHandler,
	log *slog.Logger,
) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/slack/events", eventHandler.HandleHTTPEvent(signingSecret))
	mux.HandleFunc("/slack/interactions", eventHandler.HandleHTTPInteraction(signingSecret))
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			log.Error("failed to write readyz response", "error", err)
		}
	})

	httpServer := &http.Server{
		Addr:    httpAddr,
		Handler: mux,
	}

	go func() {
		log.Info("HTTP server listening for Slack events", "addr", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("bot running in HTTP mode (DMs and channel mentions)")
	<-ctx.Done()
	log.Info("shutdown signal received, stopping HTTP server from accepting new connections")

	// Stop accepting new events first
	eventHandler.StopAcceptingNew()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("error shutting down HTTP server", "error", err)
	} else {
		log.Info("HTTP server stopped accepting new connections")
	}

	return ctx.Err()
}

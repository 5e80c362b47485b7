// Package api wires the HTTP surface: per-bot webhook endpoints, the
// live-chat panel API, flow persistence and operational endpoints.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/optichat/optichat/internal/config"
	"github.com/optichat/optichat/internal/flow"
	"github.com/optichat/optichat/internal/genai"
	"github.com/optichat/optichat/internal/messaging"
	"github.com/optichat/optichat/internal/store"
)

// Server holds the wired dependencies behind the HTTP handlers.
type Server struct {
	store    store.Store
	flows    *store.FlowCache
	disp     *messaging.Dispatcher
	cloud    *messaging.CloudSender
	twilio   *messaging.TwilioSender
	executor *flow.Executor
}

// Run builds the service from configuration and serves HTTP until SIGINT or
// SIGTERM.
func Run(cfg config.Config) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := applySeed(st, cfg.BotsSeedPath); err != nil {
		return err
	}

	flows, err := store.NewFlowCache(st, cfg.LegacyFlowPath)
	if err != nil {
		return fmt.Errorf("failed to create flow cache: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := flows.WatchLegacy(ctx); err != nil {
		slog.Warn("Legacy flow watch unavailable", "error", err)
	}

	srv := &Server{store: st, flows: flows}

	var sender messaging.Sender
	switch cfg.Channel {
	case "twilio":
		tw, err := messaging.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom)
		if err != nil {
			return fmt.Errorf("failed to create twilio sender: %w", err)
		}
		srv.twilio = tw
		sender = tw
	default:
		var cloudOpts []messaging.CloudOption
		if cfg.GraphBaseURL != "" {
			cloudOpts = append(cloudOpts, messaging.WithBaseURL(cfg.GraphBaseURL))
		}
		srv.cloud = messaging.NewCloudSender(cloudOpts...)
		sender = srv.cloud
	}

	fallback := messaging.Account{PhoneNumberID: cfg.PhoneNumberID, AccessToken: cfg.AccessToken}
	srv.disp = messaging.NewDispatcher(sender, st, fallback)

	var gatewayOpts []genai.Option
	if cfg.OpenRouterKey != "" {
		gatewayOpts = append(gatewayOpts, genai.WithEnvKey(cfg.OpenRouterKey))
	}
	if cfg.OpenRouterBaseURL != "" {
		gatewayOpts = append(gatewayOpts, genai.WithBaseURL(cfg.OpenRouterBaseURL))
	}
	gateway := genai.NewGateway(st, gatewayOpts...)

	srv.executor = flow.NewExecutor(st, flows, srv.disp, gateway)

	engine := srv.router()
	httpSrv := &http.Server{Addr: cfg.APIAddr, Handler: engine}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", cfg.APIAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-sigCh:
		slog.Info("Shutting down on signal", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}
	return nil
}

func openStore(cfg config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		if cfg.DatabaseDSN == "" {
			return nil, fmt.Errorf("DB_DRIVER=postgres requires DATABASE_URL")
		}
		return store.NewPostgresStore(store.WithDSN(cfg.DatabaseDSN))
	case "", "sqlite":
		dsn := cfg.DatabaseDSN
		if dsn == "" {
			dsn = filepath.Join(cfg.StateDir, config.DefaultDBFileName)
		}
		return store.NewSQLiteStore(store.WithDSN(dsn))
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}

// applySeed provisions bots and AI keys from the YAML seed file. Existing
// bots (matched by uuid) are left untouched.
func applySeed(st store.Store, path string) error {
	seed, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	for _, sb := range seed.Bots {
		bot := sb.Bot()
		existing, err := st.GetBotByUUID(bot.UUID)
		if err != nil {
			return fmt.Errorf("failed to check seeded bot %s: %w", bot.UUID, err)
		}
		if existing != nil {
			continue
		}
		if err := st.SaveBot(&bot); err != nil {
			return fmt.Errorf("failed to seed bot %s: %w", bot.Name, err)
		}
		slog.Info("Seeded bot", "name", bot.Name, "uuid", bot.UUID)
	}
	for _, sk := range seed.AIKeys {
		key := sk.Key()
		if err := key.Validate(); err != nil {
			slog.Warn("Skipping invalid seeded AI key", "error", err, "name", key.Name)
			continue
		}
		if err := st.SaveAIKey(&key); err != nil {
			return fmt.Errorf("failed to seed AI key %s: %w", key.Name, err)
		}
		slog.Info("Seeded AI key", "name", key.Name, "priority", key.Priority)
	}
	return nil
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/webhooks/whatsapp/:uuid", s.handleWebhookVerify)
	r.POST("/webhooks/whatsapp/:uuid", s.handleWebhook)
	if s.twilio != nil {
		r.POST("/webhooks/twilio/:uuid", s.handleTwilioWebhook)
	}

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/conversations", s.handleListConversations)
		apiGroup.GET("/conversations/:wa_id", s.handleGetConversation)
		apiGroup.POST("/panel/send", s.handlePanelSend)
		apiGroup.POST("/panel/human", s.handlePanelHuman)
		apiGroup.POST("/flows/save", s.handleFlowSave)
		apiGroup.GET("/bots/:id/validate", s.handleBotValidate)
	}
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// requestLogger logs each request with slog, skipping the noisy endpoints.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		slog.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

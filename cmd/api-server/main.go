package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"novelrank/internal/app"
	"novelrank/internal/auth"
	"novelrank/internal/export"
	"novelrank/internal/feed"
	"novelrank/internal/rank"
	"novelrank/internal/refresh"
	"novelrank/internal/scheduler"
	"novelrank/pkg/models"
)

func main() {
	configDir := flag.String("config", ".", "directory holding config.yaml")
	flag.Parse()

	a, err := app.Open(*configDir)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer a.Close()
	cfg := a.Config
	lg := a.Log

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// Optional: avoid “trusted all proxies” warning
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	// Refresh events: TCP feed + WebSocket
	hub := feed.NewHub(lg)
	router.GET("/ws", feed.WSHandler(hub))
	feedSrv := feed.NewServer(cfg.Server.FeedAddr, hub)

	notifiers := []refresh.Notifier{hub}
	if cfg.Webhook.URL != "" {
		notifiers = append(notifiers, export.NewWebhook(cfg.Webhook.URL, cfg.Webhook.AppURL, lg))
	}
	adapters := a.Adapters()
	runner := refresh.NewRunner(a.Store, adapters, lg, notifiers...)

	sched := scheduler.New(func(ctx context.Context) (models.RefreshSummary, error) {
		return runner.Run(ctx, refresh.Options{Force: true, Wait: true, Trigger: "schedule"})
	}, cfg.Scrape.Location(), lg)
	if err := sched.Configure(cfg.Schedule.Time, cfg.Schedule.Enabled); err != nil {
		lg.Fatal("schedule config", zap.Error(err))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ready", func(c *gin.Context) {
		stats := hub.Stats()
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := a.DB.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":      "not_ready",
				"db_error":    err.Error(),
				"tcp_clients": stats.TCPClients,
				"ws_clients":  stats.WSClients,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":      "ready",
			"db":          "ok",
			"tcp_clients": stats.TCPClients,
			"ws_clients":  stats.WSClients,
			"schedule":    sched.Status(),
		})
	})

	// Auth
	tokens := auth.NewTokenService(cfg.Auth)
	if cfg.Auth.AdminPasswordHash == "" {
		lg.Warn("auth.admin_password_hash not set; admin routes are unreachable")
	}
	auth.NewHandler(cfg.Auth, tokens, lg).RegisterRoutes(router.Group("/auth"))

	// Rankings API
	h := rank.NewHandler(a.Store, adapters, lg)
	h.DefaultSource = cfg.Scrape.DefaultSource
	h.Refresher = runner
	h.Schedule = sched
	h.Feed = hub
	h.Tokens = tokens
	h.RegisterRoutes(router.Group("/api"))

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feedSrv.Run(ctx); err != nil {
			errCh <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		lg.Info("HTTP API server listening", zap.String("addr", cfg.Server.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		lg.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		lg.Error("server error", zap.Error(err))
	}

	lg.Info("shutting down servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sched.Stop(shutdownCtx); err != nil {
		lg.Warn("scheduler stop", zap.Error(err))
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http shutdown", zap.Error(err))
	}
	stop()
	hub.Close()

	wg.Wait()
	lg.Info("servers stopped")
}

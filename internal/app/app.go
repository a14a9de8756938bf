// Package app wires configuration, infrastructure, and domain packages into
// the portal's two runtime modes: "api" (HTTP server) and "worker"
// (reservation poller, controller retry queue, retention/expiry sweeps).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/tykeal/homeassistant-captive-portal/internal/audit"
	"github.com/tykeal/homeassistant-captive-portal/internal/auth"
	"github.com/tykeal/homeassistant-captive-portal/internal/config"
	"github.com/tykeal/homeassistant-captive-portal/internal/httpserver"
	"github.com/tykeal/homeassistant-captive-portal/internal/notify"
	"github.com/tykeal/homeassistant-captive-portal/internal/platform"
	"github.com/tykeal/homeassistant-captive-portal/internal/telemetry"
	"github.com/tykeal/homeassistant-captive-portal/pkg/booking"
	"github.com/tykeal/homeassistant-captive-portal/pkg/controller"
	"github.com/tykeal/homeassistant-captive-portal/pkg/grant"
	"github.com/tykeal/homeassistant-captive-portal/pkg/guest"
	"github.com/tykeal/homeassistant-captive-portal/pkg/portalconfig"
	"github.com/tykeal/homeassistant-captive-portal/pkg/reservation"
	"github.com/tykeal/homeassistant-captive-portal/pkg/voucher"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api or worker).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting captive portal authorization service",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, pool, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, pool, rdb)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// deps bundles the service-layer objects shared between the api and worker
// modes so neither constructs the dependency graph twice.
type deps struct {
	portal       *portalconfig.Service
	vouchers     *voucher.Service
	grants       *grant.Service
	reservations *reservation.Store
	bookingVal   *booking.Validator
	queue        *controller.Queue
	notifier     *notify.Notifier
}

func newDeps(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, auditWriter *audit.Writer, logger *slog.Logger) *deps {
	notifier := notify.NewNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)

	ctrl := controller.NewOmadaController(controller.OmadaConfig{
		ControllerID: cfg.ControllerID,
		BaseURL:      cfg.ControllerBaseURL,
		Site:         cfg.ControllerSite,
		SSIDName:     cfg.ControllerSSIDName,
		GatewayMAC:   cfg.ControllerGatewayMAC,
		Username:     cfg.ControllerOperatorUsername,
		Password:     cfg.ControllerOperatorPassword,
		InsecureTLS:  cfg.ControllerAllowSelfSigned,
	}, rdb, logger)

	queue := controller.NewQueue(pool, ctrl, auditWriter, notifier, logger)
	grants := grant.NewService(pool, queue)
	vouchers := voucher.NewService(pool, rdb, queue)
	reservations := reservation.NewStore(pool)
	bookingVal := booking.NewValidator(reservations, grant.NewStore(pool))
	portal := portalconfig.NewService(pool)

	return &deps{
		portal:       portal,
		vouchers:     vouchers,
		grants:       grants,
		reservations: reservations,
		bookingVal:   bookingVal,
		queue:        queue,
		notifier:     notifier,
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	var sessionMgr *auth.SessionManager
	if cfg.SessionSecret != "" {
		var err error
		sessionMgr, err = auth.NewSessionManager(cfg.SessionSecret, time.Duration(cfg.SessionMaxHours)*time.Hour)
		if err != nil {
			return fmt.Errorf("creating session manager: %w", err)
		}
	} else {
		logger.Warn("PORTAL_SESSION_SECRET not set: admin session authentication is disabled, API keys only")
	}

	auditWriter := audit.NewWriter(pool, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	d := newDeps(cfg, pool, rdb, auditWriter, logger)

	srv := httpserver.NewServer(cfg, logger, pool, rdb, metricsReg, sessionMgr)

	trustedProxies := guest.ParseCIDRs(cfg.TrustedProxyCIDRs)
	dispatcher := guest.NewDispatcher(d.vouchers, d.grants, d.bookingVal, d.reservations)
	sessions := guest.NewSessionTracker(d.grants, logger)
	limiter := guest.NewRateLimiter()

	guestHandler := guest.NewHandler(dispatcher, d.portal, limiter, sessions, trustedProxies, cfg.RedirectHostWhitelist, cfg.TLSEnabled, logger)
	srv.GuestRouter.Mount("/", guestHandler.Routes())

	portalConfigHandler := portalconfig.NewHandler(d.portal, auditWriter)
	srv.AdminRouter.Mount("/portal-config", portalConfigHandler.Routes())

	integrationsHandler := reservation.NewHandler(d.reservations, auditWriter)
	srv.AdminRouter.Mount("/integrations", integrationsHandler.Routes())

	grantHandler := grant.NewHandler(d.grants, auditWriter, logger)
	srv.AdminRouter.Mount("/grants", grantHandler.Routes())

	voucherHandler := voucher.NewHandler(d.vouchers, auditWriter)
	srv.AdminRouter.Mount("/vouchers", voucherHandler.Routes())

	auditHandler := audit.NewHandler(pool, logger)
	srv.AdminRouter.Mount("/audit-log", auditHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool, rdb *redis.Client) error {
	logger.Info("worker started")

	auditWriter := audit.NewWriter(pool, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	d := newDeps(cfg, pool, rdb, auditWriter, logger)

	source := reservation.NewHTTPSource(cfg.ReservationBaseURL, cfg.ReservationToken)
	poller := reservation.NewPoller(pool, source, logger, time.Duration(cfg.ReservationPollIntervalSecs)*time.Second)

	go poller.Run(ctx)
	go d.queue.Run(ctx)
	go runRetentionSweep(ctx, poller, cfg, logger)
	go runExpireSweep(ctx, d.grants, logger)

	<-ctx.Done()
	logger.Info("worker stopping")
	return nil
}

// runRetentionSweep deletes rental events past their retention window once a
// day at cfg.CleanupHourLocal (spec §4.E retention).
func runRetentionSweep(ctx context.Context, poller *reservation.Poller, cfg *config.Config, logger *slog.Logger) {
	for {
		wait := nextCleanupDelay(time.Now(), cfg.CleanupHourLocal)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			n, err := poller.RunRetentionSweep(ctx)
			if err != nil {
				logger.Error("retention sweep failed", "error", err)
				continue
			}
			logger.Info("retention sweep complete", "deleted", n)
		}
	}
}

func nextCleanupDelay(now time.Time, hourLocal int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hourLocal, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

// runExpireSweep periodically moves ACTIVE grants whose end_utc has passed
// to EXPIRED (spec §4.D).
func runExpireSweep(ctx context.Context, grants *grant.Service, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := grants.ExpireSweep(ctx)
			if err != nil {
				logger.Error("expire sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expire sweep complete", "expired", n)
			}
		}
	}
}

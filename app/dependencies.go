package app

import (
	"context"
	"fmt"
	"time"

	"github.com/mbwilding/microkit/auth"
	"github.com/mbwilding/microkit/config"
	"github.com/mbwilding/microkit/middleware"
	"github.com/mbwilding/microkit/observability"
	"go.uber.org/zap"
)

// warmupTimeout bounds the initial JWKS fetch at startup
const warmupTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics // nil when metrics are disabled

	// Auth is nil when no issuer is configured
	Auth           *auth.AuthConfig
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initMetrics(cfg)

	if err := deps.initAuth(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("service", cfg.ServiceName),
		zap.Bool("auth_enabled", deps.Auth != nil),
		zap.Bool("metrics_enabled", deps.Metrics != nil))
	return deps, nil
}

func (d *Dependencies) initMetrics(cfg *config.Config) {
	if !cfg.Observability.MetricsEnabled {
		return
	}
	d.Metrics = observability.NewMetrics(metricsNamespace(cfg.ServiceName))
	d.Logger.Info("metrics initialized")
}

func (d *Dependencies) initAuth(ctx context.Context, cfg *config.Config) error {
	var (
		refreshRecorder auth.RefreshRecorder
		outcomeRecorder middleware.OutcomeRecorder
	)
	if d.Metrics != nil {
		refreshRecorder = d.Metrics
		outcomeRecorder = d.Metrics
	}

	d.AuthMiddleware = middleware.NewAuthMiddleware(middleware.Gate, d.Logger, outcomeRecorder)

	authCfg, err := cfg.AuthConfig(ctx, d.Logger, refreshRecorder)
	if err != nil {
		return err
	}
	if authCfg == nil {
		// Protected routes answer 500 until an issuer is configured
		d.Logger.Warn("auth issuer not configured, protected endpoints will fail")
		return nil
	}
	d.Auth = authCfg

	// A failed warm-up is not fatal; the first request retries the fetch.
	warmCtx, cancel := context.WithTimeout(ctx, warmupTimeout)
	defer cancel()
	if err := authCfg.RefreshKeys(warmCtx); err != nil {
		d.Logger.Warn("initial JWKS fetch failed",
			zap.String("jwks_url", authCfg.JWKSURL()),
			zap.Error(err))
	}

	d.Logger.Info("auth initialized",
		zap.String("issuer", authCfg.Issuer()),
		zap.String("jwks_url", authCfg.JWKSURL()),
		zap.Bool("audience_check", authCfg.Audience() != ""))
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	// Sync returns EINVAL for console sinks on Linux
	_ = d.Logger.Sync()
	return nil
}

// metricsNamespace turns a service name into a valid Prometheus namespace
func metricsNamespace(service string) string {
	out := make([]byte, 0, len(service))
	for i := 0; i < len(service); i++ {
		c := service[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
			out = append(out, c)
		case c >= '0' && c <= '9':
			if len(out) == 0 {
				out = append(out, '_')
			}
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "microkit"
	}
	return string(out)
}

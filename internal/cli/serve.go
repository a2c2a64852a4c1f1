package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/spf13/cobra"

	"github.com/lborres/pulsetrack"
	fiberadapter "github.com/lborres/pulsetrack/adapters/fiber"
	"github.com/lborres/pulsetrack/config"
	"github.com/lborres/pulsetrack/services"
)

const sweepInterval = 15 * time.Minute

func newServeCommand() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireSecret(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")
	return cmd
}

func accessLogFormat() string {
	format := []string{
		// Timestamp & Request ID
		"${time}|${requestid}",

		// Response metadata
		"${status}|${latency}",

		// Client info
		"${ip}",

		// Request details, no headers or body: they carry credentials
		"${method}|${path}",

		"${error}",
	}
	return strings.Join(format, "|") + "\n"
}

func newFiberApp() *fiber.App {
	app := fiber.New(fiber.Config{AppName: "pulsetrack"})
	app.Use(requestid.New())
	app.Use(fiberrecover.New())
	app.Use(logger.New(logger.Config{
		Format:     accessLogFormat(),
		TimeFormat: "2006/01/02 15:04:05",
		TimeZone:   "UTC",
	}))
	return app
}

// appConfig maps process settings onto the library config.
func appConfig(cfg config.Config, d *deps, http pulsetrack.HTTPAdapter, log *slog.Logger) pulsetrack.Config {
	return pulsetrack.Config{
		Secret:        cfg.Secret,
		Issuer:        cfg.Issuer,
		Database:      d.store,
		HTTP:          http,
		DisableCache:  cfg.DisableCache,
		CacheConfig:   &pulsetrack.CacheConfig{TTL: cfg.CacheTTL, MaxSize: cfg.CacheMaxSize},
		SessionConfig: &pulsetrack.SessionConfig{MaxAge: cfg.SessionMaxAge},
		Tokens:        d.tokens,
		Push:          d.pushProvider(),
		SMS:           d.sms,
		WhatsApp:      d.whatsapp,
		VAPIDKey:      cfg.VAPIDKey,
		BasePath:      cfg.BasePath,
		SiteURL:       cfg.SiteURL,
		Logger:        log,

		RequireEmailConfirmation: cfg.RequireEmailConfirmation,
	}
}

func serve(ctx context.Context, cfg config.Config, migrate bool) error {
	log := newLogger(os.Stdout, cfg)

	d, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	if migrate {
		if err := d.store.Migrate(ctx); err != nil {
			return err
		}
		log.Info("schema applied")
	}

	app := newFiberApp()
	adapter := fiberadapter.New(app, fiberadapter.Config{
		CookieName:   cfg.CookieName,
		SecureCookie: cfg.SecureCookie,
	})
	pt, err := pulsetrack.New(appConfig(cfg, d, adapter, log))
	if err != nil {
		return fmt.Errorf("could not create pulsetrack instance: %w", err)
	}

	go runSweeper(ctx, pt.Sessions, sweepInterval, log)

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr, "base_path", pt.BasePath)
		errCh <- app.Listen(cfg.HTTPAddr, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// runSweeper removes expired sessions until ctx is done.
func runSweeper(ctx context.Context, sessions *services.SessionManager, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.Sweep(ctx)
			if err != nil {
				log.Warn("session sweep failed", "operation", "sweep", "error", err)
				continue
			}
			if n > 0 {
				log.Info("expired sessions removed", "operation", "sweep", "count", n)
			}
		}
	}
}

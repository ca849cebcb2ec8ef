package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"payout-reconciler/core/loader"
	"payout-reconciler/core/logger"
	"payout-reconciler/core/middleware/auth"
	"payout-reconciler/core/middleware/rayid"
	"payout-reconciler/core/reconcile"
	"payout-reconciler/core/scheduler"
	"payout-reconciler/feature/export"
	"payout-reconciler/feature/integrity"
	"payout-reconciler/feature/status"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "payout-reconciler/docs/swagger"
)

// @title Payout Reconciler API
// @version 1.0
// @description Status, audit and export API of the payout reconciliation daemon.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the reconciliation daemon",
	Long:  `Runs reconciliation on the configured schedule and serves the status API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// 1. Load Configuration
		cfg, logg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		if err := cfg.Validate(); err != nil {
			return err
		}

		// 2. Connect state store, storage and metrics
		rt, err := setup(ctx, cfg, logg, true)
		if err != nil {
			return err
		}

		// 3. Build engine and scheduler
		engine, err := rt.engine()
		if err != nil {
			return err
		}
		alerts, err := rt.alerts()
		if err != nil {
			return err
		}
		var opts []scheduler.Option
		if alerts != nil {
			opts = append(opts, scheduler.WithNotifier(alerts))
		}
		sched := scheduler.New(engine, cfg.Scheduler, logg, opts...)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return sched.Start(gctx)
		})

		// 4. Serve the status API
		if cfg.Server.Enabled {
			app, err := newServer(gctx, rt, engine, sched)
			if err != nil {
				return err
			}
			g.Go(func() error {
				logg.Info("Starting server", zap.String("port", cfg.Server.Port))
				if err := app.Listen(cfg.Server.Address()); err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logg.Info("Shutting down server...")
				return app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout)
			})
		}

		// 5. Wait for a signal or a fatal error
		err = g.Wait()
		logg.Info("Reconciler stopped")
		return err
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}

// newServer builds the fiber app with middleware and every feature loaded.
// base bounds work that outlives a request, such as streamed exports.
func newServer(base context.Context, rt *stack, engine *reconcile.Engine, sched *scheduler.Scheduler) (*fiber.App, error) {
	cfg := rt.cfg
	logg := rt.logger

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	// RayID first so every log line of a request can be traced
	app.Use(rayid.New())

	app.Use(func(c *fiber.Ctx) error {
		l := logger.WithRayID(logg, c)
		l.Debug("Request started",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
		)
		err := c.Next()
		if err != nil {
			l.Error("Request error", zap.Error(err))
		}
		return err
	})

	// Public routes
	app.Get("/swagger/*", swagger.HandlerDefault)
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "running": engine.Running()})
	})
	public := []string{"/swagger", "/healthz"}
	if rt.registry != nil {
		app.Get(cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{})))
		public = append(public, cfg.Metrics.Path)
	}

	app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey, Skip: public}))

	var uploader *export.Uploader
	if rt.storage != nil {
		uploader = export.NewUploader(rt.storage, cfg.Storage.Bucket, logg)
	}

	mgr := loader.NewManager(logg)
	mgr.Register(status.NewFeature(status.NewService(base, rt.store, runs{engine, sched}, uploader, logg), true))
	mgr.Register(integrity.NewFeature(integrity.NewService(rt.store.DB(), rt.storage, cfg.Storage.Bucket, cfg.Storage.Region, logg)))

	if err := mgr.LoadAll(app); err != nil {
		return nil, err
	}
	return app, nil
}

// runs joins the scheduler's trigger with the engine's run history.
type runs struct {
	engine *reconcile.Engine
	sched  *scheduler.Scheduler
}

func (r runs) Trigger() error {
	return r.sched.Trigger()
}

func (r runs) LastRun() *reconcile.RunSummary {
	return r.engine.LastRun()
}

func (r runs) Correct(ctx context.Context, payoutID string) (*reconcile.Transaction, error) {
	return r.engine.Correct(ctx, payoutID)
}

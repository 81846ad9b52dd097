package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gdg-garage/observe-api/internal/database"
	"github.com/gdg-garage/observe-api/internal/handlers"
)

const shutdownTimeout = 15 * time.Second

var (
	rootCmd = &cobra.Command{
		Use:           "observe",
		Short:         "Observation ingestion and badge service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  cmdServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE:  cmdMigrate,
	}

	importCmd = &cobra.Command{
		Use:   "import <file>",
		Short: "Import the objects of a GeoJSON FeatureCollection",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdImport,
	}

	badgesCmd = &cobra.Command{
		Use:   "badges",
		Short: "Badge calculation",
	}

	badgesRunCmd = &cobra.Command{
		Use:   "run",
		Short: "Recompute every badge assignment once",
		Args:  cobra.NoArgs,
		RunE:  cmdBadgesRun,
	}

	badgesScheduleCmd = &cobra.Command{
		Use:   "schedule",
		Short: "Recompute badge assignments on BADGE_SCHEDULE until interrupted",
		Args:  cobra.NoArgs,
		RunE:  cmdBadgesSchedule,
	}
)

func main() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(badgesCmd)
	badgesCmd.AddCommand(badgesRunCmd)
	badgesCmd.AddCommand(badgesScheduleCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func cmdServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	r := chi.NewRouter()
	handlers.RegisterRoutes(r, a.logger, handlers.Handlers{
		Observations: handlers.NewObservationHandler(a.observations),
		Objects:      handlers.NewObjectHandler(a.objects, a.cfg.PaginationLimit),
		Registry:     handlers.NewRegistryHandler(a.registry),
		Badges:       handlers.NewBadgeHandler(a.engine),
	})

	server := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if a.cfg.EnableBadgeScheduler {
		scheduler, err := a.scheduler()
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			scheduler.Stop(stopCtx)
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func cmdMigrate(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := database.Migrate(a.db); err != nil {
		return err
	}
	a.logger.Info("schema migrated", zap.String("driver", a.cfg.DatabaseDriver))
	return nil
}

func cmdImport(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	b, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return fmt.Errorf("invalid feature collection %s: %w", args[0], err)
	}

	inserted, err := a.objects.ImportFeatureCollection(cmd.Context(), fc)
	if err != nil {
		return err
	}
	a.logger.Info("objects imported",
		zap.String("file", args[0]),
		zap.Int("features", len(fc.Features)),
		zap.Int("inserted", inserted),
	)
	return nil
}

func cmdBadgesRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	_, err = a.engine.Run(cmd.Context())
	return err
}

func cmdBadgesSchedule(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler, err := a.scheduler()
	if err != nil {
		return err
	}
	scheduler.Start()

	<-cmd.Context().Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	scheduler.Stop(stopCtx)
	return nil
}

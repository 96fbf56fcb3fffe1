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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nutriai/mealsync/internal/adapters/control"
	logAdapter "github.com/nutriai/mealsync/internal/adapters/log"
	"github.com/nutriai/mealsync/pkg/mealsync"
)

const controlShutdownTimeout = 5 * time.Second

// logEvents reports sync outcomes that deserve an operator's attention.
type logEvents struct {
	mealsync.BaseEventHandler
	app *app
}

func (h *logEvents) OnEntryPoisoned(e mealsync.EntryEvent) {
	h.app.log.Error().
		Str("id", e.Entry.ID).
		Str("type", string(e.Entry.Kind())).
		Int("retry_count", e.Entry.RetryCount).
		Err(e.Err).
		Msg("write dropped after repeated failures")
}

func (h *logEvents) OnEntryEvicted(e mealsync.EntryEvent) {
	h.app.log.Warn().
		Str("id", e.Entry.ID).
		Str("type", string(e.Entry.Kind())).
		Msg("queue full, oldest write dropped")
}

func (a *app) runDaemon(cmd *cobra.Command) error {
	svc, err := a.newService(mealsync.WithEventHandler(&logEvents{app: a}))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.Once {
		return a.drainOnce(ctx, svc)
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	a.log.Info().
		Str("store", a.cfg.StoreBackend).
		Str("remote", a.cfg.RemoteBackend).
		Str("network", a.cfg.NetworkMode).
		Msg("sync daemon started")

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.ControlAddr != "" {
		srv := control.NewServer(a.cfg.ControlAddr, svc, logAdapter.NewZerologAdapterWithLogger(a.log).With("control"))
		g.Go(func() error {
			a.log.Info().Str("addr", a.cfg.ControlAddr).Msg("control API listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("control API: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), controlShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if svc.State() == mealsync.StateCrashed {
					return errors.New("sync service crashed")
				}
			}
		}
	})

	runErr := g.Wait()
	a.log.Info().Msg("stopping")
	if err := svc.Stop(); err != nil && !errors.Is(err, mealsync.ErrNotRunning) {
		return fmt.Errorf("stop: %w", err)
	}
	return runErr
}

func (a *app) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay the queue once and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.newService()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.drainOnce(ctx, svc)
		},
	}
}

func (a *app) drainOnce(ctx context.Context, svc *mealsync.Service) error {
	if !svc.CheckConnectivity(ctx) {
		a.log.Warn().Int("pending", len(svc.Queue(ctx))).Msg("offline, nothing replayed")
		return nil
	}
	stats := svc.DrainOnce(ctx)
	a.log.Info().
		Int("applied", stats.Applied).
		Int("failed", stats.Failed).
		Int("poisoned", stats.Poisoned).
		Int("remaining", stats.Remaining).
		Str("halted", string(stats.Halted)).
		Dur("duration", stats.Duration).
		Msg("drain finished")
	return nil
}

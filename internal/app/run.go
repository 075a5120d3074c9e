package app

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// Run serves the control API until ctx is cancelled, then drains the HTTP
// server and releases the session's external resources.
func (b *BuildResult) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    b.Config.BindAddr,
		Handler: b.API.Router(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.Log.Info("app", "listening on "+b.Config.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), b.Config.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			b.Log.Error("app", "graceful shutdown failed: "+err.Error())
			_ = httpServer.Close()
		}
		return nil
	})

	err := g.Wait()

	if cerr := b.Cleanup(); cerr != nil {
		b.Log.Error("app", "cleanup: "+cerr.Error())
		if err == nil {
			err = cerr
		}
	}
	return err
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/hotswap/loader"
	"github.com/wippyai/hotswap/server"
	"github.com/wippyai/hotswap/storage"
	"github.com/wippyai/hotswap/swap"
	"github.com/wippyai/hotswap/watch"
)

func main() {
	var (
		listen      = flag.String("listen", ":8080", "HTTP listen address")
		storeDir    = flag.String("store", "", "Directory for uploaded bundles (default: system temp)")
		bundlePath  = flag.String("bundle", "", "Initial bundle to activate")
		watchDir    = flag.String("watch", "", "Drop-in directory to watch for bundles")
		settle      = flag.Duration("settle", watch.DefaultSettle, "Quiet period before a dropped bundle is activated")
		dev         = flag.Bool("dev", false, "Development logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if err := run(*listen, *storeDir, *bundlePath, *watchDir, *settle, *dev, *interactive); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(listen, storeDir, bundlePath, watchDir string, settle time.Duration, dev, interactive bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := newLogger(dev, interactive)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()
	swap.SetLogger(log)
	watch.SetLogger(log)

	temp, err := storage.New(storeDir)
	if err != nil {
		return err
	}

	factory := loader.NewFactory(ctx)
	defer factory.Close(context.Background())

	store := swap.NewStore(swap.Config{
		Storage: temp,
		Factory: factory,
		Retire: func(loc string) {
			if err := temp.Remove(loc); err != nil {
				log.Warn("retire bundle", zap.String("location", loc), zap.Error(err))
			}
		},
	})
	exec := swap.NewExecutor(store)

	if bundlePath != "" {
		abs, err := filepath.Abs(bundlePath)
		if err != nil {
			return fmt.Errorf("resolve initial bundle: %w", err)
		}
		store.SetLocation(abs)
		log.Info("initial bundle activated",
			zap.String("location", abs),
			zap.String("version", store.Version()))
	}

	if interactive {
		return runInteractive(store, exec)
	}

	if watchDir != "" {
		w, err := watch.New(store, watchDir, settle)
		if err != nil {
			return err
		}
		defer w.Close()
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("watcher stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:    listen,
		Handler: server.New(store, exec, log).Handler(),
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", listen))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newLogger keeps log output off the terminal while the TUI owns it.
func newLogger(dev, interactive bool) (*zap.Logger, error) {
	if interactive {
		return zap.NewNop(), nil
	}
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

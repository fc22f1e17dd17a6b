// Command phototheory serves the photo API and the screensaver rotation over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/theory-cloud/phototheory/pkg/config"
	"github.com/theory-cloud/phototheory/pkg/observability"
	obszap "github.com/theory-cloud/phototheory/pkg/observability/zap"
	"github.com/theory-cloud/phototheory/pkg/server"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

type flags struct {
	configPath string
	addr       string
	mediaDir   string
}

func parseFlags(args []string, stderr io.Writer) (flags, error) {
	var f flags
	fs := pflag.NewFlagSet("phototheory", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&f.configPath, "config", "c", os.Getenv("PHOTOTHEORY_CONFIG"), "path to a YAML config file")
	fs.StringVar(&f.addr, "addr", "", "listen address, overrides http.addr")
	fs.StringVar(&f.mediaDir, "media-dir", "", "image directory, overrides media.dir")
	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	return f, nil
}

func loadConfig(f flags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if f.addr != "" {
		cfg.HTTP.Addr = f.addr
	}
	if f.mediaDir != "" {
		cfg.Media.Dir = f.mediaDir
	}
	return cfg, cfg.Validate()
}

func run(args []string, stderr io.Writer) int {
	f, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(stderr, "phototheory: FAIL: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := obszap.NewZapLogger(cfg.Log,
		obszap.WithSNSTopic(ctx, cfg.Notifications.ErrorTopicARN, cfg.Notifications.Subject),
	)
	if err != nil {
		fmt.Fprintf(stderr, "phototheory: FAIL: logger: %v\n", err)
		return 2
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = logger.Flush(flushCtx)
		_ = logger.Close()
	}()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("phototheory stopped", map[string]any{"error": err})
		fmt.Fprintf(stderr, "phototheory: FAIL: %v\n", err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg config.Config, logger observability.StructuredLogger) error {
	services, err := server.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// An empty catalog is not fatal; the periodic reseed picks images up later.
	if n, err := services.Reseeder.Reseed(ctx); err != nil {
		logger.Warn("initial reseed failed", map[string]any{"error": err})
	} else {
		logger.Info("rotation seeded", map[string]any{"images": n})
	}

	mux := http.NewServeMux()
	if cfg.HTTP.MetricsPath != "" {
		mux.Handle(cfg.HTTP.MetricsPath, promhttp.HandlerFor(services.Registry, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", services.App)

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", map[string]any{"addr": cfg.HTTP.Addr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return services.Reseeder.Run(gctx, cfg.Screensaver.ReseedInterval)
	})
	if services.ChangeFeed != nil {
		g.Go(func() error {
			return services.ChangeFeed.Run(gctx)
		})
	}
	return g.Wait()
}

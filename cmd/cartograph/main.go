// Command cartograph runs the version manager, search service, and
// debug HTTP surface as one process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kamura-io/cartograph/internal/config"
	"github.com/kamura-io/cartograph/internal/corpus"
	"github.com/kamura-io/cartograph/internal/corpus/fsdata"
	"github.com/kamura-io/cartograph/internal/corpus/fspatcher"
	"github.com/kamura-io/cartograph/internal/corpus/fsprovider"
	"github.com/kamura-io/cartograph/internal/debug"
	"github.com/kamura-io/cartograph/internal/searchservice"
	"github.com/kamura-io/cartograph/internal/versionmanager"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".", "/etc/cartograph")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider := fsprovider.New(cfg.CorpusDir)
	patcher := fspatcher.New(cfg.CorpusDir)

	manager := versionmanager.New(versionmanager.Config{
		UpdateInterval: cfg.UpdateInterval,
		Directory:      cfg.CorpusDir,
		Repositories:   cfg.Repositories,
	}, provider, patcher, logger.Named("versionmanager"))

	data := fsdata.New(cfg.CorpusDir)
	source := &versionSourceAdapter{manager: manager, data: data}

	service, err := searchservice.New(searchservice.Config{
		LimitDefault:      cfg.LimitDefault,
		LimitMax:          cfg.LimitMax,
		IngestConcurrency: cfg.IngestConcurrency,
		RelationCacheSize: cfg.RelationCacheSize,
		IndexDirectory:    cfg.IndexDir,
	}, source, logger.Named("searchservice"))
	if err != nil {
		return fmt.Errorf("build search service: %w", err)
	}

	catalog := &catalogAdapter{manager: manager}
	router := debug.NewRouter(catalog, service, logger.Named("debug"))
	httpServer := &http.Server{Addr: cfg.DebugAddr, Handler: router}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return manager.Start(gctx) })
	group.Go(func() error { return service.Start(gctx) })
	group.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- httpServer.ListenAndServe() }()
		select {
		case <-gctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.UpdateInterval)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("debug server: %w", err)
			}
			return nil
		}
	})

	logger.Info("cartograph started", zap.String("debug_addr", cfg.DebugAddr))
	return group.Wait()
}

// versionSourceAdapter bridges versionmanager.Manager's VersionKey
// vocabulary to searchservice.VersionSource's plain-string vocabulary.
type versionSourceAdapter struct {
	manager *versionmanager.Manager
	data    *fsdata.Data
}

func (a *versionSourceAdapter) Subscribe() <-chan []string {
	out := make(chan []string, 1)
	go func() {
		for keys := range a.manager.Subscribe() {
			strs := make([]string, len(keys))
			for i, k := range keys {
				strs[i] = k.String()
			}
			out <- strs
		}
		close(out)
	}()
	return out
}

func (a *versionSourceAdapter) Data(ctx context.Context, key string) (corpus.DataVersion, error) {
	return a.data.Version(ctx, key)
}

// catalogAdapter bridges versionmanager.Manager to debug.CatalogView.
type catalogAdapter struct {
	manager *versionmanager.Manager
}

func (a *catalogAdapter) Keys() []string {
	keys := a.manager.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

func (a *catalogAdapter) Names(key string) ([]string, bool) {
	return a.manager.Names(versionmanager.VersionKey(key))
}

func (a *catalogAdapter) Resolve(name string) (string, bool) {
	key, ok := a.manager.Resolve(name)
	return key.String(), ok
}

func (a *catalogAdapter) Subscribe() <-chan []string {
	return (&versionSourceAdapter{manager: a.manager}).Subscribe()
}

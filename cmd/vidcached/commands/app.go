package commands

import (
	"context"
	"errors"

	"github.com/dailyyoga/vidcache/config"
	"github.com/dailyyoga/vidcache/history"
	"github.com/dailyyoga/vidcache/logger"
	"github.com/dailyyoga/vidcache/refresh"
	"github.com/dailyyoga/vidcache/remote"
	"github.com/dailyyoga/vidcache/store"
	"go.uber.org/zap"
)

// app holds the components every command needs: the store, the remote
// source and the refresh pipeline reporting to the history recorder
type app struct {
	cfg      *config.Config
	logger   logger.Logger
	store    store.Store
	recorder history.Recorder
	pipeline refresh.Pipeline
}

func (c *CLI) newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(&cfg.Logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: log}

	a.store, err = store.InitShared(ctx, log, &cfg.Store, &cfg.DB)
	if err != nil {
		return nil, err
	}

	source, err := remote.NewHTTPSource(log, &cfg.Remote)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.recorder, err = history.New(ctx, log, &cfg.History)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.pipeline, err = refresh.New(log, &cfg.Refresh, source, a.store, refresh.WithRecorder(a.recorder))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	log.Info("vidcached initialized",
		zap.String("backend", cfg.Store.Backend),
		zap.String("remote", cfg.Remote.URL),
		zap.Int("items", a.store.ReadAll().Len()),
	)
	return a, nil
}

// Close releases components in reverse order of creation
func (a *app) Close() error {
	var errs []error
	if a.pipeline != nil {
		errs = append(errs, a.pipeline.Close())
	}
	if a.recorder != nil {
		errs = append(errs, a.recorder.Close())
	}
	if a.store != nil {
		errs = append(errs, store.CloseShared())
	}
	// syncing stdout fails on some platforms, ignore it
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

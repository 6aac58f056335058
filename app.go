package main

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/cache"
	"github.com/example/snapclassify/internal/classifier"
	"github.com/example/snapclassify/internal/config"
	"github.com/example/snapclassify/internal/grpcclient"
	"github.com/example/snapclassify/internal/loader"
	"github.com/example/snapclassify/internal/logging"
	"github.com/example/snapclassify/internal/onnx"
	"github.com/example/snapclassify/internal/session"
	"github.com/example/snapclassify/internal/usecase"
)

type app struct {
	cfg     config.Config
	logger  *zap.Logger
	store   *session.Store
	loader  *loader.Loader
	uc      *usecase.ClassificationUseCase
	closers []func()
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger, err := logging.NewLogger(logging.Options{FilePath: cfg.LogFile})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: session.NewStore(logger)}

	registry := a.initRegistry(ctx)
	predictions := a.initCache(ctx)

	a.loader = loader.New(registry, loader.Config{
		Task:      cfg.ModelTask,
		ModelID:   cfg.ModelID,
		Quantized: cfg.ModelQuantized,
	}, a.store, logger, func(c classifier.Classifier) classifier.Classifier {
		return classifier.WithCache(c, predictions, cfg.ModelID, cfg.PredictionCacheTTL, logger)
	})
	a.uc = usecase.NewClassificationUseCase(a.store, a.loader, cfg.Picker, logger)
	return a, nil
}

// unavailableRegistry fails every acquisition so the session reports a model
// load failure instead of the process exiting.
type unavailableRegistry struct {
	err error
}

func (r unavailableRegistry) Acquire(context.Context, string, string, classifier.AcquireOptions) (classifier.Classifier, error) {
	return nil, r.err
}

func (a *app) initRegistry(ctx context.Context) classifier.Registry {
	switch a.cfg.Backend {
	case config.BackendONNX:
		registry := onnx.NewRegistry(a.cfg.ModelsDir, a.cfg.ONNXRuntimeLib, a.logger)
		a.closers = append(a.closers, registry.Close)
		return registry
	default:
		registry, conn, err := grpcclient.DialRegistry(ctx, a.cfg.RegistryAddr, a.logger)
		if err != nil {
			return unavailableRegistry{err: err}
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		return registry
	}
}

func (a *app) initCache(ctx context.Context) cache.Cache {
	memory := cache.NewMemoryCache(a.cfg.PredictionCacheTTL, 10*time.Minute)
	if a.cfg.RedisAddr == "" {
		return memory
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.logger.Warn("redis unavailable, caching predictions in memory", zap.String("addr", a.cfg.RedisAddr), zap.Error(err))
		_ = client.Close()
		return memory
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	return cache.NewRetrying(cache.NewRedisCache(client), a.logger)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

var errNotClassified = errors.New("image was not classified")

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/codecache"
	"github.com/unkn0wn-root/codecache/backend"
	"github.com/unkn0wn-root/codecache/backend/file"
	"github.com/unkn0wn-root/codecache/backend/kv"
	"github.com/unkn0wn-root/codecache/backend/memory"
	"github.com/unkn0wn-root/codecache/codec"
	"github.com/unkn0wn-root/codecache/executor/expr"
	"github.com/unkn0wn-root/codecache/executor/php"
	"github.com/unkn0wn-root/codecache/genstore"
	asynchook "github.com/unkn0wn-root/codecache/hooks/async"
	promhooks "github.com/unkn0wn-root/codecache/hooks/prom"
	"github.com/unkn0wn-root/codecache/internal/config"
	zaplog "github.com/unkn0wn-root/codecache/log/zap"
	"github.com/unkn0wn-root/codecache/provider"
	"github.com/unkn0wn-root/codecache/provider/bigcache"
	redisprov "github.com/unkn0wn-root/codecache/provider/redis"
	"github.com/unkn0wn-root/codecache/provider/ristretto"
	"github.com/unkn0wn-root/codecache/sloghooks"
)

// app is everything one command invocation needs.
type app struct {
	fe      codecache.Frontend
	zl      *zap.Logger
	hooks   *asynchook.Hooks
	reg     *prometheus.Registry
	metrics string
}

func (a *app) close(ctx context.Context) error {
	err := a.fe.Close(ctx)
	a.hooks.Close()
	if a.metrics != "" {
		if werr := prometheus.WriteToTextfile(a.metrics, a.reg); werr != nil && err == nil {
			err = fmt.Errorf("write metrics: %w", werr)
		}
	}
	_ = a.zl.Sync()
	return err
}

// lockedWriter serializes zap and the slog hooks, which share stderr.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func newApp(ctx context.Context, cfg *config.Config, stderr io.Writer, metricsFile string) (*app, error) {
	stderr = &lockedWriter{w: stderr}
	zl, err := newZap(cfg.Log, stderr)
	if err != nil {
		return nil, err
	}
	log := zaplog.New(zl)

	be, err := newBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	ph, err := promhooks.New("", reg)
	if err != nil {
		closeBackend(ctx, be)
		return nil, err
	}
	sl := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	hooks := asynchook.New(codecache.MultiHooks{ph, sloghooks.New(sl, sloghooks.Options{})}, 1, 256)

	fe, err := codecache.New(codecache.Options{
		Identifier: cfg.Identifier,
		Backend:    be,
		Logger:     log,
		Hooks:      hooks,
	})
	if err != nil {
		hooks.Close()
		closeBackend(ctx, be)
		return nil, err
	}
	return &app{fe: fe, zl: zl, hooks: hooks, reg: reg, metrics: metricsFile}, nil
}

// closeBackend releases a backend that never made it into a Frontend.
func closeBackend(ctx context.Context, be backend.Backend) {
	if c, ok := be.(interface{ Close(context.Context) error }); ok {
		_ = c.Close(ctx)
	}
}

func newZap(c config.Log, w io.Writer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	ec := zap.NewProductionEncoderConfig()
	enc := zapcore.NewJSONEncoder(ec)
	if c.Development {
		ec = zap.NewDevelopmentEncoderConfig()
		enc = zapcore.NewConsoleEncoder(ec)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(w), level)
	return zap.New(core), nil
}

func newExecutor(cfg *config.Config) backend.Executor {
	switch cfg.Executor {
	case config.ExecutorPHP:
		return php.New(php.Config{Binary: cfg.PHP.Binary, Args: cfg.PHP.Args, Timeout: cfg.PHP.Timeout})
	case config.ExecutorExpr:
		return expr.New(expr.Config{Parameters: cfg.Expr.Parameters})
	default:
		return nil
	}
}

func newBackend(ctx context.Context, cfg *config.Config, log codecache.Logger) (backend.Backend, error) {
	exec := newExecutor(cfg)

	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(memory.Config{Executor: exec, DefaultLifetime: cfg.DefaultLifetime}), nil

	case config.BackendFile:
		mc, err := metaCodec(cfg.File.MetaCodec)
		if err != nil {
			return nil, err
		}
		return file.New(file.Config{
			Dir:             cfg.File.Dir,
			MetaCodec:       mc,
			Executor:        exec,
			DefaultLifetime: cfg.DefaultLifetime,
			Logger:          log,
		})
	}

	var (
		p  provider.Provider
		gs genstore.GenStore
	)
	switch cfg.Backend {
	case config.BackendRedis:
		rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pctx, cancel := context.WithTimeout(ctx, pingTimeout(cfg.Redis.Timeout))
		defer cancel()
		if err := rdb.Ping(pctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		rp, err := redisprov.New(redisprov.Config{Client: rdb, Timeout: cfg.Redis.Timeout, CloseClient: true})
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		p = rp
		// generations must be shared for cross-process flushes
		gs, err = genstore.NewRedisGenStore(genstore.RedisConfig{
			Client:    rdb,
			Namespace: cfg.Namespace,
			TTL:       cfg.Redis.GenTTL,
		})
		if err != nil {
			_ = rp.Close(ctx)
			return nil, err
		}

	case config.BackendRistretto:
		rp, err := ristretto.New(ristretto.Config{
			NumCounters: cfg.Ristretto.NumCounters,
			MaxCost:     cfg.Ristretto.MaxCost,
			BufferItems: cfg.Ristretto.BufferItems,
			SyncWrites:  true,
		})
		if err != nil {
			return nil, err
		}
		p = rp

	case config.BackendBigCache:
		bp, err := bigcache.New(ctx, bigcache.Config{
			Shards:             cfg.BigCache.Shards,
			MaxEntrySize:       cfg.BigCache.MaxEntrySize,
			HardMaxCacheSizeMB: cfg.BigCache.HardMaxCacheSizeMB,
		})
		if err != nil {
			return nil, err
		}
		p = bp

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	b, err := kv.New(kv.Options{
		Namespace:       cfg.Namespace,
		Provider:        p,
		GenStore:        gs,
		Executor:        exec,
		DefaultLifetime: cfg.DefaultLifetime,
		Compress:        cfg.Compress,
		ComputeSetCost:  func(_ string, raw []byte) int64 { return int64(len(raw)) },
		Logger:          log,
	})
	if err != nil {
		_ = p.Close(ctx)
		if gs != nil {
			_ = gs.Close(ctx)
		}
		return nil, err
	}
	return b, nil
}

func metaCodec(name string) (codec.Codec[file.Meta], error) {
	if name == "proto" {
		return file.NewProtoMetaCodec(), nil
	}
	return codec.ByName[file.Meta](name)
}

func pingTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}

package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/adapters/gateway"
	"github.com/aretw0/arbor/pkg/adapters/httptool"
	"github.com/aretw0/arbor/pkg/adapters/mcp"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/adapters/process"
	"github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/tools/fetch"
)

// BuildEngine assembles a fully wired engine from file configuration.
// The returned registry gatherer is nil unless metrics are requested.
func BuildEngine(ctx context.Context, cfg Config, logger *slog.Logger, debug bool, withMetrics bool) (*arbor.Engine, *prometheus.Registry, error) {
	if cfg.Gateway.URL == "" {
		return nil, nil, fmt.Errorf("gateway.url is required (set it in %s)", DefaultConfigPath)
	}

	gw := gateway.New(cfg.Gateway.URL,
		gateway.WithToken(cfg.Gateway.Token),
		gateway.WithLogger(logger),
	)

	opts := []arbor.Option{
		arbor.WithLogger(logger),
	}

	var promReg *prometheus.Registry
	if withMetrics {
		promReg = prometheus.NewRegistry()
		opts = append(opts, arbor.WithMetrics(observability.NewMetrics(promReg)))
	}

	if cfg.Engine.MaxTurns > 0 {
		opts = append(opts, arbor.WithMaxTurns(cfg.Engine.MaxTurns))
	}
	if cfg.Engine.MaxRetries > 0 {
		opts = append(opts, arbor.WithMaxRetries(cfg.Engine.MaxRetries))
	}
	if debug {
		opts = append(opts, arbor.WithLifecycleHooks(debugHooks(logger)))
	}

	storeOpts, err := storeOptions(cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, storeOpts...)

	if cfg.Tools.Fetch {
		opts = append(opts, arbor.WithTools(fetch.New(fetch.WithLogger(logger))))
	}

	eng, err := arbor.New(gw, opts...)
	if err != nil {
		return nil, nil, err
	}

	for _, pc := range cfg.Tools.Providers {
		provider, err := buildProvider(ctx, pc, logger)
		if err != nil {
			_ = eng.Close()
			return nil, nil, err
		}
		if err := eng.Mount(ctx, provider); err != nil {
			_ = eng.Close()
			return nil, nil, fmt.Errorf("failed to mount %s provider: %w", pc.Type, err)
		}
	}

	return eng, promReg, nil
}

func storeOptions(cfg StoreConfig) ([]arbor.Option, error) {
	switch cfg.Type {
	case "", "memory":
		store, err := wrapStore(cfg, memory.NewStore())
		if err != nil {
			return nil, err
		}
		return []arbor.Option{arbor.WithStore(store)}, nil

	case "redis":
		client, storeOpts, err := redisComponents(cfg.Redis)
		if err != nil {
			return nil, err
		}
		store, err := wrapStore(cfg, redis.NewFromClient(client, storeOpts...))
		if err != nil {
			return nil, err
		}
		opts := []arbor.Option{arbor.WithStore(store)}
		if cfg.Redis.Lock {
			opts = append(opts, arbor.WithLocker(redis.NewLocker(client, "arbor:")))
		}
		return opts, nil

	default:
		return nil, fmt.Errorf("unknown store type %q (want memory or redis)", cfg.Type)
	}
}

// BuildStore constructs only the conversation store. The session subcommands
// use it to inspect persisted transcripts without touching the gateway.
func BuildStore(cfg StoreConfig) (ports.ConversationStore, error) {
	switch cfg.Type {
	case "", "memory":
		return wrapStore(cfg, memory.NewStore())

	case "redis":
		client, storeOpts, err := redisComponents(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return wrapStore(cfg, redis.NewFromClient(client, storeOpts...))

	default:
		return nil, fmt.Errorf("unknown store type %q (want memory or redis)", cfg.Type)
	}
}

// wrapStore applies PII masking and encryption middleware when configured.
// Masking runs before encryption so ciphertext never holds the raw values.
func wrapStore(cfg StoreConfig, store ports.ConversationStore) (ports.ConversationStore, error) {
	var mws []middleware.Middleware

	if len(cfg.PIIPatterns) > 0 {
		for _, p := range cfg.PIIPatterns {
			if _, err := regexp.Compile(p); err != nil {
				return nil, fmt.Errorf("invalid store.pii_patterns entry %q: %w", p, err)
			}
		}
		mws = append(mws, middleware.NewPIIMiddleware(cfg.PIIPatterns))
	}

	if cfg.Encryption.Key != "" {
		active, err := decodeKey(cfg.Encryption.Key)
		if err != nil {
			return nil, fmt.Errorf("invalid store.encryption.key: %w", err)
		}
		fallbacks := make([][]byte, 0, len(cfg.Encryption.FallbackKeys))
		for _, k := range cfg.Encryption.FallbackKeys {
			key, err := decodeKey(k)
			if err != nil {
				return nil, fmt.Errorf("invalid store.encryption.fallback_keys entry: %w", err)
			}
			fallbacks = append(fallbacks, key)
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallbacks,
		}))
	}

	return middleware.Chain(store, mws...), nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func redisComponents(cfg RedisConfig) (*backend.Client, []redis.StoreOption, error) {
	if cfg.Addr == "" {
		return nil, nil, fmt.Errorf("store.redis.addr is required for the redis store")
	}

	var storeOpts []redis.StoreOption
	if cfg.TTL != "" {
		ttl, err := time.ParseDuration(cfg.TTL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid store.redis.ttl: %w", err)
		}
		storeOpts = append(storeOpts, redis.WithTTL(ttl))
	}
	if cfg.Prefix != "" {
		storeOpts = append(storeOpts, redis.WithPrefix(cfg.Prefix))
	}

	return backend.NewClient(&backend.Options{Addr: cfg.Addr}), storeOpts, nil
}

func buildProvider(ctx context.Context, pc ProviderConfig, logger *slog.Logger) (ports.ToolProvider, error) {
	switch pc.Type {
	case "process":
		if pc.Command == "" {
			return nil, fmt.Errorf("process provider requires a command")
		}
		return process.New(ctx, pc.Command, pc.Args, process.WithLogger(logger))

	case "http":
		if pc.URL == "" {
			return nil, fmt.Errorf("http provider requires a url")
		}
		return httptool.New(pc.URL,
			httptool.WithHeaders(pc.Headers),
			httptool.WithLogger(logger),
		), nil

	case "mcp":
		if pc.URL == "" {
			return nil, fmt.Errorf("mcp provider requires a url")
		}
		return mcp.New(pc.URL,
			mcp.WithHeaders(pc.Headers),
			mcp.WithLogger(logger),
			mcp.WithClientVersion(arbor.Version),
		)

	default:
		return nil, fmt.Errorf("unknown provider type %q (want process, http or mcp)", pc.Type)
	}
}

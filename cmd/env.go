package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/registry-link/internal/config"
	"github.com/sells-group/registry-link/internal/crm"
	"github.com/sells-group/registry-link/internal/resolve"
	"github.com/sells-group/registry-link/internal/store"
	"github.com/sells-group/registry-link/pkg/salesforce"
	"github.com/sells-group/registry-link/pkg/sam"
)

const modeDryRun = "dry-run"

// resolveEnv holds everything the serve, resolve and sweep commands need.
type resolveEnv struct {
	Store      store.Store
	Engine     *resolve.Engine
	Projector  *crm.Projector
	Salesforce salesforce.Client // nil when not configured
	redis      *redis.Client
}

// Close releases resources held by the environment.
func (e *resolveEnv) Close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for mode, opens and migrates the store, and
// builds the engine. In dry-run mode there is no store and dedup stays in
// process, so nothing outside the command is touched. Callers should defer
// env.Close().
func initEnv(ctx context.Context, mode string) (*resolveEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	dryRun := mode == modeDryRun

	env := &resolveEnv{}
	if !dryRun {
		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		env.Store = st
		if err := st.Migrate(ctx); err != nil {
			env.Close()
			return nil, err
		}
	}

	var dedup resolve.Deduplicator = resolve.NewMemoryDeduplicator(cfg.Resolve.DedupWindow)
	if !dryRun {
		d, rdb, err := initDedup(ctx, cfg)
		if err != nil {
			env.Close()
			return nil, err
		}
		dedup = d
		env.redis = rdb
	}

	if cfg.Salesforce.Enabled() {
		sf, err := initSalesforce(cfg.Salesforce)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Salesforce = sf
	}
	env.Projector = crm.NewProjector(env.Salesforce)

	env.Engine = buildEngine(cfg.Resolve, newSAMClient(cfg.SAM), dedup)

	zap.L().Info("environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("dry_run", dryRun),
		zap.Bool("redis_dedup", env.redis != nil),
		zap.Bool("salesforce", env.Projector.Enabled()),
	)
	return env, nil
}

func buildEngine(rc config.ResolveConfig, client sam.Client, dedup resolve.Deduplicator) *resolve.Engine {
	retriever := resolve.NewRetriever(client, resolve.NewMemoryCache(rc.CacheTTL), rc.RetrieverConfig)
	return resolve.NewEngine(dedup, retriever, resolve.NewClassifier(rc.Thresholds))
}

func newSAMClient(sc config.SAMConfig) sam.Client {
	opts := []sam.Option{
		sam.WithRateLimit(sc.RateLimit),
		sam.WithPageSize(sc.PageSize),
	}
	if sc.BaseURL != "" {
		opts = append(opts, sam.WithBaseURL(sc.BaseURL))
	}
	if sc.TimeoutSecs > 0 {
		opts = append(opts, sam.WithHTTPClient(&http.Client{Timeout: time.Duration(sc.TimeoutSecs) * time.Second}))
	}
	return sam.NewClient(sc.Key, opts...)
}

func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "sqlite":
		return store.NewSQLite(sc.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{MaxConns: sc.MaxConns, MinConns: sc.MinConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

// initDedup returns the Redis deduplicator when redis.url is set and the
// in-process one otherwise.
func initDedup(ctx context.Context, c *config.Config) (resolve.Deduplicator, *redis.Client, error) {
	if c.Redis.URL == "" {
		return resolve.NewMemoryDeduplicator(c.Resolve.DedupWindow), nil, nil
	}
	opts, err := redis.ParseURL(c.Redis.URL)
	if err != nil {
		return nil, nil, eris.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, eris.Wrap(err, "ping redis")
	}
	return resolve.NewRedisDeduplicator(rdb, c.Resolve.DedupWindow), rdb, nil
}

func initSalesforce(sc config.SalesforceConfig) (salesforce.Client, error) {
	pemData, err := os.ReadFile(sc.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}
	return salesforce.Connect(salesforce.Creds{
		Domain:         sc.LoginURL,
		Username:       sc.Username,
		ConsumerKey:    sc.ClientID,
		ConsumerRSAPem: string(pemData),
	}, salesforce.WithRateLimit(sc.RateLimit))
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/EdvardGK/skiplumxge-configcache/internal/config"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/cache"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/client"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/defaults"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/logging"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/metrics"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/remote"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/tier/persistent"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/tier/snapshot"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/tier/volatile"
)

const maxBodyBytes = 1 << 20

// check is one dependency probed by /ready.
type check struct {
	name string
	ping func(ctx context.Context) error
}

// stack is every tier plus the manager and client built over them.
type stack struct {
	manager *cache.Manager
	client  *client.Client
	checks  []check
	closers []func()
}

// Close waits for background promotions, then releases connections.
func (s *stack) Close() {
	s.manager.Wait()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStack connects to Redis and Postgres as configured and builds the
// tier chain over them. Unreachable Redis disables the persistent tier;
// an empty database URL disables the remote tiers.
func openStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	logger := logging.NewLogger(logging.ComponentServer)

	var rdb redis.UniversalClient
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Error().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, persistent tier disabled")
			_ = rdb.Close()
			rdb = nil
		} else {
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
		}
	}

	var (
		store  remote.Store
		pool   *pgxpool.Pool
		closer []func()
	)
	if cfg.Database.URL != "" {
		var err error
		pool, err = pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			if rdb != nil {
				_ = rdb.Close()
			}
			return nil, fmt.Errorf("open database: %w", err)
		}
		store = remote.NewPGStore(pool, cfg.Database.Schema)
		closer = append(closer, pool.Close)
	}

	st := newStack(ctx, cfg, rdb, store)
	st.closers = append(closer, st.closers...)
	if pool != nil {
		st.checks = append(st.checks, check{name: "postgres", ping: pool.Ping})
	}
	return st, nil
}

// newStack assembles the tier chain. rdb and store may be nil.
func newStack(ctx context.Context, cfg *config.Config, rdb redis.UniversalClient, store remote.Store) *stack {
	st := &stack{}
	tiers := map[cache.TierID]cache.Tier{
		cache.TierVolatile: volatile.New(cfg.Capacity.VolatileBudgetBytes),
		cache.TierSnapshot: snapshot.New(snapshot.Options{
			MaxEntriesPerCategory: cfg.Capacity.MaxEntriesPerCategory,
			Logger:                logging.ForComponent(logging.ComponentSnapshot),
		}),
		cache.TierHardcoded: defaults.NewTier(),
	}

	if rdb != nil {
		tiers[cache.TierPersistent] = persistent.New(ctx, rdb, persistent.Options{
			Prefix:      cfg.Redis.Prefix,
			BudgetBytes: cfg.Capacity.PersistentBudgetBytes,
			MaxAge:      cfg.Capacity.MaxAge(),
			Logger:      logging.ForComponent(logging.ComponentPersistent),
		})
		st.checks = append(st.checks, check{
			name: "redis",
			ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		st.closers = append(st.closers, func() { _ = rdb.Close() })
	}

	if store != nil {
		direct := remote.NewDirectTier(store, remote.DirectOptions{
			NegativeTTL: cfg.Remote.NegativeTTL,
			Logger:      logging.ForComponent(logging.ComponentRemote),
		})
		tiers[cache.TierRemoteCache] = remote.NewCacheTier(nil)
		tiers[cache.TierRemoteDirect] = direct
		st.closers = append(st.closers, direct.Close)
	}

	st.manager = cache.NewManager(cache.Options{
		Tiers:           tiers,
		Logger:          logging.ForComponent(logging.ComponentManager),
		EventBufferSize: cfg.Cache.EventBufferSize,
	})

	// Validated by config.Load, so New cannot fail here.
	st.client, _ = client.New(client.Config{
		Cache:   st.manager,
		Timeout: cfg.Client.Timeout,
		Logger:  logging.ForComponent(logging.ComponentClient),
	})
	return st
}

type server struct {
	st     *stack
	logger zerolog.Logger
}

func newServer(st *stack) *server {
	return &server{st: st, logger: logging.NewLogger(logging.ComponentServer)}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(s.st.checks...))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /config/{key}", s.handleGet)
	mux.HandleFunc("PUT /config/{key}", s.handleSet)
	mux.HandleFunc("DELETE /config/{key}", s.handleDelete)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("POST /clear", s.handleClear)
	return mux
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func readyHandler(checks ...check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for _, c := range checks {
			if err := c.ping(ctx); err != nil {
				http.Error(w, fmt.Sprintf("%s not ready: %v", c.name, err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

// handleGet serves GET /config/{key}?skip=tier,tier. Without skip the
// lookup goes through the client and its timeout.
func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var (
		value json.RawMessage
		err   error
	)
	if skip := r.URL.Query()["skip"]; len(skip) > 0 {
		opts, perr := parseSkip(skip)
		if perr != nil {
			http.Error(w, perr.Error(), http.StatusBadRequest)
			return
		}
		value, err = s.st.manager.Get(r.Context(), key, opts...)
	} else {
		value, err = s.st.client.Get(r.Context(), key)
	}
	if err != nil {
		s.writeError(w, key, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(value)
}

// handleSet serves PUT /config/{key}?ttl=1h&tier=volatile.
func (s *server) handleSet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "body must be valid JSON", http.StatusBadRequest)
		return
	}

	var opts []cache.SetOption
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			http.Error(w, fmt.Sprintf("invalid ttl %q", raw), http.StatusBadRequest)
			return
		}
		opts = append(opts, cache.WithTTL(ttl))
	}
	if names := r.URL.Query()["tier"]; len(names) > 0 {
		var ids []cache.TierID
		for _, n := range strings.Split(strings.Join(names, ","), ",") {
			id := cache.TierID(strings.TrimSpace(n))
			if !id.Writable() {
				http.Error(w, fmt.Sprintf("tier %q is not writable", n), http.StatusBadRequest)
				return
			}
			ids = append(ids, id)
		}
		opts = append(opts, cache.WithTiers(ids...))
	}

	if err := s.st.manager.Set(r.Context(), key, body, opts...); err != nil {
		s.writeError(w, key, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.st.manager.Delete(r.Context(), key); err != nil {
		s.writeError(w, key, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.st.manager.Statistics())
}

// handleEvents serves GET /events?limit=n. A missing limit returns the
// whole buffer.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, fmt.Sprintf("invalid limit %q", raw), http.StatusBadRequest)
			return
		}
		limit = n
	}
	writeJSON(w, s.st.manager.Events(limit))
}

// handleClear serves POST /clear?tier=volatile. Without tier every tier
// is cleared.
func (s *server) handleClear(w http.ResponseWriter, r *http.Request) {
	var opts []cache.ClearOption
	if names := r.URL.Query()["tier"]; len(names) > 0 {
		var ids []cache.TierID
		for _, n := range strings.Split(strings.Join(names, ","), ",") {
			id := cache.TierID(strings.TrimSpace(n))
			if !id.Valid() {
				http.Error(w, fmt.Sprintf("unknown tier %q", n), http.StatusBadRequest)
				return
			}
			ids = append(ids, id)
		}
		opts = append(opts, cache.ClearTiers(ids...))
	}
	s.st.manager.Clear(r.Context(), opts...)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) writeError(w http.ResponseWriter, key string, err error) {
	var timeout *client.TimeoutError
	switch {
	case errors.As(err, &timeout):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	case errors.Is(err, cache.ErrInvalidKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, cache.ErrCacheMiss):
		http.Error(w, fmt.Sprintf("no value for %s", key), http.StatusNotFound)
	default:
		s.logger.Error().Err(err).Str("key", key).Msg("Request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

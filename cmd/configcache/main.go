package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/EdvardGK/skiplumxge-configcache/internal/config"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/cache"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/logging"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/policy"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/warmup"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "configcache",
	Short: "Tiered configuration cache",
	Long: `Serve calculation constants, regulatory thresholds and feature flags
through a chain of cache tiers that ends in values compiled into the binary.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP configuration service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

var skipTiers []string

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Resolve one key through the tier chain and print it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGet(cmd.Context(), args[0])
	},
}

func init() {
	getCmd.Flags().StringSliceVar(&skipTiers, "skip", nil, "tiers to bypass (volatile, persistent, snapshot, remote-cache, remote-direct, hardcoded)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(getCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
	})
	return cfg, nil
}

func runServe(ctx context.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	logger := logging.NewLogger(logging.ComponentServer)

	st, err := openStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.Warmup.Enabled {
		go func() {
			w := warmup.New(st.client, warmup.Config{
				MaxConcurrency: cfg.Warmup.MaxConcurrency,
				Timeout:        cfg.Warmup.Timeout,
				Retry:          warmup.DefaultRetryConfig(),
			})
			if _, err := w.Warm(ctx, policy.Categories()); err != nil {
				logger.Warn().Err(err).Msg("Warmup interrupted")
			}
		}()
	}

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: newServer(st).routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Str("session", st.manager.Session()).Msg("Starting configuration service")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runGet(ctx context.Context, key string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	st, err := openStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	opts, err := parseSkip(skipTiers)
	if err != nil {
		return err
	}

	value, err := st.manager.Get(ctx, key, opts...)
	if err != nil {
		return err
	}

	var pretty any
	if err := json.Unmarshal(value, &pretty); err != nil {
		return fmt.Errorf("%w: %v", cache.ErrInvalidEntry, err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pretty); err != nil {
		log.Error().Err(err).Msg("Failed to write value")
		return err
	}
	return nil
}

// parseSkip turns tier names into a skip option. Names may be repeated or
// comma separated.
func parseSkip(names []string) ([]cache.GetOption, error) {
	var ids []cache.TierID
	for _, raw := range names {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			id := cache.TierID(name)
			if !id.Valid() {
				return nil, fmt.Errorf("unknown tier %q", name)
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return []cache.GetOption{cache.WithSkipTiers(ids...)}, nil
}

// Package warmup preloads configuration keys into the fast cache tiers.
//
// A cold process resolves its first lookups from the snapshot, the remote
// store or the hardcoded defaults. Warming the commonly used categories at
// startup moves those values into the volatile and persistent tiers before
// the first request arrives.
//
// Example usage:
//
//	warmer := warmup.New(configClient, warmup.DefaultConfig())
//	summary, err := warmer.Warm(ctx, policy.Categories())
//
// The warmer:
//   - Spawns a bounded worker pool (default 4 workers)
//   - Applies a per-key timeout
//   - Retries transient failures with jittered exponential backoff
//   - Counts misses without treating them as errors
package warmup

// Package pipeline fetches and aggregates the on-chain and off-chain project
// records an assessment needs, with caching, retries and partial-failure
// tolerance.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crowdguard/crowdguard/internal/cache"
	"github.com/crowdguard/crowdguard/internal/circuitbreaker"
	"github.com/crowdguard/crowdguard/internal/metrics"
	"github.com/crowdguard/crowdguard/internal/retry"
	"github.com/crowdguard/crowdguard/internal/syncutil"
	"github.com/crowdguard/crowdguard/internal/traces"
)

const retryBaseDelay = 500 * time.Millisecond

// Pipeline owns the fetch caches and upstream sources. Construct one per
// engine; it is safe for concurrent use.
type Pipeline struct {
	cfg      Config
	onChain  OnChainSource
	offChain OffChainSource

	onChainCache  *cache.Cache[*OnChainData]
	offChainCache *cache.Cache[*OffChainData]

	// Serializes cold fetches per cache key so concurrent polls for the
	// same project share one upstream request.
	fetchLocks syncutil.ShardedMutex

	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// New creates a pipeline over the given sources.
func New(cfg Config, onChain OnChainSource, offChain OffChainSource, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:           cfg,
		onChain:       onChain,
		offChain:      offChain,
		onChainCache:  cache.New[*OnChainData](cfg.CacheMaxSize),
		offChainCache: cache.New[*OffChainData](cfg.CacheMaxSize),
		breaker:       circuitbreaker.New(5, 30*time.Second),
		logger:        logger,
	}
}

// onChainKey incorporates the privacy flag so sanitized and unsanitized
// results never share a cache entry.
func onChainKey(projectID string, chainID int64, privacyMode bool) string {
	return fmt.Sprintf("on_chain:%s:%d:privacy=%t", projectID, chainID, privacyMode)
}

func offChainKey(projectID string) string {
	return "off_chain:" + projectID
}

// FetchOnChain returns the project's on-chain snapshot, from cache when
// fresh. In privacy mode the largest contribution and contract address are
// redacted before the result is cached or returned.
func (p *Pipeline) FetchOnChain(ctx context.Context, projectID, contractAddress string, chainID int64) FetchResult[OnChainData] {
	key := onChainKey(projectID, chainID, p.cfg.PrivacyMode)

	if data, ok := p.onChainCache.Get(key); ok {
		metrics.CacheHitsTotal.WithLabelValues("on_chain").Inc()
		return FetchResult[OnChainData]{Data: data, Source: SourceOnChain, FetchedAt: time.Now(), FromCache: true}
	}
	metrics.CacheMissesTotal.WithLabelValues("on_chain").Inc()

	unlock := p.fetchLocks.Lock(key)
	defer unlock()

	// Another goroutine may have filled the cache while we waited.
	if data, ok := p.onChainCache.Get(key); ok {
		metrics.CacheHitsTotal.WithLabelValues("on_chain").Inc()
		return FetchResult[OnChainData]{Data: data, Source: SourceOnChain, FetchedAt: time.Now(), FromCache: true}
	}

	var data *OnChainData
	err := p.fetchWithRetry(ctx, "on_chain", func(attemptCtx context.Context) error {
		fetched, err := p.onChain.FetchOnChain(attemptCtx, projectID, contractAddress, chainID)
		if err != nil {
			return err
		}
		data = fetched
		return nil
	})
	if err != nil {
		metrics.FetchFailuresTotal.WithLabelValues("on_chain").Inc()
		return FetchResult[OnChainData]{Source: SourceOnChain, FetchedAt: time.Now(), Err: err}
	}

	if p.cfg.PrivacyMode {
		sanitized := *data
		sanitized.LargestContribution = -1
		sanitized.ContractAddress = ""
		data = &sanitized
	}

	p.onChainCache.Set(key, data, p.cfg.CacheTTL)

	return FetchResult[OnChainData]{Data: data, Source: SourceOnChain, FetchedAt: time.Now()}
}

// FetchOffChain returns the project's off-chain metadata, from cache when fresh.
func (p *Pipeline) FetchOffChain(ctx context.Context, projectID string) FetchResult[OffChainData] {
	key := offChainKey(projectID)

	if data, ok := p.offChainCache.Get(key); ok {
		metrics.CacheHitsTotal.WithLabelValues("off_chain").Inc()
		return FetchResult[OffChainData]{Data: data, Source: SourceOffChain, FetchedAt: time.Now(), FromCache: true}
	}
	metrics.CacheMissesTotal.WithLabelValues("off_chain").Inc()

	unlock := p.fetchLocks.Lock(key)
	defer unlock()

	if data, ok := p.offChainCache.Get(key); ok {
		metrics.CacheHitsTotal.WithLabelValues("off_chain").Inc()
		return FetchResult[OffChainData]{Data: data, Source: SourceOffChain, FetchedAt: time.Now(), FromCache: true}
	}

	var data *OffChainData
	err := p.fetchWithRetry(ctx, "off_chain", func(attemptCtx context.Context) error {
		fetched, err := p.offChain.FetchOffChain(attemptCtx, projectID)
		if err != nil {
			return err
		}
		data = fetched
		return nil
	})
	if err != nil {
		metrics.FetchFailuresTotal.WithLabelValues("off_chain").Inc()
		return FetchResult[OffChainData]{Source: SourceOffChain, FetchedAt: time.Now(), Err: err}
	}

	p.offChainCache.Set(key, data, p.cfg.CacheTTL)

	return FetchResult[OffChainData]{Data: data, Source: SourceOffChain, FetchedAt: time.Now()}
}

// fetchWithRetry runs fn with a per-attempt timeout, exponential backoff
// between attempts, and a per-source circuit breaker. Each attempt gets its
// own context so a timed-out attempt's I/O is truly cancelled rather than
// left running in the background.
func (p *Pipeline) fetchWithRetry(ctx context.Context, source string, fn func(ctx context.Context) error) error {
	if !p.breaker.Allow(source) {
		return fmt.Errorf("%s source unavailable: %w", source, circuitbreaker.ErrOpen)
	}

	err := retry.Do(ctx, p.cfg.MaxRetries+1, retryBaseDelay, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
		defer cancel()

		if err := fn(attemptCtx); err != nil {
			if attemptCtx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("timeout after %s: %w", p.cfg.FetchTimeout, err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		p.breaker.RecordFailure(source)
		return err
	}

	p.breaker.RecordSuccess(source)
	return nil
}

// Aggregate runs both fetches concurrently and combines them. Either side
// failing is tolerated independently; Raw stays nil unless both succeeded,
// since feature extraction needs both records.
func (p *Pipeline) Aggregate(ctx context.Context, projectID string, chainID int64, contractAddress string) AggregateResult {
	ctx, span := traces.StartSpan(ctx, "pipeline.Aggregate", traces.ProjectID(projectID), traces.ChainID(chainID))
	defer span.End()

	var (
		wg       sync.WaitGroup
		onChain  FetchResult[OnChainData]
		offChain FetchResult[OffChainData]
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		onChain = p.FetchOnChain(ctx, projectID, contractAddress, chainID)
	}()
	go func() {
		defer wg.Done()
		offChain = p.FetchOffChain(ctx, projectID)
	}()
	wg.Wait()

	result := AggregateResult{}

	if onChain.Err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("on-chain fetch failed: %v", onChain.Err))
	} else {
		result.DataSourcesUsed = append(result.DataSourcesUsed, SourceOnChain)
	}

	if offChain.Err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("off-chain fetch failed: %v", offChain.Err))
	} else {
		result.DataSourcesUsed = append(result.DataSourcesUsed, SourceOffChain)
	}

	if onChain.Data == nil || offChain.Data == nil {
		p.logger.Warn("project data incomplete",
			"projectId", projectID,
			"chainId", chainID,
			"errors", result.Errors,
		)
		return result
	}

	result.Raw = &RawData{
		OnChain:   onChain.Data,
		OffChain:  offChain.Data,
		Timestamp: time.Now(),
	}

	return result
}

// Invalidate clears cached entries for a project so the next Aggregate is
// forced to refetch. With chainID <= 0 only the off-chain entry is cleared.
func (p *Pipeline) Invalidate(projectID string, chainID int64) {
	p.offChainCache.Invalidate(offChainKey(projectID))
	if chainID > 0 {
		// Both privacy variants may be populated.
		p.onChainCache.Invalidate(onChainKey(projectID, chainID, false))
		p.onChainCache.Invalidate(onChainKey(projectID, chainID, true))
	}
}

// CacheStats reports cache entry counts for the debug endpoint.
func (p *Pipeline) CacheStats() map[string]int {
	return map[string]int{
		"onChain":  p.onChainCache.Len(),
		"offChain": p.offChainCache.Len(),
	}
}

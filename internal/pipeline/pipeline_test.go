package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type fakeOnChain struct {
	data  *OnChainData
	err   error
	block bool // block until the attempt context is cancelled
	calls atomic.Int64
}

func (f *fakeOnChain) FetchOnChain(ctx context.Context, projectID, contractAddress string, chainID int64) (*OnChainData, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.data
	return &copied, nil
}

type fakeOffChain struct {
	data  *OffChainData
	err   error
	calls atomic.Int64
}

func (f *fakeOffChain) FetchOffChain(ctx context.Context, projectID string) (*OffChainData, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.data
	return &copied, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	cfg.FetchTimeout = time.Second
	return cfg
}

func sampleOnChain() *OnChainData {
	return &OnChainData{
		ContractAddress:      "0x1234567890abcdef1234567890abcdef12345678",
		ChainID:              1,
		TotalRaised:          250_000,
		ContributorCount:     320,
		AverageContribution:  781,
		LargestContribution:  30_000,
		FundingVelocity:      4_200,
		DaysActive:           21,
		ContractAuditScore:   85,
		HasAudit:             true,
		HasMultisig:          true,
		OnChainActivityScore: 70,
	}
}

func sampleOffChain() *OffChainData {
	return &OffChainData{
		ProjectID:            "proj-1",
		Title:                "Test Project",
		Category:             CategoryDeFi,
		TeamSize:             6,
		TeamExperienceYears:  4,
		GithubCommits:        150,
		TwitterFollowers:     8_000,
		DiscordMembers:       3_000,
		WhitepaperScore:      75,
		RoadmapClarity:       70,
		AdvisorCount:         2,
		AdvisorQualityScore:  60,
		LegalComplianceScore: 80,
		MediaScore:           50,
		SentimentScore:       0.4,
		FundingGoal:          500_000,
		FundingDeadlineDays:  45,
		MilestoneCount:       5,
	}
}

func TestFetchOnChainCaches(t *testing.T) {
	onChain := &fakeOnChain{data: sampleOnChain()}
	p := New(testConfig(), onChain, &fakeOffChain{data: sampleOffChain()}, testLogger())

	first := p.FetchOnChain(context.Background(), "proj-1", "", 1)
	if first.Err != nil {
		t.Fatalf("first fetch failed: %v", first.Err)
	}
	if first.FromCache {
		t.Error("first fetch should not come from cache")
	}

	second := p.FetchOnChain(context.Background(), "proj-1", "", 1)
	if second.Err != nil {
		t.Fatalf("second fetch failed: %v", second.Err)
	}
	if !second.FromCache {
		t.Error("second fetch should come from cache")
	}
	if got := onChain.calls.Load(); got != 1 {
		t.Errorf("expected 1 upstream call, got %d", got)
	}
}

func TestFetchOnChainPrivacyModeRedacts(t *testing.T) {
	cfg := testConfig()
	cfg.PrivacyMode = true
	p := New(cfg, &fakeOnChain{data: sampleOnChain()}, &fakeOffChain{data: sampleOffChain()}, testLogger())

	result := p.FetchOnChain(context.Background(), "proj-1", "", 1)
	if result.Err != nil {
		t.Fatalf("fetch failed: %v", result.Err)
	}
	if result.Data.LargestContribution != -1 {
		t.Errorf("expected largest contribution redacted to -1, got %f", result.Data.LargestContribution)
	}
	if result.Data.ContractAddress != "" {
		t.Errorf("expected contract address redacted, got %q", result.Data.ContractAddress)
	}

	// The cached copy must be the redacted one.
	cached := p.FetchOnChain(context.Background(), "proj-1", "", 1)
	if !cached.FromCache {
		t.Fatal("expected cache hit")
	}
	if cached.Data.LargestContribution != -1 {
		t.Error("cached entry leaked unredacted contribution")
	}
}

func TestPrivacyModeUsesSeparateCacheKeys(t *testing.T) {
	if onChainKey("p", 1, true) == onChainKey("p", 1, false) {
		t.Error("privacy and non-privacy fetches must not share a cache key")
	}
}

func TestFetchRetriesThenFails(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	onChain := &fakeOnChain{err: errors.New("indexer down")}
	p := New(cfg, onChain, &fakeOffChain{data: sampleOffChain()}, testLogger())

	result := p.FetchOnChain(context.Background(), "proj-1", "", 1)
	if result.Err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if got := onChain.calls.Load(); got != 2 {
		t.Errorf("expected 2 attempts (1 retry), got %d", got)
	}
}

func TestFetchAttemptTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.FetchTimeout = 50 * time.Millisecond
	onChain := &fakeOnChain{block: true}
	p := New(cfg, onChain, &fakeOffChain{data: sampleOffChain()}, testLogger())

	result := p.FetchOnChain(context.Background(), "proj-1", "", 1)
	if result.Err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(result.Err.Error(), "timeout after") {
		t.Errorf("expected timeout error, got %v", result.Err)
	}
}

func TestAggregateBothSucceed(t *testing.T) {
	p := New(testConfig(), &fakeOnChain{data: sampleOnChain()}, &fakeOffChain{data: sampleOffChain()}, testLogger())

	result := p.Aggregate(context.Background(), "proj-1", 1, "")
	if result.Raw == nil {
		t.Fatalf("expected raw data, errors: %v", result.Errors)
	}
	if len(result.Errors) != 0 {
		t.Errorf("unexpected errors: %v", result.Errors)
	}
	if len(result.DataSourcesUsed) != 2 {
		t.Errorf("expected both sources used, got %v", result.DataSourcesUsed)
	}
	if result.Raw.Timestamp.IsZero() {
		t.Error("expected fetch timestamp to be set")
	}
}

func TestAggregateOnChainFailureKeepsOffChain(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.FetchTimeout = 50 * time.Millisecond
	onChain := &fakeOnChain{block: true} // every attempt times out
	p := New(cfg, onChain, &fakeOffChain{data: sampleOffChain()}, testLogger())

	result := p.Aggregate(context.Background(), "proj-1", 1, "")
	if result.Raw != nil {
		t.Error("raw must be nil when either side fails")
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "on-chain fetch failed") {
		t.Errorf("expected one on-chain error, got %v", result.Errors)
	}
	if len(result.DataSourcesUsed) != 1 || result.DataSourcesUsed[0] != SourceOffChain {
		t.Errorf("expected only OFF_CHAIN used, got %v", result.DataSourcesUsed)
	}
	if got := onChain.calls.Load(); got != 2 {
		t.Errorf("expected retries to be exhausted (2 attempts), got %d", got)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	onChain := &fakeOnChain{data: sampleOnChain()}
	offChain := &fakeOffChain{data: sampleOffChain()}
	p := New(testConfig(), onChain, offChain, testLogger())

	p.Aggregate(context.Background(), "proj-1", 1, "")
	p.Invalidate("proj-1", 1)
	p.Aggregate(context.Background(), "proj-1", 1, "")

	if got := onChain.calls.Load(); got != 2 {
		t.Errorf("expected on-chain refetch after invalidate, got %d calls", got)
	}
	if got := offChain.calls.Load(); got != 2 {
		t.Errorf("expected off-chain refetch after invalidate, got %d calls", got)
	}
}

// Package engine wires the data pipeline, feature extraction, ensemble
// model and explainability into full project assessments.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/crowdguard/crowdguard/internal/explain"
	"github.com/crowdguard/crowdguard/internal/features"
	"github.com/crowdguard/crowdguard/internal/metrics"
	"github.com/crowdguard/crowdguard/internal/model"
	"github.com/crowdguard/crowdguard/internal/pipeline"
	"github.com/crowdguard/crowdguard/internal/traces"
)

// Version tags every assessment result.
const Version = "1.4.0"

// DefaultBatchConcurrency bounds how many assessments run at once in a batch.
const DefaultBatchConcurrency = 5

// Result is the externally visible unit of one assessment. Immutable once
// built.
type Result struct {
	ProjectID          string                    `json:"projectId"`
	Timestamp          time.Time                 `json:"timestamp"`
	RiskLevel          model.RiskLevel           `json:"riskLevel"`
	RiskScore          model.RiskScore           `json:"riskScore"`
	SuccessPrediction  model.SuccessPrediction   `json:"successPrediction"`
	TopRiskFactors     []explain.RiskFactor      `json:"topRiskFactors"`
	TopStrengths       []explain.RiskFactor      `json:"topStrengths"`
	ExplanationSummary string                    `json:"explanationSummary"`
	InvestorInsights   []string                  `json:"investorInsights"`
	DataSourcesUsed    []pipeline.DataSourceType `json:"dataSourcesUsed"`
	AssessmentVersion  string                    `json:"assessmentVersion"`

	// Features carries the extracted vector for downstream threshold
	// checks (the monitor's whale and sentiment alerts). Not part of the
	// API payload.
	Features features.Vector `json:"-"`
}

// BatchRequest identifies one project in a batch assessment.
type BatchRequest struct {
	ProjectID       string `json:"projectId"`
	ChainID         int64  `json:"chainId,omitempty"`
	ContractAddress string `json:"contractAddress,omitempty"`
}

// Engine runs assessments. Construct one per process; all methods are safe
// for concurrent use.
type Engine struct {
	pipeline  *pipeline.Pipeline
	model     *model.Model
	explainer *explain.Explainer
	store     Store
	logger    *slog.Logger
}

// New builds an engine. store may be nil when no audit trail is configured.
func New(p *pipeline.Pipeline, m *model.Model, store Store, logger *slog.Logger) *Engine {
	return &Engine{
		pipeline:  p,
		model:     m,
		explainer: explain.New(model.DefaultConfig()),
		store:     store,
		logger:    logger,
	}
}

// Assess runs the full pipeline for one project. It returns nil (with a nil
// error) when neither a complete data set could be fetched; callers must
// treat that as "assessment unavailable now", not as a worst-case score.
func (e *Engine) Assess(ctx context.Context, projectID string, chainID int64, contractAddress string) *Result {
	ctx, span := traces.StartSpan(ctx, "engine.Assess", traces.ProjectID(projectID), traces.ChainID(chainID))
	defer span.End()

	start := time.Now()

	agg := e.pipeline.Aggregate(ctx, projectID, chainID, contractAddress)
	if agg.Raw == nil {
		e.logger.Error("could not fetch data for project",
			"projectId", projectID,
			"chainId", chainID,
			"errors", agg.Errors,
		)
		metrics.AssessmentsTotal.WithLabelValues("no_data").Inc()
		return nil
	}

	result := e.AssessFromRawData(agg.Raw, agg.DataSourcesUsed)

	metrics.AssessmentsTotal.WithLabelValues("ok").Inc()
	metrics.AssessmentDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(traces.RiskLevel(string(result.RiskLevel)))

	e.recordAsync(result)

	return result
}

// AssessFromRawData scores pre-fetched data. Used for batch processing and
// anywhere the caller already holds a complete raw record. Deterministic:
// identical input yields an identical result apart from nothing, since even
// the timestamp is carried from the raw record.
func (e *Engine) AssessFromRawData(raw *pipeline.RawData, dataSourcesUsed []pipeline.DataSourceType) *Result {
	if dataSourcesUsed == nil {
		dataSourcesUsed = []pipeline.DataSourceType{pipeline.SourceOnChain, pipeline.SourceOffChain}
	}

	vec := features.Extract(raw)
	riskScore := e.model.ComputeRiskScore(&vec)
	riskLevel := e.model.ClassifyRiskLevel(riskScore.Overall)
	prediction := e.model.Predict(&vec)
	topRisks := e.explainer.TopRiskFactors(&vec, 5)
	topStrengths := e.explainer.TopStrengths(&vec, 5)
	summary := e.explainer.Summary(riskScore, topRisks, topStrengths)
	insights := e.explainer.InvestorInsights(&vec, riskScore, topRisks)

	return &Result{
		ProjectID:          raw.OffChain.ProjectID,
		Timestamp:          raw.Timestamp,
		RiskLevel:          riskLevel,
		RiskScore:          riskScore,
		SuccessPrediction:  prediction,
		TopRiskFactors:     topRisks,
		TopStrengths:       topStrengths,
		ExplanationSummary: summary,
		InvestorInsights:   insights,
		DataSourcesUsed:    dataSourcesUsed,
		AssessmentVersion:  Version,
		Features:           vec,
	}
}

// AssessBatch processes projects in fixed-size slices of at most
// concurrency at a time. A slice is fully awaited before the next starts,
// bounding outstanding work. Failed assessments map to nil entries.
func (e *Engine) AssessBatch(ctx context.Context, requests []BatchRequest, concurrency int) map[string]*Result {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}

	results := make(map[string]*Result, len(requests))
	var mu sync.Mutex

	for i := 0; i < len(requests); i += concurrency {
		end := min(i+concurrency, len(requests))
		slice := requests[i:end]

		var wg sync.WaitGroup
		for _, req := range slice {
			wg.Add(1)
			go func(req BatchRequest) {
				defer wg.Done()

				chainID := req.ChainID
				if chainID == 0 {
					chainID = 1
				}
				result := e.Assess(ctx, req.ProjectID, chainID, req.ContractAddress)

				mu.Lock()
				results[req.ProjectID] = result
				mu.Unlock()
			}(req)
		}
		wg.Wait()
	}

	return results
}

// InvalidateProjectCache forces the next assessment of the project to
// refetch. With chainID <= 0 only the off-chain entry is cleared.
func (e *Engine) InvalidateProjectCache(projectID string, chainID int64) {
	e.pipeline.Invalidate(projectID, chainID)
}

// CacheStats exposes pipeline cache sizes for the debug endpoint.
func (e *Engine) CacheStats() map[string]int {
	return e.pipeline.CacheStats()
}

// History returns recent stored assessments for a project, newest first.
func (e *Engine) History(ctx context.Context, projectID string, limit int) ([]StoredAssessment, error) {
	if e.store == nil {
		return nil, nil
	}
	return e.store.ListByProject(ctx, projectID, limit)
}

// recordAsync writes the audit record without blocking the caller. Audit
// persistence is best effort; a failed write never fails an assessment.
func (e *Engine) recordAsync(result *Result) {
	if e.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.store.Record(ctx, result); err != nil {
			e.logger.Warn("failed to record assessment",
				"projectId", result.ProjectID,
				"error", err,
			)
		}
	}()
}

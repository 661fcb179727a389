// Package model scores a feature vector with a three-model ensemble and
// rolls features up into a six-facet risk score.
package model

import (
	"math"

	"github.com/crowdguard/crowdguard/internal/features"
)

// RiskLevel is the discrete risk band for an overall score.
type RiskLevel string

const (
	RiskVeryLow  RiskLevel = "VERY_LOW"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskVeryHigh RiskLevel = "VERY_HIGH"
)

// ConfidenceLevel labels how much the ensemble members agree.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "LOW"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceHigh   ConfidenceLevel = "HIGH"
)

// RiskScore holds the overall and per-category scores, all 0-100 with 100
// being safest.
type RiskScore struct {
	Overall       int `json:"overall"`
	FundingRisk   int `json:"fundingRisk"`
	TeamRisk      int `json:"teamRisk"`
	TechnicalRisk int `json:"technicalRisk"`
	CommunityRisk int `json:"communityRisk"`
	MarketRisk    int `json:"marketRisk"`
	LegalRisk     int `json:"legalRisk"`
}

// SuccessPrediction is the blended probability with a disagreement-derived
// 95% confidence interval.
type SuccessPrediction struct {
	Probability        float64         `json:"probability"`
	ConfidenceInterval [2]float64      `json:"confidenceInterval"`
	ConfidenceLevel    ConfidenceLevel `json:"confidenceLevel"`
	ModelVersion       string          `json:"modelVersion"`
}

// Model evaluates one calibrated configuration. Stateless and safe for
// concurrent use.
type Model struct {
	cfg Config
}

// New builds a model from a calibration config.
func New(cfg Config) *Model {
	return &Model{cfg: cfg}
}

// Version returns the calibration version tag.
func (m *Model) Version() string { return m.cfg.Version }

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// round3 keeps probabilities readable and result comparison stable.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// logisticScore computes sigmoid(4 * (bias + w . x)). The x4 sharpens the
// sigmoid so calibrated logits spread over most of [0,1].
func (m *Model) logisticScore(v *features.Vector) float64 {
	logit := m.cfg.LogisticBias
	for _, name := range features.Names {
		logit += m.cfg.FeatureWeights[name] * v.Value(name)
	}
	return 1 / (1 + math.Exp(-logit*4))
}

func evalTree(node *TreeNode, v *features.Vector) float64 {
	if node.Feature == "" {
		return node.Leaf
	}
	if v.Value(node.Feature) <= node.Threshold {
		return evalTree(node.Left, v)
	}
	return evalTree(node.Right, v)
}

// boostingScore sums residual corrections from the pretrained shallow forest.
func (m *Model) boostingScore(v *features.Vector) float64 {
	score := m.cfg.GBDTBaseScore
	for i := range m.cfg.GBDTTrees {
		score += m.cfg.GBDTLearningRate * evalTree(&m.cfg.GBDTTrees[i], v)
	}
	return clamp01(score)
}

// forestScore averages clamped weighted sums over the bagged subsets.
func (m *Model) forestScore(v *features.Vector) float64 {
	if len(m.cfg.ForestSubsets) == 0 {
		return 0
	}
	sum := 0.0
	for _, subset := range m.cfg.ForestSubsets {
		prediction := 0.0
		for i, name := range subset.Features {
			prediction += v.Value(name) * subset.Weights[i]
		}
		sum += clamp01(prediction)
	}
	return sum / float64(len(m.cfg.ForestSubsets))
}

// Predict blends the three model scores into a success probability. The
// confidence interval comes from inter-model disagreement rather than
// resampling: if the three models agree, uncertainty is low.
func (m *Model) Predict(v *features.Vector) SuccessPrediction {
	lr := m.logisticScore(v)
	gb := m.boostingScore(v)
	rf := m.forestScore(v)

	w := m.cfg.EnsembleWeights
	probability := w.LogisticRegression*lr + w.GradientBoosting*gb + w.RandomForest*rf

	variance := w.LogisticRegression*math.Pow(lr-probability, 2) +
		w.GradientBoosting*math.Pow(gb-probability, 2) +
		w.RandomForest*math.Pow(rf-probability, 2)
	stdDev := math.Sqrt(variance)
	margin := 1.96 * stdDev

	lower := math.Max(0, probability-margin)
	upper := math.Min(1, probability+margin)

	level := ConfidenceLow
	switch {
	case stdDev < 0.05:
		level = ConfidenceHigh
	case stdDev < 0.12:
		level = ConfidenceMedium
	}

	return SuccessPrediction{
		Probability:        round3(probability),
		ConfidenceInterval: [2]float64{round3(lower), round3(upper)},
		ConfidenceLevel:    level,
		ModelVersion:       m.cfg.Version,
	}
}

func subScore(weighted float64) int {
	return int(math.Round(100 * weighted))
}

// ComputeRiskScore rolls the feature vector up into six category scores
// plus an overall, each 0-100 where 100 is safest.
func (m *Model) ComputeRiskScore(v *features.Vector) RiskScore {
	funding := subScore(
		0.40*v.FundingCompletionRate +
			0.25*v.FundingVelocityNormalized +
			0.20*(1-v.ContributorConcentrationRisk) +
			0.15*v.EarlyMomentumIndex)

	team := subScore(
		0.35*v.TeamStrengthScore +
			0.25*v.TeamExperienceNormalized +
			0.25*v.PreviousSuccessBoost +
			0.15*v.AdvisoryStrengthScore)

	technical := subScore(
		0.35*v.ContractSecurityScore +
			0.30*v.TechnicalRobustnessScore +
			0.20*v.AuditSafetyScore +
			0.15*v.GithubActivityScore)

	community := subScore(
		0.35*v.CommunityEngagementScore +
			0.30*v.SentimentNormalized +
			0.20*v.SocialReachScore +
			0.15*v.GithubActivityScore)

	market := subScore(
		0.40*(1-v.LiquidityRiskScore) +
			0.35*(1-v.CategoryRiskFactor) +
			0.25*v.EarlyMomentumIndex)

	legal := subScore(1 - v.LegalRiskScore)

	overall := int(math.Round(
		0.20*float64(funding) +
			0.18*float64(team) +
			0.18*float64(technical) +
			0.14*float64(community) +
			0.16*float64(market) +
			0.14*float64(legal)))

	return RiskScore{
		Overall:       overall,
		FundingRisk:   funding,
		TeamRisk:      team,
		TechnicalRisk: technical,
		CommunityRisk: community,
		MarketRisk:    market,
		LegalRisk:     legal,
	}
}

// ClassifyRiskLevel maps an overall score onto the threshold ladder. First
// matching threshold from the top wins.
func (m *Model) ClassifyRiskLevel(overall int) RiskLevel {
	t := m.cfg.RiskThresholds
	score := float64(overall)
	switch {
	case score >= t.VeryLow:
		return RiskVeryLow
	case score >= t.Low:
		return RiskLow
	case score >= t.Medium:
		return RiskMedium
	case score >= t.High:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}

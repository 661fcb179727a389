package model

// Config holds the full set of calibration constants for one model version.
// Weights, trees and thresholds are data, not code, so a recalibration ships
// as a new Config value without touching scoring logic.
type Config struct {
	Version string

	// FeatureWeights are logistic regression coefficients. Positive means
	// the feature raises success probability; magnitude is importance.
	FeatureWeights map[string]float64

	// LogisticBias is the calibrated intercept.
	LogisticBias float64

	RiskThresholds Thresholds

	EnsembleWeights EnsembleWeights

	// GBDTTrees is the pretrained shallow forest for the boosting score.
	GBDTTrees []TreeNode

	GBDTBaseScore    float64
	GBDTLearningRate float64

	// ForestSubsets are the bagged feature subsets for the forest score.
	ForestSubsets []FeatureSubset
}

// Thresholds is the risk level ladder. Values must be strictly decreasing
// for classification to be well defined.
type Thresholds struct {
	VeryLow float64
	Low     float64
	Medium  float64
	High    float64
}

// EnsembleWeights blend the three model scores. They sum to 1.
type EnsembleWeights struct {
	LogisticRegression float64
	GradientBoosting   float64
	RandomForest       float64
}

// TreeNode is one node of a shallow decision tree. A node is either a leaf
// (Leaf is used, Feature empty) or a split on Feature at Threshold.
type TreeNode struct {
	Feature   string
	Threshold float64
	Left      *TreeNode
	Right     *TreeNode
	Leaf      float64
}

// FeatureSubset is one bagged pseudo-tree: a weighted sum over a feature
// subset, clamped to [0,1]. Weights per subset sum to at most 1.
type FeatureSubset struct {
	Features []string
	Weights  []float64
}

func leaf(v float64) *TreeNode { return &TreeNode{Leaf: v} }

// DefaultConfig is model version 1.4.0, calibrated on historical
// crowdfunding and DeFi project outcomes.
func DefaultConfig() Config {
	return Config{
		Version: "1.4.0",

		FeatureWeights: map[string]float64{
			// Funding signals are the strongest predictors.
			"fundingCompletionRate":        0.18,
			"fundingVelocityNormalized":    0.12,
			"earlyMomentumIndex":           0.14,
			"daysRemainingRatio":           0.05,
			"contributorConcentrationRisk": -0.10,

			// Team quality
			"teamStrengthScore":        0.13,
			"teamExperienceNormalized": 0.07,
			"previousSuccessBoost":     0.09,
			"advisoryStrengthScore":    0.06,

			// Community traction
			"communityEngagementScore": 0.10,
			"sentimentNormalized":      0.08,
			"githubActivityScore":      0.07,
			"socialReachScore":         0.04,

			// Technical quality
			"technicalRobustnessScore": 0.11,
			"auditSafetyScore":         0.09,
			"contractSecurityScore":    0.10,

			// Project quality
			"projectQualityScore":         0.10,
			"roadmapScore":                0.07,
			"whitepaperQualityNormalized": 0.06,

			// Risk polarity features: higher value means more risk.
			"legalRiskScore":     -0.09,
			"liquidityRiskScore": -0.06,
			"categoryRiskFactor": -0.05,
		},

		LogisticBias: -0.5,

		RiskThresholds: Thresholds{
			VeryLow: 80,
			Low:     65,
			Medium:  45,
			High:    25,
		},

		EnsembleWeights: EnsembleWeights{
			LogisticRegression: 0.35,
			GradientBoosting:   0.45,
			RandomForest:       0.20,
		},

		GBDTTrees: []TreeNode{
			// Funding momentum
			{
				Feature: "fundingCompletionRate", Threshold: 0.5,
				Left: &TreeNode{
					Feature: "earlyMomentumIndex", Threshold: 0.3,
					Left: leaf(-0.12), Right: leaf(0.04),
				},
				Right: &TreeNode{
					Feature: "fundingVelocityNormalized", Threshold: 0.6,
					Left: leaf(0.08), Right: leaf(0.18),
				},
			},
			// Team quality
			{
				Feature: "teamStrengthScore", Threshold: 0.5,
				Left: &TreeNode{
					Feature: "previousSuccessBoost", Threshold: 0.5,
					Left: leaf(-0.10), Right: leaf(0.02),
				},
				Right: &TreeNode{
					Feature: "advisoryStrengthScore", Threshold: 0.4,
					Left: leaf(0.06), Right: leaf(0.14),
				},
			},
			// Technical safety
			{
				Feature: "contractSecurityScore", Threshold: 0.5,
				Left: &TreeNode{
					Feature: "auditSafetyScore", Threshold: 0.3,
					Left: leaf(-0.15), Right: leaf(-0.03),
				},
				Right: &TreeNode{
					Feature: "technicalRobustnessScore", Threshold: 0.6,
					Left: leaf(0.05), Right: leaf(0.12),
				},
			},
			// Community sentiment
			{
				Feature: "sentimentNormalized", Threshold: 0.45,
				Left: &TreeNode{
					Feature: "communityEngagementScore", Threshold: 0.3,
					Left: leaf(-0.08), Right: leaf(-0.02),
				},
				Right: &TreeNode{
					Feature: "socialReachScore", Threshold: 0.5,
					Left: leaf(0.04), Right: leaf(0.10),
				},
			},
			// Risk factors
			{
				Feature: "legalRiskScore", Threshold: 0.5,
				Left: &TreeNode{
					Feature: "liquidityRiskScore", Threshold: 0.6,
					Left: leaf(0.06), Right: leaf(-0.02),
				},
				Right: &TreeNode{
					Feature: "contributorConcentrationRisk", Threshold: 0.4,
					Left: leaf(-0.04), Right: leaf(-0.13),
				},
			},
			// Project quality
			{
				Feature: "projectQualityScore", Threshold: 0.55,
				Left: &TreeNode{
					Feature: "roadmapScore", Threshold: 0.4,
					Left: leaf(-0.07), Right: leaf(0.01),
				},
				Right: &TreeNode{
					Feature: "whitepaperQualityNormalized", Threshold: 0.6,
					Left: leaf(0.05), Right: leaf(0.11),
				},
			},
		},

		GBDTBaseScore:    0.5,
		GBDTLearningRate: 0.1,

		ForestSubsets: []FeatureSubset{
			{
				Features: []string{"fundingCompletionRate", "earlyMomentumIndex", "teamStrengthScore"},
				Weights:  []float64{0.45, 0.35, 0.20},
			},
			{
				Features: []string{"communityEngagementScore", "githubActivityScore", "sentimentNormalized"},
				Weights:  []float64{0.40, 0.35, 0.25},
			},
			{
				Features: []string{"contractSecurityScore", "technicalRobustnessScore", "auditSafetyScore"},
				Weights:  []float64{0.40, 0.35, 0.25},
			},
			{
				Features: []string{"projectQualityScore", "roadmapScore", "advisoryStrengthScore"},
				Weights:  []float64{0.40, 0.30, 0.30},
			},
			{
				Features: []string{"teamExperienceNormalized", "previousSuccessBoost", "socialReachScore"},
				Weights:  []float64{0.35, 0.40, 0.25},
			},
		},
	}
}

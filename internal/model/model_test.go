package model

import (
	"testing"

	"github.com/crowdguard/crowdguard/internal/features"
)

// uniformVector returns a vector with every feature set to v.
func uniformVector(v float64) features.Vector {
	return features.Vector{
		FundingCompletionRate:        v,
		FundingVelocityNormalized:    v,
		DaysRemainingRatio:           v,
		ContributorConcentrationRisk: v,
		TeamStrengthScore:            v,
		TeamExperienceNormalized:     v,
		PreviousSuccessBoost:         v,
		CommunityEngagementScore:     v,
		SentimentNormalized:          v,
		GithubActivityScore:          v,
		SocialReachScore:             v,
		TechnicalRobustnessScore:     v,
		AuditSafetyScore:             v,
		ContractSecurityScore:        v,
		ProjectQualityScore:          v,
		RoadmapScore:                 v,
		LegalRiskScore:               v,
		LiquidityRiskScore:           v,
		CategoryRiskFactor:           v,
		EarlyMomentumIndex:           v,
		WhitepaperQualityNormalized:  v,
		AdvisoryStrengthScore:        v,
	}
}

func TestPredictBounds(t *testing.T) {
	m := New(DefaultConfig())

	for _, v := range []float64{0, 0.25, 0.5, 0.75, 1} {
		vec := uniformVector(v)
		pred := m.Predict(&vec)

		if pred.Probability < 0 || pred.Probability > 1 {
			t.Errorf("probability %f out of [0,1] for uniform %f", pred.Probability, v)
		}
		lower, upper := pred.ConfidenceInterval[0], pred.ConfidenceInterval[1]
		if lower < 0 || upper > 1 || lower > upper {
			t.Errorf("bad confidence interval [%f, %f] for uniform %f", lower, upper, v)
		}
		if lower > pred.Probability || upper < pred.Probability {
			t.Errorf("interval [%f, %f] does not contain probability %f", lower, upper, pred.Probability)
		}
		if pred.ModelVersion != "1.4.0" {
			t.Errorf("unexpected model version %s", pred.ModelVersion)
		}
	}
}

func TestPredictDeterministic(t *testing.T) {
	m := New(DefaultConfig())
	vec := uniformVector(0.6)

	a := m.Predict(&vec)
	b := m.Predict(&vec)
	if a != b {
		t.Errorf("prediction is not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestRiskScoreBounds(t *testing.T) {
	m := New(DefaultConfig())

	for _, v := range []float64{0, 0.5, 1} {
		vec := uniformVector(v)
		score := m.ComputeRiskScore(&vec)

		for name, s := range map[string]int{
			"overall":   score.Overall,
			"funding":   score.FundingRisk,
			"team":      score.TeamRisk,
			"technical": score.TechnicalRisk,
			"community": score.CommunityRisk,
			"market":    score.MarketRisk,
			"legal":     score.LegalRisk,
		} {
			if s < 0 || s > 100 {
				t.Errorf("%s score %d out of [0,100] for uniform %f", name, s, v)
			}
		}
	}
}

func TestClassifyRiskLevelLadder(t *testing.T) {
	m := New(DefaultConfig())

	tests := []struct {
		score int
		level RiskLevel
	}{
		{100, RiskVeryLow},
		{80, RiskVeryLow},
		{79, RiskLow},
		{65, RiskLow},
		{64, RiskMedium},
		{45, RiskMedium},
		{44, RiskHigh},
		{25, RiskHigh},
		{24, RiskVeryHigh},
		{0, RiskVeryHigh},
	}

	for _, tt := range tests {
		if got := m.ClassifyRiskLevel(tt.score); got != tt.level {
			t.Errorf("ClassifyRiskLevel(%d) = %s, want %s", tt.score, got, tt.level)
		}
	}
}

func TestClassifyRiskLevelMonotonic(t *testing.T) {
	m := New(DefaultConfig())

	rank := map[RiskLevel]int{
		RiskVeryHigh: 0,
		RiskHigh:     1,
		RiskMedium:   2,
		RiskLow:      3,
		RiskVeryLow:  4,
	}

	prev := rank[m.ClassifyRiskLevel(0)]
	for score := 1; score <= 100; score++ {
		cur := rank[m.ClassifyRiskLevel(score)]
		if cur < prev {
			t.Fatalf("risk level got worse as score rose: score %d", score)
		}
		prev = cur
	}
}

func TestFundedSecureProjectBeatsBaseline(t *testing.T) {
	m := New(DefaultConfig())

	vec := uniformVector(0.5)
	vec.FundingCompletionRate = 1.0
	vec.ContractSecurityScore = 0.9
	vec.LegalRiskScore = 0.1

	pred := m.Predict(&vec)
	if pred.Probability <= 0.5 {
		t.Errorf("funded secure project probability = %f, want > 0.5", pred.Probability)
	}

	score := m.ComputeRiskScore(&vec)
	baseline := uniformVector(0.5)
	baselineScore := m.ComputeRiskScore(&baseline)
	if score.Overall <= baselineScore.Overall {
		t.Errorf("overall %d should exceed baseline %d", score.Overall, baselineScore.Overall)
	}
	if score.FundingRisk != 70 || score.LegalRisk != 90 {
		t.Errorf("funding=%d legal=%d, want 70 and 90", score.FundingRisk, score.LegalRisk)
	}
}

func TestStrongProjectScoresWell(t *testing.T) {
	m := New(DefaultConfig())

	vec := uniformVector(0.8)
	vec.ContributorConcentrationRisk = 0.2
	vec.LegalRiskScore = 0.2
	vec.LiquidityRiskScore = 0.2
	vec.CategoryRiskFactor = 0.2

	pred := m.Predict(&vec)
	if pred.Probability <= 0.5 {
		t.Errorf("strong project probability = %f, want > 0.5", pred.Probability)
	}

	score := m.ComputeRiskScore(&vec)
	level := m.ClassifyRiskLevel(score.Overall)
	if level != RiskVeryLow && level != RiskLow {
		t.Errorf("strong project classified %s (overall %d), want VERY_LOW or LOW", level, score.Overall)
	}
}

func TestWeakProjectScoresWorseThanStrong(t *testing.T) {
	m := New(DefaultConfig())

	strong := uniformVector(0.9)
	strong.ContributorConcentrationRisk = 0.1
	strong.LegalRiskScore = 0.1
	strong.LiquidityRiskScore = 0.1
	strong.CategoryRiskFactor = 0.2

	weak := uniformVector(0.1)
	weak.ContributorConcentrationRisk = 0.9
	weak.LegalRiskScore = 0.9
	weak.LiquidityRiskScore = 0.9
	weak.CategoryRiskFactor = 0.7

	strongPred := m.Predict(&strong)
	weakPred := m.Predict(&weak)
	if strongPred.Probability <= weakPred.Probability {
		t.Errorf("strong project (%f) should outscore weak project (%f)",
			strongPred.Probability, weakPred.Probability)
	}

	strongScore := m.ComputeRiskScore(&strong)
	weakScore := m.ComputeRiskScore(&weak)
	if strongScore.Overall <= weakScore.Overall {
		t.Errorf("strong overall %d should exceed weak overall %d",
			strongScore.Overall, weakScore.Overall)
	}
}

func TestConfidenceFromDisagreement(t *testing.T) {
	m := New(DefaultConfig())

	// A mid-range vector keeps the three models close together, so the
	// disagreement-derived interval should stay narrow.
	vec := uniformVector(0.5)
	pred := m.Predict(&vec)

	width := pred.ConfidenceInterval[1] - pred.ConfidenceInterval[0]
	if width < 0 {
		t.Fatalf("negative interval width %f", width)
	}
	if pred.ConfidenceLevel == ConfidenceLow && width < 0.1 {
		t.Errorf("narrow interval (%f) labelled LOW confidence", width)
	}
}

func TestEvalTree(t *testing.T) {
	tree := TreeNode{
		Feature: "fundingCompletionRate", Threshold: 0.5,
		Left:  leaf(-0.12),
		Right: leaf(0.18),
	}

	low := uniformVector(0.3)
	if got := evalTree(&tree, &low); got != -0.12 {
		t.Errorf("left branch = %f, want -0.12", got)
	}

	high := uniformVector(0.8)
	if got := evalTree(&tree, &high); got != 0.18 {
		t.Errorf("right branch = %f, want 0.18", got)
	}

	// Boundary goes left.
	boundary := uniformVector(0.5)
	if got := evalTree(&tree, &boundary); got != -0.12 {
		t.Errorf("boundary value = %f, want left leaf -0.12", got)
	}
}

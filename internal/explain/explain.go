// Package explain attributes a risk assessment to individual features and
// renders the result as human-readable factors, a narrative summary and
// investor insights.
//
// Attribution is first-order linear: contribution = weight * (value -
// baseline), against a fixed "average project" baseline. This is a
// deliberate simplification of Shapley values with no coalition sampling.
package explain

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/crowdguard/crowdguard/internal/features"
	"github.com/crowdguard/crowdguard/internal/model"
)

// Category buckets a factor for display.
type Category string

const (
	CategoryFunding   Category = "FUNDING"
	CategoryTeam      Category = "TEAM"
	CategoryTechnical Category = "TECHNICAL"
	CategoryCommunity Category = "COMMUNITY"
	CategoryMarket    Category = "MARKET"
	CategoryLegal     Category = "LEGAL"
)

// RiskFactor is one explained feature. Negative impact means the feature is
// hurting the project. Recomputed per assessment, never persisted.
type RiskFactor struct {
	Name           string   `json:"name"`
	DisplayName    string   `json:"displayName"`
	Category       Category `json:"category"`
	Impact         float64  `json:"impact"`
	Weight         float64  `json:"weight"`
	CurrentValue   float64  `json:"currentValue"`
	Benchmark      float64  `json:"benchmark"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// baseline is the expected feature vector for an average project.
var baseline = map[string]float64{
	"fundingCompletionRate":        0.40,
	"fundingVelocityNormalized":    0.35,
	"daysRemainingRatio":           0.50,
	"contributorConcentrationRisk": 0.25,
	"teamStrengthScore":            0.50,
	"teamExperienceNormalized":     0.40,
	"previousSuccessBoost":         0.40,
	"communityEngagementScore":     0.40,
	"sentimentNormalized":          0.55,
	"githubActivityScore":          0.35,
	"socialReachScore":             0.35,
	"technicalRobustnessScore":     0.45,
	"auditSafetyScore":             0.30,
	"contractSecurityScore":        0.40,
	"projectQualityScore":          0.45,
	"roadmapScore":                 0.50,
	"legalRiskScore":               0.30,
	"liquidityRiskScore":           0.50,
	"categoryRiskFactor":           0.50,
	"earlyMomentumIndex":           0.40,
	"whitepaperQualityNormalized":  0.45,
	"advisoryStrengthScore":        0.40,
}

// successBenchmarks describe what a historically successful project looks
// like, used as the comparison value shown next to a factor.
var successBenchmarks = map[string]float64{
	"fundingCompletionRate":        0.80,
	"fundingVelocityNormalized":    0.65,
	"teamStrengthScore":            0.75,
	"communityEngagementScore":     0.70,
	"contractSecurityScore":        0.80,
	"projectQualityScore":          0.70,
	"earlyMomentumIndex":           0.70,
	"auditSafetyScore":             0.75,
	"legalRiskScore":               0.15,
	"contributorConcentrationRisk": 0.15,
}

type factorMeta struct {
	displayName    string
	category       Category
	description    func(v float64) string
	recommendation func(v float64) string
}

// factorOrder fixes iteration order so tie-breaks in sorting are stable.
var factorOrder = []string{
	"fundingCompletionRate",
	"earlyMomentumIndex",
	"contributorConcentrationRisk",
	"teamStrengthScore",
	"previousSuccessBoost",
	"contractSecurityScore",
	"auditSafetyScore",
	"communityEngagementScore",
	"sentimentNormalized",
	"legalRiskScore",
	"liquidityRiskScore",
	"projectQualityScore",
	"githubActivityScore",
}

var factorMetas = map[string]factorMeta{
	"fundingCompletionRate": {
		displayName: "Funding Progress",
		category:    CategoryFunding,
		description: func(v float64) string {
			return fmt.Sprintf("Project has raised %d%% of its funding goal.", pct(v))
		},
		recommendation: func(v float64) string {
			switch {
			case v < 0.3:
				return "Funding traction is low. Consider improving marketing or adjusting the funding goal."
			case v < 0.6:
				return "Moderate funding progress. Stronger community outreach may accelerate momentum."
			default:
				return "Strong funding progress. Maintain current momentum."
			}
		},
	},
	"earlyMomentumIndex": {
		displayName: "Early Momentum",
		category:    CategoryFunding,
		description: func(v float64) string {
			return fmt.Sprintf("Early traction composite score: %d/100.", pct(v))
		},
		recommendation: func(v float64) string {
			if v < 0.4 {
				return "Early momentum is weak. High-impact launches and strategic partnerships may help."
			}
			return "Momentum is adequate. Focus on converting community interest to contributions."
		},
	},
	"contributorConcentrationRisk": {
		displayName: "Whale Concentration Risk",
		category:    CategoryFunding,
		description: func(v float64) string {
			return fmt.Sprintf("%d%% of funds from single largest contributor.", pct(v))
		},
		recommendation: func(v float64) string {
			if v > 0.3 {
				return "High concentration risk: a single whale withdrawal could collapse funding. Diversify contributor base."
			}
			return "Concentration risk is acceptable."
		},
	},
	"teamStrengthScore": {
		displayName: "Team Quality",
		category:    CategoryTeam,
		description: func(v float64) string {
			return fmt.Sprintf("Team composite score: %d/100.", pct(v))
		},
		recommendation: func(v float64) string {
			if v < 0.5 {
				return "Team score is below average. Consider adding experienced advisors or publicising team credentials."
			}
			return "Team appears solid. Highlight individual credentials for investor confidence."
		},
	},
	"previousSuccessBoost": {
		displayName: "Founders' Track Record",
		category:    CategoryTeam,
		description: func(v float64) string {
			return fmt.Sprintf("Founders' historical project success rate: %d%%.", pct(v))
		},
		recommendation: func(v float64) string {
			if v < 0.4 {
				return "Limited prior success history. Detailed execution roadmap can compensate."
			}
			return "Good track record. Strong positive signal for investors."
		},
	},
	"contractSecurityScore": {
		displayName: "Smart Contract Security",
		category:    CategoryTechnical,
		description: func(v float64) string {
			return fmt.Sprintf("Contract security score: %d/100 (audit + multisig).", pct(v))
		},
		recommendation: func(v float64) string {
			switch {
			case v < 0.5:
				return "Smart contract security is concerning. A third-party audit is strongly recommended."
			case v < 0.75:
				return "Security is moderate. Consider a reputable audit firm for additional assurance."
			default:
				return "Strong security posture."
			}
		},
	},
	"auditSafetyScore": {
		displayName: "Audit Status",
		category:    CategoryTechnical,
		description: func(v float64) string {
			if v < 0.35 {
				return "No audit or low-quality audit detected."
			}
			return fmt.Sprintf("Audit score: %d/100.", pct(v))
		},
		recommendation: func(v float64) string {
			if v < 0.35 {
				return "Critical: contract is unaudited. This dramatically increases investor risk."
			}
			return "Audit coverage is adequate. Ensure audit reports are publicly accessible."
		},
	},
	"communityEngagementScore": {
		displayName: "Community Engagement",
		category:    CategoryCommunity,
		description: func(v float64) string {
			return fmt.Sprintf("Community activity score: %d/100.", pct(v))
		},
		recommendation: func(v float64) string {
			if v < 0.4 {
				return "Community engagement is low. Regular AMAs, content, and Discord activity can help."
			}
			return "Community engagement is healthy."
		},
	},
	"sentimentNormalized": {
		displayName: "Community Sentiment",
		category:    CategoryCommunity,
		description: func(v float64) string {
			p := pct(v)
			switch {
			case p < 40:
				return "Community sentiment is predominantly negative."
			case p < 60:
				return "Community sentiment is neutral."
			default:
				return fmt.Sprintf("Community sentiment is positive (%d/100).", p)
			}
		},
		recommendation: func(v float64) string {
			if v < 0.4 {
				return "Negative sentiment detected. Address community concerns transparently and promptly."
			}
			return "Sentiment is positive. Sustain open communication channels."
		},
	},
	"legalRiskScore": {
		displayName: "Legal & Compliance Risk",
		category:    CategoryLegal,
		description: func(v float64) string {
			return fmt.Sprintf("Legal risk score: %d/100 (higher = riskier).", pct(v))
		},
		recommendation: func(v float64) string {
			switch {
			case v > 0.5:
				return "Significant compliance gaps identified. Engage legal counsel specialising in crypto/token regulation."
			case v > 0.3:
				return "Moderate compliance risk. Review jurisdiction-specific requirements."
			default:
				return "Legal posture appears sound."
			}
		},
	},
	"liquidityRiskScore": {
		displayName: "Liquidity Risk",
		category:    CategoryMarket,
		description: func(v float64) string {
			return fmt.Sprintf("Liquidity risk: %d/100. Low liquidity increases exit difficulty.", pct(v))
		},
		recommendation: func(v float64) string {
			if v > 0.6 {
				return "Low liquidity is a concern for secondary market exits. Consider liquidity mining incentives."
			}
			return "Liquidity appears adequate."
		},
	},
	"projectQualityScore": {
		displayName: "Project Fundamentals",
		category:    CategoryMarket,
		description: func(v float64) string {
			return fmt.Sprintf("Overall project quality: %d/100.", pct(v))
		},
		recommendation: func(v float64) string {
			if v < 0.5 {
				return "Project fundamentals need improvement: whitepaper, roadmap, and partnership quality are key."
			}
			return "Strong project fundamentals."
		},
	},
	"githubActivityScore": {
		displayName: "Development Activity",
		category:    CategoryTechnical,
		description: func(v float64) string {
			return fmt.Sprintf("GitHub activity score: %d/100.", pct(v))
		},
		recommendation: func(v float64) string {
			if v < 0.3 {
				return "Low development activity. Consistent commits and open-source engagement build investor trust."
			}
			return "Development activity is healthy."
		},
	},
}

func pct(v float64) int {
	return int(math.Round(v * 100))
}

// Explainer attributes scores against one model calibration.
type Explainer struct {
	weights map[string]float64
}

// New builds an explainer over the model's feature weights.
func New(cfg model.Config) *Explainer {
	return &Explainer{weights: cfg.FeatureWeights}
}

// ShapValues computes the per-feature marginal contribution relative to the
// average-project baseline. Positive means helping, negative means hurting.
func (e *Explainer) ShapValues(v *features.Vector) map[string]float64 {
	result := make(map[string]float64, len(features.Names))
	for _, name := range features.Names {
		base, ok := baseline[name]
		if !ok {
			base = 0.5
		}
		result[name] = e.weights[name] * (v.Value(name) - base)
	}
	return result
}

// factors builds the full set of explained factors in stable order.
func (e *Explainer) factors(v *features.Vector) []RiskFactor {
	shap := e.ShapValues(v)

	out := make([]RiskFactor, 0, len(factorOrder))
	for _, name := range factorOrder {
		meta := factorMetas[name]
		value := v.Value(name)

		benchmark, ok := successBenchmarks[name]
		if !ok {
			benchmark = baseline[name]
		}

		out = append(out, RiskFactor{
			Name:           name,
			DisplayName:    meta.displayName,
			Category:       meta.category,
			Impact:         shap[name],
			Weight:         math.Abs(e.weights[name]),
			CurrentValue:   value,
			Benchmark:      benchmark,
			Description:    meta.description(value),
			Recommendation: meta.recommendation(value),
		})
	}
	return out
}

// TopRiskFactors returns the n factors hurting the project the most, most
// negative contribution first.
func (e *Explainer) TopRiskFactors(v *features.Vector, n int) []RiskFactor {
	var hurting []RiskFactor
	for _, f := range e.factors(v) {
		if f.Impact < 0 {
			hurting = append(hurting, f)
		}
	}
	sort.SliceStable(hurting, func(i, j int) bool { return hurting[i].Impact < hurting[j].Impact })
	if len(hurting) > n {
		hurting = hurting[:n]
	}
	return hurting
}

// TopStrengths returns the n factors helping the project the most, largest
// contribution first.
func (e *Explainer) TopStrengths(v *features.Vector, n int) []RiskFactor {
	var helping []RiskFactor
	for _, f := range e.factors(v) {
		if f.Impact > 0 {
			helping = append(helping, f)
		}
	}
	sort.SliceStable(helping, func(i, j int) bool { return helping[i].Impact > helping[j].Impact })
	if len(helping) > n {
		helping = helping[:n]
	}
	return helping
}

// Summary renders a one-paragraph narrative for the assessment.
func (e *Explainer) Summary(score model.RiskScore, topRisks, topStrengths []RiskFactor) string {
	var riskWord string
	switch {
	case score.Overall >= 80:
		riskWord = "very low risk"
	case score.Overall >= 65:
		riskWord = "low risk"
	case score.Overall >= 45:
		riskWord = "moderate risk"
	case score.Overall >= 25:
		riskWord = "high risk"
	default:
		riskWord = "very high risk"
	}

	topRiskName := "unknown factor"
	if len(topRisks) > 0 {
		topRiskName = topRisks[0].DisplayName
	}
	topStrength := "team quality"
	if len(topStrengths) > 0 {
		topStrength = topStrengths[0].DisplayName
	}

	lowest := min3(score.FundingRisk, score.TeamRisk, score.TechnicalRisk)
	var weakestDomain string
	switch lowest {
	case score.FundingRisk:
		weakestDomain = "funding momentum"
	case score.TeamRisk:
		weakestDomain = "team quality"
	default:
		weakestDomain = "technical robustness"
	}

	return fmt.Sprintf(
		"This project is assessed as %s (score: %d/100). "+
			"The primary concern is %s, while %s is the strongest signal. "+
			"The weakest domain is %s. "+
			"Investors should weigh the identified risk factors carefully before committing capital.",
		riskWord, score.Overall,
		strings.ToLower(topRiskName), strings.ToLower(topStrength),
		weakestDomain,
	)
}

func min3(a, b, c int) int {
	return min(a, min(b, c))
}

// InvestorInsights produces up to 6 actionable observations. The check
// order is fixed so output is deterministic.
func (e *Explainer) InvestorInsights(v *features.Vector, score model.RiskScore, topRisks []RiskFactor) []string {
	var insights []string

	if score.FundingRisk < 50 {
		insights = append(insights, "Funding velocity is below target. Project may not reach its goal within the deadline.")
	}

	if v.ContributorConcentrationRisk > 0.35 {
		insights = append(insights, fmt.Sprintf(
			"Whale risk: the top contributor holds %d%% of total funds. Consider setting a max contribution cap.",
			pct(v.ContributorConcentrationRisk)))
	}

	if v.AuditSafetyScore < 0.35 {
		insights = append(insights, "Smart contracts have not been independently audited. Significant security risk for investors.")
	}

	if v.SentimentNormalized < 0.45 {
		insights = append(insights, "Community sentiment is trending negative. Monitor Discord and Twitter for grievances.")
	}

	if v.LegalRiskScore > 0.5 {
		insights = append(insights, "Elevated regulatory/legal risk. Confirm the project has obtained appropriate legal opinions.")
	}

	if v.TeamStrengthScore > 0.7 && v.ProjectQualityScore > 0.65 {
		insights = append(insights, "Strong team and solid project fundamentals. A positive signal for long-term viability.")
	}

	if score.Overall >= 70 {
		insights = append(insights, "Overall risk profile is favourable. This project meets baseline quality thresholds.")
	}

	for i, factor := range topRisks {
		if i >= 3 {
			break
		}
		if factor.Recommendation != "" {
			insights = append(insights, factor.Recommendation)
		}
	}

	if len(insights) > 6 {
		insights = insights[:6]
	}
	return insights
}

// Package features transforms raw project data into a normalized feature
// vector. Extract is a pure function: same input, same output, no I/O and
// no clock reads.
package features

import (
	"math"

	"github.com/crowdguard/crowdguard/internal/pipeline"
)

// Category base risk by vertical, from historical failure rates. Higher is
// riskier.
var categoryRisk = map[pipeline.Category]float64{
	pipeline.CategoryInfrastructure: 0.20,
	pipeline.CategoryDeFi:           0.45,
	pipeline.CategoryDAO:            0.40,
	pipeline.CategoryGaming:         0.55,
	pipeline.CategoryNFT:            0.70,
	pipeline.CategorySocial:         0.50,
	pipeline.CategoryOther:          0.60,
}

// Benchmarks derived from historically successful projects.
const (
	goodContributors     = 500.0
	goodFundingVelocity  = 5_000.0 // USD/day
	goodGithubCommits    = 200.0
	goodTwitterFollowers = 10_000.0
	goodDiscordMembers   = 5_000.0
	goodTeamExperience   = 5.0 // years
	goodAdvisorCount     = 3.0
	goodPartnershipCount = 2.0
)

// Vector is the fixed-shape model input. Every field lies in [0,1]. Fields
// with "Risk" in the name are risk-polarity: higher means worse.
type Vector struct {
	// Funding momentum
	FundingCompletionRate        float64 `json:"fundingCompletionRate"`
	FundingVelocityNormalized    float64 `json:"fundingVelocityNormalized"`
	DaysRemainingRatio           float64 `json:"daysRemainingRatio"`
	ContributorConcentrationRisk float64 `json:"contributorConcentrationRisk"`

	// Team quality
	TeamStrengthScore        float64 `json:"teamStrengthScore"`
	TeamExperienceNormalized float64 `json:"teamExperienceNormalized"`
	PreviousSuccessBoost     float64 `json:"previousSuccessBoost"`

	// Community and traction
	CommunityEngagementScore float64 `json:"communityEngagementScore"`
	SentimentNormalized      float64 `json:"sentimentNormalized"`
	GithubActivityScore      float64 `json:"githubActivityScore"`
	SocialReachScore         float64 `json:"socialReachScore"`

	// Technical quality
	TechnicalRobustnessScore float64 `json:"technicalRobustnessScore"`
	AuditSafetyScore         float64 `json:"auditSafetyScore"`
	ContractSecurityScore    float64 `json:"contractSecurityScore"`

	// Project quality
	ProjectQualityScore float64 `json:"projectQualityScore"`
	RoadmapScore        float64 `json:"roadmapScore"`
	LegalRiskScore      float64 `json:"legalRiskScore"`

	// Market and liquidity
	LiquidityRiskScore float64 `json:"liquidityRiskScore"`
	CategoryRiskFactor float64 `json:"categoryRiskFactor"`

	// Composite indicators
	EarlyMomentumIndex          float64 `json:"earlyMomentumIndex"`
	WhitepaperQualityNormalized float64 `json:"whitepaperQualityNormalized"`
	AdvisoryStrengthScore       float64 `json:"advisoryStrengthScore"`
}

// Names lists every feature in a stable order. Model and attribution code
// iterate this slice rather than a map so floating point sums are
// reproducible run to run.
var Names = []string{
	"fundingCompletionRate",
	"fundingVelocityNormalized",
	"daysRemainingRatio",
	"contributorConcentrationRisk",
	"teamStrengthScore",
	"teamExperienceNormalized",
	"previousSuccessBoost",
	"communityEngagementScore",
	"sentimentNormalized",
	"githubActivityScore",
	"socialReachScore",
	"technicalRobustnessScore",
	"auditSafetyScore",
	"contractSecurityScore",
	"projectQualityScore",
	"roadmapScore",
	"legalRiskScore",
	"liquidityRiskScore",
	"categoryRiskFactor",
	"earlyMomentumIndex",
	"whitepaperQualityNormalized",
	"advisoryStrengthScore",
}

// Value returns the named feature. Unknown names return 0.
func (v *Vector) Value(name string) float64 {
	switch name {
	case "fundingCompletionRate":
		return v.FundingCompletionRate
	case "fundingVelocityNormalized":
		return v.FundingVelocityNormalized
	case "daysRemainingRatio":
		return v.DaysRemainingRatio
	case "contributorConcentrationRisk":
		return v.ContributorConcentrationRisk
	case "teamStrengthScore":
		return v.TeamStrengthScore
	case "teamExperienceNormalized":
		return v.TeamExperienceNormalized
	case "previousSuccessBoost":
		return v.PreviousSuccessBoost
	case "communityEngagementScore":
		return v.CommunityEngagementScore
	case "sentimentNormalized":
		return v.SentimentNormalized
	case "githubActivityScore":
		return v.GithubActivityScore
	case "socialReachScore":
		return v.SocialReachScore
	case "technicalRobustnessScore":
		return v.TechnicalRobustnessScore
	case "auditSafetyScore":
		return v.AuditSafetyScore
	case "contractSecurityScore":
		return v.ContractSecurityScore
	case "projectQualityScore":
		return v.ProjectQualityScore
	case "roadmapScore":
		return v.RoadmapScore
	case "legalRiskScore":
		return v.LegalRiskScore
	case "liquidityRiskScore":
		return v.LiquidityRiskScore
	case "categoryRiskFactor":
		return v.CategoryRiskFactor
	case "earlyMomentumIndex":
		return v.EarlyMomentumIndex
	case "whitepaperQualityNormalized":
		return v.WhitepaperQualityNormalized
	case "advisoryStrengthScore":
		return v.AdvisoryStrengthScore
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// logNorm maps unbounded positive metrics (followers, commits) onto [0,1]
// with diminishing returns: doubling an already large count barely moves
// the normalized value.
func logNorm(value, reference float64) float64 {
	if value <= 0 {
		return 0
	}
	return clamp01(math.Log1p(value) / math.Log1p(reference))
}

// concentrationRisk approximates a Herfindahl index with the largest single
// contribution relative to total. No funding at all is itself maximal
// funding risk, so total <= 0 maps to 1.
func concentrationRisk(largest, total float64) float64 {
	if total <= 0 {
		return 1
	}
	return clamp01(largest / total)
}

// Extract computes the feature vector for one raw record.
func Extract(raw *pipeline.RawData) Vector {
	oc := raw.OnChain
	off := raw.OffChain

	// Funding momentum
	goal := off.FundingGoal
	if goal == 0 {
		goal = 1
	}
	fundingCompletionRate := clamp01(oc.TotalRaised / goal)

	daysRemaining := math.Max(0, off.FundingDeadlineDays-oc.DaysActive)
	daysRemainingRatio := 0.0
	if off.FundingDeadlineDays > 0 {
		daysRemainingRatio = clamp01(daysRemaining / off.FundingDeadlineDays)
	}

	fundingVelocityNormalized := logNorm(oc.FundingVelocity, goodFundingVelocity)
	contributorConcentrationRisk := concentrationRisk(oc.LargestContribution, oc.TotalRaised)

	// Team
	experienceYears := 0.0
	if oc.DaysActive > 0 {
		experienceYears = off.TeamExperienceYears
	}
	teamExperienceNormalized := logNorm(experienceYears, goodTeamExperience)

	// Neutral prior when the team has no track record on file.
	previousSuccessBoost := 0.4
	if off.HasTrackRecord {
		previousSuccessBoost = clamp01(off.PreviousSuccessRate)
	}

	teamStrengthScore := clamp01(
		0.3*teamExperienceNormalized +
			0.25*previousSuccessBoost +
			0.25*clamp01(float64(off.TeamSize)/10) +
			0.20*clamp01(off.AdvisorQualityScore/100))

	// Community and traction
	twitterScore := logNorm(float64(off.TwitterFollowers), goodTwitterFollowers)
	discordScore := logNorm(float64(off.DiscordMembers), goodDiscordMembers)
	sentimentNormalized := clamp01((off.SentimentScore + 1) / 2) // -1..1 to 0..1

	communityEngagementScore := clamp01(
		0.35*twitterScore +
			0.35*discordScore +
			0.30*sentimentNormalized)

	githubCommitScore := logNorm(float64(off.GithubCommits), goodGithubCommits)
	githubContributorScore := logNorm(float64(off.GithubContributors), 20)
	githubStarScore := logNorm(float64(off.GithubStars), 500)
	githubActivityScore := clamp01(
		0.5*githubCommitScore + 0.3*githubContributorScore + 0.2*githubStarScore)

	socialReachScore := clamp01(0.6*twitterScore + 0.4*discordScore)

	// Technical quality. Unaudited contracts carry a flat penalty score.
	auditSafetyScore := 0.3
	if oc.HasAudit {
		auditSafetyScore = clamp01(oc.ContractAuditScore / 100)
	}

	multisig := 0.0
	if oc.HasMultisig {
		multisig = 1
	}
	contractSecurityScore := clamp01(0.6*auditSafetyScore + 0.4*multisig)

	tokenomicsNorm := 0.4
	if oc.HasTokenomicsScore {
		tokenomicsNorm = clamp01(oc.TokenomicsScore / 100)
	}

	technicalRobustnessScore := clamp01(
		0.4*contractSecurityScore +
			0.3*githubActivityScore +
			0.3*tokenomicsNorm)

	// Project quality
	whitepaperQualityNormalized := clamp01(off.WhitepaperScore / 100)
	roadmapScore := clamp01(off.RoadmapClarity / 100)
	legalRiskScore := 1 - clamp01(off.LegalComplianceScore/100) // low compliance = high risk

	advisoryStrengthScore := clamp01(
		0.5*clamp01(float64(off.AdvisorCount)/goodAdvisorCount) +
			0.5*clamp01(off.AdvisorQualityScore/100))

	partnershipScore := clamp01(float64(off.PartnershipCount) / (goodPartnershipCount + 1))

	projectQualityScore := clamp01(
		0.25*whitepaperQualityNormalized +
			0.20*roadmapScore +
			0.20*advisoryStrengthScore +
			0.15*partnershipScore +
			0.10*clamp01(off.MediaScore/100) +
			0.10*clamp01(float64(off.MilestoneCount)/10))

	// Market and liquidity
	liquidityScore := 0.2
	if oc.HasLiquidityDepth {
		liquidityScore = logNorm(oc.LiquidityDepth, 500_000)
	}
	liquidityRiskScore := 1 - liquidityScore // low liquidity = high risk

	categoryRiskFactor, ok := categoryRisk[off.Category]
	if !ok {
		categoryRiskFactor = 0.5
	}

	// Early momentum composite
	earlyMomentumIndex := clamp01(
		0.35*fundingCompletionRate +
			0.25*fundingVelocityNormalized +
			0.20*communityEngagementScore +
			0.20*clamp01(float64(oc.ContributorCount)/goodContributors))

	return Vector{
		FundingCompletionRate:        fundingCompletionRate,
		FundingVelocityNormalized:    fundingVelocityNormalized,
		DaysRemainingRatio:           daysRemainingRatio,
		ContributorConcentrationRisk: contributorConcentrationRisk,
		TeamStrengthScore:            teamStrengthScore,
		TeamExperienceNormalized:     teamExperienceNormalized,
		PreviousSuccessBoost:         previousSuccessBoost,
		CommunityEngagementScore:     communityEngagementScore,
		SentimentNormalized:          sentimentNormalized,
		GithubActivityScore:          githubActivityScore,
		SocialReachScore:             socialReachScore,
		TechnicalRobustnessScore:     technicalRobustnessScore,
		AuditSafetyScore:             auditSafetyScore,
		ContractSecurityScore:        contractSecurityScore,
		ProjectQualityScore:          projectQualityScore,
		RoadmapScore:                 roadmapScore,
		LegalRiskScore:               legalRiskScore,
		LiquidityRiskScore:           liquidityRiskScore,
		CategoryRiskFactor:           categoryRiskFactor,
		EarlyMomentumIndex:           earlyMomentumIndex,
		WhitepaperQualityNormalized:  whitepaperQualityNormalized,
		AdvisoryStrengthScore:        advisoryStrengthScore,
	}
}

package pipeline

import "time"

// DataSourceType identifies where a piece of project data came from.
type DataSourceType string

const (
	SourceOnChain  DataSourceType = "ON_CHAIN"
	SourceOffChain DataSourceType = "OFF_CHAIN"
	SourceHybrid   DataSourceType = "HYBRID"
)

// Category buckets a project by vertical. Historical base rates differ
// enough per vertical that the category itself is a risk signal.
type Category string

const (
	CategoryDeFi           Category = "DEFI"
	CategoryNFT            Category = "NFT"
	CategoryGaming         Category = "GAMING"
	CategoryInfrastructure Category = "INFRASTRUCTURE"
	CategoryDAO            Category = "DAO"
	CategorySocial         Category = "SOCIAL"
	CategoryOther          Category = "OTHER"
)

// OnChainData is a project's on-chain funding snapshot. Immutable per
// fetch; a newer fetch supersedes it, nothing mutates it in place.
type OnChainData struct {
	ContractAddress      string  `json:"contractAddress,omitempty"`
	ChainID              int64   `json:"chainId"`
	TotalRaised          float64 `json:"totalRaised"` // USD
	ContributorCount     int64   `json:"contributorCount"`
	AverageContribution  float64 `json:"averageContribution"`
	LargestContribution  float64 `json:"largestContribution"` // whale concentration input
	FundingVelocity      float64 `json:"fundingVelocity"`     // USD per day
	DaysActive           float64 `json:"daysActive"`
	ContractAuditScore   float64 `json:"contractAuditScore"` // 0-100, 0 = unaudited
	HasAudit             bool    `json:"hasAudit"`
	HasMultisig          bool    `json:"hasMultisig"`
	TokenomicsScore      float64 `json:"tokenomicsScore"` // 0-100
	HasTokenomicsScore   bool    `json:"hasTokenomicsScore"`
	LiquidityDepth       float64 `json:"liquidityDepth"` // USD in pools
	HasLiquidityDepth    bool    `json:"hasLiquidityDepth"`
	OnChainActivityScore float64 `json:"onChainActivityScore"` // 0-100
}

// OffChainData is a project's off-chain metadata snapshot.
type OffChainData struct {
	ProjectID           string   `json:"projectId"`
	Title               string   `json:"title"`
	Category            Category `json:"category"`
	TeamSize            int64    `json:"teamSize"`
	TeamExperienceYears float64  `json:"teamExperienceYears"`
	GithubCommits       int64    `json:"githubCommits"`
	GithubStars         int64    `json:"githubStars"`
	GithubContributors  int64    `json:"githubContributors"`
	TwitterFollowers    int64    `json:"twitterFollowers"`
	DiscordMembers      int64    `json:"discordMembers"`
	WhitepaperScore     float64  `json:"whitepaperScore"` // 0-100
	RoadmapClarity      float64  `json:"roadmapClarity"`  // 0-100
	PartnershipCount    int64    `json:"partnershipCount"`
	AdvisorCount        int64    `json:"advisorCount"`
	AdvisorQualityScore float64  `json:"advisorQualityScore"` // 0-100

	// PreviousSuccessRate is only meaningful when HasTrackRecord is true.
	PreviousSuccessRate float64 `json:"previousProjectsSuccessRate"` // 0-1
	HasTrackRecord      bool    `json:"hasTrackRecord"`

	LegalComplianceScore float64 `json:"legalComplianceScore"` // 0-100
	MediaScore           float64 `json:"mediaScore"`           // 0-100
	SentimentScore       float64 `json:"sentimentScore"`       // -1 to 1
	FundingGoal          float64 `json:"fundingGoal"`          // USD
	FundingDeadlineDays  float64 `json:"fundingDeadlineDays"`
	MilestoneCount       int64   `json:"milestoneCount"`
}

// RawData pairs one on-chain and one off-chain snapshot. Both sides are
// required before feature extraction can run.
type RawData struct {
	OnChain   *OnChainData  `json:"onChain"`
	OffChain  *OffChainData `json:"offChain"`
	Timestamp time.Time     `json:"timestamp"`
}

// FetchResult wraps a single source fetch with provenance.
type FetchResult[T any] struct {
	Data      *T
	Source    DataSourceType
	FetchedAt time.Time
	FromCache bool
	Err       error
}

// AggregateResult is what Aggregate hands to the assessment path. Raw is
// nil unless both sources succeeded.
type AggregateResult struct {
	Raw             *RawData
	Errors          []string
	DataSourcesUsed []DataSourceType
}

// Config tunes fetch behavior.
type Config struct {
	CacheTTL     time.Duration
	CacheMaxSize int
	MaxRetries   int           // retries after the first attempt
	FetchTimeout time.Duration // per attempt
	// PrivacyMode redacts individual contribution details from on-chain
	// results before they are cached or returned.
	PrivacyMode bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:     5 * time.Minute,
		CacheMaxSize: 500,
		MaxRetries:   3,
		FetchTimeout: 8 * time.Second,
		PrivacyMode:  false,
	}
}

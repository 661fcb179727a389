// Package monitor continuously re-assesses projects, tracks score history
// per session and raises typed alerts when thresholds are crossed.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crowdguard/crowdguard/internal/engine"
	"github.com/crowdguard/crowdguard/internal/idgen"
	"github.com/crowdguard/crowdguard/internal/metrics"
	"github.com/crowdguard/crowdguard/internal/model"
	"github.com/crowdguard/crowdguard/internal/traces"
)

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// AlertType categorizes what triggered an alert.
type AlertType string

const (
	AlertScoreDrop              AlertType = "SCORE_DROP"
	AlertScoreImprovement       AlertType = "SCORE_IMPROVEMENT"
	AlertWhaleConcentration     AlertType = "WHALE_CONCENTRATION"
	AlertFundingStall           AlertType = "FUNDING_STALL"
	AlertCommunitySentimentDrop AlertType = "COMMUNITY_SENTIMENT_DROP"
	AlertGithubInactivity       AlertType = "GITHUB_INACTIVITY"
	AlertSmartContractRisk      AlertType = "SMART_CONTRACT_RISK"
	AlertTeamChange             AlertType = "TEAM_CHANGE"
	AlertMilestoneMissed        AlertType = "MILESTONE_MISSED"
	AlertLiquidityRisk          AlertType = "LIQUIDITY_RISK"
)

// TrendDirection summarizes recent score movement.
type TrendDirection string

const (
	TrendImproving TrendDirection = "IMPROVING"
	TrendDeclining TrendDirection = "DECLINING"
	TrendStable    TrendDirection = "STABLE"
)

// Alert is one threshold crossing, delivered to subscribers and kept on the
// snapshot that produced it.
type Alert struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"projectId"`
	Timestamp       time.Time `json:"timestamp"`
	Severity        Severity  `json:"severity"`
	Type            AlertType `json:"type"`
	Message         string    `json:"message"`
	AffectedFactors []string  `json:"affectedFactors"`
	PreviousScore   int       `json:"previousScore"`
	CurrentScore    int       `json:"currentScore"`
	Delta           int       `json:"delta"`
}

// Snapshot records one poll cycle's outcome. Appended to its session,
// never mutated afterwards.
type Snapshot struct {
	ProjectID         string          `json:"projectId"`
	Timestamp         time.Time       `json:"timestamp"`
	RiskScore         int             `json:"riskScore"`
	RiskLevel         model.RiskLevel `json:"riskLevel"`
	Alerts            []Alert         `json:"alerts"`
	DeltaFromPrevious int             `json:"deltaFromPrevious"`
	TrendDirection    TrendDirection  `json:"trendDirection"`
	TrendStrength     float64         `json:"trendStrength"`
}

// SessionInfo is a read-only view of a monitoring session.
type SessionInfo struct {
	SessionID       string        `json:"sessionId"`
	ProjectID       string        `json:"projectId"`
	ChainID         int64         `json:"chainId"`
	StartTime       time.Time     `json:"startTime"`
	Interval        time.Duration `json:"interval"`
	SnapshotCount   int           `json:"snapshotCount"`
	IsActive        bool          `json:"isActive"`
	SubscriberCount int           `json:"subscriberCount"`
}

// Alert thresholds, calibrated per poll cycle.
const (
	criticalScoreDrop    = 10
	warningScoreDrop     = 5
	criticalScoreImprove = 10
	whaleConcentration   = 0.4
	sentimentDropThresh  = 0.35

	maxSnapshots    = 100
	trendWindow     = 5
	DefaultInterval = time.Minute

	pollTimeout = 30 * time.Second
)

// Assessor is the slice of the engine the monitor drives each cycle.
type Assessor interface {
	Assess(ctx context.Context, projectID string, chainID int64, contractAddress string) *engine.Result
	InvalidateProjectCache(projectID string, chainID int64)
}

type session struct {
	id        string
	projectID string
	chainID   int64
	startTime time.Time
	interval  time.Duration

	snapshots   []Snapshot
	active      bool
	subscribers int

	inFlight atomic.Bool
	stop     chan struct{}
	done     chan struct{}
}

// AlertFunc receives alerts for a subscribed project.
type AlertFunc func(Alert)

// SnapshotFunc receives snapshots for a subscribed project.
type SnapshotFunc func(Snapshot)

// Monitor owns all sessions and subscriber registries. Safe for concurrent
// use; one instance per engine.
type Monitor struct {
	assessor Assessor
	logger   *slog.Logger

	mu           sync.Mutex
	sessions     map[string]*session
	alertSubs    map[string]map[int64]AlertFunc
	snapshotSubs map[string]map[int64]SnapshotFunc
	nextSubID    int64
}

// New creates a monitor over the given assessor.
func New(assessor Assessor, logger *slog.Logger) *Monitor {
	return &Monitor{
		assessor:     assessor,
		logger:       logger,
		sessions:     make(map[string]*session),
		alertSubs:    make(map[string]map[int64]AlertFunc),
		snapshotSubs: make(map[string]map[int64]SnapshotFunc),
	}
}

// StartMonitoring begins or joins polling for a project. An active session
// for the same project is shared: its subscriber count is incremented and
// the existing session returned. chainID <= 0 defaults to mainnet.
func (m *Monitor) StartMonitoring(projectID string, chainID int64, interval time.Duration) SessionInfo {
	if chainID <= 0 {
		chainID = 1
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	m.mu.Lock()
	for _, s := range m.sessions {
		if s.projectID == projectID && s.active {
			s.subscribers++
			info := m.sessionInfoLocked(s)
			m.mu.Unlock()
			return info
		}
	}

	s := &session{
		id:          idgen.WithPrefix("sess"),
		projectID:   projectID,
		chainID:     chainID,
		startTime:   time.Now(),
		interval:    interval,
		active:      true,
		subscribers: 1,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	m.sessions[s.id] = s
	info := m.sessionInfoLocked(s)
	m.mu.Unlock()

	metrics.ActiveMonitoringSessions.Inc()
	m.logger.Info("monitoring started",
		"sessionId", s.id,
		"projectId", projectID,
		"interval", interval,
	)

	go m.pollLoop(s)

	return info
}

// StopMonitoring drops one subscriber from the session. The poll loop is
// only cancelled once the count reaches zero; stopping an unknown or
// already-stopped session is a no-op.
func (m *Monitor) StopMonitoring(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}

	if s.subscribers > 0 {
		s.subscribers--
	}
	if s.subscribers > 0 {
		m.mu.Unlock()
		return
	}

	s.active = false
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	close(s.stop)
	metrics.ActiveMonitoringSessions.Dec()
	m.logger.Info("monitoring stopped", "sessionId", sessionID, "projectId", s.projectID)
}

// Close stops every session regardless of subscriber counts and waits for
// their poll loops to exit.
func (m *Monitor) Close() {
	m.mu.Lock()
	var stopped []*session
	for id, s := range m.sessions {
		s.active = false
		delete(m.sessions, id)
		stopped = append(stopped, s)
	}
	m.mu.Unlock()

	for _, s := range stopped {
		close(s.stop)
		metrics.ActiveMonitoringSessions.Dec()
	}
	for _, s := range stopped {
		<-s.done
	}
}

// pollLoop runs one immediate poll, then polls on the interval until the
// session is stopped.
func (m *Monitor) pollLoop(s *session) {
	defer close(s.done)

	m.poll(s)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.poll(s)
		case <-s.stop:
			return
		}
	}
}

// poll runs one assessment cycle. A cycle that outlasts the interval makes
// the next tick skip rather than run two cycles for one session at once. A
// failed cycle is logged and skipped; the session stays active.
func (m *Monitor) poll(s *session) {
	if !s.inFlight.CompareAndSwap(false, true) {
		m.logger.Debug("skipping overlapping poll", "sessionId", s.id)
		return
	}
	defer s.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()

	ctx, span := traces.StartSpan(ctx, "monitor.poll", traces.ProjectID(s.projectID), traces.SessionID(s.id))
	defer span.End()

	// Force fresh data each cycle.
	m.assessor.InvalidateProjectCache(s.projectID, s.chainID)

	assessment := m.assessor.Assess(ctx, s.projectID, s.chainID, "")
	if assessment == nil {
		m.logger.Warn("poll produced no assessment, will retry next cycle",
			"sessionId", s.id,
			"projectId", s.projectID,
		)
		return
	}

	currentScore := assessment.RiskScore.Overall

	m.mu.Lock()
	// The session may have been stopped while the assessment ran; the
	// completed poll then simply discards its result.
	if _, ok := m.sessions[s.id]; !ok {
		m.mu.Unlock()
		return
	}

	previousScore := currentScore
	if n := len(s.snapshots); n > 0 {
		previousScore = s.snapshots[n-1].RiskScore
	}

	direction, strength := analyzeTrend(s.snapshots)

	snapshot := Snapshot{
		ProjectID:         s.projectID,
		Timestamp:         time.Now(),
		RiskScore:         currentScore,
		RiskLevel:         assessment.RiskLevel,
		DeltaFromPrevious: currentScore - previousScore,
		TrendDirection:    direction,
		TrendStrength:     strength,
	}
	snapshot.Alerts = m.generateAlerts(s.projectID, previousScore, assessment)

	s.snapshots = append(s.snapshots, snapshot)
	if len(s.snapshots) > maxSnapshots {
		s.snapshots = s.snapshots[1:]
	}

	alertSubs := make([]AlertFunc, 0, len(m.alertSubs[s.projectID]))
	for _, fn := range m.alertSubs[s.projectID] {
		alertSubs = append(alertSubs, fn)
	}
	snapshotSubs := make([]SnapshotFunc, 0, len(m.snapshotSubs[s.projectID]))
	for _, fn := range m.snapshotSubs[s.projectID] {
		snapshotSubs = append(snapshotSubs, fn)
	}
	m.mu.Unlock()

	for _, alert := range snapshot.Alerts {
		metrics.AlertsTotal.WithLabelValues(string(alert.Severity)).Inc()
		for _, fn := range alertSubs {
			fn(alert)
		}
	}
	for _, fn := range snapshotSubs {
		fn(snapshot)
	}
}

// analyzeTrend looks at the last few snapshots. Small first-to-last deltas
// count as stable, with strength reflecting the intra-window score range.
func analyzeTrend(snapshots []Snapshot) (TrendDirection, float64) {
	if len(snapshots) < 2 {
		return TrendStable, 0
	}

	recent := snapshots
	if len(recent) > trendWindow {
		recent = recent[len(recent)-trendWindow:]
	}

	first := recent[0].RiskScore
	last := recent[len(recent)-1].RiskScore
	delta := last - first

	lo, hi := recent[0].RiskScore, recent[0].RiskScore
	for _, s := range recent[1:] {
		if s.RiskScore < lo {
			lo = s.RiskScore
		}
		if s.RiskScore > hi {
			hi = s.RiskScore
		}
	}

	if math.Abs(float64(delta)) < 2 {
		return TrendStable, float64(hi-lo) / 100
	}

	direction := TrendDeclining
	if delta > 0 {
		direction = TrendImproving
	}
	return direction, math.Min(1, math.Abs(float64(delta))/20)
}

// generateAlerts applies the threshold checks for one cycle.
func (m *Monitor) generateAlerts(projectID string, previousScore int, assessment *engine.Result) []Alert {
	currentScore := assessment.RiskScore.Overall
	delta := currentScore - previousScore
	now := time.Now()

	makeAlert := func(alertType AlertType, severity Severity, message string, factors []string) Alert {
		return Alert{
			ID:              idgen.WithPrefix("alert"),
			ProjectID:       projectID,
			Timestamp:       now,
			Severity:        severity,
			Type:            alertType,
			Message:         message,
			AffectedFactors: factors,
			PreviousScore:   previousScore,
			CurrentScore:    currentScore,
			Delta:           delta,
		}
	}

	var alerts []Alert

	switch {
	case delta <= -criticalScoreDrop:
		alerts = append(alerts, makeAlert(
			AlertScoreDrop,
			SeverityCritical,
			fmt.Sprintf("Risk score dropped %d points (%d -> %d). Immediate review recommended.", -delta, previousScore, currentScore),
			[]string{"overall"},
		))
	case delta <= -warningScoreDrop:
		alerts = append(alerts, makeAlert(
			AlertScoreDrop,
			SeverityWarning,
			fmt.Sprintf("Risk score declined %d points (%d -> %d).", -delta, previousScore, currentScore),
			[]string{"overall"},
		))
	}

	if delta >= criticalScoreImprove {
		alerts = append(alerts, makeAlert(
			AlertScoreImprovement,
			SeverityInfo,
			fmt.Sprintf("Risk score improved %d points (%d -> %d).", delta, previousScore, currentScore),
			[]string{"overall"},
		))
	}

	if ccr := assessment.Features.ContributorConcentrationRisk; ccr > whaleConcentration {
		alerts = append(alerts, makeAlert(
			AlertWhaleConcentration,
			SeverityWarning,
			fmt.Sprintf("Single contributor holds %d%% of total funds. Whale exit risk is elevated.", int(math.Round(ccr*100))),
			[]string{"contributorConcentrationRisk", "fundingRisk"},
		))
	}

	if sentiment := assessment.Features.SentimentNormalized; sentiment < sentimentDropThresh {
		alerts = append(alerts, makeAlert(
			AlertCommunitySentimentDrop,
			SeverityWarning,
			fmt.Sprintf("Community sentiment has fallen to %d/100. Monitor community channels.", int(math.Round(sentiment*100))),
			[]string{"sentimentNormalized", "communityRisk"},
		))
	}

	return alerts
}

// OnAlert registers a callback for one project's alerts and returns its
// unsubscribe function. Unsubscribing removes only that callback.
func (m *Monitor) OnAlert(projectID string, fn AlertFunc) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.alertSubs[projectID] == nil {
		m.alertSubs[projectID] = make(map[int64]AlertFunc)
	}
	m.nextSubID++
	id := m.nextSubID
	m.alertSubs[projectID][id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.alertSubs[projectID], id)
	}
}

// OnSnapshot registers a callback for one project's snapshots and returns
// its unsubscribe function.
func (m *Monitor) OnSnapshot(projectID string, fn SnapshotFunc) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.snapshotSubs[projectID] == nil {
		m.snapshotSubs[projectID] = make(map[int64]SnapshotFunc)
	}
	m.nextSubID++
	id := m.nextSubID
	m.snapshotSubs[projectID][id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.snapshotSubs[projectID], id)
	}
}

// GetSession returns a view of a session by id.
func (m *Monitor) GetSession(sessionID string) (SessionInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return SessionInfo{}, false
	}
	return m.sessionInfoLocked(s), true
}

// GetSessionByProject returns the active session for a project, if any.
func (m *Monitor) GetSessionByProject(projectID string) (SessionInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.projectID == projectID && s.active {
			return m.sessionInfoLocked(s), true
		}
	}
	return SessionInfo{}, false
}

// GetRecentSnapshots returns up to limit of the project's most recent
// snapshots, oldest first.
func (m *Monitor) GetRecentSnapshots(projectID string, limit int) []Snapshot {
	if limit <= 0 {
		limit = 20
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.projectID != projectID || !s.active {
			continue
		}
		snaps := s.snapshots
		if len(snaps) > limit {
			snaps = snaps[len(snaps)-limit:]
		}
		out := make([]Snapshot, len(snaps))
		copy(out, snaps)
		return out
	}
	return nil
}

// ActiveSessionIDs lists all live session ids.
func (m *Monitor) ActiveSessionIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (m *Monitor) sessionInfoLocked(s *session) SessionInfo {
	return SessionInfo{
		SessionID:       s.id,
		ProjectID:       s.projectID,
		ChainID:         s.chainID,
		StartTime:       s.startTime,
		Interval:        s.interval,
		SnapshotCount:   len(s.snapshots),
		IsActive:        s.active,
		SubscriberCount: s.subscribers,
	}
}

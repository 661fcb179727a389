package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crowdguard/crowdguard/internal/engine"
	"github.com/crowdguard/crowdguard/internal/features"
	"github.com/crowdguard/crowdguard/internal/model"
	"github.com/crowdguard/crowdguard/internal/pipeline"

	"log/slog"
)

// scriptedAssessor returns queued scores in order, repeating the last one
// when the queue runs out. A score of -1 simulates a failed assessment.
type scriptedAssessor struct {
	mu            sync.Mutex
	scores        []int
	next          int
	features      features.Vector
	invalidations atomic.Int64
}

func newScriptedAssessor(scores ...int) *scriptedAssessor {
	return &scriptedAssessor{
		scores: scores,
		features: features.Vector{
			ContributorConcentrationRisk: 0.2,
			SentimentNormalized:          0.6,
		},
	}
}

func (a *scriptedAssessor) Assess(ctx context.Context, projectID string, chainID int64, contractAddress string) *engine.Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	score := a.scores[len(a.scores)-1]
	if a.next < len(a.scores) {
		score = a.scores[a.next]
		a.next++
	}
	if score < 0 {
		return nil
	}

	m := model.New(model.DefaultConfig())
	return &engine.Result{
		ProjectID:         projectID,
		Timestamp:         time.Now(),
		RiskLevel:         m.ClassifyRiskLevel(score),
		RiskScore:         model.RiskScore{Overall: score},
		DataSourcesUsed:   []pipeline.DataSourceType{pipeline.SourceOnChain, pipeline.SourceOffChain},
		AssessmentVersion: engine.Version,
		Features:          a.features,
	}
}

func (a *scriptedAssessor) InvalidateProjectCache(projectID string, chainID int64) {
	a.invalidations.Add(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSessionReuseAndSubscriberCounting(t *testing.T) {
	m := New(newScriptedAssessor(75), testLogger())
	defer m.Close()

	first := m.StartMonitoring("proj-1", 1, time.Hour)
	second := m.StartMonitoring("proj-1", 1, time.Hour)

	if first.SessionID != second.SessionID {
		t.Errorf("same project should share a session: %s vs %s", first.SessionID, second.SessionID)
	}
	if second.SubscriberCount != 2 {
		t.Errorf("subscriber count = %d, want 2", second.SubscriberCount)
	}

	// One stop keeps the session alive.
	m.StopMonitoring(first.SessionID)
	if _, ok := m.GetSession(first.SessionID); !ok {
		t.Fatal("session should survive first stop")
	}

	// Second stop tears it down.
	m.StopMonitoring(first.SessionID)
	if _, ok := m.GetSession(first.SessionID); ok {
		t.Fatal("session should be gone after last stop")
	}

	// Stopping again is a no-op.
	m.StopMonitoring(first.SessionID)
}

func TestDifferentProjectsGetDifferentSessions(t *testing.T) {
	m := New(newScriptedAssessor(75), testLogger())
	defer m.Close()

	a := m.StartMonitoring("proj-a", 1, time.Hour)
	b := m.StartMonitoring("proj-b", 1, time.Hour)
	if a.SessionID == b.SessionID {
		t.Error("different projects must not share sessions")
	}

	ids := m.ActiveSessionIDs()
	if len(ids) != 2 {
		t.Errorf("expected 2 active sessions, got %d", len(ids))
	}
}

func TestCriticalScoreDropAlert(t *testing.T) {
	assessor := newScriptedAssessor(80, 68)
	m := New(assessor, testLogger())
	defer m.Close()

	var mu sync.Mutex
	var alerts []Alert
	unsubscribe := m.OnAlert("proj-1", func(a Alert) {
		mu.Lock()
		alerts = append(alerts, a)
		mu.Unlock()
	})
	defer unsubscribe()

	m.StartMonitoring("proj-1", 1, 30*time.Millisecond)

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(alerts) >= 1
	})

	mu.Lock()
	defer mu.Unlock()
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %d: %+v", len(alerts), alerts)
	}

	alert := alerts[0]
	if alert.Type != AlertScoreDrop || alert.Severity != SeverityCritical {
		t.Errorf("alert = %s/%s, want SCORE_DROP/CRITICAL", alert.Type, alert.Severity)
	}
	if alert.PreviousScore != 80 || alert.CurrentScore != 68 || alert.Delta != -12 {
		t.Errorf("alert scores prev=%d cur=%d delta=%d, want 80/68/-12",
			alert.PreviousScore, alert.CurrentScore, alert.Delta)
	}
}

func TestWarningScoreDropAndImprovement(t *testing.T) {
	// 70 -> 64 is a warning drop, 64 -> 75 an improvement.
	assessor := newScriptedAssessor(70, 64, 75)
	m := New(assessor, testLogger())
	defer m.Close()

	var mu sync.Mutex
	var alerts []Alert
	m.OnAlert("proj-1", func(a Alert) {
		mu.Lock()
		alerts = append(alerts, a)
		mu.Unlock()
	})

	m.StartMonitoring("proj-1", 1, 30*time.Millisecond)

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(alerts) >= 2
	})

	mu.Lock()
	defer mu.Unlock()
	if alerts[0].Type != AlertScoreDrop || alerts[0].Severity != SeverityWarning {
		t.Errorf("first alert = %s/%s, want SCORE_DROP/WARNING", alerts[0].Type, alerts[0].Severity)
	}
	if alerts[1].Type != AlertScoreImprovement || alerts[1].Severity != SeverityInfo {
		t.Errorf("second alert = %s/%s, want SCORE_IMPROVEMENT/INFO", alerts[1].Type, alerts[1].Severity)
	}
}

func TestWhaleAndSentimentAlerts(t *testing.T) {
	assessor := newScriptedAssessor(70)
	assessor.features = features.Vector{
		ContributorConcentrationRisk: 0.55,
		SentimentNormalized:          0.2,
	}
	m := New(assessor, testLogger())
	defer m.Close()

	var mu sync.Mutex
	byType := make(map[AlertType]Alert)
	m.OnAlert("proj-1", func(a Alert) {
		mu.Lock()
		byType[a.Type] = a
		mu.Unlock()
	})

	m.StartMonitoring("proj-1", 1, time.Hour)

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(byType) >= 2
	})

	mu.Lock()
	defer mu.Unlock()
	whale, ok := byType[AlertWhaleConcentration]
	if !ok || whale.Severity != SeverityWarning {
		t.Errorf("expected WARNING whale concentration alert, got %+v", byType)
	}
	sentiment, ok := byType[AlertCommunitySentimentDrop]
	if !ok || sentiment.Severity != SeverityWarning {
		t.Errorf("expected WARNING sentiment alert, got %+v", byType)
	}
}

func TestSnapshotSubscriptionAndUnsubscribe(t *testing.T) {
	m := New(newScriptedAssessor(70), testLogger())
	defer m.Close()

	var count atomic.Int64
	unsubscribe := m.OnSnapshot("proj-1", func(Snapshot) {
		count.Add(1)
	})

	m.StartMonitoring("proj-1", 1, 30*time.Millisecond)

	waitFor(t, 2*time.Second, func() bool { return count.Load() >= 2 })

	unsubscribe()
	settled := count.Load()
	time.Sleep(150 * time.Millisecond)
	// A tick may have been mid-flight when we unsubscribed.
	if count.Load() > settled+1 {
		t.Errorf("callback still firing after unsubscribe: %d -> %d", settled, count.Load())
	}
}

func TestFailedPollKeepsSessionAlive(t *testing.T) {
	// First poll fails, later polls succeed.
	assessor := newScriptedAssessor(-1, 70)
	m := New(assessor, testLogger())
	defer m.Close()

	info := m.StartMonitoring("proj-1", 1, 30*time.Millisecond)

	waitFor(t, 2*time.Second, func() bool {
		return len(m.GetRecentSnapshots("proj-1", 10)) >= 1
	})

	session, ok := m.GetSession(info.SessionID)
	if !ok || !session.IsActive {
		t.Error("session should stay active through failed polls")
	}
}

func TestGetRecentSnapshotsLimit(t *testing.T) {
	m := New(newScriptedAssessor(70), testLogger())
	defer m.Close()

	m.StartMonitoring("proj-1", 1, 20*time.Millisecond)

	waitFor(t, 2*time.Second, func() bool {
		return len(m.GetRecentSnapshots("proj-1", 100)) >= 4
	})

	limited := m.GetRecentSnapshots("proj-1", 2)
	if len(limited) != 2 {
		t.Errorf("expected 2 snapshots, got %d", len(limited))
	}

	if m.GetRecentSnapshots("no-such-project", 10) != nil {
		t.Error("unknown project should have no snapshots")
	}
}

func TestInvalidateCalledEveryPoll(t *testing.T) {
	assessor := newScriptedAssessor(70)
	m := New(assessor, testLogger())
	defer m.Close()

	m.StartMonitoring("proj-1", 1, 20*time.Millisecond)

	waitFor(t, 2*time.Second, func() bool { return assessor.invalidations.Load() >= 3 })
}

func TestAnalyzeTrend(t *testing.T) {
	snap := func(score int) Snapshot { return Snapshot{RiskScore: score} }

	tests := []struct {
		name      string
		snapshots []Snapshot
		direction TrendDirection
	}{
		{"empty", nil, TrendStable},
		{"single", []Snapshot{snap(70)}, TrendStable},
		{"flat", []Snapshot{snap(70), snap(71)}, TrendStable},
		{"improving", []Snapshot{snap(60), snap(65), snap(72)}, TrendImproving},
		{"declining", []Snapshot{snap(72), snap(65), snap(60)}, TrendDeclining},
		// Only the last five snapshots count.
		{"windowed", []Snapshot{snap(90), snap(50), snap(52), snap(54), snap(56), snap(58)}, TrendImproving},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			direction, strength := analyzeTrend(tt.snapshots)
			if direction != tt.direction {
				t.Errorf("direction = %s, want %s", direction, tt.direction)
			}
			if strength < 0 || strength > 1 {
				t.Errorf("strength %f out of [0,1]", strength)
			}
		})
	}
}

func TestTrendStrengthScaling(t *testing.T) {
	snap := func(score int) Snapshot { return Snapshot{RiskScore: score} }

	// Delta of 10 over the window maps to strength 0.5.
	_, strength := analyzeTrend([]Snapshot{snap(60), snap(70)})
	if strength != 0.5 {
		t.Errorf("strength = %f, want 0.5", strength)
	}

	// Deltas beyond 20 clamp at 1.
	_, strength = analyzeTrend([]Snapshot{snap(40), snap(90)})
	if strength != 1 {
		t.Errorf("strength = %f, want 1", strength)
	}
}

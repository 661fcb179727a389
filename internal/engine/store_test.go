package engine

import (
	"context"
	"testing"
	"time"

	"github.com/crowdguard/crowdguard/internal/model"
	"github.com/crowdguard/crowdguard/internal/pipeline"
	"github.com/crowdguard/crowdguard/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult(projectID string, overall int) *Result {
	return &Result{
		ProjectID: projectID,
		Timestamp: time.Now(),
		RiskLevel: model.RiskMedium,
		RiskScore: model.RiskScore{Overall: overall},
		SuccessPrediction: model.SuccessPrediction{
			Probability:  0.61,
			ModelVersion: "1.4.0",
		},
		DataSourcesUsed:   []pipeline.DataSourceType{pipeline.SourceOnChain, pipeline.SourceOffChain},
		AssessmentVersion: Version,
	}
}

func TestMemoryStoreRoundtrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, testResult("proj-1", 55)))
	require.NoError(t, store.Record(ctx, testResult("proj-1", 60)))
	require.NoError(t, store.Record(ctx, testResult("proj-2", 40)))

	rows, err := store.ListByProject(ctx, "proj-1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Newest first.
	assert.Equal(t, 60, rows[0].Overall)
	assert.Equal(t, 55, rows[1].Overall)
	assert.Equal(t, "MEDIUM", rows[0].RiskLevel)
	assert.NotEmpty(t, rows[0].ID)
	assert.NotEmpty(t, rows[0].Payload)
}

func TestMemoryStoreLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, testResult("proj-1", 50+i)))
	}

	rows, err := store.ListByProject(ctx, "proj-1", 3)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, 54, rows[0].Overall)
}

func TestPostgresStoreRoundtrip(t *testing.T) {
	db := testutil.OpenTestDB(t)

	store := NewPostgresStore(db)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, testResult("proj-pg", 72)))
	require.NoError(t, store.Record(ctx, testResult("proj-pg", 68)))

	rows, err := store.ListByProject(ctx, "proj-pg", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "proj-pg", rows[0].ProjectID)
	assert.Equal(t, "1.4.0", rows[0].ModelVersion)
	assert.NotEmpty(t, rows[0].Payload)
}

package badges

import (
	"context"
	"testing"
	"time"

	"github.com/gdg-garage/observe-api/internal/models"
	"github.com/gdg-garage/observe-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	engine := NewEngine(testutil.NewDB(t), &staticObservations{}, nil, zap.NewNop())

	_, err := NewScheduler(engine, "every now and then", zap.NewNop())
	assert.Error(t, err)
}

func TestSchedulerRunsEngine(t *testing.T) {
	db := testutil.NewDB(t)
	createBadge(t, db, "First steps", `{"metric": "numObservations", "threshold": 1}`)

	source := &staticObservations{observations: []models.Observation{obs("alice", t1)}}
	engine := NewEngine(db, source, nil, zap.NewNop())

	scheduler, err := NewScheduler(engine, "@every 1s", zap.NewNop())
	require.NoError(t, err)
	scheduler.Start()

	require.Eventually(t, func() bool {
		var count int64
		if err := db.Model(&models.BadgeUser{}).Count(&count).Error; err != nil {
			return false
		}
		return count == 1
	}, 5*time.Second, 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	scheduler.Stop(ctx)
}

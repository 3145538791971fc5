package queue

import (
	"context"
	"fmt"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	broker, err := NewBroker(newTestDB(t), common.GetLogger())
	require.NoError(t, err)
	return broker
}

func newTask(jobID string, priority int) *models.TaskEnvelope {
	return &models.TaskEnvelope{
		TaskID:    common.NewTaskID(),
		JobID:     jobID,
		ArticleID: common.NewArticleID(),
		URL:       "https://example.com/article",
		Source:    "example",
		Category:  "tech",
		Priority:  priority,
	}
}

func TestPushPopFIFO(t *testing.T) {
	broker := newTestBroker(t)
	ctx := context.Background()

	first := newTask("job_aaa", 5)
	second := newTask("job_aaa", 5)
	require.NoError(t, broker.Push(ctx, models.LaneMedium, first))
	require.NoError(t, broker.Push(ctx, models.LaneMedium, second))

	got, err := broker.Pop(ctx, models.LaneMedium)
	require.NoError(t, err)
	assert.Equal(t, first.TaskID, got.TaskID)

	got, err = broker.Pop(ctx, models.LaneMedium)
	require.NoError(t, err)
	assert.Equal(t, second.TaskID, got.TaskID)

	_, err = broker.Pop(ctx, models.LaneMedium)
	assert.ErrorIs(t, err, interfaces.ErrNoTask)
}

func TestPopHighestPriorityStrictOrder(t *testing.T) {
	broker := newTestBroker(t)
	ctx := context.Background()

	low := newTask("job_low", 9)
	med := newTask("job_med", 5)
	high := newTask("job_high", 1)

	require.NoError(t, broker.Push(ctx, models.LaneLow, low))
	require.NoError(t, broker.Push(ctx, models.LaneMedium, med))
	require.NoError(t, broker.Push(ctx, models.LaneHigh, high))

	got, err := broker.PopHighestPriority(ctx)
	require.NoError(t, err)
	assert.Equal(t, high.TaskID, got.TaskID)

	got, err = broker.PopHighestPriority(ctx)
	require.NoError(t, err)
	assert.Equal(t, med.TaskID, got.TaskID)

	got, err = broker.PopHighestPriority(ctx)
	require.NoError(t, err)
	assert.Equal(t, low.TaskID, got.TaskID)

	_, err = broker.PopHighestPriority(ctx)
	assert.ErrorIs(t, err, interfaces.ErrNoTask)
}

func TestRemoveJobTasks(t *testing.T) {
	broker := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, broker.Push(ctx, models.LaneHigh, newTask("job_victim", 1)))
	require.NoError(t, broker.Push(ctx, models.LaneMedium, newTask("job_victim", 5)))
	require.NoError(t, broker.Push(ctx, models.LaneMedium, newTask("job_other", 5)))

	removed, err := broker.RemoveJobTasks(ctx, "job_victim")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	got, err := broker.PopHighestPriority(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job_other", got.JobID)
}

func TestLengths(t *testing.T) {
	broker := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, broker.Push(ctx, models.LaneHigh, newTask("job_a", 1)))
	require.NoError(t, broker.Push(ctx, models.LaneHigh, newTask("job_a", 2)))
	require.NoError(t, broker.Push(ctx, models.LaneLow, newTask("job_a", 10)))

	lengths, err := broker.Lengths(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, lengths[models.LaneHigh])
	assert.Equal(t, 0, lengths[models.LaneMedium])
	assert.Equal(t, 1, lengths[models.LaneLow])
}

func TestMalformedEnvelopeDropped(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Plant garbage ahead of a valid task in the same lane
	garbageKey := []byte(fmt.Sprintf("%shigh:%020d", laneKeyPrefix, 1))
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set(garbageKey, []byte("not json"))
	}))

	broker, err := NewBroker(db, common.GetLogger())
	require.NoError(t, err)

	valid := newTask("job_good", 1)
	require.NoError(t, broker.Push(ctx, models.LaneHigh, valid))

	got, err := broker.Pop(ctx, models.LaneHigh)
	require.NoError(t, err)
	assert.Equal(t, valid.TaskID, got.TaskID)

	// The garbage entry must be gone as well
	lengths, err := broker.Lengths(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, lengths[models.LaneHigh])
}

func TestSequenceRecoveryAcrossRestart(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	broker, err := NewBroker(db, common.GetLogger())
	require.NoError(t, err)

	first := newTask("job_a", 1)
	require.NoError(t, broker.Push(ctx, models.LaneHigh, first))

	// A new broker over the same DB must continue the sequence, keeping FIFO
	reopened, err := NewBroker(db, common.GetLogger())
	require.NoError(t, err)

	second := newTask("job_a", 1)
	require.NoError(t, reopened.Push(ctx, models.LaneHigh, second))

	got, err := reopened.Pop(ctx, models.LaneHigh)
	require.NoError(t, err)
	assert.Equal(t, first.TaskID, got.TaskID)

	got, err = reopened.Pop(ctx, models.LaneHigh)
	require.NoError(t, err)
	assert.Equal(t, second.TaskID, got.TaskID)
}

func TestPushRejectsInvalidEnvelope(t *testing.T) {
	broker := newTestBroker(t)
	ctx := context.Background()

	bad := newTask("job_a", 1)
	bad.URL = ""
	assert.Error(t, broker.Push(ctx, models.LaneHigh, bad))
}

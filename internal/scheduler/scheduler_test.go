package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/queue"
	"github.com/ternarybob/colligo/internal/services/events"
	storagebadger "github.com/ternarybob/colligo/internal/storage/badger"
)

// updateRecorder captures every progress frame the bus delivers so tests
// can assert exact emission counts
type updateRecorder struct {
	mu     sync.Mutex
	frames []models.JobUpdateEvent
}

func (r *updateRecorder) record(ctx context.Context, event interfaces.Event) error {
	evt, ok := event.Payload.(models.JobUpdateEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", event.Payload)
	}
	r.mu.Lock()
	r.frames = append(r.frames, evt)
	r.mu.Unlock()
	return nil
}

func (r *updateRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *updateRecorder) last() models.JobUpdateEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[len(r.frames)-1]
}

// testEnv wires real stores, a real broker, and a real event bus over a
// temp-dir Badger database
type testEnv struct {
	articles interfaces.ArticleStorage
	jobs     interfaces.JobStorage
	broker   interfaces.TaskBroker
	events   interfaces.EventService
	updates  *updateRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := common.GetLogger()

	manager, err := storagebadger.NewManager(logger, &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	broker, err := queue.NewBroker(manager.DB(), logger)
	require.NoError(t, err)

	eventService := events.NewService(logger)
	t.Cleanup(func() { eventService.Close() })

	recorder := &updateRecorder{}
	require.NoError(t, eventService.Subscribe(interfaces.EventJobUpdates, recorder.record))

	return &testEnv{
		articles: manager.ArticleStorage(),
		jobs:     manager.JobStorage(),
		broker:   broker,
		events:   eventService,
		updates:  recorder,
	}
}

func (e *testEnv) newAdmitter() *Admitter {
	return NewAdmitter(e.articles, e.jobs, e.broker, e.events, common.GetLogger())
}

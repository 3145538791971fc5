package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

const (
	laneKeyPrefix = "scraping_tasks:priority:"

	// Badger write transactions conflict under concurrent pops; retried here
	maxTxnRetries = 5
)

// Broker implements a persistent three-lane priority queue over raw Badger
// keys. Each lane is FIFO: keys carry a zero-padded per-lane sequence number
// so Badger's lexicographic iteration order is enqueue order. Strict priority
// means the low lane starves while higher lanes have work; that is the
// intended contract, not a fairness bug.
type Broker struct {
	db     *badger.DB
	logger arbor.ILogger

	mu  sync.Mutex
	seq map[models.Lane]uint64
}

// NewBroker creates a broker over an existing Badger handle. Sequence
// counters are recovered from any tasks that survived a restart.
func NewBroker(db *badger.DB, logger arbor.ILogger) (*Broker, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}

	b := &Broker{
		db:     db,
		logger: logger,
		seq:    make(map[models.Lane]uint64),
	}

	if err := b.recoverSequences(); err != nil {
		return nil, fmt.Errorf("failed to recover lane sequences: %w", err)
	}

	return b, nil
}

// Push appends a task to the back of a lane
func (b *Broker) Push(ctx context.Context, lane models.Lane, task *models.TaskEnvelope) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("refusing to enqueue invalid task: %w", err)
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task envelope: %w", err)
	}

	b.mu.Lock()
	b.seq[lane]++
	key := laneKey(lane, b.seq[lane])
	b.mu.Unlock()

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	b.logger.Debug().
		Str("task_id", task.TaskID).
		Str("job_id", task.JobID).
		Str("lane", string(lane)).
		Int("retry_count", task.RetryCount).
		Msg("Task enqueued")

	return nil
}

// Pop removes the oldest task from one lane, or ErrNoTask
func (b *Broker) Pop(ctx context.Context, lane models.Lane) (*models.TaskEnvelope, error) {
	var task *models.TaskEnvelope

	err := b.withConflictRetry(func() error {
		task = nil
		return b.db.Update(func(txn *badger.Txn) error {
			prefix := lanePrefix(lane)
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				key := item.KeyCopy(nil)

				var envelope models.TaskEnvelope
				valErr := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &envelope)
				})

				if err := txn.Delete(key); err != nil {
					return err
				}

				if valErr != nil || envelope.Validate() != nil {
					// Malformed envelope: drop it and keep scanning
					b.logger.Warn().
						Str("key", string(key)).
						Str("lane", string(lane)).
						Msg("Dropping malformed task envelope")
					continue
				}

				task = &envelope
				return nil
			}

			return interfaces.ErrNoTask
		})
	})

	if err != nil {
		return nil, err
	}
	return task, nil
}

// PopHighestPriority drains lanes in strict high -> medium -> low order
func (b *Broker) PopHighestPriority(ctx context.Context) (*models.TaskEnvelope, error) {
	for _, lane := range models.Lanes() {
		task, err := b.Pop(ctx, lane)
		if err == nil {
			return task, nil
		}
		if !errors.Is(err, interfaces.ErrNoTask) {
			return nil, err
		}
	}
	return nil, interfaces.ErrNoTask
}

// RemoveJobTasks deletes all queued tasks belonging to a job. The scan is
// O(total queue depth), which is acceptable for a cancel path.
func (b *Broker) RemoveJobTasks(ctx context.Context, jobID string) (int, error) {
	removed := 0

	for _, lane := range models.Lanes() {
		laneRemoved := 0
		err := b.withConflictRetry(func() error {
			laneRemoved = 0
			return b.db.Update(func(txn *badger.Txn) error {
				prefix := lanePrefix(lane)
				opts := badger.DefaultIteratorOptions
				opts.Prefix = prefix
				it := txn.NewIterator(opts)
				defer it.Close()

				for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
					item := it.Item()

					var envelope models.TaskEnvelope
					valErr := item.Value(func(val []byte) error {
						return json.Unmarshal(val, &envelope)
					})
					if valErr != nil {
						continue
					}
					if envelope.JobID != jobID {
						continue
					}

					if err := txn.Delete(item.KeyCopy(nil)); err != nil {
						return err
					}
					laneRemoved++
				}
				return nil
			})
		})
		if err != nil {
			return removed, fmt.Errorf("failed to remove tasks from %s lane: %w", lane, err)
		}
		removed += laneRemoved
	}

	if removed > 0 {
		b.logger.Info().
			Str("job_id", jobID).
			Int("removed", removed).
			Msg("Removed queued tasks for job")
	}

	return removed, nil
}

// Lengths returns the current depth of each lane
func (b *Broker) Lengths(ctx context.Context) (map[models.Lane]int, error) {
	lengths := make(map[models.Lane]int, 3)

	err := b.db.View(func(txn *badger.Txn) error {
		for _, lane := range models.Lanes() {
			prefix := lanePrefix(lane)
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)

			count := 0
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				count++
			}
			it.Close()
			lengths[lane] = count
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read lane lengths: %w", err)
	}

	return lengths, nil
}

// Close closes the broker (no-op, the DB is managed externally)
func (b *Broker) Close() error {
	return nil
}

// withConflictRetry reruns fn while Badger reports a transaction conflict
func (b *Broker) withConflictRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = fn()
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// recoverSequences scans each lane for its highest persisted sequence number
func (b *Broker) recoverSequences() error {
	return b.db.View(func(txn *badger.Txn) error {
		for _, lane := range models.Lanes() {
			prefix := lanePrefix(lane)
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)

			var max uint64
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if seq, ok := parseSequence(it.Item().Key()); ok && seq > max {
					max = seq
				}
			}
			it.Close()

			b.seq[lane] = max
		}
		return nil
	})
}

func lanePrefix(lane models.Lane) []byte {
	return []byte(laneKeyPrefix + string(lane) + ":")
}

func laneKey(lane models.Lane, seq uint64) []byte {
	// Zero pad to 20 digits so string ordering matches numeric ordering
	return []byte(fmt.Sprintf("%s%s:%020d", laneKeyPrefix, lane, seq))
}

func parseSequence(key []byte) (uint64, bool) {
	s := string(key)
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 || idx == len(s)-1 {
		return 0, false
	}
	seq, err := strconv.ParseUint(s[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

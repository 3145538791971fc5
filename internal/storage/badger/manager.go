package badger

import (
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// Manager wires the Badger connection and its typed stores together.
// The article store, job store, and task broker all share one database
// directory; the broker gets the raw *badger.DB via DB().
type Manager struct {
	db       *BadgerDB
	articles interfaces.ArticleStorage
	jobs     interfaces.JobStorage
	logger   arbor.ILogger
}

// NewManager opens the database and initializes all stores
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize badger: %w", err)
	}

	return &Manager{
		db:       db,
		articles: NewArticleStorage(db, logger),
		jobs:     NewJobStorage(db, logger),
		logger:   logger,
	}, nil
}

// ArticleStorage returns the article store
func (m *Manager) ArticleStorage() interfaces.ArticleStorage {
	return m.articles
}

// JobStorage returns the job store
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.jobs
}

// DB exposes the raw badger handle for the task broker
func (m *Manager) DB() *badgerdb.DB {
	return m.db.Store().Badger()
}

// Close closes the database connection
func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing storage manager")
	return m.db.Close()
}

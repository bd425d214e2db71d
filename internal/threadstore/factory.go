package threadstore

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/changesmith/internal/config"
	"github.com/changesmith/internal/conversation"
)

// NewFromConfig builds the thread store selected by configuration: the
// postgres store when a database handle is available, otherwise the file
// store. The result is always wrapped in an LRU read cache.
func NewFromConfig(cfg config.StoreConfig, db *sql.DB) (conversation.Store, error) {
	var inner conversation.Store
	switch {
	case cfg.Backend == "postgres" && db != nil:
		store, err := NewPostgresStore(db)
		if err != nil {
			return nil, fmt.Errorf("initializing postgres thread store: %w", err)
		}
		inner = store
		log.Info().Msg("Using postgres thread store")
	default:
		if cfg.Backend == "postgres" {
			log.Warn().Msg("Postgres backend requested but no database available, falling back to file store")
		}
		store, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("initializing file thread store: %w", err)
		}
		inner = store
		log.Info().Str("dir", cfg.Dir).Msg("Using file thread store")
	}
	return NewCachedStore(inner, cfg.CacheSize)
}

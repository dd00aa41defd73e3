package store

import (
	"appideas.app/engine/core/db"
)

type Stores struct {
	conn db.DBTX
}

// NewStores builds stores over a pool or an open transaction.
func NewStores(conn db.DBTX) *Stores {
	return &Stores{conn: conn}
}

func (s *Stores) Analyses() AnalysisStore {
	return newAnalysisStore(s.conn)
}

func (s *Stores) TokenUsage() TokenUsageStore {
	return newTokenUsageStore(s.conn)
}

func (s *Stores) Runs() RunStore {
	return newRunStore(s.conn)
}

func (s *Stores) Users() UserStore {
	return newUserStore(s.conn)
}

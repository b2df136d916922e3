package browser

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/smazurov/browserpool/internal/logging"
	"github.com/smazurov/browserpool/internal/registry"
)

// Session is one page inside a unit's browser.
type Session struct {
	ID     int
	UnitID int
	Page   Page
}

// Name returns "<unit>_<session>".
func (s *Session) Name() string {
	return fmt.Sprintf("%d_%d", s.UnitID, s.ID)
}

// sessionFactory creates pages in one browser and keeps the registry's
// session count equal to the number of live sessions.
type sessionFactory struct {
	unitID   int
	instance Instance
	page     PageOptions
	registry *registry.Registry
	logger   logging.Logger
	nextID   atomic.Int64
}

func (f *sessionFactory) Create(ctx context.Context) (*Session, error) {
	id := int(f.nextID.Add(1))
	f.logger.Debug("Creating session", "session", fmt.Sprintf("%d_%d", f.unitID, id))

	page, err := f.instance.NewPage(ctx, f.page)
	if err != nil {
		return nil, fmt.Errorf("unit %d: %w", f.unitID, err)
	}

	f.registry.AddSessions(f.unitID, 1)
	return &Session{ID: id, UnitID: f.unitID, Page: page}, nil
}

func (f *sessionFactory) Destroy(_ context.Context, s *Session) error {
	f.logger.Debug("Destroying session", "session", s.Name())
	f.registry.AddSessions(f.unitID, -1)
	if err := s.Page.Close(); err != nil {
		return fmt.Errorf("close session %s: %w", s.Name(), err)
	}
	return nil
}

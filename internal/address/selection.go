package address

import (
	"context"
	"sync"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

// Snapshot is the selection as seen by downstream checkout steps.
type Snapshot struct {
	ID       int64
	Selected bool
}

type Fetcher interface {
	GetAddress(ctx context.Context, id int64) (*types.Address, error)
}

// Selection tracks which shipping address the shopper picked. Only the id
// is held; the full record is fetched on demand.
type Selection struct {
	fetcher Fetcher
	logger  *logger.Logger

	mu       sync.RWMutex
	id       int64
	selected bool
}

func NewSelection(fetcher Fetcher, logg *logger.Logger) (*Selection, error) {
	if fetcher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "address fetcher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Selection{fetcher: fetcher, logger: logg}, nil
}

// Select marks id as chosen. A zero id clears the selection but keeps the
// previously stored id.
func (s *Selection) Select(id int64) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == 0 {
		s.selected = false
	} else {
		s.id = id
		s.selected = true
	}
	return Snapshot{ID: s.id, Selected: s.selected}
}

// Require returns the selection or a validation error when none is active.
func (s *Selection) Require() (Snapshot, error) {
	snap := s.Snapshot()
	if !snap.Selected {
		return snap, pkgerrors.New(pkgerrors.CodeValidation, "please select an address")
	}
	return snap, nil
}

func (s *Selection) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{ID: s.id, Selected: s.selected}
}

// Lookup fetches the full address record for id.
func (s *Selection) Lookup(ctx context.Context, id int64) (*types.Address, error) {
	if id <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "please select an address")
	}
	addr, err := s.fetcher.GetAddress(ctx, id)
	if err != nil {
		s.logger.Warn(s.logger.WithField(ctx, "address_id", id), "address lookup failed")
		return nil, err
	}
	if addr == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}
	return addr, nil
}

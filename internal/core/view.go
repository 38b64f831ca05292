package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"tracceaqua/pkg/domain"
)

// ErrSuperseded is returned by View.Refresh when a newer refresh started
// before this one resolved. The stale result is discarded.
var ErrSuperseded = errors.New("core: refresh superseded by a newer request")

// View holds the latest batch summaries for one consumer. Only the most
// recent Refresh may publish; older in-flight refreshes are cancelled.
type View struct {
	svc *Service

	mu        sync.Mutex
	gen       uint64
	cancel    context.CancelFunc
	batches   []domain.BatchSummary
	err       error
	updatedAt time.Time
}

// NewView constructs a view backed by svc.
func NewView(svc *Service) *View {
	return &View{svc: svc}
}

// Refresh re-runs the pipeline for q. A failed fetch clears the published
// batches; there is no partial state.
func (v *View) Refresh(ctx context.Context, q BatchQuery) ([]domain.BatchSummary, error) {
	v.mu.Lock()
	v.gen++
	gen := v.gen
	if v.cancel != nil {
		v.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.mu.Unlock()

	batches, err := v.svc.Batches(runCtx, q)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return nil, ErrSuperseded
	}
	cancel()
	v.cancel = nil
	v.updatedAt = v.svc.now()
	if err != nil {
		v.batches = nil
		v.err = err
		return nil, err
	}
	v.batches = batches
	v.err = nil
	return cloneBatches(batches), nil
}

// ViewState is a snapshot of a View.
type ViewState struct {
	Batches   []domain.BatchSummary
	Err       error
	UpdatedAt time.Time
}

// Current returns the last published state.
func (v *View) Current() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return ViewState{Batches: cloneBatches(v.batches), Err: v.err, UpdatedAt: v.updatedAt}
}

func cloneBatches(in []domain.BatchSummary) []domain.BatchSummary {
	if in == nil {
		return nil
	}
	out := make([]domain.BatchSummary, len(in))
	copy(out, in)
	return out
}

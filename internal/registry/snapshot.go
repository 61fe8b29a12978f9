package registry

import (
	"iter"

	"github.com/google/uuid"

	"github.com/acme/hotline/internal/domain"
)

// snapshot is an immutable copy of the registry; it is never modified after publish.
type snapshot struct {
	calls   []domain.Call
	idIndex map[uuid.UUID]int
	handles map[string]int
}

func emptySnapshot() *snapshot {
	return &snapshot{
		idIndex: map[uuid.UUID]int{},
		handles: map[string]int{},
	}
}

// publish rebuilds the snapshot from the owned state. Callers hold r.mu.
func (r *Registry) publish() {
	s := &snapshot{
		calls:   make([]domain.Call, 0, len(r.order)),
		idIndex: make(map[uuid.UUID]int, len(r.order)),
		handles: make(map[string]int, len(r.byHandle)),
	}
	for _, id := range r.order {
		s.idIndex[id] = len(s.calls)
		s.calls = append(s.calls, r.calls[id].Clone())
	}
	for handle, id := range r.byHandle {
		s.handles[handle] = s.idIndex[id]
	}
	r.snap.Store(s)
}

func (s *snapshot) byID(id uuid.UUID) (domain.Call, bool) {
	idx, ok := s.idIndex[id]
	if !ok {
		return domain.Call{}, false
	}
	return s.calls[idx].Clone(), true
}

func (s *snapshot) byHandle(handle string) (domain.Call, bool) {
	idx, ok := s.handles[handle]
	if !ok {
		return domain.Call{}, false
	}
	return s.calls[idx].Clone(), true
}

func (s *snapshot) all() iter.Seq[domain.Call] {
	return func(yield func(domain.Call) bool) {
		for _, c := range s.calls {
			if !yield(c.Clone()) {
				return
			}
		}
	}
}

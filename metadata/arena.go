package metadata

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"

	"github.com/xapiens/rvpf/rvpferrors"
)

// Handle is a stable integer reference into an Arena, so the graph's
// back-pointers (behavior -> relation, relation -> endpoints) never need
// owning cyclic references.
type Handle uint32

// invalidHandle marks an absent reference.
const invalidHandle Handle = 1<<32 - 1

// Arena owns every Point and PointRelation of one metadata load. It is
// mutable while being built and immutable (frozen) once Freeze succeeds.
type Arena struct {
	points    []*Point
	relations []*PointRelation
	byUUID    map[uuid.UUID]Handle
	byName    map[string]Handle
	frozen    bool
}

// NewArena returns an empty, unfrozen Arena.
func NewArena() *Arena {
	return &Arena{
		byUUID: make(map[uuid.UUID]Handle),
		byName: make(map[string]Handle),
	}
}

// AddPoint registers p and returns its Handle. Must be called before
// Freeze.
func (a *Arena) AddPoint(p *Point) (Handle, error) {
	if a.frozen {
		return 0, fmt.Errorf("metadata: arena already frozen")
	}
	if _, exists := a.byUUID[p.ID]; exists {
		return 0, rvpferrors.NewBadParameter("point.uuid", "duplicate point UUID "+p.ID.String())
	}
	h := Handle(len(a.points))
	p.handle = h
	a.points = append(a.points, p)
	a.byUUID[p.ID] = h
	a.byName[normalizeName(p.Name)] = h
	return h, nil
}

// AddRelation registers rel (input -> result) and returns its Handle. Must
// be called before Freeze.
func (a *Arena) AddRelation(rel *PointRelation) (Handle, error) {
	if a.frozen {
		return 0, fmt.Errorf("metadata: arena already frozen")
	}
	if int(rel.Input) >= len(a.points) || int(rel.Result) >= len(a.points) {
		return 0, rvpferrors.NewBadParameter("relation.endpoint", "relation references an unknown point handle")
	}
	h := Handle(len(a.relations))
	rel.handle = h
	a.relations = append(a.relations, rel)
	a.points[rel.Input].results = append(a.points[rel.Input].results, h)
	a.points[rel.Result].inputs = append(a.points[rel.Result].inputs, h)
	return h, nil
}

// Point returns the point registered at h.
func (a *Arena) Point(h Handle) *Point { return a.points[h] }

// Relation returns the relation registered at h.
func (a *Arena) Relation(h Handle) *PointRelation { return a.relations[h] }

// PointByUUID looks a point up by its UUID.
func (a *Arena) PointByUUID(id uuid.UUID) (Handle, bool) {
	h, ok := a.byUUID[id]
	return h, ok
}

// PointByName looks a point up by its case-insensitive name.
func (a *Arena) PointByName(name string) (Handle, bool) {
	h, ok := a.byName[normalizeName(name)]
	return h, ok
}

// Points returns every registered point, indexed by Handle.
func (a *Arena) Points() []*Point { return a.points }

// Relations returns every registered relation, indexed by Handle.
func (a *Arena) Relations() []*PointRelation { return a.relations }

func normalizeName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// Freeze validates the arena's relation graph and marks it immutable: it
// rejects cycles (reported as a BadParameter, not tolerated) and rejects a
// self-filtered point that also feeds another result (see
// validateSelfInputBehaviors). On success every Point's Params is frozen
// and the arena can no longer accept AddPoint/AddRelation calls.
func (a *Arena) Freeze() error {
	if a.frozen {
		return nil
	}
	if err := a.detectCycles(); err != nil {
		return err
	}
	if err := a.validateSelfInputBehaviors(); err != nil {
		return err
	}
	a.frozen = true
	return nil
}

// detectCycles runs a DFS over the input->result graph, using roaring
// bitmaps keyed by Handle for the visited and on-stack sets.
func (a *Arena) detectCycles() error {
	visited := roaring.New()
	onStack := roaring.New()

	var visit func(h Handle) error
	visit = func(h Handle) error {
		if visited.Contains(uint32(h)) {
			return nil
		}
		visited.Add(uint32(h))
		onStack.Add(uint32(h))
		defer onStack.Remove(uint32(h))

		for _, relHandle := range a.points[h].results {
			rel := a.relations[relHandle]
			next := rel.Result
			if next == h {
				// A relation from a point to itself (e.g. a self-filtering
				// StepFilteredBehavior) is not a recursion cycle: the batch
				// engine re-triggers it from the next notice, not from
				// within the same evaluation. validateSelfInputBehaviors
				// governs this case instead.
				continue
			}
			if onStack.Contains(uint32(next)) {
				return rvpferrors.NewBadParameter(
					"relation.graph",
					fmt.Sprintf("cycle detected through point %q", a.points[next].Name),
				)
			}
			if err := visit(next); err != nil {
				return err
			}
		}
		return nil
	}

	for h := range a.points {
		if err := visit(Handle(h)); err != nil {
			return err
		}
	}
	return nil
}

// validateSelfInputBehaviors rejects a point whose sole input is itself
// under StepFilteredBehavior (or DeadbandFilteredBehavior, the other
// self-filtering behavior) if any other result also depends on it.
func (a *Arena) validateSelfInputBehaviors() error {
	for h, p := range a.points {
		selfFiltered := false
		for _, relHandle := range p.inputs {
			rel := a.relations[relHandle]
			if rel.Input == Handle(h) && (rel.Behavior == BehaviorStepFiltered || rel.Behavior == BehaviorDeadbandFiltered) {
				selfFiltered = true
			}
		}
		if !selfFiltered {
			continue
		}
		for _, relHandle := range p.results {
			rel := a.relations[relHandle]
			if rel.Result != Handle(h) {
				return rvpferrors.NewBadParameter(
					"relation.self_filter",
					fmt.Sprintf("point %q self-filters and cannot have additional dependents", p.Name),
				)
			}
		}
	}
	return nil
}

package processor

import (
	"github.com/google/uuid"

	"github.com/xapiens/rvpf/metadata"
	"github.com/xapiens/rvpf/rvpferrors"
)

// ResolveEngine maps a point's TransformSpec to the Engine family
// member it configures.
func ResolveEngine(spec metadata.TransformSpec, arena *metadata.Arena) (Engine, error) {
	switch spec.Name {
	case "", "null", "identity":
		return NullEngine{}, nil
	case "step_filter":
		return StepFilterEngine{}, nil
	case "deadband_filter":
		return DeadbandFilterEngine{}, nil
	case "resynchronizer":
		return ResynchronizerEngine{}, nil
	case "splitter":
		targets, err := splitterTargets(spec.Params, arena)
		if err != nil {
			return nil, err
		}
		return SplitterEngine{Targets: targets}, nil
	default:
		return nil, rvpferrors.NewBadParameter("transform.name", "unknown transform "+spec.Name)
	}
}

func splitterTargets(p metadata.Params, arena *metadata.Arena) ([]uuid.UUID, error) {
	names := p.GetAll("targets")
	out := make([]uuid.UUID, 0, len(names))
	for _, n := range names {
		s, ok := n.StringValue()
		if !ok {
			return nil, rvpferrors.NewBadParameter("transform.targets", "splitter targets must be strings")
		}
		h, found := arena.PointByName(s)
		if !found {
			return nil, rvpferrors.NewBadParameter("transform.targets", "unknown splitter target "+s)
		}
		out = append(out, arena.Point(h).ID)
	}
	return out, nil
}

package metadata

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"github.com/xapiens/rvpf/rvpferrors"
	"github.com/xapiens/rvpf/value"
)

// fileFormat is the on-disk TOML shape metadata is loaded from, using
// the same pelletier/go-toml/v2 loader as the per-process config files.
type fileFormat struct {
	Points    []filePoint    `toml:"points"`
	Relations []fileRelation `toml:"relations"`
}

type filePoint struct {
	ID            string              `toml:"id"`
	Name          string              `toml:"name"`
	Unit          string              `toml:"unit"`
	Type          string              `toml:"type"`
	Origin        string              `toml:"origin"`
	Store         string              `toml:"store"`
	TransformName string              `toml:"transform_name"`
	Params        map[string][]string `toml:"params"`
}

type fileRelation struct {
	Input    string              `toml:"input"`
	Result   string              `toml:"result"`
	Behavior string              `toml:"behavior"`
	CronExpr string              `toml:"cron"`
	Zone     string              `toml:"zone"`
	PeriodMS int64               `toml:"period_ms"`
	OffsetMS int64               `toml:"offset_ms"`
	Params   map[string][]string `toml:"params"`
}

// LoadArena reads a metadata file from path, registers every point and
// relation, and freezes the resulting Arena: points are immutable once
// the service is running.
func LoadArena(path string) (*Arena, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, rvpferrors.NewBadParameter("metadata.path", err.Error())
	}
	var doc fileFormat
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return nil, rvpferrors.NewFormat("metadata parse "+path, err)
	}

	arena := NewArena()
	for _, fp := range doc.Points {
		id := uuid.New()
		if fp.ID != "" {
			parsed, err := uuid.Parse(fp.ID)
			if err != nil {
				return nil, rvpferrors.NewBadParameter("point.id", err.Error())
			}
			id = parsed
		}
		p := &Point{
			ID:      id,
			Name:    fp.Name,
			Content: Content{Unit: fp.Unit, Type: fp.Type},
			Origin:  fp.Origin,
			Store:   fp.Store,
			Transform: TransformSpec{
				Name:   fp.TransformName,
				Params: paramsFromFile(fp.Params),
			},
			Params: paramsFromFile(fp.Params),
		}
		if _, err := arena.AddPoint(p); err != nil {
			return nil, err
		}
	}

	for _, fr := range doc.Relations {
		input, ok := arena.PointByName(fr.Input)
		if !ok {
			return nil, rvpferrors.NewBadParameter("relation.input", "unknown point "+fr.Input)
		}
		result, ok := arena.PointByName(fr.Result)
		if !ok {
			return nil, rvpferrors.NewBadParameter("relation.result", "unknown point "+fr.Result)
		}
		behavior, err := behaviorFromString(fr.Behavior)
		if err != nil {
			return nil, err
		}
		rel := &PointRelation{
			Input:    input,
			Result:   result,
			Params:   paramsFromFile(fr.Params),
			Behavior: behavior,
		}
		if fr.CronExpr != "" || fr.PeriodMS != 0 {
			zone := time.UTC
			if fr.Zone != "" {
				loc, err := time.LoadLocation(fr.Zone)
				if err != nil {
					return nil, rvpferrors.NewBadParameter("relation.zone", err.Error())
				}
				zone = loc
			}
			rel.Sync = &SyncSpec{
				CronExpr: fr.CronExpr,
				Zone:     zone,
				Period:   time.Duration(fr.PeriodMS) * time.Millisecond,
				Offset:   time.Duration(fr.OffsetMS) * time.Millisecond,
			}
		}
		if _, err := arena.AddRelation(rel); err != nil {
			return nil, err
		}
	}

	if err := arena.Freeze(); err != nil {
		return nil, err
	}
	return arena, nil
}

func paramsFromFile(raw map[string][]string) Params {
	entries := make(map[string][]value.Value, len(raw))
	for k, vs := range raw {
		values := make([]value.Value, len(vs))
		for i, v := range vs {
			values[i] = value.NewString(v)
		}
		entries[k] = values
	}
	return NewParams(entries)
}

func behaviorFromString(s string) (BehaviorKind, error) {
	switch s {
	case "", "NeverTriggers":
		return BehaviorNeverTriggers, nil
	case "AlwaysTriggers":
		return BehaviorAlwaysTriggers, nil
	case "Synchronized":
		return BehaviorSynchronized, nil
	case "StepFiltered":
		return BehaviorStepFiltered, nil
	case "DeadbandFiltered":
		return BehaviorDeadbandFiltered, nil
	case "Resynchronized":
		return BehaviorResynchronized, nil
	case "Replicator":
		return BehaviorReplicator, nil
	default:
		return 0, rvpferrors.NewBadParameter("relation.behavior", "unknown behavior "+s)
	}
}

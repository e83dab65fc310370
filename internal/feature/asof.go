package feature

import (
	"sort"

	"github.com/sells-group/featuremart/internal/model"
)

// SnapshotFacts pairs one snapshot with the ordered set of same-entity
// facts strictly prior to it. Facts sharing the snapshot's own period are
// never included; that is the anti-leakage boundary.
type SnapshotFacts struct {
	Snapshot model.Snapshot
	// Prior holds facts with truncated event timestamp < Snapshot.Timestamp,
	// ascending. Empty when the snapshot has no history at all.
	Prior []model.Fact
}

// AsOfJoin associates each grid snapshot with its strictly-prior facts.
// Per entity it runs one ordered scan with a trailing pointer; snapshots
// share backing slices of the sorted fact order, so the join stays linear
// in facts + snapshots after sorting.
func AsOfJoin(grid []model.Snapshot, facts []model.Fact, grain Grain) []SnapshotFacts {
	byEntity := make(map[string][]model.Fact, len(grid))
	for _, f := range facts {
		// Compare on the truncated timestamp throughout.
		f.EventTimestamp = grain.Truncate(f.EventTimestamp)
		byEntity[f.EntityID] = append(byEntity[f.EntityID], f)
	}
	for _, fs := range byEntity {
		sort.Slice(fs, func(i, j int) bool {
			return fs[i].EventTimestamp.Before(fs[j].EventTimestamp)
		})
	}

	// Grid is already sorted (entity, timestamp), so the trailing pointer
	// only ever moves forward within an entity.
	joined := make([]SnapshotFacts, 0, len(grid))
	var (
		curEntity string
		cursor    int
	)
	for _, snap := range grid {
		if snap.EntityID != curEntity {
			curEntity = snap.EntityID
			cursor = 0
		}
		entityFacts := byEntity[snap.EntityID]
		for cursor < len(entityFacts) && entityFacts[cursor].EventTimestamp.Before(snap.Timestamp) {
			cursor++
		}
		joined = append(joined, SnapshotFacts{
			Snapshot: snap,
			Prior:    entityFacts[:cursor],
		})
	}
	return joined
}

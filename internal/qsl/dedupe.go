package qsl

import (
	"fmt"
	"sort"
)

// Reconciler clusters logs that represent the same real-world QSO and
// merges each cluster into one canonical record.
type Reconciler struct {
	store  Store
	logger Logger
}

func NewReconciler(store Store, logger Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger}
}

// FindAllClusters returns every duplicate cluster of size >= 2, each as a
// sorted slice of log ids.
//
// Candidates are pre-grouped by the case-insensitive (callsign, date, band,
// mode) key, then clustered within each group by single-link time
// clustering: walking members ordered by time, each unvisited member seeds
// a cluster and absorbs later unvisited members within 5 minutes of the
// seed's time. Absorption is anchored to the seed, not the last-absorbed
// member, so slowly drifting times do not chain into one giant cluster.
func (r *Reconciler) FindAllClusters() ([][]int64, error) {
	keys, err := r.store.DuplicateCandidateKeys()
	if err != nil {
		return nil, fmt.Errorf("finding candidate groups: %w", err)
	}

	var clusters [][]int64
	for _, key := range keys {
		members, err := r.store.LogsForKey(key)
		if err != nil {
			return nil, fmt.Errorf("loading candidate group: %w", err)
		}
		if len(members) < 2 {
			continue
		}

		visited := make([]bool, len(members))
		for i := range members {
			if visited[i] {
				continue
			}
			seed, ok := ParseTimeOn(members[i].TimeOn)
			if !ok {
				continue
			}
			cluster := []int64{members[i].ID}
			for j := i + 1; j < len(members); j++ {
				if visited[j] {
					continue
				}
				t, ok := ParseTimeOn(members[j].TimeOn)
				if !ok {
					continue
				}
				d := t.Sub(seed)
				if d < 0 {
					d = -d
				}
				if d <= dupWindow {
					cluster = append(cluster, members[j].ID)
					visited[j] = true
				}
			}
			if len(cluster) > 1 {
				sort.Slice(cluster, func(a, b int) bool { return cluster[a] < cluster[b] })
				clusters = append(clusters, cluster)
			}
		}
	}
	return clusters, nil
}

// Merge folds a cluster into its lowest-id member and deletes the rest.
// Member fields fill empty canonical fields; comments concatenate with a
// MERGED marker. The update and deletes commit together: if persisting the
// canonical fails, no member is deleted. Cards linked only to merged-away
// members are cascade-removed - a deliberate simplification the operator
// is warned about at the call site.
func (r *Reconciler) Merge(cluster []int64) (int64, error) {
	if len(cluster) == 0 {
		return 0, fmt.Errorf("empty cluster")
	}

	ids := append([]int64(nil), cluster...)
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	canonicalID := ids[0]

	canonical, err := r.store.GetLog(canonicalID)
	if err != nil {
		return 0, fmt.Errorf("loading canonical log %d: %w", canonicalID, err)
	}
	if canonical == nil {
		return 0, fmt.Errorf("canonical log %d: %w", canonicalID, ErrNotFound)
	}

	var remove []int64
	for _, id := range ids[1:] {
		if id == canonicalID {
			continue
		}
		member, err := r.store.GetLog(id)
		if err != nil {
			return 0, fmt.Errorf("loading cluster member %d: %w", id, err)
		}
		if member == nil {
			continue
		}
		foldLog(canonical, member, mergeLabelCluster)
		remove = append(remove, id)
	}

	if err := r.store.ApplyMerge(canonicalID, canonical, remove); err != nil {
		return 0, fmt.Errorf("applying merge into %d: %w", canonicalID, err)
	}

	r.logger.Info("cluster merged", "canonical", canonicalID, "removed", len(remove))
	return canonicalID, nil
}

// Package cluster turns preprocessed, blocked party records into a partition
// of entity clusters via two passes: exact-key union, then threshold-based
// assignment against cluster centroids.
package cluster

import (
	"context"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/resolver-cli/internal/blocking"
	"github.com/sells-group/resolver-cli/internal/config"
	"github.com/sells-group/resolver-cli/internal/model"
	"github.com/sells-group/resolver-cli/internal/similarity"
)

// Cluster is a finalized group of record indices believed to represent one
// entity. Members are in formation order.
type Cluster struct {
	Members []int
}

// Partition is the clusterer's terminal state: every record index appears in
// exactly one cluster. Clusters are numbered ascending by their earliest
// member, so identical input yields identical numbering.
type Partition struct {
	Clusters []Cluster
}

// Clusterer runs the two-pass grouping.
type Clusterer struct {
	scorer    *similarity.Scorer
	threshold float64
	maxSize   int
	workers   int
}

// New creates a Clusterer from validated config.
func New(scorer *similarity.Scorer, rc config.ResolutionConfig) *Clusterer {
	workers := rc.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Clusterer{
		scorer:    scorer,
		threshold: rc.Thresholds.Overall,
		maxSize:   rc.Cluster.MaxSize,
		workers:   workers,
	}
}

// Run partitions the records. Pass 1 unions records sharing an exact
// non-absent email or normalized phone within one source system. Pass 2
// assigns the remaining records to cluster centroids, restricted to block
// candidates. Components of records connected through shared blocks or
// exact keys are independent comparison domains and run concurrently.
func (c *Clusterer) Run(ctx context.Context, records []model.PreprocessedRecord, ix *blocking.Index) (*Partition, error) {
	n := len(records)
	if n == 0 {
		return &Partition{}, nil
	}

	exact := c.exactKeyUnion(records)

	components := buildComponents(n, exact, ix)
	zap.L().Debug("cluster: components built",
		zap.Int("records", n),
		zap.Int("components", len(components)),
	)

	results := make([][]Cluster, len(components))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for ci, comp := range components {
		ci, comp := ci, comp
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[ci] = c.resolveComponent(gctx, comp, records, exact, ix)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Canonical numbering: ascending earliest member across all components.
	var all []Cluster
	for _, cs := range results {
		all = append(all, cs...)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Members[0] < all[j].Members[0]
	})

	return &Partition{Clusters: all}, nil
}

// exactKeyUnion is pass 1: records sharing an identical non-absent email key
// or phone key are unioned immediately. Keys embed the source tag because
// entities never span source systems.
func (c *Clusterer) exactKeyUnion(records []model.PreprocessedRecord) *unionFind {
	uf := newUnionFind(len(records))

	firstByEmail := make(map[string]int)
	firstByPhone := make(map[string]int)
	for i := range records {
		rec := &records[i]
		if rec.EmailKey.Present {
			key := string(rec.Source) + "|" + rec.EmailKey.Value
			if first, ok := firstByEmail[key]; ok {
				uf.union(first, i)
			} else {
				firstByEmail[key] = i
			}
		}
		if rec.PhoneKey.Present {
			key := string(rec.Source) + "|" + rec.PhoneKey.Value
			if first, ok := firstByPhone[key]; ok {
				uf.union(first, i)
			} else {
				firstByPhone[key] = i
			}
		}
	}
	return uf
}

// buildComponents groups records that can ever be compared: records sharing
// a block, or unioned in pass 1, belong to the same comparison domain. Each
// component is resolved by one worker with no shared mutable state.
func buildComponents(n int, exact *unionFind, ix *blocking.Index) [][]int {
	comp := newUnionFind(n)
	for i := 0; i < n; i++ {
		comp.union(exact.find(i), i)
	}
	for _, key := range ix.Keys() {
		members := ix.Blocks[key]
		for k := 1; k < len(members); k++ {
			comp.union(members[0], members[k])
		}
	}

	byRoot := comp.groups(1)
	roots := make([]int, 0, len(byRoot))
	for root := range byRoot {
		roots = append(roots, root)
	}
	sort.Ints(roots)

	out := make([][]int, 0, len(roots))
	for _, root := range roots {
		members := byRoot[root]
		sort.Ints(members)
		out = append(out, members)
	}
	return out
}

// candidateMatch tags one record-to-cluster comparison for reconciliation.
type candidateMatch struct {
	clusterID int
	score     float64
}

// workCluster is a growing cluster local to one component worker.
type workCluster struct {
	id       int
	members  []int
	centroid centroid
	closed   bool
}

// resolveComponent runs the sequential assignment over one component. All
// ordering inside is derived from sorted record indices and cluster creation
// order, so the result is reproducible.
func (c *Clusterer) resolveComponent(ctx context.Context, comp []int, records []model.PreprocessedRecord, exact *unionFind, ix *blocking.Index) []Cluster {
	inComp := make(map[int]bool, len(comp))
	for _, i := range comp {
		inComp[i] = true
	}

	var clusters []*workCluster
	resolved := make(map[int]bool, len(comp))
	byBlock := make(map[string][]int) // block key -> cluster ids, creation order

	newCluster := func(members []int) *workCluster {
		wc := &workCluster{id: len(clusters), members: members}
		for _, m := range members {
			wc.centroid.absorb(&records[m])
		}
		clusters = append(clusters, wc)
		seen := make(map[string]bool)
		for _, m := range members {
			for _, key := range ix.ByRecord[m] {
				if !seen[key] {
					seen[key] = true
					byBlock[key] = append(byBlock[key], wc.id)
				}
			}
		}
		return wc
	}

	// Seed clusters from pass-1 exact groups. Exact-key groups stay whole
	// regardless of the size cap: the cap guards against fuzzy chaining, not
	// against high-precision identifier matches.
	seedRoots := collectSeedRoots(comp, exact)
	for _, root := range seedRoots {
		var members []int
		for _, i := range comp {
			if exact.find(i) == root {
				members = append(members, i)
			}
		}
		sort.Ints(members)
		wc := newCluster(members)
		if len(wc.members) >= c.maxSize {
			wc.closed = true
		}
		for _, m := range members {
			resolved[m] = true
		}
	}

	// Pass 2: threshold assignment in ascending record order. Candidates are
	// the clusters present in any of the record's blocks; a record blocked
	// under several strategies is reconciled here by picking the
	// highest-scoring cluster (ties: earliest-created, then the record order
	// itself is fixed), rather than by overwrite ordering.
	for _, i := range comp {
		if resolved[i] {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		rec := &records[i]

		var candidates []candidateMatch
		seenCluster := make(map[int]bool)
		for _, key := range ix.ByRecord[i] {
			for _, cid := range byBlock[key] {
				if seenCluster[cid] || clusters[cid].closed {
					continue
				}
				seenCluster[cid] = true
				score, _ := c.scorer.Score(rec, clusters[cid].centroid.record())
				candidates = append(candidates, candidateMatch{clusterID: cid, score: score})
			}
		}

		best, ok := reconcile(candidates, c.threshold)
		if !ok {
			newCluster([]int{i})
			resolved[i] = true
			continue
		}

		wc := clusters[best.clusterID]
		wc.members = append(wc.members, i)
		wc.centroid.absorb(rec)
		if len(wc.members) >= c.maxSize {
			wc.closed = true
		}
		resolved[i] = true
		seen := make(map[string]bool)
		for _, key := range ix.ByRecord[i] {
			if !seen[key] {
				seen[key] = true
				byBlock[key] = appendUnique(byBlock[key], wc.id)
			}
		}
	}

	out := make([]Cluster, 0, len(clusters))
	for _, wc := range clusters {
		out = append(out, Cluster{Members: wc.members})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Members[0] < out[j].Members[0] })
	return out
}

// reconcile picks the winning candidate: highest score at or above the
// threshold, ties broken by lowest cluster ID.
func reconcile(candidates []candidateMatch, threshold float64) (candidateMatch, bool) {
	var best candidateMatch
	found := false
	for _, cm := range candidates {
		if cm.score < threshold {
			continue
		}
		if !found || cm.score > best.score || (cm.score == best.score && cm.clusterID < best.clusterID) {
			best = cm
			found = true
		}
	}
	return best, found
}

// collectSeedRoots returns the pass-1 roots with two or more members in this
// component, ordered by root index.
func collectSeedRoots(comp []int, exact *unionFind) []int {
	count := make(map[int]int, len(comp))
	for _, i := range comp {
		count[exact.find(i)]++
	}
	var roots []int
	for root, n := range count {
		if n >= 2 {
			roots = append(roots, root)
		}
	}
	sort.Ints(roots)
	return roots
}

func appendUnique(ids []int, id int) []int {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}

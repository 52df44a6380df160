package cluster

// unionFind is an arena-indexed disjoint-set over record indices. The parent
// array form avoids pointer graphs and keeps merging cheap for transitive
// exact-key chains.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

// find returns the set root with path compression.
func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

// union merges the sets of a and b. The smaller root index wins, so a set's
// root is always its earliest record — a deterministic anchor.
func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}

// groups returns the members of every set with at least minSize members,
// keyed by root, with members ascending. Iteration-safe: output ordering is
// derived from indices, never map walks.
func (u *unionFind) groups(minSize int) map[int][]int {
	byRoot := make(map[int][]int)
	for i := range u.parent {
		byRoot[u.find(i)] = append(byRoot[u.find(i)], i)
	}
	for root, members := range byRoot {
		if len(members) < minSize {
			delete(byRoot, root)
		}
	}
	return byRoot
}

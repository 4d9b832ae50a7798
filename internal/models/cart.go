package models

import (
	"math/rand"
	"sort"
)

// TreeNode is one node of a flat binary tree. Leaves have Left == -1.
// Samples go left when x[Feature] <= Threshold.
type TreeNode struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Samples   int
	Impurity  float64
}

func (n TreeNode) IsLeaf() bool {
	return n.Left < 0
}

type Tree struct {
	Nodes []TreeNode
	// Importances holds the total weighted impurity decrease per feature.
	Importances []float64
}

func (t *Tree) value(x []float64) float64 {
	k := 0
	for !t.Nodes[k].IsLeaf() {
		node := t.Nodes[k]
		if x[node.Feature] <= node.Threshold {
			k = node.Left
		} else {
			k = node.Right
		}
	}
	return t.Nodes[k].Value
}

func (t *Tree) Depth() int {
	var walk func(k int) int
	walk = func(k int) int {
		node := t.Nodes[k]
		if node.IsLeaf() {
			return 0
		}
		l, r := walk(node.Left), walk(node.Right)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	return walk(0)
}

func (t *Tree) LeafCount() int {
	count := 0
	for _, node := range t.Nodes {
		if node.IsLeaf() {
			count++
		}
	}
	return count
}

type treeParams struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	// MaxFeatures limits the features considered per split. Zero means all.
	MaxFeatures int
}

// splitStats accumulates weighted moments of the target. For a 0/1 target
// the weighted variance is half the gini impurity, so the same statistics
// serve classification and regression trees.
type splitStats struct {
	n   int
	w   float64
	wt  float64
	wtt float64
}

func (s *splitStats) add(w, t float64) {
	s.n++
	s.w += w
	s.wt += w * t
	s.wtt += w * t * t
}

func (s splitStats) sub(o splitStats) splitStats {
	return splitStats{n: s.n - o.n, w: s.w - o.w, wt: s.wt - o.wt, wtt: s.wtt - o.wtt}
}

func (s splitStats) sse() float64 {
	if s.w <= 0 {
		return 0
	}
	v := s.wtt - s.wt*s.wt/s.w
	if v < 0 {
		return 0
	}
	return v
}

func (s splitStats) impurity() float64 {
	if s.w <= 0 {
		return 0
	}
	return s.sse() / s.w
}

type splitCandidate struct {
	feature   int
	threshold float64
	gain      float64
	found     bool
}

type scanState struct {
	stats splitStats
	last  float64
}

// presort returns, per feature, the sample indices ordered by that feature.
func presort(X [][]float64) [][]int {
	nFeatures := len(X[0])
	order := make([][]int, nFeatures)
	for f := range order {
		idx := make([]int, len(X))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return X[idx[a]][f] < X[idx[b]][f]
		})
		order[f] = idx
	}
	return order
}

type treeBuilder struct {
	X      [][]float64
	order  [][]int
	params treeParams
	rng    *rand.Rand
}

func newTreeBuilder(X [][]float64, order [][]int, params treeParams, rng *rand.Rand) *treeBuilder {
	if params.MinSamplesSplit < 2 {
		params.MinSamplesSplit = 2
	}
	if params.MinSamplesLeaf < 1 {
		params.MinSamplesLeaf = 1
	}
	return &treeBuilder{X: X, order: order, params: params, rng: rng}
}

// build grows a tree level by level. Samples with zero weight are ignored.
// Each level scans every presorted feature once, so growing a level costs
// O(samples * features) regardless of how many nodes it has. leafValue
// computes the output of a leaf from the indices of its samples.
func (b *treeBuilder) build(target, weight []float64, leafValue func(members []int) float64) *Tree {
	nFeatures := len(b.X[0])
	minLeaf := b.params.MinSamplesLeaf

	nodeOf := make([]int, len(b.X))
	var root splitStats
	for i := range nodeOf {
		if weight[i] > 0 {
			root.add(weight[i], target[i])
		} else {
			nodeOf[i] = -1
		}
	}

	tree := &Tree{Importances: make([]float64, nFeatures)}
	tree.Nodes = append(tree.Nodes, TreeNode{Left: -1, Right: -1, Samples: root.n, Impurity: root.impurity()})
	stats := []splitStats{root}
	frontier := []int{0}

	for depth := 0; depth < b.params.MaxDepth && len(frontier) > 0; depth++ {
		slotOf := make([]int, len(tree.Nodes))
		for k := range slotOf {
			slotOf[k] = -1
		}

		var active []int
		for _, k := range frontier {
			s := stats[k]
			if s.n < b.params.MinSamplesSplit || s.n < 2*minLeaf || s.sse() <= 1e-12 {
				continue
			}
			slotOf[k] = len(active)
			active = append(active, k)
		}
		if len(active) == 0 {
			break
		}

		masks := b.featureMasks(len(active), nFeatures)
		best := make([]splitCandidate, len(active))
		for a := range best {
			best[a].gain = 1e-12
		}
		b.scan(nodeOf, slotOf, stats, target, weight, best, func(a, f int) bool {
			return masks == nil || masks[a][f]
		})
		if masks != nil {
			// nodes without a valid split among their sampled features
			// fall back to the remaining ones
			b.scan(nodeOf, slotOf, stats, target, weight, best, func(a, f int) bool {
				return !best[a].found && !masks[a][f]
			})
		}

		var next []int
		for a, k := range active {
			c := best[a]
			if !c.found {
				continue
			}
			left := len(tree.Nodes)
			tree.Nodes[k].Feature = c.feature
			tree.Nodes[k].Threshold = c.threshold
			tree.Nodes[k].Left = left
			tree.Nodes[k].Right = left + 1
			tree.Importances[c.feature] += c.gain

			tree.Nodes = append(tree.Nodes, TreeNode{Left: -1, Right: -1}, TreeNode{Left: -1, Right: -1})
			stats = append(stats, splitStats{}, splitStats{})
			next = append(next, left, left+1)
		}

		for i, k := range nodeOf {
			if k < 0 || tree.Nodes[k].IsLeaf() {
				continue
			}
			node := tree.Nodes[k]
			child := node.Right
			if b.X[i][node.Feature] <= node.Threshold {
				child = node.Left
			}
			nodeOf[i] = child
			stats[child].add(weight[i], target[i])
		}
		for _, k := range next {
			tree.Nodes[k].Samples = stats[k].n
			tree.Nodes[k].Impurity = stats[k].impurity()
		}

		frontier = next
	}

	members := make(map[int][]int)
	for i, k := range nodeOf {
		if k >= 0 {
			members[k] = append(members[k], i)
		}
	}
	for k := range tree.Nodes {
		if tree.Nodes[k].IsLeaf() {
			tree.Nodes[k].Value = leafValue(members[k])
		}
	}

	return tree
}

func (b *treeBuilder) scan(nodeOf, slotOf []int, stats []splitStats, target, weight []float64, best []splitCandidate, allowed func(a, f int) bool) {
	minLeaf := b.params.MinSamplesLeaf
	scans := make([]scanState, len(best))
	eligible := make([]bool, len(best))

	for f := range b.order {
		for a := range scans {
			scans[a] = scanState{}
			eligible[a] = allowed(a, f)
		}

		for _, i := range b.order[f] {
			k := nodeOf[i]
			if k < 0 {
				continue
			}
			a := slotOf[k]
			if a < 0 || !eligible[a] {
				continue
			}

			scan := &scans[a]
			v := b.X[i][f]
			if scan.stats.n > 0 && v > scan.last {
				left := scan.stats
				right := stats[k].sub(left)
				if left.n >= minLeaf && right.n >= minLeaf {
					gain := stats[k].sse() - left.sse() - right.sse()
					if gain > best[a].gain {
						threshold := scan.last + (v-scan.last)/2
						if threshold >= v {
							threshold = scan.last
						}
						best[a] = splitCandidate{feature: f, threshold: threshold, gain: gain, found: true}
					}
				}
			}
			scan.stats.add(weight[i], target[i])
			scan.last = v
		}
	}
}

func (b *treeBuilder) featureMasks(nodes, nFeatures int) [][]bool {
	if b.params.MaxFeatures <= 0 || b.params.MaxFeatures >= nFeatures || b.rng == nil {
		return nil
	}

	masks := make([][]bool, nodes)
	for a := range masks {
		masks[a] = make([]bool, nFeatures)
		for _, f := range b.rng.Perm(nFeatures)[:b.params.MaxFeatures] {
			masks[a][f] = true
		}
	}
	return masks
}

func weightedMean(target, weight []float64) func([]int) float64 {
	return func(members []int) float64 {
		var sw, swt float64
		for _, i := range members {
			sw += weight[i]
			swt += weight[i] * target[i]
		}
		if sw <= 0 {
			return 0
		}
		return swt / sw
	}
}

package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultEstimators    = 100
	DefaultContamination = 0.01
	DefaultSeed          = 42

	maxSubsampleSize = 256
	eulerGamma       = 0.5772156649015329
)

type ForestNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Size      int     `json:"size"`
	Leaf      bool    `json:"leaf"`
}

type ForestTree struct {
	Nodes []ForestNode `json:"nodes"`
}

// ScoreSamples is in (-1, 0) with higher meaning more normal, DecisionFunction
// shifts it so the anomaly boundary sits at 0, Predict labels rows -1 or 1.
type IsolationForest struct {
	Estimators    int          `json:"estimators"`
	Contamination float64      `json:"contamination"`
	Seed          int64        `json:"seed"`
	SampleSize    int          `json:"sample_size"`
	Dims          int          `json:"dims"`
	Offset        float64      `json:"offset"`
	Trees         []ForestTree `json:"trees"`
}

func NewIsolationForest() *IsolationForest {
	return &IsolationForest{
		Estimators:    DefaultEstimators,
		Contamination: DefaultContamination,
		Seed:          DefaultSeed,
	}
}

func (f *IsolationForest) Fitted() bool {
	return len(f.Trees) > 0
}

func (f *IsolationForest) Fit(X [][]float64) error {
	n := len(X)
	if n == 0 {
		return errors.New("cannot fit forest on an empty matrix")
	}
	dims := len(X[0])
	if dims == 0 {
		return errors.New("cannot fit forest on zero-width rows")
	}
	for i := range X {
		if len(X[i]) != dims {
			return fmt.Errorf("row %d has %d features, want %d", i, len(X[i]), dims)
		}
	}
	if f.Estimators <= 0 {
		f.Estimators = DefaultEstimators
	}
	if f.Contamination <= 0 || f.Contamination >= 0.5 {
		f.Contamination = DefaultContamination
	}

	sample := f.SampleSize
	if sample <= 0 || sample > n {
		sample = min(maxSubsampleSize, n)
	}
	f.SampleSize = sample
	f.Dims = dims

	limit := 1
	if sample > 1 {
		limit = int(math.Ceil(math.Log2(float64(sample))))
	}

	rng := rand.New(rand.NewSource(f.Seed))
	f.Trees = make([]ForestTree, 0, f.Estimators)
	for t := 0; t < f.Estimators; t++ {
		idx := rng.Perm(n)[:sample]
		b := &treeBuilder{X: X, rng: rng, limit: limit}
		b.build(idx, 0)
		f.Trees = append(f.Trees, ForestTree{Nodes: b.nodes})
	}

	scores, err := f.ScoreSamples(X)
	if err != nil {
		return err
	}
	sort.Float64s(scores)
	f.Offset = stat.Quantile(f.Contamination, stat.LinInterp, scores, nil)
	return nil
}

func (f *IsolationForest) ScoreSamples(X [][]float64) ([]float64, error) {
	if !f.Fitted() {
		return nil, errors.New("forest is not fitted")
	}
	denom := cFactor(f.SampleSize)
	if denom <= 0 {
		denom = 1
	}
	scores := make([]float64, len(X))
	for i, row := range X {
		if len(row) != f.Dims {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), f.Dims)
		}
		var sum float64
		for t := range f.Trees {
			sum += f.Trees[t].pathLength(row)
		}
		mean := sum / float64(len(f.Trees))
		scores[i] = -math.Exp2(-mean / denom)
	}
	return scores, nil
}

func (f *IsolationForest) DecisionFunction(X [][]float64) ([]float64, error) {
	scores, err := f.ScoreSamples(X)
	if err != nil {
		return nil, err
	}
	for i := range scores {
		scores[i] -= f.Offset
	}
	return scores, nil
}

func (f *IsolationForest) Predict(X [][]float64) ([]int, error) {
	decision, err := f.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(decision))
	for i, v := range decision {
		if v < 0 {
			labels[i] = -1
		} else {
			labels[i] = 1
		}
	}
	return labels, nil
}

type treeBuilder struct {
	X     [][]float64
	rng   *rand.Rand
	limit int
	nodes []ForestNode
}

func (b *treeBuilder) build(idx []int, depth int) int {
	pos := len(b.nodes)
	b.nodes = append(b.nodes, ForestNode{Size: len(idx), Leaf: true})
	if depth >= b.limit || len(idx) <= 1 {
		return pos
	}
	feature, threshold, ok := b.pickSplit(idx)
	if !ok {
		return pos
	}
	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] < threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	node := &b.nodes[pos]
	node.Leaf = false
	node.Feature = feature
	node.Threshold = threshold
	node.Left = l
	node.Right = r
	return pos
}

func (b *treeBuilder) pickSplit(idx []int) (int, float64, bool) {
	dims := len(b.X[idx[0]])
	col := make([]float64, len(idx))
	for _, feature := range b.rng.Perm(dims) {
		for k, i := range idx {
			col[k] = b.X[i][feature]
		}
		lo, hi := floats.Min(col), floats.Max(col)
		if hi <= lo {
			continue
		}
		return feature, lo + b.rng.Float64()*(hi-lo), true
	}
	return 0, 0, false
}

func (t *ForestTree) pathLength(x []float64) float64 {
	idx := 0
	depth := 0.0
	for {
		node := t.Nodes[idx]
		if node.Leaf {
			return depth + cFactor(node.Size)
		}
		if x[node.Feature] < node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
		depth++
	}
}

// cFactor is the expected path length of an unsuccessful BST search over n points.
func cFactor(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		h := math.Log(float64(n-1)) + eulerGamma
		return 2*h - 2*float64(n-1)/float64(n)
	}
}

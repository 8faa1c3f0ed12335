package ml

import (
	"context"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// ForestTrainer fits a bagged ensemble of CART regression trees. Each tree
// sees a bootstrap sample and considers a random third of the features at
// every split.
type ForestTrainer struct {
	Trees      int
	MaxDepth   int
	MinLeaf    int
	MaxSamples int // bootstrap size cap, 0 means the full training set
	Jobs       int // 0 means runtime.NumCPU()
	Seed       int64
}

// WithJobs returns a copy limited to n parallel tree fits.
func (t *ForestTrainer) WithJobs(n int) Trainer {
	cp := *t
	cp.Jobs = n
	return &cp
}

type forestModel struct {
	trees []tree
	width int
}

func (t *ForestTrainer) Fit(ctx context.Context, X [][]float64, y []float64) (Model, error) {
	width, err := checkTrainingData(X, y)
	if err != nil {
		return nil, err
	}

	nTrees := t.Trees
	if nTrees <= 0 {
		nTrees = 100
	}
	jobs := t.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	params := treeParams{
		maxDepth:    t.MaxDepth,
		minLeaf:     t.MinLeaf,
		maxFeatures: int(math.Max(1, math.Round(float64(width)/3))),
	}
	if params.maxDepth <= 0 {
		params.maxDepth = 10
	}
	if params.minLeaf <= 0 {
		params.minLeaf = 1
	}
	samples := len(X)
	if t.MaxSamples > 0 && t.MaxSamples < samples {
		samples = t.MaxSamples
	}

	trees := make([]tree, nTrees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i := 0; i < nTrees; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(t.Seed + int64(i)*7919))
			idx := make([]int, samples)
			for k := range idx {
				idx[k] = rng.Intn(len(X))
			}
			b := &treeBuilder{X: X, y: y, params: params, rng: rng, width: width}
			b.grow(idx, 0)
			trees[i] = tree{nodes: b.nodes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &forestModel{trees: trees, width: width}, nil
}

func (m *forestModel) Predict(X [][]float64) ([]float64, error) {
	if len(X) > 0 {
		if _, err := checkMatrix(X, m.width); err != nil {
			return nil, err
		}
	}
	out := make([]float64, len(X))
	for i, row := range X {
		sum := 0.0
		for k := range m.trees {
			sum += m.trees[k].predict(row)
		}
		out[i] = sum / float64(len(m.trees))
	}
	return out, nil
}

type treeParams struct {
	maxDepth    int
	minLeaf     int
	maxFeatures int
}

type treeNode struct {
	feature     int // -1 for leaves
	threshold   float64
	left, right int
	value       float64
}

type tree struct {
	nodes []treeNode
}

func (t *tree) predict(row []float64) float64 {
	n := &t.nodes[0]
	for n.feature >= 0 {
		if row[n.feature] <= n.threshold {
			n = &t.nodes[n.left]
		} else {
			n = &t.nodes[n.right]
		}
	}
	return n.value
}

type treeBuilder struct {
	X      [][]float64
	y      []float64
	params treeParams
	rng    *rand.Rand
	width  int
	nodes  []treeNode
}

// grow appends the subtree for idx and returns its node index.
func (b *treeBuilder) grow(idx []int, depth int) int {
	sum, sumSq := 0.0, 0.0
	for _, i := range idx {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	n := float64(len(idx))
	mean := sum / n

	self := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{feature: -1, value: mean})

	if depth >= b.params.maxDepth || len(idx) < 2*b.params.minLeaf || sumSq-sum*sum/n <= 1e-12 {
		return self
	}

	feature, threshold, ok := b.bestSplit(idx, sum, sumSq)
	if !ok {
		return self
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[self] = treeNode{feature: feature, threshold: threshold, left: l, right: r, value: mean}
	return self
}

// bestSplit scans a random feature subset for the threshold that most
// reduces the squared error, honouring the minimum leaf size.
func (b *treeBuilder) bestSplit(idx []int, sum, sumSq float64) (int, float64, bool) {
	n := len(idx)
	parentSSE := sumSq - sum*sum/float64(n)
	bestGain, bestFeature, bestThreshold := 1e-12, -1, 0.0

	order := append([]int(nil), idx...)
	for _, f := range b.rng.Perm(b.width)[:b.params.maxFeatures] {
		sort.Slice(order, func(a, c int) bool { return b.X[order[a]][f] < b.X[order[c]][f] })

		ls, lsq := 0.0, 0.0
		for k := 0; k < n-1; k++ {
			v := b.y[order[k]]
			ls += v
			lsq += v * v
			nl := k + 1
			nr := n - nl
			if nl < b.params.minLeaf || nr < b.params.minLeaf {
				continue
			}
			x0, x1 := b.X[order[k]][f], b.X[order[k+1]][f]
			if x0 == x1 {
				continue
			}
			rs, rsq := sum-ls, sumSq-lsq
			sse := (lsq - ls*ls/float64(nl)) + (rsq - rs*rs/float64(nr))
			if gain := parentSSE - sse; gain > bestGain {
				bestGain, bestFeature, bestThreshold = gain, f, (x0+x1)/2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
)

const TypeDecisionTree = "decision_tree"

type TreeConfig struct {
	MaxDepth        int   `json:"max_depth"` // 0 means unlimited
	MinSamplesSplit int   `json:"min_samples_split"`
	MaxFeatures     int   `json:"max_features"` // 0 means all features
	Seed            int64 `json:"seed"`
}

type DecisionTree struct {
	Config     TreeConfig `json:"config"`
	NumClasses int        `json:"num_classes"`
	Nodes      []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx   int       `json:"feature_idx"`
	Threshold    float64   `json:"threshold"`
	LeftChild    int       `json:"left_child"`
	RightChild   int       `json:"right_child"`
	ClassLabel   int       `json:"class_label"`
	IsLeaf       bool      `json:"is_leaf"`
	Distribution []float64 `json:"distribution,omitempty"`
}

func NewDecisionTree(config TreeConfig) *DecisionTree {
	return &DecisionTree{Config: config}
}

func (dt *DecisionTree) Type() string {
	return TypeDecisionTree
}

func (dt *DecisionTree) Fit(X *mat.Dense, labels []int, classCount int) error {
	rows := denseRows(X)
	samples := make([]int, len(rows))
	for i := range samples {
		samples[i] = i
	}
	return dt.train(rows, labels, samples, classCount, rand.New(rand.NewSource(dt.Config.Seed)))
}

// train grows the tree over rows[samples]. samples may repeat indices.
func (dt *DecisionTree) train(rows [][]float64, labels []int, samples []int, classCount int, rnd *rand.Rand) error {
	if len(rows) == 0 || len(labels) == 0 || len(samples) == 0 {
		return errors.New("features or labels empty")
	}
	if len(rows) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if classCount <= 0 {
		return errors.New("class count must be positive")
	}
	for _, label := range labels {
		if label < 0 || label >= classCount {
			return fmt.Errorf("label %d out of range [0, %d)", label, classCount)
		}
	}
	if dt.Config.MinSamplesSplit < 2 {
		dt.Config.MinSamplesSplit = 2
	}

	dt.Nodes = nil
	dt.NumClasses = classCount
	dt.buildNode(rows, labels, samples, 0, rnd)
	return nil
}

// Predict returns the leaf label and the share of training samples in that
// leaf carrying it.
func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return 0, 0, err
	}
	return leaf.ClassLabel, leaf.Distribution[leaf.ClassLabel], nil
}

// PredictProba returns the class distribution of the matching leaf. The slice
// is owned by the tree and must not be modified.
func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return nil, err
	}
	return leaf.Distribution, nil
}

func (dt *DecisionTree) leaf(features []float64) (*TreeNode, error) {
	if len(dt.Nodes) == 0 {
		return nil, ErrNotTrained
	}
	idx := 0
	for {
		node := &dt.Nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return nil, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.Nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
}

func (dt *DecisionTree) Validate() error {
	if len(dt.Nodes) == 0 || dt.NumClasses <= 0 {
		return ErrNotTrained
	}
	for i, node := range dt.Nodes {
		if node.IsLeaf {
			if len(node.Distribution) != dt.NumClasses {
				return fmt.Errorf("node %d: distribution has %d classes, want %d", i, len(node.Distribution), dt.NumClasses)
			}
			if node.ClassLabel < 0 || node.ClassLabel >= dt.NumClasses {
				return fmt.Errorf("node %d: class label %d out of range", i, node.ClassLabel)
			}
			continue
		}
		if node.LeftChild <= i || node.LeftChild >= len(dt.Nodes) || node.RightChild <= i || node.RightChild >= len(dt.Nodes) {
			return fmt.Errorf("node %d: child index out of range", i)
		}
	}
	return nil
}

func (dt *DecisionTree) buildNode(rows [][]float64, labels []int, samples []int, depth int, rnd *rand.Rand) int {
	counts := classCounts(labels, samples, dt.NumClasses)
	idx := len(dt.Nodes)
	dt.Nodes = append(dt.Nodes, leafNode(counts, len(samples)))

	if (dt.Config.MaxDepth > 0 && depth >= dt.Config.MaxDepth) || len(samples) < dt.Config.MinSamplesSplit || isPure(counts) {
		return idx
	}

	bestFeature, threshold, ok := dt.findBestSplit(rows, labels, samples, counts, rnd)
	if !ok {
		return idx
	}

	left, right := splitSamples(rows, samples, bestFeature, threshold)
	if len(left) == 0 || len(right) == 0 {
		return idx
	}

	leftIdx := dt.buildNode(rows, labels, left, depth+1, rnd)
	rightIdx := dt.buildNode(rows, labels, right, depth+1, rnd)

	// dt.Nodes may have been reallocated by the recursive calls.
	node := &dt.Nodes[idx]
	node.FeatureIdx = bestFeature
	node.Threshold = threshold
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	node.IsLeaf = false
	node.Distribution = nil
	return idx
}

// findBestSplit scans up to MaxFeatures non-constant features in random order
// and returns the midpoint threshold with the lowest weighted gini.
func (dt *DecisionTree) findBestSplit(rows [][]float64, labels []int, samples []int, parentCounts []int, rnd *rand.Rand) (int, float64, bool) {
	featureCount := len(rows[0])
	maxFeatures := dt.Config.MaxFeatures
	if maxFeatures <= 0 || maxFeatures > featureCount {
		maxFeatures = featureCount
	}

	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	sorted := make([]int, len(samples))
	leftCounts := make([]int, dt.NumClasses)
	visited := 0
	for _, featureIdx := range rnd.Perm(featureCount) {
		if visited >= maxFeatures {
			break
		}
		copy(sorted, samples)
		sort.Slice(sorted, func(a, b int) bool {
			return rows[sorted[a]][featureIdx] < rows[sorted[b]][featureIdx]
		})
		if rows[sorted[0]][featureIdx] == rows[sorted[len(sorted)-1]][featureIdx] {
			continue
		}
		visited++

		for i := range leftCounts {
			leftCounts[i] = 0
		}
		for i := 0; i < len(sorted)-1; i++ {
			leftCounts[labels[sorted[i]]]++
			value := rows[sorted[i]][featureIdx]
			next := rows[sorted[i+1]][featureIdx]
			if value == next {
				continue
			}
			impurity := weightedGini(leftCounts, parentCounts, i+1, len(sorted))
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = value + (next-value)/2
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func splitSamples(rows [][]float64, samples []int, featureIdx int, threshold float64) ([]int, []int) {
	left := make([]int, 0)
	right := make([]int, 0)
	for _, s := range samples {
		if rows[s][featureIdx] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	return left, right
}

func weightedGini(leftCounts, parentCounts []int, leftTotal, total int) float64 {
	rightTotal := total - leftTotal
	leftImpurity := 1.0
	rightImpurity := 1.0
	for c, parent := range parentCounts {
		if leftTotal > 0 {
			p := float64(leftCounts[c]) / float64(leftTotal)
			leftImpurity -= p * p
		}
		if rightTotal > 0 {
			p := float64(parent-leftCounts[c]) / float64(rightTotal)
			rightImpurity -= p * p
		}
	}
	return (float64(leftTotal)*leftImpurity + float64(rightTotal)*rightImpurity) / float64(total)
}

func classCounts(labels []int, samples []int, classCount int) []int {
	counts := make([]int, classCount)
	for _, s := range samples {
		counts[labels[s]]++
	}
	return counts
}

func leafNode(counts []int, total int) TreeNode {
	distribution := make([]float64, len(counts))
	for c, count := range counts {
		distribution[c] = float64(count) / float64(total)
	}
	return TreeNode{
		FeatureIdx:   -1,
		LeftChild:    -1,
		RightChild:   -1,
		ClassLabel:   argmax(distribution),
		IsLeaf:       true,
		Distribution: distribution,
	}
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, count := range counts {
		if count > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

// argmax returns the first index holding the maximum.
func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

func denseRows(X *mat.Dense) [][]float64 {
	r, _ := X.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = X.RawRowView(i)
	}
	return rows
}

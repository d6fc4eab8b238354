package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Split holds the train and held-out partitions.
type Split struct {
	TrainX [][]string
	TrainY []string
	TestX  [][]string
	TestY  []string
}

// StratifiedSplit partitions X/y so every label keeps its share in both
// partitions. The same seed and input always give the same split.
func StratifiedSplit(X [][]string, y []string, testRatio float64, seed int64) (*Split, error) {
	n := len(y)
	if n == 0 {
		return nil, ErrEmptyDataset
	}
	if len(X) != n {
		return nil, errors.New("features and labels size mismatch")
	}
	if testRatio <= 0 || testRatio >= 1 {
		return nil, fmt.Errorf("test ratio must be in (0, 1), got %v", testRatio)
	}

	byClass := make(map[string][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	classes := make([]string, 0, len(byClass))
	for label := range byClass {
		classes = append(classes, label)
	}
	sort.Strings(classes)

	for _, label := range classes {
		if len(byClass[label]) < 2 {
			return nil, fmt.Errorf("the least populated class %q has only 1 member, which is too few to stratify", label)
		}
	}

	nTest := int(math.Ceil(float64(n) * testRatio))
	nTrain := n - nTest
	if nTest < len(classes) {
		return nil, fmt.Errorf("test size %d should be greater or equal to the number of classes %d", nTest, len(classes))
	}
	if nTrain < len(classes) {
		return nil, fmt.Errorf("train size %d should be greater or equal to the number of classes %d", nTrain, len(classes))
	}

	counts := make([]int, len(classes))
	for i, label := range classes {
		counts[i] = len(byClass[label])
	}
	testCounts := allocate(counts, nTest)

	rnd := rand.New(rand.NewSource(seed))
	trainIdx := make([]int, 0, nTrain)
	testIdx := make([]int, 0, nTest)
	for i, label := range classes {
		idx := append([]int(nil), byClass[label]...)
		rnd.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		testIdx = append(testIdx, idx[:testCounts[i]]...)
		trainIdx = append(trainIdx, idx[testCounts[i]:]...)
	}
	rnd.Shuffle(len(trainIdx), func(a, b int) { trainIdx[a], trainIdx[b] = trainIdx[b], trainIdx[a] })
	rnd.Shuffle(len(testIdx), func(a, b int) { testIdx[a], testIdx[b] = testIdx[b], testIdx[a] })

	split := &Split{
		TrainX: make([][]string, len(trainIdx)),
		TrainY: make([]string, len(trainIdx)),
		TestX:  make([][]string, len(testIdx)),
		TestY:  make([]string, len(testIdx)),
	}
	for i, idx := range trainIdx {
		split.TrainX[i] = X[idx]
		split.TrainY[i] = y[idx]
	}
	for i, idx := range testIdx {
		split.TestX[i] = X[idx]
		split.TestY[i] = y[idx]
	}
	return split, nil
}

// allocate distributes total draws over classes proportionally to counts,
// handing leftovers to the largest fractional parts.
func allocate(counts []int, total int) []int {
	n := 0
	for _, c := range counts {
		n += c
	}

	alloc := make([]int, len(counts))
	remainders := make([]float64, len(counts))
	assigned := 0
	for i, c := range counts {
		exact := float64(c) * float64(total) / float64(n)
		alloc[i] = int(math.Floor(exact))
		remainders[i] = exact - float64(alloc[i])
		assigned += alloc[i]
	}

	order := make([]int, len(counts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})
	for _, i := range order {
		if assigned >= total {
			break
		}
		if alloc[i] < counts[i] {
			alloc[i]++
			assigned++
		}
	}
	return alloc
}

package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"
)

const TypeRandomForest = "random_forest"

type ForestConfig struct {
	NumTrees        int   `json:"num_trees"`
	Seed            int64 `json:"seed"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MaxFeatures     int   `json:"max_features"` // 0 means sqrt(features)
	Workers         int   `json:"-"`
}

func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		NumTrees:        100,
		Seed:            42,
		MinSamplesSplit: 2,
		Workers:         runtime.NumCPU(),
	}
}

// RandomForest is a bagged ensemble of gini trees voting with averaged leaf
// distributions.
type RandomForest struct {
	Config     ForestConfig    `json:"config"`
	NumClasses int             `json:"num_classes"`
	Trees      []*DecisionTree `json:"trees"`
}

func NewRandomForest(config ForestConfig) *RandomForest {
	return &RandomForest{Config: config}
}

func (rf *RandomForest) Type() string {
	return TypeRandomForest
}

// Fit trains every tree on its own bootstrap sample. Tree seeds are drawn up
// front from Config.Seed so the result does not depend on scheduling.
func (rf *RandomForest) Fit(X *mat.Dense, labels []int, classCount int) error {
	if rf.Config.NumTrees <= 0 {
		return errors.New("number of trees must be positive")
	}
	rows := denseRows(X)
	if len(rows) == 0 {
		return ErrEmptyDataset
	}
	if len(rows) != len(labels) {
		return errors.New("features and labels size mismatch")
	}

	maxFeatures := rf.Config.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Sqrt(float64(len(rows[0]))))
		if maxFeatures < 1 {
			maxFeatures = 1
		}
	}
	workers := rf.Config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	rnd := rand.New(rand.NewSource(rf.Config.Seed))
	seeds := make([]int64, rf.Config.NumTrees)
	for i := range seeds {
		seeds[i] = rnd.Int63()
	}

	trees := make([]*DecisionTree, rf.Config.NumTrees)
	errs := make([]error, rf.Config.NumTrees)
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				treeRnd := rand.New(rand.NewSource(seeds[i]))
				samples := make([]int, len(rows))
				for s := range samples {
					samples[s] = treeRnd.Intn(len(rows))
				}
				tree := NewDecisionTree(TreeConfig{
					MaxDepth:        rf.Config.MaxDepth,
					MinSamplesSplit: rf.Config.MinSamplesSplit,
					MaxFeatures:     maxFeatures,
					Seed:            seeds[i],
				})
				if err := tree.train(rows, labels, samples, classCount, treeRnd); err != nil {
					errs[i] = fmt.Errorf("tree %d: %w", i, err)
					continue
				}
				trees[i] = tree
			}
		}()
	}
	for i := range trees {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := multierr.Combine(errs...); err != nil {
		return err
	}
	rf.Trees = trees
	rf.NumClasses = classCount
	return nil
}

func (rf *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(rf.Trees) == 0 {
		return nil, ErrNotTrained
	}
	proba := make([]float64, rf.NumClasses)
	for _, tree := range rf.Trees {
		dist, err := tree.PredictProba(features)
		if err != nil {
			return nil, err
		}
		for c, p := range dist {
			proba[c] += p
		}
	}
	for c := range proba {
		proba[c] /= float64(len(rf.Trees))
	}
	return proba, nil
}

func (rf *RandomForest) Validate() error {
	if len(rf.Trees) == 0 || rf.NumClasses <= 0 {
		return ErrNotTrained
	}
	for i, tree := range rf.Trees {
		if tree == nil {
			return fmt.Errorf("tree %d: missing", i)
		}
		if tree.NumClasses != rf.NumClasses {
			return fmt.Errorf("tree %d: %d classes, want %d", i, tree.NumClasses, rf.NumClasses)
		}
		if err := tree.Validate(); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

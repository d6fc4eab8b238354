package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// classifierFactories maps an artifact type to an empty classifier to decode into.
var classifierFactories = map[string]func() Classifier{
	TypeRandomForest: func() Classifier { return &RandomForest{} },
	TypeDecisionTree: func() Classifier { return &DecisionTree{} },
}

// NewClassifier returns an untrained classifier of the given type.
func NewClassifier(modelType string, config ForestConfig) (Classifier, error) {
	switch modelType {
	case TypeRandomForest:
		return NewRandomForest(config), nil
	case TypeDecisionTree:
		return NewDecisionTree(TreeConfig{
			MaxDepth:        config.MaxDepth,
			MinSamplesSplit: config.MinSamplesSplit,
			MaxFeatures:     config.MaxFeatures,
			Seed:            config.Seed,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}

// LoadModel reads a saved pipeline. An empty modelType accepts whatever type
// the artifact declares.
func LoadModel(modelType, path string) (*Pipeline, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var a artifact
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	if modelType != "" && a.Type != modelType {
		return nil, fmt.Errorf("artifact %s holds %q, expected %q", path, a.Type, modelType)
	}
	factory, ok := classifierFactories[a.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported model type %q", a.Type)
	}
	classifier := factory()
	if err := json.Unmarshal(a.Model, classifier); err != nil {
		return nil, fmt.Errorf("decode %s model: %w", a.Type, err)
	}
	if err := classifier.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s model: %w", a.Type, err)
	}

	if a.Encoder == nil || len(a.Encoder.Categories) == 0 {
		return nil, errors.New("artifact has no encoder")
	}
	if len(a.Encoder.Categories) != len(a.Features) || len(a.Encoder.Columns) != len(a.Features) {
		return nil, errors.New("encoder does not match feature columns")
	}
	a.Encoder.buildIndex()
	if len(a.Classes) == 0 {
		return nil, errors.New("artifact has no classes")
	}

	return &Pipeline{
		Features:   a.Features,
		Target:     a.Target,
		Classes:    a.Classes,
		Encoder:    a.Encoder,
		Classifier: classifier,
	}, nil
}

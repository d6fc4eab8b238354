package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Pipeline is the fitted transform: one-hot encoding followed by a
// classifier. It is read-only after Fit or LoadModel returns.
type Pipeline struct {
	Features   []string
	Target     string
	Classes    []string
	Encoder    *OneHotEncoder
	Classifier Classifier
}

func NewPipeline(features []string, target string, classifier Classifier) *Pipeline {
	return &Pipeline{
		Features:   append([]string(nil), features...),
		Target:     target,
		Encoder:    &OneHotEncoder{},
		Classifier: classifier,
	}
}

func (p *Pipeline) Fit(X [][]string, y []string) error {
	if len(X) == 0 || len(y) == 0 {
		return ErrEmptyDataset
	}
	if len(X) != len(y) {
		return errors.New("features and labels size mismatch")
	}
	if p.Classifier == nil {
		return errors.New("classifier is required")
	}

	classSet := make(map[string]int)
	for _, label := range y {
		classSet[label] = 0
	}
	classes := make([]string, 0, len(classSet))
	for label := range classSet {
		classes = append(classes, label)
	}
	sort.Strings(classes)
	for i, label := range classes {
		classSet[label] = i
	}
	labels := make([]int, len(y))
	for i, label := range y {
		labels[i] = classSet[label]
	}

	encoded, err := p.Encoder.FitTransform(p.Features, X)
	if err != nil {
		return fmt.Errorf("fit encoder: %w", err)
	}
	if err := p.Classifier.Fit(encoded, labels, len(classes)); err != nil {
		return fmt.Errorf("fit classifier: %w", err)
	}
	p.Classes = classes
	return nil
}

// PredictRows labels every row. Encoding failures are KindTransform errors,
// classifier failures KindPredict.
func (p *Pipeline) PredictRows(X [][]string) ([]string, error) {
	if p.Classifier == nil || len(p.Classes) == 0 {
		return nil, NewPredictError(KindPredict, ErrNotTrained)
	}
	encoded, err := p.Encoder.Transform(X)
	if err != nil {
		return nil, NewPredictError(KindTransform, err)
	}

	predictions := make([]string, len(X))
	for i := range X {
		proba, err := p.Classifier.PredictProba(encoded.RawRowView(i))
		if err != nil {
			return nil, NewPredictError(KindPredict, err)
		}
		label := argmax(proba)
		if label >= len(p.Classes) {
			return nil, NewPredictError(KindPredict, fmt.Errorf("class index %d out of range", label))
		}
		predictions[i] = p.Classes[label]
	}
	return predictions, nil
}

// Predict labels one record as a one-row table.
func (p *Pipeline) Predict(ctx context.Context, record Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", NewPredictError(KindPredict, err)
	}
	predictions, err := p.PredictRows([][]string{record.Values()})
	if err != nil {
		return "", err
	}
	return predictions[0], nil
}

func (p *Pipeline) ModelType() string {
	if p.Classifier == nil {
		return ""
	}
	return p.Classifier.Type()
}

func (p *Pipeline) Labels() []string {
	return append([]string(nil), p.Classes...)
}

// artifact is the on-disk form of a Pipeline.
type artifact struct {
	Type     string          `json:"type"`
	Features []string        `json:"features"`
	Target   string          `json:"target"`
	Classes  []string        `json:"classes"`
	Encoder  *OneHotEncoder  `json:"encoder"`
	Model    json.RawMessage `json:"model"`
}

// Save writes the pipeline to path, replacing any existing file.
func (p *Pipeline) Save(path string) error {
	if p.Classifier == nil || len(p.Classes) == 0 {
		return ErrNotTrained
	}
	model, err := json.Marshal(p.Classifier)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(artifact{
		Type:     p.Classifier.Type(),
		Features: p.Features,
		Target:   p.Target,
		Classes:  p.Classes,
		Encoder:  p.Encoder,
		Model:    model,
	})
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

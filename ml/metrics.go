package ml

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type ClassMetrics struct {
	Label     string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report is a per-class precision/recall/F1 breakdown of a held-out evaluation.
type Report struct {
	Classes     []ClassMetrics
	Accuracy    float64
	MacroAvg    ClassMetrics
	WeightedAvg ClassMetrics
	Total       int
}

func Accuracy(yTrue, yPred []string) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return 0
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue))
}

// ClassificationReport scores every label seen in either slice. Undefined
// ratios (no predictions or no support) count as 0.
func ClassificationReport(yTrue, yPred []string) (*Report, error) {
	if len(yTrue) == 0 {
		return nil, errors.New("no samples to evaluate")
	}
	if len(yTrue) != len(yPred) {
		return nil, errors.New("true and predicted labels size mismatch")
	}

	labelSet := make(map[string]bool)
	truePositive := make(map[string]int)
	predicted := make(map[string]int)
	actual := make(map[string]int)
	for i := range yTrue {
		labelSet[yTrue[i]] = true
		labelSet[yPred[i]] = true
		actual[yTrue[i]]++
		predicted[yPred[i]]++
		if yTrue[i] == yPred[i] {
			truePositive[yTrue[i]]++
		}
	}
	labels := make([]string, 0, len(labelSet))
	for label := range labelSet {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	report := &Report{
		Accuracy:    Accuracy(yTrue, yPred),
		Total:       len(yTrue),
		MacroAvg:    ClassMetrics{Label: "macro avg", Support: len(yTrue)},
		WeightedAvg: ClassMetrics{Label: "weighted avg", Support: len(yTrue)},
	}
	for _, label := range labels {
		m := ClassMetrics{
			Label:     label,
			Precision: ratio(truePositive[label], predicted[label]),
			Recall:    ratio(truePositive[label], actual[label]),
			Support:   actual[label],
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		report.Classes = append(report.Classes, m)

		weight := float64(m.Support) / float64(len(yTrue))
		report.MacroAvg.Precision += m.Precision / float64(len(labels))
		report.MacroAvg.Recall += m.Recall / float64(len(labels))
		report.MacroAvg.F1 += m.F1 / float64(len(labels))
		report.WeightedAvg.Precision += m.Precision * weight
		report.WeightedAvg.Recall += m.Recall * weight
		report.WeightedAvg.F1 += m.F1 * weight
	}
	return report, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// String renders the report as a fixed-width table for operator logs.
func (r *Report) String() string {
	width := len("weighted avg")
	for _, m := range r.Classes {
		if len(m.Label) > width {
			width = len(m.Label)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for _, m := range r.Classes {
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, m.Label, m.Precision, m.Recall, m.F1, m.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.Total)
	for _, m := range []ClassMetrics{r.MacroAvg, r.WeightedAvg} {
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, m.Label, m.Precision, m.Recall, m.F1, m.Support)
	}
	return b.String()
}

package ml

import (
	"fmt"
	"sort"
	"strings"
)

// QualityRule 数据质量检查规则
type QualityRule interface {
	Check(columns []string, row []string) error
	Name() string
}

// QualityIssue 质量问题
type QualityIssue struct {
	Rule    string `json:"rule"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// QualityReport 检查结果，行不会被删除或修改
type QualityReport struct {
	Rows   int            `json:"rows"`
	Issues []QualityIssue `json:"issues"`
	Counts map[string]int `json:"counts"`
}

// DefaultQualityRules 返回默认规则，规则有状态，每次检查需要新建
func DefaultQualityRules() []QualityRule {
	return []QualityRule{
		emptyValueRule{},
		paddedValueRule{},
		&duplicateRowRule{seen: make(map[string]int)},
	}
}

// InspectRows 对每一行(特征+标签)应用所有规则
func InspectRows(columns []string, X [][]string, y []string, rules ...QualityRule) *QualityReport {
	if len(rules) == 0 {
		rules = DefaultQualityRules()
	}
	allColumns := append(append([]string(nil), columns...), TargetColumn)

	report := &QualityReport{Rows: len(X), Counts: make(map[string]int)}
	for i, features := range X {
		row := append(append([]string(nil), features...), y[i])
		for _, rule := range rules {
			if err := rule.Check(allColumns, row); err != nil {
				report.Issues = append(report.Issues, QualityIssue{
					Rule:    rule.Name(),
					Row:     i,
					Message: err.Error(),
				})
				report.Counts[rule.Name()]++
			}
		}
	}
	return report
}

// Rules 按名称排序返回出现过的规则
func (r *QualityReport) Rules() []string {
	names := make([]string, 0, len(r.Counts))
	for name := range r.Counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type emptyValueRule struct{}

func (emptyValueRule) Name() string { return "empty_value" }

func (emptyValueRule) Check(columns []string, row []string) error {
	var empty []string
	for i, value := range row {
		if strings.TrimSpace(value) == "" {
			empty = append(empty, columns[i])
		}
	}
	if len(empty) > 0 {
		return fmt.Errorf("empty values in %q", empty)
	}
	return nil
}

// paddedValueRule flags values with surrounding whitespace. Values are used
// verbatim as categories, so "Male " and "Male" are different categories.
type paddedValueRule struct{}

func (paddedValueRule) Name() string { return "padded_value" }

func (paddedValueRule) Check(columns []string, row []string) error {
	for i, value := range row {
		if value != "" && strings.TrimSpace(value) != value {
			return fmt.Errorf("column %q value %q has surrounding whitespace", columns[i], value)
		}
	}
	return nil
}

type duplicateRowRule struct {
	seen map[string]int
	row  int
}

func (r *duplicateRowRule) Name() string { return "duplicate_row" }

func (r *duplicateRowRule) Check(columns []string, row []string) error {
	defer func() { r.row++ }()
	key := fmt.Sprintf("%q", row)
	if first, ok := r.seen[key]; ok {
		return fmt.Errorf("duplicate of row %d", first)
	}
	r.seen[key] = r.row
	return nil
}

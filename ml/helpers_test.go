package ml

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
)

var (
	ageGroups    = []string{"18-24", "25-34", "35-44"}
	genders      = []string{"Male", "Female"}
	statuses     = []string{"Student", "Working professional"}
	areas        = []string{"Urban", "Rural"}
	sportsPlayed = []string{"Cricket", "Football", "Badminton"}
	durations    = []string{"Less than 1 year", "1-3 years", "More than 5 years"}
	levels       = []string{"School", "District", "State"}
)

// surveySample builds n rows whose label depends only on the level and
// duration answers.
func surveySample(n int) ([][]string, []string) {
	X := make([][]string, n)
	y := make([]string, n)
	for i := 0; i < n; i++ {
		duration := durations[(i/3)%3]
		level := levels[i%3]
		X[i] = []string{
			ageGroups[(i/9)%3],
			genders[(i/2)%2],
			statuses[(i/5)%2],
			areas[(i/7)%2],
			sportsPlayed[(i/4)%3],
			duration,
			level,
		}
		y[i] = surveyLabel(duration, level)
	}
	return X, y
}

func surveyLabel(duration, level string) string {
	switch {
	case level == "State" || duration == "More than 5 years":
		return "Yes"
	case level == "District" && duration == "1-3 years":
		return "Maybe"
	default:
		return "No"
	}
}

// writeSurveyCSV writes a survey export with padded header names, the way
// form exports produce them.
func writeSurveyCSV(t *testing.T, n int) string {
	t.Helper()
	X, y := surveySample(n)
	path := filepath.Join(t.TempDir(), "survey.csv")
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := []string{"Timestamp"}
	for _, col := range FeatureColumns() {
		header = append(header, " "+col+" ")
	}
	header = append(header, TargetColumn+" ")
	if err := w.Write(header); err != nil {
		t.Fatal(err)
	}
	for i, row := range X {
		record := append([]string{"2024/01/01"}, row...)
		record = append(record, y[i])
		if err := w.Write(record); err != nil {
			t.Fatal(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatal(err)
	}
	return path
}

func testForestConfig() ForestConfig {
	config := DefaultForestConfig()
	config.NumTrees = 25
	return config
}

package ml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	ColAgeGroup  = "What is your age group?"
	ColGender    = "What gender do you identify as?"
	ColStatus    = "Current Status"
	ColArea      = "Which area do you belong to?"
	ColSports    = "Which sport(s) have you played?"
	ColDuration  = "How long did you play sports (even casually or in school/college teams)?"
	ColLevel     = "At what level did you play sports?"
	TargetColumn = "Did you ever think of continuing sports seriously or professionally?"
)

// Record is one survey answer set, keyed by the training feature columns.
type Record struct {
	AgeGroup string `json:"What is your age group?" validate:"max=512"`
	Gender   string `json:"What gender do you identify as?" validate:"max=512"`
	Status   string `json:"Current Status" validate:"max=512"`
	Area     string `json:"Which area do you belong to?" validate:"max=512"`
	Sports   string `json:"Which sport(s) have you played?" validate:"max=512"`
	Duration string `json:"How long did you play sports (even casually or in school/college teams)?" validate:"max=512"`
	Level    string `json:"At what level did you play sports?" validate:"max=512"`
}

func FeatureColumns() []string {
	return []string{
		ColAgeGroup,
		ColGender,
		ColStatus,
		ColArea,
		ColSports,
		ColDuration,
		ColLevel,
	}
}

// Values returns the record in FeatureColumns order.
func (r Record) Values() []string {
	return []string{
		r.AgeGroup,
		r.Gender,
		r.Status,
		r.Area,
		r.Sports,
		r.Duration,
		r.Level,
	}
}

func recordFromValues(values map[string]string) Record {
	return Record{
		AgeGroup: values[ColAgeGroup],
		Gender:   values[ColGender],
		Status:   values[ColStatus],
		Area:     values[ColArea],
		Sports:   values[ColSports],
		Duration: values[ColDuration],
		Level:    values[ColLevel],
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseRecord decodes a request body into a Record. The decoded object is
// returned as well so callers can echo the input back unchanged.
func ParseRecord(body []byte) (Record, map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return Record{}, nil, NewPredictError(KindParse, fmt.Errorf("invalid JSON body: %w", err))
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return Record{}, nil, NewPredictError(KindParse, errors.New("invalid JSON body: unexpected data after top-level value"))
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return Record{}, nil, NewPredictError(KindParse, errors.New("request body must be a JSON object"))
	}

	record, err := RecordFromMap(obj)
	if err != nil {
		return Record{}, obj, err
	}
	return record, obj, nil
}

// RecordFromMap checks that obj holds exactly the feature columns with string
// values and converts it to a Record.
func RecordFromMap(obj map[string]any) (Record, error) {
	var errs FieldErrors
	values := make(map[string]string, len(obj))

	known := make(map[string]bool)
	for _, col := range FeatureColumns() {
		known[col] = true
		value, ok := obj[col]
		if !ok {
			errs = append(errs, FieldError{Field: col, Kind: FieldMissing})
			continue
		}
		str, ok := value.(string)
		if !ok {
			errs = append(errs, FieldError{Field: col, Kind: FieldInvalid, Reason: fmt.Sprintf("expected string, got %s", jsonType(value))})
			continue
		}
		values[col] = str
	}

	unexpected := make([]string, 0)
	for key := range obj {
		if !known[key] {
			unexpected = append(unexpected, key)
		}
	}
	sort.Strings(unexpected)
	for _, key := range unexpected {
		errs = append(errs, FieldError{Field: key, Kind: FieldUnexpected})
	}

	if len(errs) > 0 {
		return Record{}, NewPredictError(KindValidation, errs)
	}

	record := recordFromValues(values)
	if err := validate.Struct(record); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return Record{}, NewPredictError(KindValidation, err)
		}
		for _, fe := range verrs {
			errs = append(errs, FieldError{
				Field:  fe.Field(),
				Kind:   FieldInvalid,
				Reason: fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param()),
			})
		}
		return Record{}, NewPredictError(KindValidation, errs)
	}
	return record, nil
}

func jsonType(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}

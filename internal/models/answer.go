package models

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/gdg-garage/observe-api/internal/apperr"
	"gorm.io/datatypes"
)

// Answer is one answered question of an observation. Answer holds the
// canonical {"value": ...} document; BoolValue mirrors the value of boolean
// questions so aggregates do not depend on the dialect's JSON operators.
type Answer struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	ObservationID   uint           `gorm:"not null;index" json:"observationId"`
	QuestionID      uint           `gorm:"not null;index:idx_answers_question" json:"questionId"`
	QuestionVersion int            `gorm:"not null;index:idx_answers_question" json:"questionVersion"`
	Answer          datatypes.JSON `gorm:"not null" json:"answer"`
	BoolValue       *bool          `json:"-"`
}

const DateLayout = "2006-01-02"

// AnswerValue is the decoded value of an answer, discriminated by the type of
// the question it answers. Exactly one payload field is set.
type AnswerValue struct {
	Type    QuestionType
	Bool    *bool
	Text    *string
	Number  *float64
	Choices []string
	Time    *time.Time
}

type answerEnvelope struct {
	Value json.RawMessage `json:"value"`
}

// DecodeAnswer validates a {"value": ...} document against the question type.
//
//	boolean                      JSON bool
//	text, photo, radio           string
//	number, range                number
//	multiple_choice, checkbox    array of strings
//	date                         "YYYY-MM-DD"
//	timestamp                    RFC 3339 string
func DecodeAnswer(t QuestionType, raw []byte) (AnswerValue, error) {
	var env answerEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return AnswerValue{}, apperr.Validation.New("answer is not a JSON object: %v", err)
	}
	if len(env.Value) == 0 || bytes.Equal(env.Value, []byte("null")) {
		return AnswerValue{}, apperr.Validation.New("answer has no value")
	}

	v := AnswerValue{Type: t}
	switch t {
	case QuestionBoolean:
		var b bool
		if err := json.Unmarshal(env.Value, &b); err != nil {
			return AnswerValue{}, apperr.Validation.New("boolean answer must be true or false")
		}
		v.Bool = &b
	case QuestionText, QuestionPhoto, QuestionRadio:
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return AnswerValue{}, apperr.Validation.New("%s answer must be a string", t)
		}
		v.Text = &s
	case QuestionNumber, QuestionRange:
		var n float64
		if err := json.Unmarshal(env.Value, &n); err != nil || math.IsNaN(n) {
			return AnswerValue{}, apperr.Validation.New("%s answer must be a number", t)
		}
		v.Number = &n
	case QuestionMultipleChoice, QuestionCheckbox:
		var choices []string
		if err := json.Unmarshal(env.Value, &choices); err != nil {
			return AnswerValue{}, apperr.Validation.New("%s answer must be a list of strings", t)
		}
		v.Choices = choices
	case QuestionDate, QuestionTimestamp:
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return AnswerValue{}, apperr.Validation.New("%s answer must be a string", t)
		}
		layout := DateLayout
		if t == QuestionTimestamp {
			layout = time.RFC3339
		}
		ts, err := time.Parse(layout, s)
		if err != nil {
			return AnswerValue{}, apperr.Validation.New("invalid %s answer %q", t, s)
		}
		v.Time = &ts
	default:
		return AnswerValue{}, apperr.Validation.New("unknown question type %q", t)
	}

	return v, nil
}

// Value returns the payload as a plain Go value.
func (v AnswerValue) Value() interface{} {
	switch {
	case v.Bool != nil:
		return *v.Bool
	case v.Text != nil:
		return *v.Text
	case v.Number != nil:
		return *v.Number
	case v.Choices != nil:
		return v.Choices
	case v.Time != nil:
		if v.Type == QuestionDate {
			return v.Time.Format(DateLayout)
		}
		return v.Time.Format(time.RFC3339Nano)
	}
	return nil
}

// MarshalJSON renders the canonical {"value": ...} document.
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{"value": v.Value()})
}

// Apply stores the canonical document and its boolean mirror on the row.
func (v AnswerValue) Apply(a *Answer) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return err
	}
	a.Answer = datatypes.JSON(doc)
	a.BoolValue = v.Bool
	return nil
}

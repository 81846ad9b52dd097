package models

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	QuestionBoolean        QuestionType = "boolean"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionRange          QuestionType = "range"
	QuestionText           QuestionType = "text"
	QuestionDate           QuestionType = "date"
	QuestionTimestamp      QuestionType = "timestamp"
	QuestionNumber         QuestionType = "number"
	QuestionPhoto          QuestionType = "photo"
	QuestionRadio          QuestionType = "radio"
	QuestionCheckbox       QuestionType = "checkbox"
)

// QuestionTypes lists every supported type, in declaration order.
var QuestionTypes = []QuestionType{
	QuestionBoolean,
	QuestionMultipleChoice,
	QuestionRange,
	QuestionText,
	QuestionDate,
	QuestionTimestamp,
	QuestionNumber,
	QuestionPhoto,
	QuestionRadio,
	QuestionCheckbox,
}

func (t QuestionType) Valid() bool {
	for _, known := range QuestionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Question is one immutable version of a question. Updates append a new
// row with the next version; existing rows are never modified.
type Question struct {
	ID        uint           `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Version   int            `gorm:"primaryKey;autoIncrement:false" json:"version"`
	Label     string         `gorm:"not null" json:"label"`
	Type      QuestionType   `gorm:"not null;size:32;index" json:"type"`
	Options   datatypes.JSON `json:"options"`
	CreatedAt time.Time      `json:"createdAt"`
}

// QuestionSequence hands out question ids. Every new question takes the id
// of a freshly inserted row, so concurrent creations never share an id.
type QuestionSequence struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
}

func (QuestionSequence) TableName() string {
	return "question_ids"
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

// Survey references questions by id only; the version shown to surveyors is
// always the latest one at read time.
type Survey struct {
	ID                uint                     `gorm:"primaryKey" json:"id"`
	Name              string                   `gorm:"not null" json:"name"`
	OwnerID           string                   `gorm:"index" json:"ownerId"`
	Questions         datatypes.JSONSlice[uint] `json:"questions"`
	OptionalQuestions datatypes.JSONSlice[uint] `json:"optionalQuestions"`
	CreatedAt         time.Time                `json:"createdAt"`
	UpdatedAt         time.Time                `json:"updatedAt"`
}

// QuestionIDs returns mandatory then optional question ids, without duplicates.
func (s Survey) QuestionIDs() []uint {
	seen := make(map[uint]bool, len(s.Questions)+len(s.OptionalQuestions))
	var ids []uint
	for _, group := range [][]uint{s.Questions, s.OptionalQuestions} {
		for _, id := range group {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// IsOptional reports whether the question id is in the optional set. An id
// listed as mandatory too is mandatory.
func (s Survey) IsOptional(questionID uint) bool {
	for _, id := range s.Questions {
		if id == questionID {
			return false
		}
	}
	for _, id := range s.OptionalQuestions {
		if id == questionID {
			return true
		}
	}
	return false
}

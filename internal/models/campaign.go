package models

import (
	"time"

	"gorm.io/datatypes"
)

// Campaign groups observations by area and surveys. Only read by the core.
type Campaign struct {
	ID        uint                     `gorm:"primaryKey" json:"id"`
	Name      string                   `gorm:"not null" json:"name"`
	Slug      string                   `gorm:"uniqueIndex;size:128" json:"slug"`
	AOI       Geometry                 `gorm:"column:aoi" json:"-"`
	Surveys   datatypes.JSONSlice[uint] `json:"surveys"`
	CreatedAt time.Time                `json:"createdAt"`
	UpdatedAt time.Time                `json:"updatedAt"`
}

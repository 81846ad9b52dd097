package models

import (
	"time"

	"gorm.io/datatypes"
)

// Badge describes an achievement. Description holds the metric name and its
// parameters, e.g. {"metric": "numObservations", "threshold": 10}.
type Badge struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"not null" json:"name"`
	Description datatypes.JSON `json:"description"`
	Image       string         `json:"image,omitempty"`
}

// BadgeUser is a derived assignment. The whole table is recomputed by the
// badge engine and carries no state of its own.
type BadgeUser struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BadgeID   uint      `gorm:"not null;index" json:"badgeId"`
	Badge     Badge     `gorm:"foreignKey:BadgeID;constraint:OnDelete:CASCADE" json:"-"`
	UserID    string    `gorm:"not null;index;size:64" json:"userId"`
	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"createdAt"`
}

func (BadgeUser) TableName() string {
	return "badges_users"
}

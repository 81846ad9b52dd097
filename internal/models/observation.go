package models

import (
	"time"
)

type Observation struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	SurveyID         uint      `gorm:"not null;index" json:"surveyId"`
	CampaignID       *uint     `gorm:"index" json:"campaignId,omitempty"`
	UserID           string    `gorm:"not null;index;size:64" json:"userId"`
	CreatedAt        time.Time `gorm:"autoCreateTime:false" json:"createdAt"`
	UploadedAt       time.Time `gorm:"autoCreateTime" json:"uploadedAt"`
	OsmObjectID      string    `gorm:"not null;size:64;index:idx_observations_osm_object" json:"osmObjectId"`
	OsmObjectVersion string    `gorm:"not null;size:32;index:idx_observations_osm_object" json:"osmObjectVersion,omitempty"`
	Answers          []Answer  `gorm:"foreignKey:ObservationID;constraint:OnDelete:CASCADE" json:"answers,omitempty"`
}

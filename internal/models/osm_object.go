package models

import (
	"gorm.io/datatypes"
)

// OsmObject is an external geographic entity observations are attached to.
// It is keyed by its external id ("node/123") and optional version; the
// empty string stands for an unversioned object.
type OsmObject struct {
	ID         string            `gorm:"primaryKey;size:64" json:"id"`
	Version    string            `gorm:"primaryKey;size:32" json:"version,omitempty"`
	Geom       Geometry          `gorm:"not null" json:"-"`
	Attributes datatypes.JSONMap `json:"attributes"`
	Quadkey    string            `gorm:"index;size:32" json:"quadkey"`
}

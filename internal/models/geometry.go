package models

import (
	"context"
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/maptile"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// SRID of every stored geometry.
const SRID = 4326

// Geometry is a geometry column. WKT is the conversion point: sqlite stores
// the text as is, postgres wraps it in ST_GeomFromText into a PostGIS column.
type Geometry struct {
	orb.Geometry
}

func (Geometry) GormDataType() string {
	return "geometry"
}

func (Geometry) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return fmt.Sprintf("geometry(Geometry,%d)", SRID)
	}
	return "text"
}

func (g Geometry) GormValue(_ context.Context, db *gorm.DB) clause.Expr {
	if g.Geometry == nil {
		return clause.Expr{SQL: "NULL"}
	}
	text := wkt.MarshalString(g.Geometry)
	if db.Dialector.Name() == "postgres" {
		return clause.Expr{SQL: "ST_GeomFromText(?, ?)", Vars: []interface{}{text, SRID}}
	}
	return clause.Expr{SQL: "?", Vars: []interface{}{text}}
}

func (g Geometry) Value() (driver.Value, error) {
	if g.Geometry == nil {
		return nil, nil
	}
	return wkt.MarshalString(g.Geometry), nil
}

// Scan accepts WKT text (sqlite) and hex encoded EWKB (a raw PostGIS column).
func (g *Geometry) Scan(value interface{}) error {
	var raw string
	switch v := value.(type) {
	case nil:
		g.Geometry = nil
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("unsupported geometry value %T", value)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		g.Geometry = nil
		return nil
	}

	if geom, err := wkt.Unmarshal(raw); err == nil {
		g.Geometry = geom
		return nil
	}

	data, err := hex.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("geometry is neither WKT nor hex EWKB: %w", err)
	}
	geom, _, err := ewkb.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("decode EWKB geometry: %w", err)
	}
	g.Geometry = geom
	return nil
}

// Quadkey returns the quadkey of the tile containing the center of the
// geometry's bounding box at the given zoom.
func Quadkey(geom orb.Geometry, zoom int) string {
	if geom == nil {
		return ""
	}
	tile := maptile.At(geom.Bound().Center(), maptile.Zoom(zoom))

	var b strings.Builder
	for i := tile.Z; i > 0; i-- {
		digit := '0'
		mask := uint32(1) << (i - 1)
		if tile.X&mask != 0 {
			digit++
		}
		if tile.Y&mask != 0 {
			digit += 2
		}
		b.WriteRune(digit)
	}
	return b.String()
}

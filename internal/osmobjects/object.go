package osmobjects

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gdg-garage/observe-api/internal/apperr"
	"github.com/gdg-garage/observe-api/internal/models"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gorm.io/datatypes"
)

// Key identifies an object: its external id and, for versioned objects,
// the version. Version is empty for unversioned objects.
type Key struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

func (k Key) String() string {
	if k.Version == "" {
		return k.ID
	}
	return k.ID + "@v" + k.Version
}

// Counts aggregates the answers to boolean questions of one object.
type Counts struct {
	Total      int64 `json:"total"`
	TotalTrue  int64 `json:"totalTrue"`
	TotalFalse int64 `json:"totalFalse"`
}

// Comment is an answer to a text question about an object.
type Comment struct {
	ObservationID uint      `json:"observationId"`
	UserID        string    `json:"userId"`
	CreatedAt     time.Time `json:"createdAt"`
	Text          string    `json:"text"`
}

// Object is a stored object annotated with its observation counts.
type Object struct {
	Key
	Geometry     orb.Geometry
	Attributes   map[string]interface{}
	Quadkey      string
	Observations Counts
	Comments     []Comment
}

// Feature renders the object as a GeoJSON feature. Observation counts and
// comments are added to the properties next to the stored attributes.
func (o Object) Feature() *geojson.Feature {
	f := geojson.NewFeature(o.Geometry)
	f.ID = o.ID

	props := make(geojson.Properties, len(o.Attributes)+2)
	for k, v := range o.Attributes {
		props[k] = v
	}
	props["observations"] = o.Observations
	if o.Comments != nil {
		props["comments"] = o.Comments
	}
	f.Properties = props
	return f
}

// KeyOf extracts the object key from a feature. The id comes from the
// feature id or, failing that, the "id" property; the version from the
// "version" property.
func KeyOf(f *geojson.Feature) (Key, error) {
	if f == nil {
		return Key{}, apperr.Validation.New("missing feature")
	}

	id := scalarString(f.ID)
	if id == "" {
		id = scalarString(f.Properties["id"])
	}
	if id == "" {
		return Key{}, apperr.Validation.New("feature has no id")
	}

	return Key{ID: id, Version: scalarString(f.Properties["version"])}, nil
}

// NewObject converts a feature into a row. quadkey is persisted as given;
// when empty the "quadkey" property is used, and when that is missing too the
// quadkey is derived from the geometry at zoom.
func NewObject(f *geojson.Feature, quadkey string, zoom int) (models.OsmObject, error) {
	key, err := KeyOf(f)
	if err != nil {
		return models.OsmObject{}, err
	}
	if f.Geometry == nil {
		return models.OsmObject{}, apperr.Validation.New("feature %s has no geometry", key)
	}

	if quadkey == "" {
		quadkey = scalarString(f.Properties["quadkey"])
	}
	if quadkey == "" {
		quadkey = models.Quadkey(f.Geometry, zoom)
	}
	if err := validateQuadkey(quadkey); err != nil {
		return models.OsmObject{}, err
	}

	attributes := datatypes.JSONMap{}
	for k, v := range f.Properties {
		attributes[k] = v
	}

	return models.OsmObject{
		ID:         key.ID,
		Version:    key.Version,
		Geom:       models.Geometry{Geometry: f.Geometry},
		Attributes: attributes,
		Quadkey:    quadkey,
	}, nil
}

func validateQuadkey(q string) error {
	for _, r := range q {
		if r < '0' || r > '3' {
			return apperr.Validation.New("invalid quadkey %q", q)
		}
	}
	return nil
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

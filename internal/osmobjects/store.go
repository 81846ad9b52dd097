// Package osmobjects stores the geographic objects observations are attached
// to and answers the aggregate questions asked about them.
package osmobjects

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gdg-garage/observe-api/internal/apperr"
	"github.com/gdg-garage/observe-api/internal/database"
	"github.com/gdg-garage/observe-api/internal/models"
	"github.com/paulmach/orb/geojson"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CommentsLimit caps the comments attached by Get.
const CommentsLimit = 10

// ObservationsState filters objects on their boolean answers.
type ObservationsState string

const (
	// ObservationsAny applies no filter.
	ObservationsAny ObservationsState = ""
	// ObservationsMostlyTrue keeps objects with more true than false answers.
	ObservationsMostlyTrue ObservationsState = "true"
	// ObservationsMostlyFalse keeps objects with more false than true answers.
	ObservationsMostlyFalse ObservationsState = "false"
	// ObservationsNone keeps objects without any boolean answer.
	ObservationsNone ObservationsState = "no"
)

func (s ObservationsState) Valid() bool {
	switch s {
	case ObservationsAny, ObservationsMostlyTrue, ObservationsMostlyFalse, ObservationsNone:
		return true
	}
	return false
}

type Filter struct {
	QuadkeyPrefix string
	Observations  ObservationsState
	Text          string
}

type Store struct {
	db          *gorm.DB
	quadkeyZoom int
}

func NewStore(db *gorm.DB, quadkeyZoom int) *Store {
	return &Store{db: db, quadkeyZoom: quadkeyZoom}
}

// QuadkeyZoom is the zoom used to derive missing quadkeys.
func (s *Store) QuadkeyZoom() int {
	return s.quadkeyZoom
}

// UpsertIfAbsent inserts the object unless its key already exists. It is a
// no-op for existing keys and reports whether a row was inserted.
func (s *Store) UpsertIfAbsent(ctx context.Context, f *geojson.Feature) (bool, error) {
	obj, err := NewObject(f, "", s.quadkeyZoom)
	if err != nil {
		return false, err
	}

	var created bool
	err = database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		created, err = InsertIfAbsent(tx, obj)
		return err
	})
	return created, err
}

// InsertIfAbsent runs the existence check and insert on db, which is
// normally a transaction owned by the caller. Losing an insert race against
// a concurrent writer yields an apperr.Conflict; the caller may retry, at
// which point the object exists and is reused.
func InsertIfAbsent(db *gorm.DB, obj models.OsmObject) (bool, error) {
	var count int64
	err := db.Model(&models.OsmObject{}).
		Where("id = ? AND version = ?", obj.ID, obj.Version).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	if err := db.Create(&obj).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, apperr.Conflict.New("object %s already exists", Key{ID: obj.ID, Version: obj.Version})
		}
		return false, err
	}
	return true, nil
}

// ImportFeatureCollection inserts every feature whose key is not stored yet,
// in one transaction, and returns how many were inserted.
func (s *Store) ImportFeatureCollection(ctx context.Context, fc *geojson.FeatureCollection) (int, error) {
	if fc == nil {
		return 0, apperr.Validation.New("missing feature collection")
	}

	objects := make([]models.OsmObject, 0, len(fc.Features))
	for _, f := range fc.Features {
		obj, err := NewObject(f, "", s.quadkeyZoom)
		if err != nil {
			return 0, err
		}
		objects = append(objects, obj)
	}

	inserted := 0
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		for _, obj := range objects {
			created, err := InsertIfAbsent(tx, obj)
			if err != nil {
				return err
			}
			if created {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Get returns one object with its counts and latest comments. An empty
// version selects the highest stored version of the id.
func (s *Store) Get(ctx context.Context, id, version string) (*Object, error) {
	db := s.db.WithContext(ctx)

	query := s.annotated(db).Where("osm_objects.id = ?", id)
	if version != "" {
		query = query.Where("osm_objects.version = ?", version)
	} else {
		query = query.Order("LENGTH(osm_objects.version) DESC").Order("osm_objects.version DESC")
	}

	var rows []objectRow
	if err := query.Limit(1).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound.New("object %s", Key{ID: id, Version: version})
	}

	obj := rows[0].object()
	comments, err := s.comments(db, obj.Key)
	if err != nil {
		return nil, err
	}
	obj.Comments = comments

	return &obj, nil
}

// List returns a page of objects matching filter, ordered by key.
func (s *Store) List(ctx context.Context, filter Filter, offset, limit int) ([]Object, error) {
	if !filter.Observations.Valid() {
		return nil, apperr.Validation.New("invalid observations filter %q", filter.Observations)
	}
	if offset < 0 || limit <= 0 {
		return nil, apperr.Validation.New("invalid page offset %d limit %d", offset, limit)
	}

	db := s.db.WithContext(ctx)
	query, err := s.filtered(s.annotated(db), filter)
	if err != nil {
		return nil, err
	}

	var rows []objectRow
	err = query.
		Order("osm_objects.id").Order("osm_objects.version").
		Offset(offset).Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	objects := make([]Object, 0, len(rows))
	for _, r := range rows {
		objects = append(objects, r.object())
	}
	return objects, nil
}

// Count counts the objects inside the quadkey prefix.
func (s *Store) Count(ctx context.Context, quadkeyPrefix string) (int64, error) {
	query, err := s.filtered(s.db.WithContext(ctx).Model(&models.OsmObject{}), Filter{QuadkeyPrefix: quadkeyPrefix})
	if err != nil {
		return 0, err
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Search runs a full-text match over the attributes, optionally inside a
// quadkey prefix.
func (s *Store) Search(ctx context.Context, text, quadkeyPrefix string, limit int) ([]Object, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validation.New("empty search text")
	}
	return s.List(ctx, Filter{Text: text, QuadkeyPrefix: quadkeyPrefix}, 0, limit)
}

type objectRow struct {
	ID         string
	Version    string
	Geom       models.Geometry
	Attributes datatypes.JSONMap
	Quadkey    string
	Total      int64
	TotalTrue  int64
	TotalFalse int64
}

func (r objectRow) object() Object {
	return Object{
		Key:        Key{ID: r.ID, Version: r.Version},
		Geometry:   r.Geom.Geometry,
		Attributes: r.Attributes,
		Quadkey:    r.Quadkey,
		Observations: Counts{
			Total:      r.Total,
			TotalTrue:  r.TotalTrue,
			TotalFalse: r.TotalFalse,
		},
	}
}

// annotated selects objects left joined with their observation counts.
// Objects without boolean answers get zero counts, never NULL.
func (s *Store) annotated(db *gorm.DB) *gorm.DB {
	return db.Table("osm_objects").
		Select(`osm_objects.id, osm_objects.version, osm_objects.geom,
			osm_objects.attributes, osm_objects.quadkey,
			COALESCE(observation_counts.total, 0) AS total,
			COALESCE(observation_counts.total_true, 0) AS total_true,
			COALESCE(observation_counts.total_false, 0) AS total_false`).
		Joins(`LEFT JOIN (?) AS observation_counts
			ON observation_counts.osm_object_id = osm_objects.id
			AND observation_counts.osm_object_version = osm_objects.version`, objectCounts(db))
}

func (s *Store) filtered(query *gorm.DB, filter Filter) (*gorm.DB, error) {
	if filter.QuadkeyPrefix != "" {
		if err := validateQuadkey(filter.QuadkeyPrefix); err != nil {
			return nil, err
		}
		query = query.Where("osm_objects.quadkey LIKE ?", filter.QuadkeyPrefix+"%")
	}

	switch filter.Observations {
	case ObservationsMostlyTrue:
		query = query.Where("observation_counts.total_true > observation_counts.total_false")
	case ObservationsMostlyFalse:
		query = query.Where("observation_counts.total_true < observation_counts.total_false")
	case ObservationsNone:
		query = query.Where("observation_counts.total IS NULL")
	}

	if filter.Text != "" {
		clause, args, err := textMatch(query.Dialector.Name(), filter.Text)
		if err != nil {
			return nil, err
		}
		query = query.Where(clause, args...)
	}

	return query, nil
}

func (s *Store) comments(db *gorm.DB, key Key) ([]Comment, error) {
	var rows []struct {
		ObservationID uint
		UserID        string
		CreatedAt     time.Time
		Answer        datatypes.JSON
	}
	err := db.Table("answers").
		Select("observations.id AS observation_id, observations.user_id, observations.created_at, answers.answer").
		Joins("JOIN observations ON observations.id = answers.observation_id").
		Joins("JOIN questions ON questions.id = answers.question_id AND questions.version = answers.question_version").
		Where("questions.type = ?", models.QuestionText).
		Where("observations.osm_object_id = ? AND observations.osm_object_version = ?", key.ID, key.Version).
		Order("observations.created_at DESC").
		Limit(CommentsLimit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	comments := make([]Comment, 0, len(rows))
	for _, r := range rows {
		value, err := models.DecodeAnswer(models.QuestionText, r.Answer)
		if err != nil || value.Text == nil {
			continue
		}
		comments = append(comments, Comment{
			ObservationID: r.ObservationID,
			UserID:        r.UserID,
			CreatedAt:     r.CreatedAt,
			Text:          *value.Text,
		})
	}
	return comments, nil
}

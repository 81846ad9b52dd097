// Package observations is the write path for survey observations.
//
// A submission creates the referenced object when it is not stored yet, the
// observation row and one row per answer, all inside a single transaction.
// Any failure rolls the whole submission back.
package observations

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gdg-garage/observe-api/internal/apperr"
	"github.com/gdg-garage/observe-api/internal/database"
	"github.com/gdg-garage/observe-api/internal/models"
	"github.com/gdg-garage/observe-api/internal/osmobjects"
	"github.com/gdg-garage/observe-api/internal/registry"
	"github.com/go-playground/validator/v10"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AnswerInput struct {
	QuestionID      uint            `json:"questionId" validate:"required"`
	QuestionVersion int             `json:"questionVersion" validate:"required,gte=1"`
	Answer          json.RawMessage `json:"answer" validate:"required"`
}

type SubmitInput struct {
	SurveyID   uint             `validate:"required"`
	CampaignID *uint            `validate:"omitempty,gt=0"`
	UserID     string           `validate:"required"`
	CreatedAt  time.Time        `validate:"required"`
	OsmObject  *geojson.Feature `validate:"required"`
	// Quadkey overrides the quadkey carried by, or derived from, OsmObject.
	Quadkey string
	Answers []AnswerInput `validate:"required,min=1,dive"`
}

type ListFilter struct {
	SurveyID    uint
	OsmObjectID string
	UserID      string
}

type Service struct {
	db       *gorm.DB
	objects  *osmobjects.Store
	logger   *zap.Logger
	validate *validator.Validate
}

func NewService(db *gorm.DB, objects *osmobjects.Store, logger *zap.Logger) *Service {
	return &Service{
		db:       db,
		objects:  objects,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Submit stores an observation and returns its id. Writes happen strictly in
// object, observation, answers order.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (uint, error) {
	id, err := s.submit(ctx, in)
	if err != nil {
		log := s.logger.Error
		if apperr.Validation.Has(err) || apperr.NotFound.Has(err) {
			log = s.logger.Warn
		}
		log("failed to submit observation",
			zap.Error(err),
			zap.Uint("surveyId", in.SurveyID),
			zap.String("userId", in.UserID),
		)
		return 0, err
	}
	return id, nil
}

func (s *Service) submit(ctx context.Context, in SubmitInput) (uint, error) {
	if err := s.validate.Struct(in); err != nil {
		return 0, apperr.Validation.Wrap(err)
	}

	object, err := osmobjects.NewObject(in.OsmObject, in.Quadkey, s.objects.QuadkeyZoom())
	if err != nil {
		return 0, err
	}

	var observationID uint
	err = database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := checkReferences(tx, in); err != nil {
			return err
		}
		answers, err := prepareAnswers(tx, in.Answers)
		if err != nil {
			return err
		}

		if _, err := osmobjects.InsertIfAbsent(tx, object); err != nil {
			return err
		}

		observation := models.Observation{
			SurveyID:         in.SurveyID,
			CampaignID:       in.CampaignID,
			UserID:           in.UserID,
			CreatedAt:        in.CreatedAt,
			OsmObjectID:      object.ID,
			OsmObjectVersion: object.Version,
		}
		if err := tx.Create(&observation).Error; err != nil {
			return err
		}

		for i := range answers {
			answers[i].ObservationID = observation.ID
			if err := tx.Create(&answers[i]).Error; err != nil {
				return err
			}
		}

		observationID = observation.ID
		return nil
	})
	if err != nil {
		return 0, err
	}

	return observationID, nil
}

func checkReferences(tx *gorm.DB, in SubmitInput) error {
	exists, err := registry.SurveyExists(tx, in.SurveyID)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound.New("survey %d", in.SurveyID)
	}

	if in.CampaignID != nil {
		var count int64
		if err := tx.Model(&models.Campaign{}).Where("id = ?", *in.CampaignID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return apperr.NotFound.New("campaign %d", *in.CampaignID)
		}
	}
	return nil
}

type questionKey struct {
	id      uint
	version int
}

// prepareAnswers resolves the exact question version of every answer and
// decodes the value against that version's type.
func prepareAnswers(tx *gorm.DB, inputs []AnswerInput) ([]models.Answer, error) {
	questions := map[questionKey]models.Question{}
	answers := make([]models.Answer, 0, len(inputs))

	for _, in := range inputs {
		key := questionKey{id: in.QuestionID, version: in.QuestionVersion}
		question, ok := questions[key]
		if !ok {
			err := tx.Where("id = ? AND version = ?", key.id, key.version).First(&question).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.NotFound.New("question %d version %d", key.id, key.version)
			}
			if err != nil {
				return nil, err
			}
			questions[key] = question
		}

		value, err := models.DecodeAnswer(question.Type, in.Answer)
		if err != nil {
			return nil, apperr.Validation.New("question %d version %d: %v", key.id, key.version, err)
		}

		answer := models.Answer{
			QuestionID:      in.QuestionID,
			QuestionVersion: in.QuestionVersion,
		}
		if err := value.Apply(&answer); err != nil {
			return nil, err
		}
		answers = append(answers, answer)
	}

	return answers, nil
}

// List returns the observations of a survey with their answers, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]models.Observation, error) {
	if filter.SurveyID == 0 {
		return nil, apperr.Validation.New("survey id is required")
	}

	query := s.db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("answers.id") }).
		Where("survey_id = ?", filter.SurveyID)
	if filter.OsmObjectID != "" {
		query = query.Where("osm_object_id = ?", filter.OsmObjectID)
	}
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}

	var observations []models.Observation
	if err := query.Order("created_at DESC").Order("id DESC").Find(&observations).Error; err != nil {
		return nil, err
	}
	return observations, nil
}

// All loads every observation with its answers, oldest id first.
func (s *Service) All(ctx context.Context) ([]models.Observation, error) {
	var observations []models.Observation
	err := s.db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("answers.id") }).
		Order("id").
		Find(&observations).Error
	if err != nil {
		return nil, err
	}
	return observations, nil
}

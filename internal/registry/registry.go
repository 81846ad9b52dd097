// Package registry stores versioned questions and the surveys that
// reference them.
//
// Question rows are append only: an update inserts the next version and
// leaves every earlier version untouched, so answers can always point at
// the exact wording the surveyor saw. Surveys reference question ids and are
// resolved to the latest version of each question when read.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/gdg-garage/observe-api/internal/apperr"
	"github.com/gdg-garage/observe-api/internal/database"
	"github.com/gdg-garage/observe-api/internal/models"
	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Latest asks GetQuestion for the newest version of a question.
const Latest = 0

type Registry struct {
	db       *gorm.DB
	validate *validator.Validate
}

func New(db *gorm.DB) *Registry {
	return &Registry{
		db:       db,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type CreateQuestionInput struct {
	Label   string              `json:"label" validate:"required"`
	Type    models.QuestionType `json:"type" validate:"required,oneof=boolean multiple_choice range text date timestamp number photo radio checkbox"`
	Options json.RawMessage     `json:"options,omitempty"`
}

// UpdateQuestionInput leaves nil fields as they are in the latest version.
type UpdateQuestionInput struct {
	Label   *string              `json:"label,omitempty" validate:"omitempty,min=1"`
	Type    *models.QuestionType `json:"type,omitempty" validate:"omitempty,oneof=boolean multiple_choice range text date timestamp number photo radio checkbox"`
	Options json.RawMessage      `json:"options,omitempty"`
}

type CreateSurveyInput struct {
	Name              string `json:"name" validate:"required"`
	OwnerID           string `json:"ownerId"`
	Questions         []uint `json:"questions" validate:"required,min=1,dive,gt=0"`
	OptionalQuestions []uint `json:"optionalQuestions" validate:"dive,gt=0"`
}

// SurveyQuestion is the latest version of a question referenced by a survey.
type SurveyQuestion struct {
	models.Question
	Optional bool `json:"optional"`
}

// SurveyView is a survey with its question ids resolved.
type SurveyView struct {
	ID        uint             `json:"id"`
	Name      string           `json:"name"`
	OwnerID   string           `json:"ownerId"`
	Questions []SurveyQuestion `json:"questions"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func (r *Registry) CreateQuestion(ctx context.Context, in CreateQuestionInput) (*models.Question, error) {
	if err := r.validate.Struct(in); err != nil {
		return nil, apperr.Validation.Wrap(err)
	}
	options, err := optionsJSON(in.Options)
	if err != nil {
		return nil, err
	}

	question := models.Question{
		Version: 1,
		Label:   in.Label,
		Type:    in.Type,
		Options: options,
	}

	err = database.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		var seq models.QuestionSequence
		if err := tx.Create(&seq).Error; err != nil {
			return err
		}
		question.ID = seq.ID
		return tx.Create(&question).Error
	})
	if err != nil {
		return nil, err
	}

	return &question, nil
}

// GetQuestion returns the given version of a question, or its newest version
// when version is Latest.
func (r *Registry) GetQuestion(ctx context.Context, id uint, version int) (*models.Question, error) {
	return getQuestion(r.db.WithContext(ctx), id, version)
}

func getQuestion(db *gorm.DB, id uint, version int) (*models.Question, error) {
	query := db.Where("id = ?", id)
	if version == Latest {
		query = query.Order("version DESC")
	} else {
		query = query.Where("version = ?", version)
	}

	var question models.Question
	if err := query.First(&question).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if version == Latest {
				return nil, apperr.NotFound.New("question %d", id)
			}
			return nil, apperr.NotFound.New("question %d version %d", id, version)
		}
		return nil, err
	}
	return &question, nil
}

// UpdateQuestion appends version max+1, taking unspecified fields from the
// current latest version.
func (r *Registry) UpdateQuestion(ctx context.Context, id uint, in UpdateQuestionInput) (*models.Question, error) {
	if err := r.validate.Struct(in); err != nil {
		return nil, apperr.Validation.Wrap(err)
	}

	var next models.Question
	err := database.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		current, err := getQuestion(tx, id, Latest)
		if err != nil {
			return err
		}

		next = *current
		next.Version = current.Version + 1
		next.CreatedAt = time.Time{}
		if in.Label != nil {
			next.Label = *in.Label
		}
		if in.Type != nil {
			next.Type = *in.Type
		}
		if in.Options != nil {
			options, err := optionsJSON(in.Options)
			if err != nil {
				return err
			}
			next.Options = options
		}

		return tx.Create(&next).Error
	})
	if err != nil {
		return nil, err
	}

	return &next, nil
}

// GetQuestionsLatest resolves each id to its newest version. Ids without
// any version are skipped; the result is ordered by id.
func (r *Registry) GetQuestionsLatest(ctx context.Context, ids []uint) ([]models.Question, error) {
	return getQuestionsLatest(r.db.WithContext(ctx), ids)
}

func getQuestionsLatest(db *gorm.DB, ids []uint) ([]models.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	latest := db.Model(&models.Question{}).
		Select("id, MAX(version) AS version").
		Where("id IN ?", ids).
		Group("id")

	var questions []models.Question
	err := db.Model(&models.Question{}).
		Select("questions.*").
		Joins("JOIN (?) AS latest ON latest.id = questions.id AND latest.version = questions.version", latest).
		Order("questions.id").
		Find(&questions).Error
	if err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *Registry) CreateSurvey(ctx context.Context, in CreateSurveyInput) (*SurveyView, error) {
	if err := r.validate.Struct(in); err != nil {
		return nil, apperr.Validation.Wrap(err)
	}

	survey := models.Survey{
		Name:              in.Name,
		OwnerID:           in.OwnerID,
		Questions:         datatypes.JSONSlice[uint](in.Questions),
		OptionalQuestions: datatypes.JSONSlice[uint](in.OptionalQuestions),
	}

	var view *SurveyView
	err := database.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		questions, err := getQuestionsLatest(tx, survey.QuestionIDs())
		if err != nil {
			return err
		}
		if missing := missingIDs(survey.QuestionIDs(), questions); len(missing) > 0 {
			return apperr.NotFound.New("questions %v", missing)
		}

		if err := tx.Create(&survey).Error; err != nil {
			return err
		}
		view = resolveSurvey(survey, questions)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return view, nil
}

func (r *Registry) GetSurvey(ctx context.Context, id uint) (*SurveyView, error) {
	db := r.db.WithContext(ctx)

	var survey models.Survey
	if err := db.First(&survey, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound.New("survey %d", id)
		}
		return nil, err
	}

	questions, err := getQuestionsLatest(db, survey.QuestionIDs())
	if err != nil {
		return nil, err
	}
	return resolveSurvey(survey, questions), nil
}

func (r *Registry) GetSurveys(ctx context.Context) ([]SurveyView, error) {
	db := r.db.WithContext(ctx)

	var surveys []models.Survey
	if err := db.Order("id").Find(&surveys).Error; err != nil {
		return nil, err
	}

	var ids []uint
	for _, s := range surveys {
		ids = append(ids, s.QuestionIDs()...)
	}
	questions, err := getQuestionsLatest(db, ids)
	if err != nil {
		return nil, err
	}

	views := make([]SurveyView, 0, len(surveys))
	for _, s := range surveys {
		views = append(views, *resolveSurvey(s, questions))
	}
	return views, nil
}

// SurveyExists reports whether a survey row exists, using db so it can run
// inside another component's transaction.
func SurveyExists(db *gorm.DB, id uint) (bool, error) {
	var count int64
	if err := db.Model(&models.Survey{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// resolveSurvey keeps the survey's question order; ids missing from
// questions are dropped.
func resolveSurvey(survey models.Survey, questions []models.Question) *SurveyView {
	byID := make(map[uint]models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	view := &SurveyView{
		ID:        survey.ID,
		Name:      survey.Name,
		OwnerID:   survey.OwnerID,
		Questions: []SurveyQuestion{},
		CreatedAt: survey.CreatedAt,
		UpdatedAt: survey.UpdatedAt,
	}
	for _, id := range survey.QuestionIDs() {
		q, ok := byID[id]
		if !ok {
			continue
		}
		view.Questions = append(view.Questions, SurveyQuestion{
			Question: q,
			Optional: survey.IsOptional(id),
		})
	}
	return view
}

func missingIDs(ids []uint, questions []models.Question) []uint {
	found := make(map[uint]bool, len(questions))
	for _, q := range questions {
		found[q.ID] = true
	}
	var missing []uint
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

func optionsJSON(raw json.RawMessage) (datatypes.JSON, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, apperr.Validation.New("options must be valid JSON")
	}
	return datatypes.JSON(raw), nil
}

package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gdg-garage/observe-api/internal/apperr"
	"github.com/gdg-garage/observe-api/internal/models"
	"github.com/gdg-garage/observe-api/internal/registry"
)

type RegistryHandler struct {
	registry *registry.Registry
}

func NewRegistryHandler(registry *registry.Registry) *RegistryHandler {
	return &RegistryHandler{registry: registry}
}

type QuestionResponse struct {
	Body *models.Question
}

type CreateQuestionRequest struct {
	Body struct {
		Label   string              `json:"label" minLength:"1"`
		Type    models.QuestionType `json:"type" enum:"boolean,multiple_choice,range,text,date,timestamp,number,photo,radio,checkbox"`
		Options interface{}         `json:"options,omitempty" doc:"Type specific options, e.g. the choices of a multiple choice question"`
	}
}

func (h *RegistryHandler) HandleCreateQuestion(ctx context.Context, input *CreateQuestionRequest) (*QuestionResponse, error) {
	options, err := rawJSON(input.Body.Options)
	if err != nil {
		return nil, httpError(err)
	}

	q, err := h.registry.CreateQuestion(ctx, registry.CreateQuestionInput{
		Label:   input.Body.Label,
		Type:    input.Body.Type,
		Options: options,
	})
	if err != nil {
		return nil, httpError(err)
	}
	return &QuestionResponse{Body: q}, nil
}

type GetQuestionRequest struct {
	ID      uint `path:"id"`
	Version int  `query:"version" minimum:"0" doc:"Exact version, the latest when 0"`
}

func (h *RegistryHandler) HandleGetQuestion(ctx context.Context, input *GetQuestionRequest) (*QuestionResponse, error) {
	q, err := h.registry.GetQuestion(ctx, input.ID, input.Version)
	if err != nil {
		return nil, httpError(err)
	}
	return &QuestionResponse{Body: q}, nil
}

type UpdateQuestionRequest struct {
	ID   uint `path:"id"`
	Body struct {
		Label   *string              `json:"label,omitempty"`
		Type    *models.QuestionType `json:"type,omitempty" enum:"boolean,multiple_choice,range,text,date,timestamp,number,photo,radio,checkbox"`
		Options interface{}          `json:"options,omitempty"`
	}
}

func (h *RegistryHandler) HandleUpdateQuestion(ctx context.Context, input *UpdateQuestionRequest) (*QuestionResponse, error) {
	options, err := rawJSON(input.Body.Options)
	if err != nil {
		return nil, httpError(err)
	}

	q, err := h.registry.UpdateQuestion(ctx, input.ID, registry.UpdateQuestionInput{
		Label:   input.Body.Label,
		Type:    input.Body.Type,
		Options: options,
	})
	if err != nil {
		return nil, httpError(err)
	}
	return &QuestionResponse{Body: q}, nil
}

type ListQuestionsRequest struct {
	IDs string `query:"ids" required:"true" doc:"Comma separated question ids"`
}

type ListQuestionsResponse struct {
	Body struct {
		Questions []models.Question `json:"questions"`
	}
}

func (h *RegistryHandler) HandleListQuestions(ctx context.Context, input *ListQuestionsRequest) (*ListQuestionsResponse, error) {
	ids, err := parseIDs(input.IDs)
	if err != nil {
		return nil, httpError(err)
	}

	questions, err := h.registry.GetQuestionsLatest(ctx, ids)
	if err != nil {
		return nil, httpError(err)
	}

	res := &ListQuestionsResponse{}
	res.Body.Questions = questions
	if res.Body.Questions == nil {
		res.Body.Questions = []models.Question{}
	}
	return res, nil
}

type SurveyResponse struct {
	Body *registry.SurveyView
}

type CreateSurveyRequest struct {
	Body struct {
		Name              string `json:"name" minLength:"1"`
		OwnerID           string `json:"ownerId,omitempty"`
		Questions         []uint `json:"questions" minItems:"1"`
		OptionalQuestions []uint `json:"optionalQuestions,omitempty"`
	}
}

func (h *RegistryHandler) HandleCreateSurvey(ctx context.Context, input *CreateSurveyRequest) (*SurveyResponse, error) {
	view, err := h.registry.CreateSurvey(ctx, registry.CreateSurveyInput{
		Name:              input.Body.Name,
		OwnerID:           input.Body.OwnerID,
		Questions:         input.Body.Questions,
		OptionalQuestions: input.Body.OptionalQuestions,
	})
	if err != nil {
		return nil, httpError(err)
	}
	return &SurveyResponse{Body: view}, nil
}

type GetSurveyRequest struct {
	ID uint `path:"id"`
}

func (h *RegistryHandler) HandleGetSurvey(ctx context.Context, input *GetSurveyRequest) (*SurveyResponse, error) {
	view, err := h.registry.GetSurvey(ctx, input.ID)
	if err != nil {
		return nil, httpError(err)
	}
	return &SurveyResponse{Body: view}, nil
}

type ListSurveysResponse struct {
	Body struct {
		Surveys []registry.SurveyView `json:"surveys"`
	}
}

func (h *RegistryHandler) HandleListSurveys(ctx context.Context, _ *struct{}) (*ListSurveysResponse, error) {
	surveys, err := h.registry.GetSurveys(ctx)
	if err != nil {
		return nil, httpError(err)
	}

	res := &ListSurveysResponse{}
	res.Body.Surveys = surveys
	return res, nil
}

func parseIDs(s string) ([]uint, error) {
	var ids []uint
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 0)
		if err != nil || id == 0 {
			return nil, apperr.Validation.New("invalid question id %q", part)
		}
		ids = append(ids, uint(id))
	}
	if len(ids) == 0 {
		return nil, apperr.Validation.New("no question ids given")
	}
	return ids, nil
}

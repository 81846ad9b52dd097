package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gdg-garage/observe-api/internal/apperr"
	"github.com/gdg-garage/observe-api/internal/models"
	"github.com/gdg-garage/observe-api/internal/observations"
	"github.com/paulmach/orb/geojson"
)

type ObservationHandler struct {
	service *observations.Service
}

func NewObservationHandler(service *observations.Service) *ObservationHandler {
	return &ObservationHandler{service: service}
}

type AnswerBody struct {
	QuestionID      uint        `json:"questionId" doc:"Question id" minimum:"1"`
	QuestionVersion int         `json:"questionVersion" doc:"Exact question version that was answered" minimum:"1"`
	Answer          interface{} `json:"answer" doc:"Answer document, {\"value\": ...}"`
}

type SubmitObservationRequest struct {
	UserID string `header:"X-User-ID" required:"true" doc:"Surveyor id set by the gateway"`
	Body   struct {
		SurveyID   uint                   `json:"surveyId" doc:"Survey the observation answers" minimum:"1"`
		CampaignID *uint                  `json:"campaignId,omitempty" doc:"Campaign the observation was made in"`
		CreatedAt  time.Time              `json:"createdAt" doc:"Time the observation was made on the device"`
		Quadkey    string                 `json:"quadkey,omitempty" doc:"Overrides the quadkey of the object"`
		OsmObject  map[string]interface{} `json:"osmObject" doc:"GeoJSON feature of the observed object"`
		Answers    []AnswerBody           `json:"answers" minItems:"1"`
	}
}

type SubmitObservationResponse struct {
	Body struct {
		ID uint `json:"id"`
	}
}

func (h *ObservationHandler) HandleSubmit(ctx context.Context, input *SubmitObservationRequest) (*SubmitObservationResponse, error) {
	feature, err := decodeFeature(input.Body.OsmObject)
	if err != nil {
		return nil, httpError(err)
	}

	answers := make([]observations.AnswerInput, 0, len(input.Body.Answers))
	for _, a := range input.Body.Answers {
		raw, err := rawJSON(a.Answer)
		if err != nil {
			return nil, httpError(err)
		}
		answers = append(answers, observations.AnswerInput{
			QuestionID:      a.QuestionID,
			QuestionVersion: a.QuestionVersion,
			Answer:          raw,
		})
	}

	id, err := h.service.Submit(ctx, observations.SubmitInput{
		SurveyID:   input.Body.SurveyID,
		CampaignID: input.Body.CampaignID,
		UserID:     input.UserID,
		CreatedAt:  input.Body.CreatedAt,
		OsmObject:  feature,
		Quadkey:    input.Body.Quadkey,
		Answers:    answers,
	})
	if err != nil {
		return nil, httpError(err)
	}

	res := &SubmitObservationResponse{}
	res.Body.ID = id
	return res, nil
}

type ListObservationsRequest struct {
	SurveyID    uint   `query:"surveyId" required:"true" minimum:"1"`
	OsmObjectID string `query:"osmObjectId"`
	UserID      string `query:"userId"`
}

type ListObservationsResponse struct {
	Body struct {
		Observations []models.Observation `json:"observations"`
	}
}

func (h *ObservationHandler) HandleList(ctx context.Context, input *ListObservationsRequest) (*ListObservationsResponse, error) {
	list, err := h.service.List(ctx, observations.ListFilter{
		SurveyID:    input.SurveyID,
		OsmObjectID: input.OsmObjectID,
		UserID:      input.UserID,
	})
	if err != nil {
		return nil, httpError(err)
	}

	res := &ListObservationsResponse{}
	res.Body.Observations = list
	if res.Body.Observations == nil {
		res.Body.Observations = []models.Observation{}
	}
	return res, nil
}

func decodeFeature(doc map[string]interface{}) (*geojson.Feature, error) {
	if doc == nil {
		return nil, apperr.Validation.New("missing osmObject")
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, apperr.Validation.Wrap(err)
	}
	f, err := geojson.UnmarshalFeature(b)
	if err != nil {
		return nil, apperr.Validation.New("invalid GeoJSON feature: %v", err)
	}
	return f, nil
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/gdg-garage/observe-api/internal/apperr"
	"github.com/gdg-garage/observe-api/internal/badges"
	"github.com/gdg-garage/observe-api/internal/observations"
	"github.com/gdg-garage/observe-api/internal/osmobjects"
	"github.com/gdg-garage/observe-api/internal/registry"
	"github.com/gdg-garage/observe-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAPI(t *testing.T) humatest.TestAPI {
	t.Helper()

	db := testutil.NewDB(t)
	store := osmobjects.NewStore(db, 18)
	service := observations.NewService(db, store, zap.NewNop())

	_, api := humatest.New(t)
	Register(api, Handlers{
		Observations: NewObservationHandler(service),
		Objects:      NewObjectHandler(store, 15),
		Registry:     NewRegistryHandler(registry.New(db)),
		Badges:       NewBadgeHandler(badges.NewEngine(db, service, nil, zap.NewNop())),
	})
	return api
}

func decode(t *testing.T, body []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body, v), string(body))
}

// seed creates a boolean question and a survey using it.
func seed(t *testing.T, api humatest.TestAPI) (questionID, surveyID uint) {
	t.Helper()

	resp := api.Post("/questions", map[string]interface{}{
		"label": "Is there a recycling bin?",
		"type":  "boolean",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var q struct{ ID uint }
	decode(t, resp.Body.Bytes(), &q)

	resp = api.Post("/surveys", map[string]interface{}{
		"name":      "Bins",
		"questions": []uint{q.ID},
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var s struct{ ID uint }
	decode(t, resp.Body.Bytes(), &s)

	return q.ID, s.ID
}

func observation(surveyID, questionID uint, value interface{}) map[string]interface{} {
	return map[string]interface{}{
		"surveyId":  surveyID,
		"createdAt": "2024-05-01T10:00:00Z",
		"osmObject": map[string]interface{}{
			"type":       "Feature",
			"id":         "node/1",
			"geometry":   map[string]interface{}{"type": "Point", "coordinates": []float64{14.42, 50.08}},
			"properties": map[string]interface{}{"amenity": "recycling"},
		},
		"answers": []map[string]interface{}{
			{"questionId": questionID, "questionVersion": 1, "answer": map[string]interface{}{"value": value}},
		},
	}
}

func TestSubmitAndReadObject(t *testing.T) {
	api := newTestAPI(t)
	questionID, surveyID := seed(t, api)

	for _, user := range []string{"alice", "bob"} {
		resp := api.Post("/observations", "X-User-ID: "+user, observation(surveyID, questionID, user == "alice"))
		require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	}

	resp := api.Get("/osmobjects/node/1")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var feature struct {
		ID         string
		Properties struct {
			Amenity      string
			Observations osmobjects.Counts
			Questions    []osmobjects.QuestionCounts
		}
	}
	decode(t, resp.Body.Bytes(), &feature)
	assert.Equal(t, "node/1", feature.ID)
	assert.Equal(t, "recycling", feature.Properties.Amenity)
	assert.Equal(t, osmobjects.Counts{Total: 2, TotalTrue: 1, TotalFalse: 1}, feature.Properties.Observations)
	require.Len(t, feature.Properties.Questions, 1)
	assert.Equal(t, questionID, feature.Properties.Questions[0].QuestionID)

	resp = api.Get("/stats")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var stats osmobjects.Stats
	decode(t, resp.Body.Bytes(), &stats)
	assert.Equal(t, osmobjects.Stats{PlacesCount: 1, SurveyedPlacesCount: 1, SurveyorsCount: 2}, stats)

	resp = api.Get("/observations?surveyId=1&userId=alice")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var list struct {
		Observations []struct{ UserID string }
	}
	decode(t, resp.Body.Bytes(), &list)
	require.Len(t, list.Observations, 1)
	assert.Equal(t, "alice", list.Observations[0].UserID)
}

func TestSubmitErrorsMapToStatus(t *testing.T) {
	api := newTestAPI(t)
	questionID, surveyID := seed(t, api)

	resp := api.Post("/observations", "X-User-ID: alice", observation(surveyID, questionID, "Yes"))
	assert.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())

	resp = api.Post("/observations", "X-User-ID: alice", observation(surveyID+1, questionID, true))
	assert.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())

	resp = api.Post("/observations", observation(surveyID, questionID, true))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code, "missing X-User-ID: %s", resp.Body.String())

	resp = api.Get("/osmobjects/node/1")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestListObjects(t *testing.T) {
	api := newTestAPI(t)

	resp := api.Post("/osmobjects/import", map[string]interface{}{
		"type": "FeatureCollection",
		"features": []map[string]interface{}{
			{
				"type":       "Feature",
				"id":         "node/1",
				"geometry":   map[string]interface{}{"type": "Point", "coordinates": []float64{1, 1}},
				"properties": map[string]interface{}{"quadkey": "0001", "name": "Glass container"},
			},
			{
				"type":       "Feature",
				"id":         "node/2",
				"geometry":   map[string]interface{}{"type": "Point", "coordinates": []float64{1, 1}},
				"properties": map[string]interface{}{"quadkey": "1001", "name": "Bench"},
			},
		},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var imported struct{ Inserted int }
	decode(t, resp.Body.Bytes(), &imported)
	assert.Equal(t, 2, imported.Inserted)

	resp = api.Get("/osmobjects?quadkey=0&limit=10")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var page struct {
		Count   int64
		Page    int
		Limit   int
		Objects struct {
			Features []struct{ ID string }
		}
	}
	decode(t, resp.Body.Bytes(), &page)
	assert.Equal(t, int64(1), page.Count)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.Limit)
	require.Len(t, page.Objects.Features, 1)
	assert.Equal(t, "node/1", page.Objects.Features[0].ID)

	resp = api.Get("/osmobjects/search?q=bench")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var found struct {
		Features []struct{ ID string }
	}
	decode(t, resp.Body.Bytes(), &found)
	require.Len(t, found.Features, 1)
	assert.Equal(t, "node/2", found.Features[0].ID)
}

func TestListObjectsLimitIsBounded(t *testing.T) {
	api := newTestAPI(t)

	assert.Equal(t, http.StatusOK, api.Get("/osmobjects?limit=100").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, api.Get("/osmobjects?limit=1000").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, api.Get("/osmobjects/search?q=bench&limit=1000").Code)
}

func TestQuestionVersions(t *testing.T) {
	api := newTestAPI(t)
	questionID, surveyID := seed(t, api)

	resp := api.Patch("/questions/1", map[string]interface{}{"label": "Is there a bin nearby?"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var q struct {
		ID      uint
		Version int
		Label   string
		Type    string
	}
	decode(t, resp.Body.Bytes(), &q)
	assert.Equal(t, questionID, q.ID)
	assert.Equal(t, 2, q.Version)
	assert.Equal(t, "boolean", q.Type)

	resp = api.Get("/questions/1?version=1")
	require.Equal(t, http.StatusOK, resp.Code)
	decode(t, resp.Body.Bytes(), &q)
	assert.Equal(t, "Is there a recycling bin?", q.Label)

	resp = api.Get("/questions?ids=1")
	require.Equal(t, http.StatusOK, resp.Code)
	var list struct {
		Questions []struct{ Version int }
	}
	decode(t, resp.Body.Bytes(), &list)
	require.Len(t, list.Questions, 1)
	assert.Equal(t, 2, list.Questions[0].Version)

	resp = api.Get("/surveys/1")
	require.Equal(t, http.StatusOK, resp.Code)
	var survey registry.SurveyView
	decode(t, resp.Body.Bytes(), &survey)
	assert.Equal(t, surveyID, survey.ID)
	require.Len(t, survey.Questions, 1)
	assert.Equal(t, "Is there a bin nearby?", survey.Questions[0].Label)

	assert.Equal(t, http.StatusNotFound, api.Get("/questions/9").Code)
	assert.Equal(t, http.StatusBadRequest, api.Get("/questions?ids=1,x").Code)
	assert.Equal(t, http.StatusNotFound, api.Post("/surveys", map[string]interface{}{
		"name":      "Broken",
		"questions": []uint{5},
	}).Code)
}

func TestListUserBadges(t *testing.T) {
	api := newTestAPI(t)

	resp := api.Get("/badges/users?userId=alice")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.JSONEq(t, `{"badges": []}`, stripSchema(t, resp.Body.Bytes()))
}

func TestHTTPError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperr.Validation.New("bad"), http.StatusBadRequest},
		{apperr.Transaction.Wrap(apperr.NotFound.New("survey 1")), http.StatusNotFound},
		{apperr.Transaction.Wrap(apperr.Conflict.New("object node/1")), http.StatusConflict},
		{apperr.Transaction.Wrap(errors.New("disk full")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		var se huma.StatusError
		require.ErrorAs(t, httpError(tt.err), &se)
		assert.Equal(t, tt.status, se.GetStatus(), tt.err.Error())
	}

	assert.NotContains(t, httpError(errors.New("password=hunter2")).Error(), "hunter2")
}

// stripSchema drops the $schema link huma adds to object responses.
func stripSchema(t *testing.T, body []byte) string {
	t.Helper()
	var doc map[string]interface{}
	decode(t, body, &doc)
	delete(doc, "$schema")
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(b)
}

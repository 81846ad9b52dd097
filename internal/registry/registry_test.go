package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/gdg-garage/observe-api/internal/apperr"
	"github.com/gdg-garage/observe-api/internal/models"
	"github.com/gdg-garage/observe-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(testutil.NewDB(t))
}

func createQuestion(t *testing.T, r *Registry, label string, typ models.QuestionType) *models.Question {
	t.Helper()
	q, err := r.CreateQuestion(context.Background(), CreateQuestionInput{Label: label, Type: typ})
	require.NoError(t, err)
	return q
}

func TestCreateQuestion(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	first := createQuestion(t, r, "Is there a bin?", models.QuestionBoolean)
	second, err := r.CreateQuestion(ctx, CreateQuestionInput{
		Label:   "Which kinds?",
		Type:    models.QuestionMultipleChoice,
		Options: json.RawMessage(`{"choices": ["glass", "paper"]}`),
	})
	require.NoError(t, err)

	assert.Equal(t, uint(1), first.ID)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, uint(2), second.ID)
	assert.Equal(t, 1, second.Version)
	assert.JSONEq(t, `{"choices": ["glass", "paper"]}`, string(second.Options))
}

func TestCreateQuestionValidation(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	_, err := r.CreateQuestion(ctx, CreateQuestionInput{Type: models.QuestionBoolean})
	assert.True(t, apperr.Validation.Has(err), "missing label: %v", err)

	_, err = r.CreateQuestion(ctx, CreateQuestionInput{Label: "x", Type: "map"})
	assert.True(t, apperr.Validation.Has(err), "unknown type: %v", err)

	_, err = r.CreateQuestion(ctx, CreateQuestionInput{Label: "x", Type: models.QuestionText, Options: json.RawMessage(`{`)})
	assert.True(t, apperr.Validation.Has(err), "invalid options: %v", err)
}

func TestUpdateQuestionAppendsVersion(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	q := createQuestion(t, r, "Is there a bin?", models.QuestionBoolean)

	label := "Is there a recycling bin?"
	v2, err := r.UpdateQuestion(ctx, q.ID, UpdateQuestionInput{Label: &label})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, label, v2.Label)
	assert.Equal(t, models.QuestionBoolean, v2.Type, "unspecified fields come from the previous version")

	typ := models.QuestionText
	v3, err := r.UpdateQuestion(ctx, q.ID, UpdateQuestionInput{Type: &typ})
	require.NoError(t, err)
	assert.Equal(t, 3, v3.Version)
	assert.Equal(t, label, v3.Label)
	assert.Equal(t, models.QuestionText, v3.Type)

	// history is untouched
	v1, err := r.GetQuestion(ctx, q.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Is there a bin?", v1.Label)
	assert.Equal(t, models.QuestionBoolean, v1.Type)

	latest, err := r.GetQuestion(ctx, q.ID, Latest)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Version)
}

func TestUpdateQuestionNotFound(t *testing.T) {
	r := newRegistry(t)

	label := "x"
	_, err := r.UpdateQuestion(context.Background(), 42, UpdateQuestionInput{Label: &label})
	require.Error(t, err)
	assert.True(t, apperr.NotFound.Has(err))
}

func TestGetQuestionNotFound(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()
	q := createQuestion(t, r, "Is there a bin?", models.QuestionBoolean)

	_, err := r.GetQuestion(ctx, q.ID, 2)
	assert.True(t, apperr.NotFound.Has(err))

	_, err = r.GetQuestion(ctx, 99, Latest)
	assert.True(t, apperr.NotFound.Has(err))
}

func TestGetQuestionsLatest(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	a := createQuestion(t, r, "a", models.QuestionBoolean)
	b := createQuestion(t, r, "b", models.QuestionText)
	label := "a2"
	_, err := r.UpdateQuestion(ctx, a.ID, UpdateQuestionInput{Label: &label})
	require.NoError(t, err)

	questions, err := r.GetQuestionsLatest(ctx, []uint{b.ID, a.ID, 77})
	require.NoError(t, err)
	require.Len(t, questions, 2)

	assert.Equal(t, a.ID, questions[0].ID)
	assert.Equal(t, 2, questions[0].Version)
	assert.Equal(t, "a2", questions[0].Label)
	assert.Equal(t, b.ID, questions[1].ID)
	assert.Equal(t, 1, questions[1].Version)

	none, err := r.GetQuestionsLatest(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSurveyResolvesLatestQuestions(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	bin := createQuestion(t, r, "Is there a bin?", models.QuestionBoolean)
	note := createQuestion(t, r, "Notes", models.QuestionText)

	created, err := r.CreateSurvey(ctx, CreateSurveyInput{
		Name:              "Bins",
		OwnerID:           "org-1",
		Questions:         []uint{bin.ID},
		OptionalQuestions: []uint{note.ID},
	})
	require.NoError(t, err)
	require.Len(t, created.Questions, 2)

	label := "Is there a recycling bin?"
	_, err = r.UpdateQuestion(ctx, bin.ID, UpdateQuestionInput{Label: &label})
	require.NoError(t, err)

	survey, err := r.GetSurvey(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bins", survey.Name)
	assert.Equal(t, "org-1", survey.OwnerID)
	require.Len(t, survey.Questions, 2)

	assert.Equal(t, bin.ID, survey.Questions[0].ID)
	assert.Equal(t, 2, survey.Questions[0].Version)
	assert.Equal(t, label, survey.Questions[0].Label)
	assert.False(t, survey.Questions[0].Optional)

	assert.Equal(t, note.ID, survey.Questions[1].ID)
	assert.True(t, survey.Questions[1].Optional)

	surveys, err := r.GetSurveys(ctx)
	require.NoError(t, err)
	require.Len(t, surveys, 1)
	assert.Equal(t, survey.Questions, surveys[0].Questions)
}

func TestCreateSurveyUnknownQuestion(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()
	q := createQuestion(t, r, "a", models.QuestionBoolean)

	_, err := r.CreateSurvey(ctx, CreateSurveyInput{Name: "s", Questions: []uint{q.ID, 5}})
	require.Error(t, err)
	assert.True(t, apperr.NotFound.Has(err))

	surveys, err := r.GetSurveys(ctx)
	require.NoError(t, err)
	assert.Empty(t, surveys)

	_, err = r.CreateSurvey(ctx, CreateSurveyInput{Name: "s"})
	assert.True(t, apperr.Validation.Has(err))
}

func TestGetSurveyNotFound(t *testing.T) {
	r := newRegistry(t)

	_, err := r.GetSurvey(context.Background(), 3)
	assert.True(t, apperr.NotFound.Has(err))
}

func TestSurveyExists(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()
	q := createQuestion(t, r, "a", models.QuestionBoolean)
	s, err := r.CreateSurvey(ctx, CreateSurveyInput{Name: "s", Questions: []uint{q.ID}})
	require.NoError(t, err)

	ok, err := SurveyExists(r.db, s.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = SurveyExists(r.db, s.ID+1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSurveyMandatoryWinsOverOptional(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	bin := createQuestion(t, r, "Is there a bin?", models.QuestionBoolean)

	survey, err := r.CreateSurvey(ctx, CreateSurveyInput{
		Name:              "Bins",
		Questions:         []uint{bin.ID},
		OptionalQuestions: []uint{bin.ID},
	})
	require.NoError(t, err)
	require.Len(t, survey.Questions, 1)
	assert.False(t, survey.Questions[0].Optional)
}

func TestCreateQuestionConcurrentIDs(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	const n = 8
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[uint]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q, err := r.CreateQuestion(ctx, CreateQuestionInput{Label: fmt.Sprintf("Question %d", i), Type: models.QuestionText})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[q.ID] = true
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Len(t, ids, n, "every question gets its own id")
}

func TestCreateQuestionIDsComeFromSequence(t *testing.T) {
	db := testutil.NewDB(t)
	r := New(db)

	// An id already handed out is never reused, even when no question row
	// carries it.
	require.NoError(t, db.Create(&models.QuestionSequence{}).Error)

	q := createQuestion(t, r, "Is there a bin?", models.QuestionBoolean)
	assert.Equal(t, uint(2), q.ID)
}

package badges

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/gdg-garage/observe-api/internal/apperr"
	"github.com/gdg-garage/observe-api/internal/models"
)

// Achievement is the moment a user crossed a badge's threshold.
type Achievement struct {
	UserID       string
	TimeAchieved time.Time
}

// Params are the badge description fields, decoded with json.Number for
// numbers.
type Params map[string]interface{}

// Metric computes which users qualify for a badge and when. Implementations
// are pure functions of their inputs.
type Metric interface {
	Compute(params Params, observations []models.Observation) ([]Achievement, error)
}

type MetricFunc func(params Params, observations []models.Observation) ([]Achievement, error)

func (f MetricFunc) Compute(params Params, observations []models.Observation) ([]Achievement, error) {
	return f(params, observations)
}

const (
	MetricNumObservations           = "numObservations"
	MetricNumAnswersWithValue       = "numAnswersWithValue"
	MetricNumObservationsInCampaign = "numObservationsInCampaign"
)

var metrics = map[string]Metric{
	MetricNumObservations:           MetricFunc(numObservations),
	MetricNumAnswersWithValue:       MetricFunc(numAnswersWithValue),
	MetricNumObservationsInCampaign: MetricFunc(numObservationsInCampaign),
}

// LookupMetric returns the built-in metric registered under name.
func LookupMetric(name string) (Metric, error) {
	m, ok := metrics[name]
	if !ok {
		return nil, apperr.Computation.New("unknown metric %q", name)
	}
	return m, nil
}

// MetricNames lists the registered metrics, sorted.
func MetricNames() []string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func numObservations(params Params, observations []models.Observation) ([]Achievement, error) {
	threshold, err := params.threshold()
	if err != nil {
		return nil, err
	}
	return reached(threshold, observations), nil
}

func numAnswersWithValue(params Params, observations []models.Observation) ([]Achievement, error) {
	threshold, err := params.threshold()
	if err != nil {
		return nil, err
	}
	raw, ok := params["answerValue"]
	if !ok {
		return nil, apperr.Computation.New("%s needs an answerValue", MetricNumAnswersWithValue)
	}
	want, err := canonicalJSON(raw)
	if err != nil {
		return nil, apperr.Computation.New("invalid answerValue: %v", err)
	}

	var matching []models.Observation
	for _, o := range observations {
		if hasAnswerValue(o, want) {
			matching = append(matching, o)
		}
	}
	return reached(threshold, matching), nil
}

func numObservationsInCampaign(params Params, observations []models.Observation) ([]Achievement, error) {
	threshold, err := params.threshold()
	if err != nil {
		return nil, err
	}
	campaignID, err := params.id("campaignId")
	if err != nil {
		return nil, err
	}

	var matching []models.Observation
	for _, o := range observations {
		if o.CampaignID != nil && *o.CampaignID == campaignID {
			matching = append(matching, o)
		}
	}
	return reached(threshold, matching), nil
}

// reached groups observations by user and, for every user with at least
// threshold observations, reports the time of the threshold-th one.
// Results are ordered by user id.
func reached(threshold int, observations []models.Observation) []Achievement {
	times := map[string][]time.Time{}
	for _, o := range observations {
		times[o.UserID] = append(times[o.UserID], o.CreatedAt)
	}

	var achievements []Achievement
	for userID, ts := range times {
		if len(ts) < threshold {
			continue
		}
		sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
		achievements = append(achievements, Achievement{UserID: userID, TimeAchieved: ts[threshold-1]})
	}

	sort.Slice(achievements, func(i, j int) bool { return achievements[i].UserID < achievements[j].UserID })
	return achievements
}

func hasAnswerValue(o models.Observation, want string) bool {
	for _, a := range o.Answers {
		var doc struct {
			Value interface{} `json:"value"`
		}
		if err := json.Unmarshal(a.Answer, &doc); err != nil {
			continue
		}
		got, err := canonicalJSON(doc.Value)
		if err == nil && got == want {
			return true
		}
	}
	return false
}

// canonicalJSON renders v so that equal JSON values compare equal as strings,
// regardless of number formatting or key order.
func canonicalJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var plain interface{}
	if err := json.Unmarshal(b, &plain); err != nil {
		return "", err
	}
	b, err = json.Marshal(plain)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (p Params) threshold() (int, error) {
	n, err := p.integer("threshold")
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, apperr.Computation.New("threshold must be a positive integer, got %d", n)
	}
	return int(n), nil
}

func (p Params) id(name string) (uint, error) {
	n, err := p.integer(name)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, apperr.Computation.New("%s must not be negative, got %d", name, n)
	}
	return uint(n), nil
}

func (p Params) integer(name string) (int64, error) {
	raw, ok := p[name]
	if !ok || raw == nil {
		return 0, apperr.Computation.New("missing %s", name)
	}

	switch v := raw.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, apperr.Computation.New("%s must be an integer, got %s", name, v)
		}
		return n, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, apperr.Computation.New("%s must be an integer, got %v", name, v)
		}
		return int64(v), nil
	default:
		return 0, apperr.Computation.New("%s must be an integer, got %T", name, raw)
	}
}

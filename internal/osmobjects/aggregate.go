package osmobjects

import (
	"context"

	"github.com/gdg-garage/observe-api/internal/models"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Stats summarizes the observed places.
//
// NonPlasticPlacesCount keeps the name used by the clients: it counts places
// whose boolean answers are mostly true (strictly more true than false).
type Stats struct {
	PlacesCount           int64 `json:"placesCount"`
	SurveyedPlacesCount   int64 `json:"surveyedPlacesCount"`
	NonPlasticPlacesCount int64 `json:"nonPlasticPlacesCount"`
	SurveyorsCount        int64 `json:"surveyorsCount"`
}

// QuestionCounts is the breakdown of one boolean question for one object.
type QuestionCounts struct {
	QuestionID uint `json:"questionId"`
	Counts
}

const countColumns = `COUNT(answers.id) AS total,
	COUNT(CASE WHEN answers.bool_value THEN 1 END) AS total_true,
	COUNT(CASE WHEN NOT answers.bool_value THEN 1 END) AS total_false`

// booleanAnswers joins answers to their observation and to the exact question
// version they answer, keeping boolean questions only.
func booleanAnswers(db *gorm.DB) *gorm.DB {
	return db.Table("answers").
		Joins("JOIN observations ON observations.id = answers.observation_id").
		Joins("JOIN questions ON questions.id = answers.question_id AND questions.version = answers.question_version").
		Where("questions.type = ?", models.QuestionBoolean)
}

// objectCounts groups boolean answers per object.
func objectCounts(db *gorm.DB) *gorm.DB {
	return booleanAnswers(db).
		Select("observations.osm_object_id, observations.osm_object_version, " + countColumns).
		Group("observations.osm_object_id").
		Group("observations.osm_object_version")
}

// AnswerBreakdown returns per question counts of the boolean questions of the
// given objects, keyed by object id. Objects without boolean answers are
// absent from the map.
func (s *Store) AnswerBreakdown(ctx context.Context, objectIDs []string) (map[string][]QuestionCounts, error) {
	result := map[string][]QuestionCounts{}
	if len(objectIDs) == 0 {
		return result, nil
	}

	var rows []struct {
		OsmObjectID string
		QuestionID  uint
		Total       int64
		TotalTrue   int64
		TotalFalse  int64
	}
	err := booleanAnswers(s.db.WithContext(ctx)).
		Select("observations.osm_object_id, answers.question_id, "+countColumns).
		Where("observations.osm_object_id IN ?", objectIDs).
		Group("observations.osm_object_id").
		Group("answers.question_id").
		Order("observations.osm_object_id").
		Order("answers.question_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, r := range rows {
		result[r.OsmObjectID] = append(result[r.OsmObjectID], QuestionCounts{
			QuestionID: r.QuestionID,
			Counts:     Counts{Total: r.Total, TotalTrue: r.TotalTrue, TotalFalse: r.TotalFalse},
		})
	}
	return result, nil
}

// GlobalStats computes the summary, optionally restricted to the
// observations of one campaign. The three counts run concurrently.
func (s *Store) GlobalStats(ctx context.Context, campaignID *uint) (*Stats, error) {
	var stats Stats
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		db := s.db.WithContext(gctx)
		if campaignID == nil {
			return db.Model(&models.OsmObject{}).Count(&stats.PlacesCount).Error
		}
		places := db.Model(&models.Observation{}).
			Distinct("osm_object_id", "osm_object_version").
			Where("campaign_id = ?", *campaignID)
		return db.Table("(?) AS places", places).Count(&stats.PlacesCount).Error
	})

	g.Go(func() error {
		query := s.db.WithContext(gctx).Model(&models.Observation{}).Distinct("user_id")
		if campaignID != nil {
			query = query.Where("campaign_id = ?", *campaignID)
		}
		return query.Count(&stats.SurveyorsCount).Error
	})

	g.Go(func() error {
		db := s.db.WithContext(gctx)

		// Per object and question first, then per object, then overall.
		perQuestion := booleanAnswers(db).
			Select(`observations.osm_object_id, observations.osm_object_version, answers.question_id,
				COUNT(CASE WHEN answers.bool_value THEN 1 END) AS total_true,
				COUNT(CASE WHEN NOT answers.bool_value THEN 1 END) AS total_false`).
			Group("observations.osm_object_id").
			Group("observations.osm_object_version").
			Group("answers.question_id")
		if campaignID != nil {
			perQuestion = perQuestion.Where("observations.campaign_id = ?", *campaignID)
		}

		perObject := db.Table("(?) AS answer_totals", perQuestion).
			Select(`osm_object_id, osm_object_version,
				SUM(total_true) AS total_true,
				SUM(total_false) AS total_false`).
			Group("osm_object_id").
			Group("osm_object_version")

		var places struct {
			Total      int64
			MostlyTrue int64
		}
		err := db.Table("(?) AS place_totals", perObject).
			Select(`COUNT(*) AS total,
				COUNT(CASE WHEN total_true > total_false THEN 1 END) AS mostly_true`).
			Scan(&places).Error
		if err != nil {
			return err
		}
		stats.SurveyedPlacesCount = places.Total
		stats.NonPlasticPlacesCount = places.MostlyTrue
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &stats, nil
}

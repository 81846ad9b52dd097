// Package badges derives badge assignments from the observation history.
//
// Assignments are a pure projection: every run recomputes all of them from
// the badge descriptions and all observations, then replaces the stored set
// in one transaction. Running twice over unchanged data stores the same set.
package badges

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gdg-garage/observe-api/internal/apperr"
	"github.com/gdg-garage/observe-api/internal/database"
	"github.com/gdg-garage/observe-api/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertBatchSize = 500

// ObservationSource loads the full observation history with answers.
type ObservationSource interface {
	All(ctx context.Context) ([]models.Observation, error)
}

// Notifier announces badges achieved since the previous run.
type Notifier interface {
	NotifyBadge(badge models.Badge, userID string, achievedAt time.Time) error
}

// RunResult summarizes one run.
type RunResult struct {
	Badges      int
	Assignments int
	NewlyEarned int
}

// UserBadge is an assignment joined with its badge.
type UserBadge struct {
	BadgeID   uint      `json:"badgeId"`
	Name      string    `json:"name"`
	Image     string    `json:"image,omitempty"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Engine struct {
	db           *gorm.DB
	observations ObservationSource
	notifier     Notifier
	logger       *zap.Logger

	// run replaces the whole assignment table and must not overlap itself.
	mu sync.Mutex
}

// NewEngine creates an engine. notifier may be nil.
func NewEngine(db *gorm.DB, observations ObservationSource, notifier Notifier, logger *zap.Logger) *Engine {
	return &Engine{
		db:           db,
		observations: observations,
		notifier:     notifier,
		logger:       logger,
	}
}

// Run recomputes and replaces every badge assignment. When any metric fails
// nothing is written and the previous assignments stay in place.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.run(ctx)
	if err != nil {
		e.logger.Error("could not complete badge calculation", zap.Error(err))
		return nil, err
	}

	e.logger.Info("badge calculation complete",
		zap.Int("badges", result.Badges),
		zap.Int("assignments", result.Assignments),
		zap.Int("newlyEarned", result.NewlyEarned),
	)
	return result, nil
}

func (e *Engine) run(ctx context.Context) (*RunResult, error) {
	db := e.db.WithContext(ctx)

	var badges []models.Badge
	if err := db.Order("id").Find(&badges).Error; err != nil {
		return nil, err
	}
	observations, err := e.observations.All(ctx)
	if err != nil {
		return nil, err
	}

	assignments, err := Compute(badges, observations)
	if err != nil {
		return nil, err
	}

	var previous []models.BadgeUser
	if err := db.Find(&previous).Error; err != nil {
		return nil, err
	}

	err = database.WithTx(ctx, e.db, func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.BadgeUser{}).Error; err != nil {
			return err
		}
		if len(assignments) == 0 {
			return nil
		}
		return tx.Omit(clause.Associations).CreateInBatches(assignments, insertBatchSize).Error
	})
	if err != nil {
		return nil, err
	}

	earned := newlyEarned(previous, assignments)
	e.notify(badges, earned)

	return &RunResult{
		Badges:      len(badges),
		Assignments: len(assignments),
		NewlyEarned: len(earned),
	}, nil
}

// Compute evaluates every badge's metric over the observations and returns
// the assignments ordered by badge and user.
func Compute(badges []models.Badge, observations []models.Observation) ([]models.BadgeUser, error) {
	var assignments []models.BadgeUser
	for _, badge := range badges {
		name, params, err := parseDescription(badge.Description)
		if err != nil {
			return nil, apperr.Computation.New("badge %d: %v", badge.ID, err)
		}
		metric, err := LookupMetric(name)
		if err != nil {
			return nil, apperr.Computation.New("badge %d: %v", badge.ID, err)
		}

		achievements, err := metric.Compute(params, observations)
		if err != nil {
			return nil, apperr.Computation.New("badge %d: %v", badge.ID, err)
		}
		for _, a := range achievements {
			assignments = append(assignments, models.BadgeUser{
				BadgeID:   badge.ID,
				UserID:    a.UserID,
				CreatedAt: a.TimeAchieved,
			})
		}
	}

	sort.SliceStable(assignments, func(i, j int) bool {
		if assignments[i].BadgeID != assignments[j].BadgeID {
			return assignments[i].BadgeID < assignments[j].BadgeID
		}
		return assignments[i].UserID < assignments[j].UserID
	})
	return assignments, nil
}

func parseDescription(raw []byte) (string, Params, error) {
	if len(raw) == 0 {
		return "", nil, apperr.Computation.New("empty description")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var params Params
	if err := dec.Decode(&params); err != nil {
		return "", nil, apperr.Computation.New("invalid description: %v", err)
	}

	name, _ := params["metric"].(string)
	if name == "" {
		return "", nil, apperr.Computation.New("description has no metric")
	}
	return name, params, nil
}

type assignmentKey struct {
	badgeID uint
	userID  string
}

func newlyEarned(previous, current []models.BadgeUser) []models.BadgeUser {
	had := make(map[assignmentKey]bool, len(previous))
	for _, p := range previous {
		had[assignmentKey{p.BadgeID, p.UserID}] = true
	}

	var earned []models.BadgeUser
	for _, c := range current {
		if !had[assignmentKey{c.BadgeID, c.UserID}] {
			earned = append(earned, c)
		}
	}
	return earned
}

// notify runs after commit; failures are logged and never undo a run.
func (e *Engine) notify(badges []models.Badge, earned []models.BadgeUser) {
	if e.notifier == nil || len(earned) == 0 {
		return
	}

	byID := make(map[uint]models.Badge, len(badges))
	for _, b := range badges {
		byID[b.ID] = b
	}
	for _, a := range earned {
		if err := e.notifier.NotifyBadge(byID[a.BadgeID], a.UserID, a.CreatedAt); err != nil {
			e.logger.Warn("failed to announce badge",
				zap.Error(err),
				zap.Uint("badgeId", a.BadgeID),
				zap.String("userId", a.UserID),
			)
		}
	}
}

// UserBadges lists assignments with their badge, ordered by achievement
// time. An empty userID lists every user's badges.
func (e *Engine) UserBadges(ctx context.Context, userID string) ([]UserBadge, error) {
	query := e.db.WithContext(ctx).
		Table("badges_users").
		Select("badges_users.badge_id, badges.name, badges.image, badges_users.user_id, badges_users.created_at").
		Joins("JOIN badges ON badges.id = badges_users.badge_id")
	if userID != "" {
		query = query.Where("badges_users.user_id = ?", userID)
	}

	var result []UserBadge
	err := query.
		Order("badges_users.created_at").
		Order("badges_users.badge_id").
		Scan(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

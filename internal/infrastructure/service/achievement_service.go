package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/alem-hub/flow-engine/internal/application/service"
	"github.com/alem-hub/flow-engine/internal/domain/achievement"
	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/pkg/logger"
)

// AchievementService evaluates achievement rules for a processed interaction
// and persists the ones a user has not earned yet.
type AchievementService struct {
	repo achievement.Repository
	log  *logger.Logger
}

var _ service.AchievementService = (*AchievementService)(nil)

// NewAchievementService creates the service.
func NewAchievementService(repo achievement.Repository, log *logger.Logger) *AchievementService {
	if log == nil {
		log = logger.Nop()
	}
	return &AchievementService{
		repo: repo,
		log:  log.With(logger.Component("achievements")),
	}
}

// CheckComponentAchievements returns only the achievements unlocked by this outcome.
func (s *AchievementService) CheckComponentAchievements(ctx context.Context, o service.ComponentOutcome) ([]achievement.Achievement, error) {
	types := achievement.Evaluate(factsOf(o))
	if len(types) == 0 {
		return nil, nil
	}

	var (
		unlocked []achievement.Achievement
		errs     []error
	)
	for _, t := range types {
		a := achievement.Achievement{
			UserID:       o.UserID,
			Type:         t,
			AssignmentID: o.AssignmentID,
			ComponentID:  o.ComponentID,
			UnlockedAt:   o.At,
		}
		awarded, err := s.repo.Award(ctx, a)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !awarded {
			continue
		}
		unlocked = append(unlocked, a)
	}

	if len(unlocked) > 0 {
		s.log.Info("achievements unlocked",
			logger.UserID(o.UserID),
			logger.AssignmentID(o.AssignmentID),
			logger.Int("count", len(unlocked)),
		)
	}
	return unlocked, errors.Join(errs...)
}

func factsOf(o service.ComponentOutcome) achievement.Facts {
	f := achievement.Facts{
		UserID:              o.UserID,
		AssignmentID:        o.AssignmentID,
		ComponentID:         o.ComponentID,
		ComponentType:       string(o.ComponentType),
		CompletedComponents: o.CompletedComponents,
		StepCompleted:       o.StepCompleted,
		FlowCompleted:       o.FlowCompleted,
		Deadline:            o.Deadline,
		At:                  o.At,
	}
	if o.Result == nil {
		return f
	}
	f.ComponentCompleted = o.Result.IsCompleted()
	f.QuizPercentage = o.Result.Percentage
	if o.ComponentType == content.TypeTask && len(o.Result.ProgressData) > 0 {
		var data struct {
			Attempts int `json:"attempts"`
		}
		if json.Unmarshal(o.Result.ProgressData, &data) == nil {
			f.TaskAttempts = data.Attempts
		}
	}
	return f
}

package scheduler

import (
	"context"
	"time"

	"github.com/Ouederniamin/lead-fb-sub001/internal/logging"
	"github.com/Ouederniamin/lead-fb-sub001/internal/models"
	"github.com/Ouederniamin/lead-fb-sub001/internal/store"
)

// Service is the store-backed schedule API: reads schedules, answers
// ShouldRun, and regenerates execution timestamps.
type Service struct {
	st  *store.Store
	log *logging.Logger
}

func NewService(st *store.Store, log *logging.Logger) *Service {
	return &Service{st: st, log: log.With("module", "scheduler")}
}

func (s *Service) ShouldRun(ctx context.Context, agentType models.AgentType, now time.Time) (Decision, error) {
	sc, err := s.st.GetSchedule(ctx, agentType)
	if err != nil {
		return Decision{}, err
	}
	return ShouldRun(sc, now)
}

// ApplyTemplate persists new template budgets without touching hour slots.
func (s *Service) ApplyTemplate(ctx context.Context, agentType models.AgentType, peak, normal models.PerKindCounts) error {
	sc, err := s.st.GetSchedule(ctx, agentType)
	if err != nil {
		return err
	}
	ApplyTemplate(sc, peak, normal)
	return s.st.PutSchedule(ctx, sc)
}

// PushTemplate copies template budgets into all non-overridden slots and
// persists them.
func (s *Service) PushTemplate(ctx context.Context, agentType models.AgentType) error {
	sc, err := s.st.GetSchedule(ctx, agentType)
	if err != nil {
		return err
	}
	PushTemplate(sc)
	for i := range sc.Slots {
		if sc.Slots[i].Overridden {
			continue
		}
		if err := s.st.UpdateSlot(ctx, sc.ID, &sc.Slots[i]); err != nil {
			return err
		}
	}
	return nil
}

// Regenerate recomputes scheduledTimes for every slot of the agent type.
// Disabled slots get an empty list.
func (s *Service) Regenerate(ctx context.Context, agentType models.AgentType) error {
	sc, err := s.st.GetSchedule(ctx, agentType)
	if err != nil {
		return err
	}
	for i := range sc.Slots {
		slot := &sc.Slots[i]
		var times []string
		if slot.Enabled {
			budget := slot.EffectiveBudget(sc)
			times, err = GenerateTimes(slot.Hour, budget.Total(),
				sc.MinDelayMinutes, sc.MaxDelayMinutes, sc.JitterPercent)
			if err != nil {
				return err
			}
		}
		if err := s.st.UpdateSlotTimes(ctx, sc.ID, slot.Hour, times); err != nil {
			return err
		}
	}
	s.log.Info("regenerated schedule times", "agent_type", string(agentType))
	return nil
}

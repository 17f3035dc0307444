// Package scheduler decides whether an agent type may act in the current hour
// and with what per-kind budget, and generates the randomized intra-hour
// execution timestamps.
package scheduler

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/Ouederniamin/lead-fb-sub001/internal/models"
)

// ErrConfig marks configuration mistakes (bad hour, inverted delays, unknown
// timezone). They are rejected loudly rather than silently clamped.
var ErrConfig = errors.New("scheduler: invalid configuration")

// Decision is the outcome of a ShouldRun check.
type Decision struct {
	ShouldRun bool                 `json:"shouldRun"`
	IsPeak    bool                 `json:"isPeak"`
	Budget    models.PerKindCounts `json:"budget"`
	Reason    string               `json:"reason,omitempty"`
}

// ShouldRun resolves now into the schedule's timezone and answers whether the
// agent may run this hour. Pure over the schedule value: identical inputs
// yield identical decisions.
func ShouldRun(sc *models.Schedule, now time.Time) (Decision, error) {
	if !sc.Enabled {
		return Decision{Reason: "globally disabled"}, nil
	}
	loc, err := time.LoadLocation(sc.Timezone)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: timezone %q: %v", ErrConfig, sc.Timezone, err)
	}
	hour := now.In(loc).Hour()
	slot, err := slotFor(sc, hour)
	if err != nil {
		return Decision{}, err
	}
	if !slot.Enabled {
		return Decision{Reason: "hour disabled"}, nil
	}
	return Decision{
		ShouldRun: true,
		IsPeak:    slot.IsPeak,
		Budget:    slot.EffectiveBudget(sc),
	}, nil
}

func slotFor(sc *models.Schedule, hour int) (*models.HourSlot, error) {
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("%w: hour %d out of range", ErrConfig, hour)
	}
	for i := range sc.Slots {
		if sc.Slots[i].Hour == hour {
			return &sc.Slots[i], nil
		}
	}
	return nil, fmt.Errorf("%w: schedule %s has no slot for hour %d", ErrConfig, sc.AgentType, hour)
}

// GenerateTimes spreads total execution timestamps over one hour: the hour is
// divided into equal segments and one minute is drawn uniformly per segment
// from [segStart+minDelay, segEnd-jitter]. This keeps spacing roughly even
// with bounded randomness instead of letting pure uniform draws cluster at
// the hour boundary.
func GenerateTimes(hour, total, minDelay, maxDelay, jitterPercent int) ([]string, error) {
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("%w: hour %d out of range", ErrConfig, hour)
	}
	if minDelay < 0 || maxDelay < 0 {
		return nil, fmt.Errorf("%w: negative delay", ErrConfig)
	}
	if minDelay >= maxDelay {
		return nil, fmt.Errorf("%w: min delay %d must be < max delay %d", ErrConfig, minDelay, maxDelay)
	}
	if jitterPercent < 0 || jitterPercent > 100 {
		return nil, fmt.Errorf("%w: jitter %d%% out of range", ErrConfig, jitterPercent)
	}
	if total <= 0 {
		return []string{}, nil
	}

	segLen := 60.0 / float64(total)
	out := make([]string, 0, total)
	for i := 0; i < total; i++ {
		segStart := float64(i) * segLen
		segEnd := segStart + segLen
		jitter := segLen * float64(jitterPercent) / 100.0

		lo := segStart + float64(minDelay)
		hi := segEnd - jitter
		if lo > 59 {
			lo = 59
		}
		if hi > 59 {
			hi = 59
		}
		if hi < lo {
			hi = lo
		}
		minute := int(lo + rand.Float64()*(hi-lo))
		if minute > 59 {
			minute = 59
		}
		out = append(out, fmt.Sprintf("%02d:%02d", hour, minute))
	}
	sort.Strings(out)
	return out, nil
}

// DailyTotals sums effective budgets over enabled hours. Disabled hours
// contribute nothing regardless of stored values.
func DailyTotals(sc *models.Schedule) models.PerKindCounts {
	var total models.PerKindCounts
	for i := range sc.Slots {
		total = total.Add(sc.Slots[i].EffectiveBudget(sc))
	}
	return total
}

// ApplyTemplate updates the schedule's peak/normal template budgets. Existing
// hour slots are not rewritten; callers wanting that push explicitly.
func ApplyTemplate(sc *models.Schedule, peak, normal models.PerKindCounts) {
	sc.Peak = peak
	sc.Normal = normal
}

// PushTemplate writes the template values into every non-overridden slot's
// concrete budgets. Disabled slots are zeroed, keeping the invariant that a
// disabled hour carries no budget.
func PushTemplate(sc *models.Schedule) {
	for i := range sc.Slots {
		slot := &sc.Slots[i]
		if slot.Overridden {
			continue
		}
		if !slot.Enabled {
			slot.Budget = models.PerKindCounts{}
			slot.ScheduledTimes = nil
			continue
		}
		slot.Budget = sc.Template(slot.IsPeak)
	}
}

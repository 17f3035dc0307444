package api

import (
	"strconv"

	"github.com/Ouederniamin/lead-fb-sub001/internal/models"
)

type scheduleDTO struct {
	AgentType       string               `json:"agentType"`
	Enabled         bool                 `json:"enabled"`
	Timezone        string               `json:"timezone"`
	MaxPerDay       models.PerKindCounts `json:"maxPerDay"`
	MinDelayMinutes int                  `json:"minDelayMinutes"`
	MaxDelayMinutes int                  `json:"maxDelayMinutes"`
	JitterPercent   int                  `json:"jitterPercent"`
	Peak            models.PerKindCounts `json:"peak"`
	Normal          models.PerKindCounts `json:"normal"`
	Slots           []slotDTO            `json:"slots"`
}

type slotDTO struct {
	Hour           int                  `json:"hour"`
	Enabled        bool                 `json:"enabled"`
	IsPeak         bool                 `json:"isPeak"`
	Overridden     bool                 `json:"overridden"`
	Budget         models.PerKindCounts `json:"budget"`
	ScheduledTimes []string             `json:"scheduledTimes"`
}

func scheduleToDTO(sc *models.Schedule) scheduleDTO {
	out := scheduleDTO{
		AgentType:       string(sc.AgentType),
		Enabled:         sc.Enabled,
		Timezone:        sc.Timezone,
		MaxPerDay:       sc.MaxPerDay,
		MinDelayMinutes: sc.MinDelayMinutes,
		MaxDelayMinutes: sc.MaxDelayMinutes,
		JitterPercent:   sc.JitterPercent,
		Peak:            sc.Peak,
		Normal:          sc.Normal,
	}
	for i := range sc.Slots {
		out.Slots = append(out.Slots, *slotToDTO(&sc.Slots[i]))
	}
	return out
}

func slotToDTO(h *models.HourSlot) *slotDTO {
	times := h.ScheduledTimes
	if times == nil {
		times = []string{}
	}
	return &slotDTO{
		Hour:           h.Hour,
		Enabled:        h.Enabled,
		IsPeak:         h.IsPeak,
		Overridden:     h.Overridden,
		Budget:         h.Budget,
		ScheduledTimes: times,
	}
}

// scheduleUpdate carries optional schedule-level fields; nil means unchanged.
type scheduleUpdate struct {
	Enabled         *bool                 `json:"enabled"`
	Timezone        *string               `json:"timezone"`
	MaxPerDay       *models.PerKindCounts `json:"maxPerDay"`
	MinDelayMinutes *int                  `json:"minDelayMinutes"`
	MaxDelayMinutes *int                  `json:"maxDelayMinutes"`
	JitterPercent   *int                  `json:"jitterPercent"`
	Peak            *models.PerKindCounts `json:"peak"`
	Normal          *models.PerKindCounts `json:"normal"`
}

func (u *scheduleUpdate) applyTo(sc *models.Schedule) {
	if u.Enabled != nil {
		sc.Enabled = *u.Enabled
	}
	if u.Timezone != nil {
		sc.Timezone = *u.Timezone
	}
	if u.MaxPerDay != nil {
		sc.MaxPerDay = *u.MaxPerDay
	}
	if u.MinDelayMinutes != nil {
		sc.MinDelayMinutes = *u.MinDelayMinutes
	}
	if u.MaxDelayMinutes != nil {
		sc.MaxDelayMinutes = *u.MaxDelayMinutes
	}
	if u.JitterPercent != nil {
		sc.JitterPercent = *u.JitterPercent
	}
	if u.Peak != nil {
		sc.Peak = *u.Peak
	}
	if u.Normal != nil {
		sc.Normal = *u.Normal
	}
}

type slotUpdate struct {
	Enabled    *bool                 `json:"enabled"`
	IsPeak     *bool                 `json:"isPeak"`
	Overridden *bool                 `json:"overridden"`
	Budget     *models.PerKindCounts `json:"budget"`
}

func (u *slotUpdate) applyTo(h *models.HourSlot) {
	if u.Enabled != nil {
		h.Enabled = *u.Enabled
	}
	if u.IsPeak != nil {
		h.IsPeak = *u.IsPeak
	}
	if u.Overridden != nil {
		h.Overridden = *u.Overridden
	}
	if u.Budget != nil {
		h.Budget = *u.Budget
		h.Overridden = true
	}
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

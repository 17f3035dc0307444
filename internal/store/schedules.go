package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/Ouederniamin/lead-fb-sub001/internal/models"
)

// SeedSchedule creates a disabled default schedule with 24 slots for the
// agent type if none exists, and returns the stored schedule either way.
func (s *Store) SeedSchedule(ctx context.Context, agentType models.AgentType) (*models.Schedule, error) {
	sched, err := s.GetSchedule(ctx, agentType)
	if err == nil {
		return sched, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO schedules (agent_type, enabled, timezone, updated_at) VALUES (?, 0, 'UTC', ?)`,
		string(agentType), now)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	for hour := 0; hour < 24; hour++ {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO hour_slots (schedule_id, hour) VALUES (?, ?)`, id, hour); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSchedule(ctx, agentType)
}

func (s *Store) GetSchedule(ctx context.Context, agentType models.AgentType) (*models.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, agent_type, enabled, timezone,
		max_scrapes, max_comments, max_dms, max_friend_requests,
		min_delay_minutes, max_delay_minutes, jitter_percent,
		peak_scrapes, peak_comments, peak_dms, peak_friend_requests,
		normal_scrapes, normal_comments, normal_dms, normal_friend_requests,
		updated_at
		FROM schedules WHERE agent_type = ?`, string(agentType))

	var sc models.Schedule
	var at string
	err := row.Scan(&sc.ID, &at, &sc.Enabled, &sc.Timezone,
		&sc.MaxPerDay.Scrapes, &sc.MaxPerDay.Comments, &sc.MaxPerDay.DMs, &sc.MaxPerDay.FriendRequests,
		&sc.MinDelayMinutes, &sc.MaxDelayMinutes, &sc.JitterPercent,
		&sc.Peak.Scrapes, &sc.Peak.Comments, &sc.Peak.DMs, &sc.Peak.FriendRequests,
		&sc.Normal.Scrapes, &sc.Normal.Comments, &sc.Normal.DMs, &sc.Normal.FriendRequests,
		&sc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sc.AgentType = models.AgentType(at)

	rows, err := s.db.QueryContext(ctx, `SELECT id, schedule_id, hour, enabled, is_peak, overridden,
		scrapes, comments, dms, friend_requests, scheduled_times
		FROM hour_slots WHERE schedule_id = ? ORDER BY hour`, sc.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var h models.HourSlot
		var times string
		if err := rows.Scan(&h.ID, &h.ScheduleID, &h.Hour, &h.Enabled, &h.IsPeak, &h.Overridden,
			&h.Budget.Scrapes, &h.Budget.Comments, &h.Budget.DMs, &h.Budget.FriendRequests,
			&times); err != nil {
			return nil, err
		}
		if times != "" {
			h.ScheduledTimes = strings.Split(times, ",")
		}
		sc.Slots = append(sc.Slots, h)
	}
	return &sc, rows.Err()
}

// PutSchedule updates the schedule-level fields (enable flag, timezone,
// ceilings, randomization params and templates). Slots are written separately.
func (s *Store) PutSchedule(ctx context.Context, sc *models.Schedule) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `UPDATE schedules SET enabled = ?, timezone = ?,
		max_scrapes = ?, max_comments = ?, max_dms = ?, max_friend_requests = ?,
		min_delay_minutes = ?, max_delay_minutes = ?, jitter_percent = ?,
		peak_scrapes = ?, peak_comments = ?, peak_dms = ?, peak_friend_requests = ?,
		normal_scrapes = ?, normal_comments = ?, normal_dms = ?, normal_friend_requests = ?,
		updated_at = ?
		WHERE agent_type = ?`,
		sc.Enabled, sc.Timezone,
		sc.MaxPerDay.Scrapes, sc.MaxPerDay.Comments, sc.MaxPerDay.DMs, sc.MaxPerDay.FriendRequests,
		sc.MinDelayMinutes, sc.MaxDelayMinutes, sc.JitterPercent,
		sc.Peak.Scrapes, sc.Peak.Comments, sc.Peak.DMs, sc.Peak.FriendRequests,
		sc.Normal.Scrapes, sc.Normal.Comments, sc.Normal.DMs, sc.Normal.FriendRequests,
		now, string(sc.AgentType))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSlot writes one hour slot's flags and concrete budgets.
func (s *Store) UpdateSlot(ctx context.Context, scheduleID int64, h *models.HourSlot) error {
	res, err := s.db.ExecContext(ctx, `UPDATE hour_slots SET enabled = ?, is_peak = ?, overridden = ?,
		scrapes = ?, comments = ?, dms = ?, friend_requests = ?, scheduled_times = ?
		WHERE schedule_id = ? AND hour = ?`,
		h.Enabled, h.IsPeak, h.Overridden,
		h.Budget.Scrapes, h.Budget.Comments, h.Budget.DMs, h.Budget.FriendRequests,
		strings.Join(h.ScheduledTimes, ","),
		scheduleID, h.Hour)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSlotTimes rewrites only the generated execution timestamps of a slot.
func (s *Store) UpdateSlotTimes(ctx context.Context, scheduleID int64, hour int, times []string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE hour_slots SET scheduled_times = ? WHERE schedule_id = ? AND hour = ?`,
		strings.Join(times, ","), scheduleID, hour)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

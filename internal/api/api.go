// Package api exposes the schedule records and the cycle trigger over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Ouederniamin/lead-fb-sub001/internal/cycle"
	"github.com/Ouederniamin/lead-fb-sub001/internal/lease"
	"github.com/Ouederniamin/lead-fb-sub001/internal/logging"
	"github.com/Ouederniamin/lead-fb-sub001/internal/models"
	"github.com/Ouederniamin/lead-fb-sub001/internal/scheduler"
	"github.com/Ouederniamin/lead-fb-sub001/internal/store"
)

// CycleRunner abstracts the heavy cycle execution so the HTTP layer does not
// own browser sessions.
type CycleRunner interface {
	RunCycle(ctx context.Context, accountID string, opts cycle.Options) (*cycle.Result, error)
}

type Server struct {
	st     *store.Store
	sched  *scheduler.Service
	runner CycleRunner
	log    *logging.Logger
}

func NewServer(st *store.Store, sched *scheduler.Service, runner CycleRunner, log *logging.Logger) *Server {
	return &Server{st: st, sched: sched, runner: runner, log: log.With("module", "api")}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/schedules/{agentType}", s.handleGetSchedule).Methods("GET")
	r.HandleFunc("/schedules/{agentType}", s.handlePutSchedule).Methods("PUT")
	r.HandleFunc("/schedules/{agentType}/slots/{hour:[0-9]+}", s.handlePatchSlot).Methods("PATCH")
	r.HandleFunc("/schedules/{agentType}/regenerate", s.handleRegenerate).Methods("POST")
	r.HandleFunc("/schedules/{agentType}/push-template", s.handlePushTemplate).Methods("POST")
	r.HandleFunc("/schedules/{agentType}/daily-totals", s.handleDailyTotals).Methods("GET")
	r.HandleFunc("/schedules/{agentType}/should-run", s.handleShouldRun).Methods("GET")
	r.HandleFunc("/accounts/{accountID}/cycle", s.handleRunCycle).Methods("POST")
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrConfig):
		return http.StatusBadRequest
	case errors.Is(err, lease.ErrHeld):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	agentType := models.AgentType(mux.Vars(r)["agentType"])
	sc, err := s.st.GetSchedule(r.Context(), agentType)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleToDTO(sc))
}

func (s *Server) handlePutSchedule(w http.ResponseWriter, r *http.Request) {
	agentType := models.AgentType(mux.Vars(r)["agentType"])
	var in scheduleUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sc, err := s.st.GetSchedule(r.Context(), agentType)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	in.applyTo(sc)
	if err := s.st.PutSchedule(r.Context(), sc); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	sc, err = s.st.GetSchedule(r.Context(), agentType)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleToDTO(sc))
}

func (s *Server) handlePatchSlot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	agentType := models.AgentType(vars["agentType"])
	hour := atoiOr(vars["hour"], -1)

	var in slotUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sc, err := s.st.GetSchedule(r.Context(), agentType)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if hour < 0 || hour > 23 {
		writeError(w, http.StatusBadRequest, errors.New("hour must be in 0..23"))
		return
	}
	slot := &sc.Slots[hour]
	in.applyTo(slot)
	if !slot.Enabled {
		slot.Budget = models.PerKindCounts{}
		slot.ScheduledTimes = nil
	}
	if err := s.st.UpdateSlot(r.Context(), sc.ID, slot); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, slotToDTO(slot))
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	agentType := models.AgentType(mux.Vars(r)["agentType"])
	if err := s.sched.Regenerate(r.Context(), agentType); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	sc, err := s.st.GetSchedule(r.Context(), agentType)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleToDTO(sc))
}

func (s *Server) handlePushTemplate(w http.ResponseWriter, r *http.Request) {
	agentType := models.AgentType(mux.Vars(r)["agentType"])
	if err := s.sched.PushTemplate(r.Context(), agentType); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	sc, err := s.st.GetSchedule(r.Context(), agentType)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleToDTO(sc))
}

func (s *Server) handleDailyTotals(w http.ResponseWriter, r *http.Request) {
	agentType := models.AgentType(mux.Vars(r)["agentType"])
	sc, err := s.st.GetSchedule(r.Context(), agentType)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, scheduler.DailyTotals(sc))
}

func (s *Server) handleShouldRun(w http.ResponseWriter, r *http.Request) {
	agentType := models.AgentType(mux.Vars(r)["agentType"])
	dec, err := s.sched.ShouldRun(r.Context(), agentType, time.Now())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("cycle runner not configured"))
		return
	}
	accountID := mux.Vars(r)["accountID"]
	var in struct {
		AgentType          string                   `json:"agentType"`
		IdleTimeoutSeconds int                      `json:"idleTimeoutSeconds"`
		Force              bool                     `json:"force"`
		Context            models.GenerationContext `json:"context"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&in)
	}

	// Same budget gate as the CLI cycle command; force bypasses it for
	// operator-initiated runs.
	if !in.Force {
		agent := models.AgentMessageAgent
		if in.AgentType != "" {
			agent = models.AgentType(in.AgentType)
		}
		dec, err := s.sched.ShouldRun(r.Context(), agent, time.Now())
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if !dec.ShouldRun {
			writeError(w, http.StatusConflict, fmt.Errorf("schedule gate closed: %s", dec.Reason))
			return
		}
	}

	res, err := s.runner.RunCycle(r.Context(), accountID, cycle.Options{
		IdleTimeout: time.Duration(in.IdleTimeoutSeconds) * time.Second,
		Context:     in.Context,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

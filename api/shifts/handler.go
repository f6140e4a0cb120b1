// Package shifts exposes driver shift scheduling under /api/shifts.
package shifts

import (
	"context"
	"net/http"

	"github.com/kilianp07/kurir/api/internal/respond"
	"github.com/kilianp07/kurir/core/dispatch"
	"github.com/kilianp07/kurir/core/model"
)

// Service is the part of the dispatcher used by the handler.
type Service interface {
	Shifts(ctx context.Context, f model.ShiftFilter) ([]model.ShiftEntry, error)
	TodayShifts(ctx context.Context) ([]model.ShiftEntry, error)
	CreateShift(ctx context.Context, sh model.Shift) (model.Shift, error)
	CreateShifts(ctx context.Context, shifts []model.Shift) ([]model.Shift, error)
	UpdateShift(ctx context.Context, id string, p dispatch.ShiftPatch) (model.Shift, error)
	DeleteShift(ctx context.Context, id string) error
}

type createRequest struct {
	DriverID  string          `json:"driver_id"`
	Date      string          `json:"date"`
	Type      model.ShiftType `json:"shift_type,omitempty"`
	StartTime string          `json:"start_time,omitempty"`
	EndTime   string          `json:"end_time,omitempty"`
}

func (c createRequest) shift() model.Shift {
	return model.Shift{DriverID: c.DriverID, Date: c.Date, Type: c.Type, StartTime: c.StartTime, EndTime: c.EndTime}
}

type bulkRequest struct {
	Shifts []createRequest `json:"shifts"`
}

type bulkResponse struct {
	Created int           `json:"created"`
	Shifts  []model.Shift `json:"shifts"`
}

// NewHandler returns the shift API. Requests must carry "Bearer <token>"
// when token is non-empty.
func NewHandler(svc Service, token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/shifts", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list, err := svc.Shifts(r.Context(), model.ShiftFilter{Date: q.Get("date"), DriverID: q.Get("driver_id")})
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, list)
	})
	mux.HandleFunc("GET /api/shifts/today", func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.TodayShifts(r.Context())
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, list)
	})
	mux.HandleFunc("POST /api/shifts", func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := respond.Decode(w, r, &req); err != nil {
			respond.Error(w, err)
			return
		}
		sh, err := svc.CreateShift(r.Context(), req.shift())
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusCreated, sh)
	})
	mux.HandleFunc("POST /api/shifts/bulk", func(w http.ResponseWriter, r *http.Request) {
		var req bulkRequest
		if err := respond.Decode(w, r, &req); err != nil {
			respond.Error(w, err)
			return
		}
		shifts := make([]model.Shift, 0, len(req.Shifts))
		for _, c := range req.Shifts {
			shifts = append(shifts, c.shift())
		}
		created, err := svc.CreateShifts(r.Context(), shifts)
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusCreated, bulkResponse{Created: len(created), Shifts: created})
	})
	mux.HandleFunc("PUT /api/shifts/{id}", func(w http.ResponseWriter, r *http.Request) {
		var p dispatch.ShiftPatch
		if err := respond.Decode(w, r, &p); err != nil {
			respond.Error(w, err)
			return
		}
		sh, err := svc.UpdateShift(r.Context(), r.PathValue("id"), p)
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, sh)
	})
	mux.HandleFunc("DELETE /api/shifts/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteShift(r.Context(), r.PathValue("id")); err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, map[string]string{"message": "shift deleted"})
	})
	return respond.RequireToken(token, mux)
}

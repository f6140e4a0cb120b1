// Package drivers exposes the driver endpoints under /api/drivers.
package drivers

import (
	"context"
	"net/http"

	"github.com/kilianp07/kurir/api/internal/respond"
	"github.com/kilianp07/kurir/core/dispatch"
	"github.com/kilianp07/kurir/core/model"
)

// Service is the part of the dispatcher used by the handler.
type Service interface {
	Drivers(ctx context.Context) ([]model.Driver, error)
	AvailableDrivers(ctx context.Context) ([]model.Driver, error)
	CreateDriver(ctx context.Context, drv model.Driver) (model.Driver, error)
	UpdateDriver(ctx context.Context, driverID string, p dispatch.DriverPatch) (model.Driver, error)
	SetDuty(ctx context.Context, driverID string, onDuty bool) (model.Driver, error)
	ToggleDuty(ctx context.Context, driverID string) (model.Driver, error)
}

type createRequest struct {
	ID            string `json:"id,omitempty"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Active        *bool  `json:"active,omitempty"`
	OnDuty        bool   `json:"on_duty"`
	IsPriority    bool   `json:"is_priority"`
	PriorityLevel int    `json:"priority_level"`
}

type dutyRequest struct {
	OnDuty *bool `json:"on_duty,omitempty"`
}

// NewHandler returns the driver API. Requests must carry "Bearer <token>"
// when token is non-empty.
func NewHandler(svc Service, token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/drivers", func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.Drivers(r.Context())
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, nonNil(list))
	})
	mux.HandleFunc("GET /api/drivers/available", func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.AvailableDrivers(r.Context())
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, nonNil(list))
	})
	mux.HandleFunc("POST /api/drivers", func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := respond.Decode(w, r, &req); err != nil {
			respond.Error(w, err)
			return
		}
		drv := model.Driver{
			ID:            req.ID,
			Name:          req.Name,
			Phone:         req.Phone,
			Active:        true,
			OnDuty:        req.OnDuty,
			IsPriority:    req.IsPriority,
			PriorityLevel: req.PriorityLevel,
		}
		if req.Active != nil {
			drv.Active = *req.Active
		}
		created, err := svc.CreateDriver(r.Context(), drv)
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusCreated, created)
	})
	mux.HandleFunc("PUT /api/drivers/{id}", func(w http.ResponseWriter, r *http.Request) {
		var p dispatch.DriverPatch
		if err := respond.Decode(w, r, &p); err != nil {
			respond.Error(w, err)
			return
		}
		drv, err := svc.UpdateDriver(r.Context(), r.PathValue("id"), p)
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, drv)
	})
	// An empty body toggles the flag.
	mux.HandleFunc("PUT /api/drivers/{id}/duty", func(w http.ResponseWriter, r *http.Request) {
		var req dutyRequest
		if r.ContentLength != 0 {
			if err := respond.Decode(w, r, &req); err != nil {
				respond.Error(w, err)
				return
			}
		}
		var (
			drv model.Driver
			err error
		)
		if req.OnDuty == nil {
			drv, err = svc.ToggleDuty(r.Context(), r.PathValue("id"))
		} else {
			drv, err = svc.SetDuty(r.Context(), r.PathValue("id"), *req.OnDuty)
		}
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, drv)
	})
	return respond.RequireToken(token, mux)
}

func nonNil(list []model.Driver) []model.Driver {
	if list == nil {
		return []model.Driver{}
	}
	return list
}

// Package orders exposes the order endpoints under /api/orders.
package orders

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/kilianp07/kurir/api/internal/respond"
	"github.com/kilianp07/kurir/core/dispatch"
	"github.com/kilianp07/kurir/core/model"
)

// Service is the part of the dispatcher used by the handler.
type Service interface {
	CreateOrder(ctx context.Context, req dispatch.OrderRequest) (model.Order, error)
	Order(ctx context.Context, id string) (model.Order, error)
	Orders(ctx context.Context, f model.OrderFilter) ([]model.Order, error)
	OrdersByPhone(ctx context.Context, phone string) ([]model.Order, error)
	UpdateStatus(ctx context.Context, orderID string, to model.OrderStatus, reason string) (model.Order, error)
	Reassign(ctx context.Context, orderID, driverID string) (model.Order, error)
	Stats(ctx context.Context) (model.Stats, error)
}

type statusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type assignRequest struct {
	DriverID string `json:"driver_id"`
}

// NewHandler returns the order API. Requests must carry "Bearer <token>"
// when token is non-empty.
func NewHandler(svc Service, token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/orders", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := model.OrderFilter{DriverID: q.Get("driver_id")}
		if s := q.Get("status"); s != "" {
			st, err := model.ParseOrderStatus(s)
			if err != nil {
				respond.Error(w, fmt.Errorf("%w: %v", dispatch.ErrValidation, err))
				return
			}
			f.Status = st
		}
		if s := q.Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				respond.Error(w, fmt.Errorf("%w: bad limit %q", dispatch.ErrValidation, s))
				return
			}
			f.Limit = n
		}
		list, err := svc.Orders(r.Context(), f)
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, nonNil(list))
	})
	mux.HandleFunc("GET /api/orders/stats", func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Stats(r.Context())
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, st)
	})
	mux.HandleFunc("GET /api/orders/customer/{phone}", func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.OrdersByPhone(r.Context(), r.PathValue("phone"))
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, nonNil(list))
	})
	mux.HandleFunc("GET /api/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		o, err := svc.Order(r.Context(), r.PathValue("id"))
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, o)
	})
	mux.HandleFunc("POST /api/orders", func(w http.ResponseWriter, r *http.Request) {
		var req dispatch.OrderRequest
		if err := respond.Decode(w, r, &req); err != nil {
			respond.Error(w, err)
			return
		}
		o, err := svc.CreateOrder(r.Context(), req)
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusCreated, o)
	})
	mux.HandleFunc("PUT /api/orders/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		var req statusRequest
		if err := respond.Decode(w, r, &req); err != nil {
			respond.Error(w, err)
			return
		}
		st, err := model.ParseOrderStatus(req.Status)
		if err != nil {
			respond.Error(w, fmt.Errorf("%w: %v", dispatch.ErrValidation, err))
			return
		}
		o, err := svc.UpdateStatus(r.Context(), r.PathValue("id"), st, req.Reason)
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, o)
	})
	mux.HandleFunc("PUT /api/orders/{id}/assign", func(w http.ResponseWriter, r *http.Request) {
		var req assignRequest
		if err := respond.Decode(w, r, &req); err != nil {
			respond.Error(w, err)
			return
		}
		if req.DriverID == "" {
			respond.Error(w, fmt.Errorf("%w: driver_id is required", dispatch.ErrValidation))
			return
		}
		o, err := svc.Reassign(r.Context(), r.PathValue("id"), req.DriverID)
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, o)
	})
	return respond.RequireToken(token, mux)
}

func nonNil(list []model.Order) []model.Order {
	if list == nil {
		return []model.Order{}
	}
	return list
}

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/kurir/core/model"
)

// ShiftPatch is a partial shift update. Nil fields are left unchanged.
type ShiftPatch struct {
	Type      *model.ShiftType `json:"shift_type,omitempty"`
	StartTime *string          `json:"start_time,omitempty"`
	EndTime   *string          `json:"end_time,omitempty"`
	IsActive  *bool            `json:"is_active,omitempty"`
}

// Shifts lists shifts matching f together with their drivers.
func (d *Dispatcher) Shifts(ctx context.Context, f model.ShiftFilter) ([]model.ShiftEntry, error) {
	shifts, err := d.store.ListShifts(ctx, f)
	if err != nil {
		return nil, err
	}
	drivers := map[string]*model.Driver{}
	res := make([]model.ShiftEntry, 0, len(shifts))
	for _, sh := range shifts {
		drv, ok := drivers[sh.DriverID]
		if !ok {
			got, err := d.store.GetDriver(ctx, sh.DriverID)
			switch {
			case err == nil:
				drv = &got
			case !errors.Is(err, ErrNotFound):
				return nil, err
			}
			drivers[sh.DriverID] = drv
		}
		res = append(res, model.ShiftEntry{Shift: sh, Driver: drv})
	}
	return res, nil
}

// TodayShifts lists the active shifts of the current local date.
func (d *Dispatcher) TodayShifts(ctx context.Context) ([]model.ShiftEntry, error) {
	today := d.now().In(d.loc).Format(model.ShiftDateLayout)
	return d.Shifts(ctx, model.ShiftFilter{Date: today, ActiveOnly: true})
}

// CreateShift schedules a driver. The type defaults to a full day and the
// hours to the usual hours of the type.
func (d *Dispatcher) CreateShift(ctx context.Context, sh model.Shift) (model.Shift, error) {
	if err := d.prepareShift(ctx, &sh); err != nil {
		return model.Shift{}, err
	}
	if err := d.store.CreateShift(ctx, &sh); err != nil {
		return model.Shift{}, err
	}
	d.log.Infof("shift %s %s scheduled for driver %s", sh.Date, sh.Type, sh.DriverID)
	return sh, nil
}

// CreateShifts schedules several shifts at once. Every entry is checked
// before any is stored; entries that already exist are skipped.
func (d *Dispatcher) CreateShifts(ctx context.Context, shifts []model.Shift) ([]model.Shift, error) {
	if len(shifts) == 0 {
		return nil, fmt.Errorf("%w: no shifts given", ErrValidation)
	}
	for i := range shifts {
		if err := d.prepareShift(ctx, &shifts[i]); err != nil {
			return nil, fmt.Errorf("shift %d: %w", i, err)
		}
	}
	created := []model.Shift{}
	for i := range shifts {
		err := d.store.CreateShift(ctx, &shifts[i])
		if errors.Is(err, ErrDuplicate) {
			continue
		}
		if err != nil {
			return created, err
		}
		created = append(created, shifts[i])
	}
	d.log.Infof("%d of %d shift(s) scheduled", len(created), len(shifts))
	return created, nil
}

func (d *Dispatcher) prepareShift(ctx context.Context, sh *model.Shift) error {
	if _, err := d.store.GetDriver(ctx, sh.DriverID); err != nil {
		return err
	}
	if _, err := time.Parse(model.ShiftDateLayout, sh.Date); err != nil {
		return fmt.Errorf("%w: shift date %q is not YYYY-MM-DD", ErrValidation, sh.Date)
	}
	if sh.Type == "" {
		sh.Type = model.ShiftFullDay
	}
	if !sh.Type.Valid() {
		return fmt.Errorf("%w: unknown shift type %q", ErrValidation, sh.Type)
	}
	start, end := sh.Type.Hours()
	if sh.StartTime == "" {
		sh.StartTime = start
	}
	if sh.EndTime == "" {
		sh.EndTime = end
	}
	if err := checkShiftTimes(*sh); err != nil {
		return err
	}
	sh.ID = uuid.NewString()
	sh.IsActive = true
	sh.CreatedAt = d.now()
	return nil
}

// UpdateShift applies a partial update. The driver and date of a shift are
// fixed once created.
func (d *Dispatcher) UpdateShift(ctx context.Context, id string, p ShiftPatch) (model.Shift, error) {
	sh, err := d.store.GetShift(ctx, id)
	if err != nil {
		return model.Shift{}, err
	}
	if p.Type != nil {
		if !p.Type.Valid() {
			return model.Shift{}, fmt.Errorf("%w: unknown shift type %q", ErrValidation, *p.Type)
		}
		sh.Type = *p.Type
	}
	if p.StartTime != nil {
		sh.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		sh.EndTime = *p.EndTime
	}
	if p.IsActive != nil {
		sh.IsActive = *p.IsActive
	}
	if err := checkShiftTimes(sh); err != nil {
		return model.Shift{}, err
	}
	if err := d.store.UpdateShift(ctx, sh); err != nil {
		return model.Shift{}, err
	}
	return d.store.GetShift(ctx, id)
}

// DeleteShift removes a shift.
func (d *Dispatcher) DeleteShift(ctx context.Context, id string) error {
	if err := d.store.DeleteShift(ctx, id); err != nil {
		return err
	}
	d.log.Infof("shift %s deleted", id)
	return nil
}

// checkShiftTimes accepts an end before the start for shifts past midnight.
func checkShiftTimes(sh model.Shift) error {
	for _, v := range []string{sh.StartTime, sh.EndTime} {
		if _, err := time.Parse(model.ShiftTimeLayout, v); err != nil {
			return fmt.Errorf("%w: shift time %q is not HH:MM", ErrValidation, v)
		}
	}
	return nil
}

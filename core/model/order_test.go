package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{StatusPending, StatusAssigned, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusAccepted, false},
		{StatusAssigned, StatusAccepted, true},
		{StatusAccepted, StatusPickedUp, true},
		{StatusPickedUp, StatusOnDelivery, true},
		{StatusOnDelivery, StatusCompleted, true},
		{StatusOnDelivery, StatusCancelled, true},
		{StatusAssigned, StatusCompleted, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, c.from.CanTransition(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestOrderStatusHelpers(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusOnDelivery.Terminal())
	assert.True(t, StatusPickedUp.HoldsDriver())
	assert.False(t, StatusPending.HoldsDriver())

	st, err := ParseOrderStatus("picked_up")
	require.NoError(t, err)
	assert.Equal(t, StatusPickedUp, st)
	_, err = ParseOrderStatus("lost")
	assert.Error(t, err)
}

func TestOrderStamp(t *testing.T) {
	now := time.Now()
	var o Order
	o.Stamp(StatusAccepted, now)
	o.Stamp(StatusCancelled, now.Add(time.Second))
	require.NotNil(t, o.AcceptedAt)
	require.NotNil(t, o.CancelledAt)
	assert.True(t, o.CancelledAt.After(*o.AcceptedAt))
	assert.Nil(t, o.CompletedAt)
}

func TestDriverCapacity(t *testing.T) {
	d := Driver{Active: true, OnDuty: true, CurrentOrderCount: 1}
	assert.True(t, d.Eligible(DriverCapacity))
	assert.Equal(t, 1, d.FreeCapacity(DriverCapacity))
	d.CurrentOrderCount = 2
	assert.False(t, d.Eligible(DriverCapacity))
	assert.Equal(t, 0, d.FreeCapacity(DriverCapacity))
	d.CurrentOrderCount = 0
	d.OnDuty = false
	assert.False(t, d.Eligible(DriverCapacity))
	assert.Equal(t, 10, ClampPriority(42))
	assert.Equal(t, 1, ClampPriority(0))
}

package main

import (
	"context"
	"testing"
	"time"

	"busticket/internal/repository/memory"
	"busticket/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSchedules(t *testing.T) {
	from := time.Date(2026, 7, 1, 15, 30, 0, 0, time.UTC)
	schedules := buildSchedules(from, 2)

	require.Len(t, schedules, 2*len(routes))
	first := schedules[0]
	assert.Equal(t, time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, time.Date(2026, 7, 2, 21, 0, 0, 0, time.UTC), first.JourneyDateTime())
	assert.True(t, first.HasBoardingPoint("Westlands"))

	last := schedules[len(schedules)-1]
	assert.Equal(t, time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC), last.Date)
	assert.NotEqual(t, first.BusNumber, schedules[len(routes)].BusNumber)
}

func TestSeedCreatesSeatMaps(t *testing.T) {
	store := memory.NewStore()
	services := service.NewServices(service.Deps{Store: store})
	schedules := buildSchedules(time.Now().UTC(), 1)

	ctx := context.Background()
	require.NoError(t, seed(ctx, store, services.Seats, schedules, 3, 4))

	for _, sch := range schedules {
		require.NotEmpty(t, sch.ID)
		seatMap, err := services.Seats.ListSeatMap(ctx, sch.ID)
		require.NoError(t, err)
		assert.Len(t, seatMap.Seats, 12)
		assert.Equal(t, 12, seatMap.Available)
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"busticket/internal/api"
	"busticket/internal/config"
	"busticket/internal/logger"
	"busticket/internal/models"
	"busticket/internal/repository"
	"busticket/internal/service"
)

var (
	scheduleID = flag.String("schedule", "", "Only generate the seat map of this existing schedule")
	days       = flag.Int("days", 7, "Number of days to seed, starting tomorrow")
	rows       = flag.Int("rows", 10, "Seat rows per bus")
	columns    = flag.Int("columns", 4, "Seats per row")
	dryRun     = flag.Bool("dry-run", false, "Show what would be generated without making changes")
)

type route struct {
	name           string
	origin         string
	destination    string
	busType        string
	departure      time.Duration
	fare           int64
	boardingPoints []string
	droppingPoints []string
}

var routes = []route{
	{
		name: "Nairobi - Mombasa", origin: "Nairobi", destination: "Mombasa", busType: "AC Sleeper",
		departure: 21 * time.Hour, fare: 150000,
		boardingPoints: []string{"Nairobi CBD", "Westlands", "Mlolongo"},
		droppingPoints: []string{"Mombasa Town", "Nyali"},
	},
	{
		name: "Nairobi - Kisumu", origin: "Nairobi", destination: "Kisumu", busType: "Executive",
		departure: 8*time.Hour + 30*time.Minute, fare: 120000,
		boardingPoints: []string{"Nairobi CBD", "Naivasha"},
		droppingPoints: []string{"Kisumu Bus Park"},
	},
	{
		name: "Nairobi - Kampala", origin: "Nairobi", destination: "Kampala", busType: "AC Seater",
		departure: 19 * time.Hour, fare: 350000,
		boardingPoints: []string{"Nairobi CBD", "Nakuru", "Eldoret"},
		droppingPoints: []string{"Jinja", "Kampala Park"},
	},
}

// buildSchedules lays out one schedule per route per day, starting the day
// after from.
func buildSchedules(from time.Time, days int) []*models.Schedule {
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)

	schedules := make([]*models.Schedule, 0, days*len(routes))
	for d := 0; d < days; d++ {
		date := start.AddDate(0, 0, d)
		for i, r := range routes {
			schedules = append(schedules, &models.Schedule{
				RouteName:      r.name,
				Origin:         r.origin,
				Destination:    r.destination,
				BusNumber:      fmt.Sprintf("KB%c %03d", 'A'+rune(i), 100+d),
				BusType:        r.busType,
				Date:           date,
				DepartureTime:  r.departure,
				Fare:           models.NewMoney(r.fare, "KES"),
				BoardingPoints: r.boardingPoints,
				DroppingPoints: r.droppingPoints,
				IsActive:       true,
			})
		}
	}
	return schedules
}

func seed(ctx context.Context, store repository.Store, seats *service.SeatService, schedules []*models.Schedule, rows, columns int) error {
	for _, sch := range schedules {
		err := store.WithinTx(ctx, func(repos *repository.Repositories) error {
			return repos.Schedules.Create(ctx, sch)
		})
		if err != nil {
			return fmt.Errorf("failed to create schedule %s: %w", sch.RouteName, err)
		}

		generated, err := seats.GenerateSeatMap(ctx, sch.ID, rows, columns)
		if err != nil {
			return fmt.Errorf("failed to generate seats for %s: %w", sch.ID, err)
		}
		slog.Info("Seeded schedule",
			"schedule_id", sch.ID, "route", sch.RouteName, "departs", sch.JourneyDateTime(), "seats", len(generated))
	}
	return nil
}

func main() {
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Starting schedule generator...")

	schedules := buildSchedules(time.Now().UTC(), *days)

	if *dryRun {
		if *scheduleID != "" {
			slog.Info("Would generate seat map", "schedule_id", *scheduleID, "seats", *rows**columns)
			return
		}
		for _, sch := range schedules {
			slog.Info("Would create schedule",
				"route", sch.RouteName, "bus", sch.BusNumber, "departs", sch.JourneyDateTime(), "seats", *rows**columns)
		}
		return
	}

	store, db, err := api.OpenStore(cfg)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	services := service.NewServices(service.Deps{Store: store})

	if *scheduleID != "" {
		seats, err := services.Seats.GenerateSeatMap(context.Background(), *scheduleID, *rows, *columns)
		if err != nil {
			slog.Error("Failed to generate seat map", "schedule_id", *scheduleID, "error", err)
			os.Exit(1)
		}
		slog.Info("Seat map generated", "schedule_id", *scheduleID, "seats", len(seats))
		return
	}

	if err := seed(context.Background(), store, services.Seats, schedules, *rows, *columns); err != nil {
		slog.Error("Failed to seed schedules", "error", err)
		os.Exit(1)
	}

	slog.Info("Schedule generation completed successfully!", "schedules", len(schedules))
}

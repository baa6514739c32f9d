package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/carevisit/adapter/cli"
	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	"github.com/felixgeelhaar/mcp-go"
)

type scheduleImportInput struct {
	Schedules []cli.VisitInput `json:"schedules" jsonschema:"required"`
}

type scheduleShowInput struct {
	Date string `json:"date,omitempty"`
}

func registerScheduleTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("schedule.import").
		Description("Store booked visits so batch runs detect conflicts against them. Visits with an existing id are replaced").
		Handler(func(ctx context.Context, input scheduleImportInput) (map[string]int, error) {
			if app == nil || app.Schedules == nil {
				return nil, errors.New("schedule import requires database connection")
			}
			n, err := cli.ImportSchedules(ctx, app, input.Schedules)
			if err != nil {
				return nil, err
			}
			return map[string]int{"imported": n}, nil
		})

	srv.Tool("schedule.show").
		Description("List booked visits for a day (default today)").
		Handler(func(ctx context.Context, input scheduleShowInput) ([]domain.ExistingSchedule, error) {
			if app == nil || app.Schedules == nil {
				return nil, errors.New("schedule view requires database connection")
			}
			day, err := parseDate(input.Date, app.Now(), app.Location)
			if err != nil {
				return nil, err
			}
			schedules, err := app.Schedules.FindSchedulesNear(ctx, cli.DayWindow(day, app.Location), 0)
			if err != nil {
				return nil, fmt.Errorf("failed to load schedules: %w", err)
			}
			if schedules == nil {
				schedules = []domain.ExistingSchedule{}
			}
			return schedules, nil
		})

	return nil
}

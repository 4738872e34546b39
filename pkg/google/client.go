package google

import (
	"context"
	"fmt"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// NewCalendarService creates a Calendar API service and resolves the calendar
// whose summary is calendarName. "primary" is accepted as is.
func NewCalendarService(ctx context.Context, opt option.ClientOption, calendarName string) (*calendar.Service, string, error) {
	srv, err := calendar.NewService(ctx, opt)
	if err != nil {
		return nil, "", fmt.Errorf("unable to retrieve Calendar client: %w", err)
	}
	if calendarName == "" || calendarName == "primary" {
		return srv, "primary", nil
	}

	calendarList, err := srv.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, "", fmt.Errorf("unable to retrieve calendar list: %w", err)
	}
	for _, item := range calendarList.Items {
		if item.Summary == calendarName {
			return srv, item.Id, nil
		}
	}
	return nil, "", fmt.Errorf("calendar '%s' not found", calendarName)
}

package google

import calendar "google.golang.org/api/calendar/v3"

// CalendarScopes are the OAuth scopes the calendar backend needs. Event
// reads and writes only; calendar list management is not used.
var CalendarScopes = []string{
	calendar.CalendarEventsScope,
}

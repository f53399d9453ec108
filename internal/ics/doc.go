// Package ics imports iCalendar history into a calendar store.
//
// VEVENTs are parsed with golang-ical, recurring ones are expanded with
// rrule-go inside a bounded window, and every timed occurrence becomes one
// event. Occurrence IDs are derived from the UID and start time, so
// importing the same file twice creates nothing new.
package ics

// Package scheduling implements the time reasoning behind the assistant:
// overlap queries, nearby-event context, free-slot search, slot scoring and
// non-destructive rearrangement proposals.
//
// All overlap tests are strict: intervals that only touch at a boundary do
// not conflict. The free-slot search is a single left-to-right sweep over
// events ordered by start; SuggestOptimalTimes reuses it with buffered event
// spans. Nothing in this package mutates the calendar.
package scheduling

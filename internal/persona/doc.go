// Package persona derives a statistical profile of how a user schedules
// their time and keeps it current.
//
// The Analyzer rebuilds the profile from the trailing ten weeks of events:
// active hours from start/end percentiles, routines from keyword and
// exact-title clusters, a per-weekday busy/free map, and a scheduling style
// derived from density and typical gaps.
//
// Between analyses the profile is adjusted in two ways. Update applies an
// explicit patch requested by the user and records why. The DriftTracker
// compares newly created or moved events against known routines and, after
// three consistent deviations, adopts the new times. Drift checks are
// processed one at a time, in submission order, by a single worker
// goroutine because each one is a read-modify-write of the stored persona.
package persona

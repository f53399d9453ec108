// Package database implements the local calendar backend on SQLite.
//
// Every mutation writes the event table change and its undo log row in one
// transaction, and Undo replays a changeset in one transaction, so neither a
// mutation nor its reversal can be partially applied. The same database also
// holds the single persona record.
//
// The schema is managed by golang-migrate from SQL files embedded in the
// migrations package; Open applies pending migrations.
package database

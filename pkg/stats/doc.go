// Package stats tracks request statistics. The in-memory Tracker feeds the
// management protocol's stats surface; the SQLite-backed Store persists
// per-request access records with cron-scheduled retention pruning.
package stats

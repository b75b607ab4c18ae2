// Package config defines the Janus configuration model and the machinery
// that keeps it live: loading and validation, the generation-numbered
// immutable snapshot store, and the fsnotify-based file watcher with
// debounced reload.
//
// The configuration file is TOML by default; YAML is accepted by file
// extension. Every accepted configuration becomes an immutable Snapshot with
// a monotonically increasing generation number. Readers obtain snapshots
// with a single atomic load and may keep using one after a newer generation
// is published, which is what gives every request snapshot isolation for its
// whole lifetime.
package config

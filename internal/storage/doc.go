// Package storage keeps a journal of job executions.
//
// Only completed runs are recorded. Schedules are never persisted; a
// restarted process starts with an empty registry and an intact history.
package storage

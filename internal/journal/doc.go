// Package journal keeps a durable record of every classified addon outcome.
// The memory store serves single runs and tests; the MySQL store persists
// outcomes across runs and migrates its own schema on open.
package journal

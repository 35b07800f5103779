// Package common holds the types and helpers shared by every package in
// kmertools: configuration, error kinds, progress reporting and the
// platform-specific mmap wrappers.
package common

import "runtime"

// Config is the process-wide set of knobs threaded explicitly through every
// constructor in this module. There is no package-level global: a Config
// value is built once in main and passed down.
type Config struct {
	Threads     int  // total worker threads available to the run; 0 means hardware concurrency
	Verbose     bool // print progress and debug context to stderr
	HidePercent bool // suppress the percent-progress reporter entirely
}

// Resolved returns a copy of c with zero-value fields replaced by defaults.
func (c Config) Resolved() Config {
	if c.Threads <= 0 {
		c.Threads = runtime.NumCPU()
	}
	return c
}

// CutoffRange is the inclusive counter filter applied by readers and writers.
type CutoffRange struct {
	Min uint32
	Max uint32
}

// DefaultCutoff accepts every counter from 1 up to the largest representable value.
func DefaultCutoff() CutoffRange {
	return CutoffRange{Min: 1, Max: ^uint32(0)}
}

// Contains reports whether c falls within the range.
func (r CutoffRange) Contains(c uint32) bool {
	return c >= r.Min && c <= r.Max
}

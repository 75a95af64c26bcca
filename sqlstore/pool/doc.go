// Package pool implements the bounded connection pool described in spec
// §4.2: a LIFO of live driver.Connection handles, sized
// max(runtime.NumCPU(), 8) plus the write-back worker count so that
// readers and writers cannot mutually starve.
package pool

// Package typemap implements the two-way runtime<->database type code
// translation of spec §4.4. It is loaded and extended on first use, with
// initialization coordinated by golang.org/x/sync/singleflight so
// concurrent first-touches from many goroutines run the reconciliation
// exactly once.
package typemap

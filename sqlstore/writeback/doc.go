// Package writeback implements spec §4.8: a bounded pool of worker
// goroutines draining a shared FIFO of pending entity stores, decoupling
// client calls from database latency.
package writeback

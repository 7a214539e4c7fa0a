// Package cache stores generated speech across sessions: an in-memory LRU
// in front of a zstd-compressed disk cache.
package cache

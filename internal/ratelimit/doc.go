// Package ratelimit enforces a minimum interval between requests per platform.
//
// The limiter never holds a lock while waiting. Instead each caller atomically
// reserves the next free slot for its platform key in a Store (at least one
// interval after the previously reserved slot, never in the past) and then
// sleeps until that slot. Concurrent callers for one key therefore receive
// distinct slots spaced by the interval, while callers for different keys never
// contend. Reservations are recorded before the wait, so a cancelled or failed
// request still consumes its slot and cannot be used to bypass throttling.
//
// MemoryStore keeps state in-process. PostgresStore keeps it in a shared table
// so several worker processes observe one budget per platform.
package ratelimit

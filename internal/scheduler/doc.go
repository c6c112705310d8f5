// Package scheduler provides an in-process task scheduler for one-shot and
// recurring callbacks.
//
// # Overview
//
// Tasks are kept in a min-heap ordered by next-run time. A single background
// goroutine polls the heap on a short fixed interval and executes every due
// task synchronously, in non-decreasing next-run order. The scheduler mutex is
// held only for heap/lookup bookkeeping, never across a callback, so a slow
// callback delays other due tasks but never blocks Schedule*/Cancel callers.
//
// # Cancellation
//
// Cancel removes a task from the authoritative lookup table only (lazy
// deletion). The stale heap entry is discarded the next time it is popped.
//
// # Schedule kinds
//
// Once and Interval are constructed directly. Daily computes the next
// wall-clock HH:MM occurrence. Cron is a reserved kind: the core never parses
// cron expressions; callers supply a next-occurrence function via ScheduleNext
// (the CronNext helper builds one on robfig/cron for callers that want it).
package scheduler

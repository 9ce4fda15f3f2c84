// Package notifier forwards scheduler events to a chat through a bounded,
// rate limited, retrying queue.
//
// A Service subscribes to event patterns on the hub (by default only
// "job.failed"), renders each matching JobEvent as one line of text and hands
// it to a Sender. Identical notifications inside the dedup window are
// suppressed; a full queue drops the newest message.
package notifier

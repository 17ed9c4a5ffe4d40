// Package notifier delivers reminder messages asynchronously: a bounded queue,
// a supervised worker pool, a shared rate limit and optional retries. It
// implements reminder.Sink.
package notifier

import "time"

// Config controls the async notification pipeline.
type Config struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	HistorySize   int
}

type HistoryItem struct {
	At     time.Time
	ChatID int64
	Text   string
	Error  string
}

// NotificationEvent is the bus payload of notify.* events.
type NotificationEvent struct {
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	At       time.Time `json:"at"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
}

package ledger

import "context"

// LogsSubscriber streams notifications for transactions mentioning a program.
type LogsSubscriber interface {
	// SubscribeLogs subscribes to logs of transactions matching the filter.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)

	// Close closes the connection and every subscription channel.
	Close() error
}

// LogsFilter defines the logsSubscribe mentions filter.
type LogsFilter struct {
	Mentions []string
}

// LogNotification is one logsNotification message.
type LogNotification struct {
	Signature string
	Slot      uint64
	Logs      []string
	Err       interface{}
}

// Failed reports whether the notified transaction failed.
func (n LogNotification) Failed() bool {
	return n.Err != nil
}

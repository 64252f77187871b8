package core

import "mindhelper.ai/backend/internal/store"

// HistoryWindow is the number of prior messages sent with each request.
const HistoryWindow = 10

// WindowHistory returns the last HistoryWindow messages in their original
// order. The result shares the backing array with history.
func WindowHistory(history []store.Message) []store.Message {
	if len(history) <= HistoryWindow {
		return history
	}
	return history[len(history)-HistoryWindow:]
}

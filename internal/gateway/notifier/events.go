package notifier

import (
	"fmt"
	"strings"

	"capfolio/internal/logger"
	"capfolio/internal/scheduler"
)

const maxMessageLen = 3800

// EventSink formats automation events and pushes them through a
// TextNotifier. Delivery failures are logged, never propagated: a broken
// notification channel must not stall the scheduler.
type EventSink struct {
	notifier TextNotifier
}

func NewEventSink(n TextNotifier) *EventSink {
	return &EventSink{notifier: n}
}

func (s *EventSink) Publish(ev scheduler.Event) {
	if s == nil || s.notifier == nil {
		return
	}
	if err := s.notifier.SendText(renderEvent(ev)); err != nil {
		logger.Warnf("publishing event for %s failed: %v", ev.UserID, err)
	}
}

func renderEvent(ev scheduler.Event) string {
	var b strings.Builder
	icon := "✅"
	switch {
	case len(ev.Errors) > 0:
		icon = "⚠️"
	case !ev.Triggered:
		icon = "💤"
	}
	fmt.Fprintf(&b, "%s Rebalance %s\n\n", icon, ev.UserID)
	fmt.Fprintf(&b, "```\n")
	fmt.Fprintf(&b, "- triggered: %v\n", ev.Triggered)
	fmt.Fprintf(&b, "- trades: %d\n", ev.Trades)
	for _, msg := range ev.Errors {
		fmt.Fprintf(&b, "- error: %s\n", strings.TrimSpace(msg))
	}
	fmt.Fprintf(&b, "```\n\n")
	b.WriteString(ev.Timestamp.Format("2006-01-02 15:04:05 MST"))

	body := strings.TrimSpace(b.String())
	if len(body) > maxMessageLen {
		body = body[:maxMessageLen] + "..."
	}
	return body
}

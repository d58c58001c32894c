package notifier

// TextNotifier is the minimal notification surface the engine depends on.
// Concrete transports (Telegram) implement it; tests use Noop.
type TextNotifier interface {
	SendText(text string) error
}

// Noop discards every message. Used when no notifier is configured.
type Noop struct{}

func (Noop) SendText(string) error { return nil }

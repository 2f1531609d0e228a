package overlay

import "log/slog"

// Variant is the severity of a user-visible notification.
type Variant string

const (
	VariantError Variant = "error"
	VariantInfo  Variant = "info"
)

// Notification is a message for the user, e.g. a tile that failed to load.
type Notification struct {
	Variant Variant
	Message string
	Tile    string
}

// Notifier delivers notifications. Emit must not block.
type Notifier interface {
	Emit(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Emit(n Notification) { f(n) }

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Emit(n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if n.Variant == VariantError {
		logger.Error(n.Message, "tile", n.Tile)
		return
	}
	logger.Info(n.Message, "tile", n.Tile)
}

// ChanNotifier sends notifications on a channel, dropping them when it is full.
type ChanNotifier chan Notification

func (c ChanNotifier) Emit(n Notification) {
	select {
	case c <- n:
	default:
	}
}

// Package notify delivers operator notices, the bridge's equivalent of UI
// toasts.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Level grades a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is one message for the operator.
type Notice struct {
	Level   Level
	Title   string
	Message string
}

func (n Notice) String() string {
	if n.Title == "" {
		return n.Message
	}
	return n.Title + ": " + n.Message
}

// Notifier delivers notices. Implementations must be safe for concurrent
// use.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// LogNotifier writes notices to a slog.Logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs n at a level matching its grade.
func (l LogNotifier) Notify(ctx context.Context, n Notice) error {
	lvl := slog.LevelInfo
	switch n.Level {
	case LevelWarning:
		lvl = slog.LevelWarn
	case LevelError:
		lvl = slog.LevelError
	}
	l.Logger.Log(ctx, lvl, n.Message,
		slog.String("notice_level", string(n.Level)),
		slog.String("title", n.Title),
	)
	return nil
}

// Multi fans a notice out to every notifier and joins their errors.
type Multi []Notifier

// Notify delivers n to all notifiers even if some fail.
func (m Multi) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for i, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("notifier %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

package rewind

import (
	"context"
	"log/slog"

	"github.com/zoobzio/capitan"
)

// signalLevels maps every rewind signal to the level it is logged at.
var signalLevels = []struct {
	signal capitan.Signal
	level  slog.Level
}{
	{StoreStarted, slog.LevelDebug},
	{StoreClosed, slog.LevelInfo},
	{StoreStateChanged, slog.LevelWarn},
	{TransitionQueued, slog.LevelDebug},
	{TransitionApplied, slog.LevelDebug},
	{TransitionFailed, slog.LevelError},
	{HistorySynced, slog.LevelInfo},
	{HistoryUnsynced, slog.LevelInfo},
	{HistoryRecorded, slog.LevelDebug},
	{HistoryTrimmed, slog.LevelDebug},
	{HistoryRewound, slog.LevelInfo},
	{HistorySuppressed, slog.LevelDebug},
	{HistoryReset, slog.LevelInfo},
	{FeedStarted, slog.LevelInfo},
	{FeedStopped, slog.LevelInfo},
	{FeedDecodeFailed, slog.LevelWarn},
	{FeedValidationFailed, slog.LevelWarn},
}

// LogSignals writes every rewind signal to logger. The signal name is the
// message and each field present on the event becomes an attribute.
//
// Hooks are registered on the default capitan instance and stay in place
// for the life of the process, so LogSignals is normally called once from
// main.
func LogSignals(logger *slog.Logger) {
	for _, sl := range signalLevels {
		name := sl.signal.Name()
		level := sl.level
		capitan.Hook(sl.signal, func(ctx context.Context, e *capitan.Event) {
			if !logger.Enabled(ctx, level) {
				return
			}
			logger.LogAttrs(ctx, level, name, eventAttrs(e)...)
		})
	}
}

// eventAttrs flattens the known fields of e into slog attributes.
func eventAttrs(e *capitan.Event) []slog.Attr {
	attrs := make([]slog.Attr, 0, 4)
	str := func(name string, v string, ok bool) {
		if ok {
			attrs = append(attrs, slog.String(name, v))
		}
	}
	num := func(name string, v int, ok bool) {
		if ok {
			attrs = append(attrs, slog.Int(name, v))
		}
	}

	v, ok := KeyStore.From(e)
	str("store", v, ok)
	v, ok = KeyHistory.From(e)
	str("history", v, ok)
	v, ok = KeyHandler.From(e)
	str("handler", v, ok)
	v, ok = KeyTransition.From(e)
	str("transition", v, ok)
	v, ok = KeyOldState.From(e)
	str("old_state", v, ok)
	v, ok = KeyNewState.From(e)
	str("new_state", v, ok)
	v, ok = KeyContentType.From(e)
	str("content_type", v, ok)
	v, ok = KeyError.From(e)
	str("error", v, ok)

	n, ok := KeyQueueDepth.From(e)
	num("queue_depth", n, ok)
	n, ok = KeySize.From(e)
	num("size", n, ok)
	n, ok = KeyMaxSize.From(e)
	num("max_size", n, ok)
	n, ok = KeySource.From(e)
	num("source", n, ok)

	if d, ok := KeyDuration.From(e); ok {
		attrs = append(attrs, slog.Duration("duration", d))
	}
	return attrs
}

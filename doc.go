/*
Package rewind provides single-writer value stores with observable streams
and a navigable history of past values.

rewind is designed to be embedded in services and tools that keep a piece
of state, apply changes to it one at a time, and need to step back through
earlier versions, such as an editor with undo or a settings service that
can roll back.

# Stores and Handlers

A Store holds one value. It changes only through Handlers, which are named
transitions bound to the store. Transitions are queued and applied by a
single worker in submission order:

	doc := rewind.New("").Name("doc")

	appendText := rewind.Handle(doc, "append",
	    func(_ context.Context, current string, text string) (string, error) {
	        return current + text, nil
	    },
	)

	appendText.Submit(ctx, "hello")          // fire and forget
	v, err := appendText.Apply(ctx, " world") // wait for the result

A failed handler commits nothing; the error is returned to the submitter
as a *TransitionError and reported on the store's side channels.

Handlers accept pipeline options for resilience:

	rewind.Handle(doc, "fetch", fetchFn,
	    rewind.WithTimeout[string](2*time.Second),
	    rewind.WithRetry[string](3),
	)

# Streams

Every store publishes committed values on a Stream. A stream replays its
latest value to each new observer and then delivers every later value in
order:

	sub := doc.Subscribe(func(v string) { render(v) })
	defer sub.Cancel()

# History

A History records the values a store moves away from. Back pops the most
recent one; submitting it through the store's Update handler restores it
without recording it again:

	hist := rewind.NewHistory[string](100).Sync(doc)

	if prev, err := hist.Back(); err == nil {
	    doc.Update().Submit(ctx, prev)
	}

History exposes its log and its non-emptiness as streams, suitable for
driving an undo list and an undo button.

# Feeds

A Feed decodes payloads from a Watcher and applies them to a store, so
external sources such as files participate in history like any other
change. See pkg/file for an fsnotify based watcher and pkg/redis for a
Redis key watcher and a Mirror that writes a store's values to a key.

Compose merges several watchers into one value with a Reducer, for
example a defaults file overlaid by a user file.

# Observability

Stores, histories and feeds emit capitan signals (see signals.go and
fields.go). LogSignals routes them to a slog.Logger. Metrics are available
through MetricsProvider, with a Prometheus implementation in pkg/prom, and
each transition runs inside an OpenTelemetry span.
*/
package rewind

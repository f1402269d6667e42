package httpapi

// Streaming dispatch: bridges a channel of events (from taskmanager.Manager's
// StreamMessage/ResubscribeTask, or a broker subscription) to an SSE HTTP
// response. Framing, the heartbeat ticker, and the non-blocking
// write-or-drop policy follow pkg/service/sse/broker.go's Subscribe loop,
// generalized from one global broadcast broker to one dispatcher per request
// that fans in whatever channel it's handed.
import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/theapemachine/a2a-coordinator/internal/metrics"
	"github.com/theapemachine/a2a-coordinator/pkg/broker"
)

// streamDispatcher writes SSE frames for events arriving on events until it
// closes or the request context is cancelled, interleaving periodic
// heartbeat comments so intermediary proxies don't time out the connection.
type streamDispatcher struct {
	heartbeat time.Duration
	metrics   *metrics.Registry
	channel   string // label used for metrics only
}

// secondsToDuration converts a config value of whole seconds (0 meaning
// "use the dispatcher default") to a time.Duration.
func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

func newStreamDispatcher(heartbeat time.Duration, reg *metrics.Registry, channel string) *streamDispatcher {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &streamDispatcher{heartbeat: heartbeat, metrics: reg, channel: channel}
}

func (d *streamDispatcher) serve(w http.ResponseWriter, r *http.Request, events <-chan any) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if d.metrics != nil {
		d.metrics.SSEConnectionsTotal.Inc()
		d.metrics.SSEConnectionsActive.Inc()
		defer d.metrics.SSEConnectionsActive.Dec()
	}

	ticker := time.NewTicker(d.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := d.write(w, evt); err != nil {
				log.Warn("sse dispatcher write failed", "err", err)
				return
			}
			flusher.Flush()
			if d.metrics != nil {
				d.metrics.SSEEventsSentTotal.WithLabelValues(d.channel).Inc()
			}

		case <-ticker.C:
			if _, err := w.Write([]byte(": heartbeat\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (d *streamDispatcher) write(w http.ResponseWriter, evt any) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}

// channelFromBroker adapts a broker subscription into the <-chan any shape
// streamDispatcher.serve expects, so the monitor firehose and per-task
// subscriptions share one dispatch loop. The returned channel is never
// closed by this adapter — serve's own ctx.Done case ends the loop, and
// unsubscribe stops further sends, so there is no reader left to starve.
func channelFromBroker(ctx context.Context, subscribe func(handler broker.Handler) (string, error), unsubscribe func(id string)) <-chan any {
	out := make(chan any, 64)
	id, err := subscribe(func(_ context.Context, channel string, payload any) {
		select {
		case out <- envelope{Channel: channel, Payload: payload}:
		default:
		}
	})
	if err != nil {
		return out
	}

	go func() {
		<-ctx.Done()
		unsubscribe(id)
	}()

	return out
}

// envelope is the wire shape for a broker-sourced SSE event: the firehose
// (and any future multi-channel feed) needs the originating channel name
// alongside the payload since it fans in from more than one source.
type envelope struct {
	Channel string `json:"channel"`
	Payload any    `json:"payload"`
}

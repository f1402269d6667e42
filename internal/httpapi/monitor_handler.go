package httpapi

// Monitor firehose: GET /monitor/stream, the operator-facing SSE feed of
// every channel at once. Supplements spec 4.1/4.3, grounded in
// original_source/a2a_server/monitor_api.py's fan-in-every-message
// monitoring service. Only available when the broker backend implements
// broker.Firehose (the in-process Hub does; a federated backend may not).

import (
	"net/http"

	"github.com/gofiber/fiber/v3"
	fiberadaptor "github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/theapemachine/a2a-coordinator/pkg/broker"
)

func (s *Server) handleMonitorStream(c fiber.Ctx) error {
	fh, ok := s.deps.Bus.(broker.Firehose)
	if !ok {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "monitor stream unsupported by the configured broker backend",
		})
	}

	events := channelFromBroker(c.Context(),
		func(handler broker.Handler) (string, error) { return fh.SubscribeFirehose(handler) },
		fh.UnsubscribeFirehose,
	)

	dispatcher := s.newDispatcher("monitor")
	handler := func(w http.ResponseWriter, r *http.Request) {
		dispatcher.serve(w, r, events)
	}
	return fiberadaptor.HTTPHandler(http.HandlerFunc(handler))(c)
}

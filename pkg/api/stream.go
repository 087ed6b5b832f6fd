package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/metisearch/metis/pkg/core"
	"github.com/metisearch/metis/pkg/dispatch"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleStream runs a search and pushes one "outcome" event per engine as
// results arrive, followed by a single "done" event with the final merged
// document. Query parameters match /api/search.
func (s *Server) HandleStream(w http.ResponseWriter, r *http.Request) {
	query, err := buildQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid query", err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Debugf("closing websocket: %v", err)
		}
	}()

	// The streaming callback runs on the dispatcher's merge goroutine, so
	// there is only ever one writer on the connection.
	writeErr := error(nil)
	result, err := s.dispatcher.Run(r.Context(), query,
		dispatch.WithStreaming(func(outcome core.EngineOutcome) {
			if writeErr != nil {
				return
			}
			event := StreamEvent{
				Type:    "outcome",
				Engine:  outcome.Engine,
				Kind:    string(outcome.Kind),
				Results: len(outcome.Records),
			}
			if outcome.Kind.Failure() {
				event.Error = outcome.Message()
			}
			writeErr = conn.WriteJSON(event)
		}))
	if err != nil {
		_ = conn.WriteJSON(StreamEvent{Type: "error", Error: err.Error()})
		return
	}
	if writeErr != nil {
		logger.Debugf("stream client went away: %v", writeErr)
		return
	}

	if s.history != nil {
		if err := s.history.RecordSearch(query, len(result.Frozen.Main),
			len(result.Frozen.EngineErrors), result.Elapsed); err != nil {
			logger.Warnf("recording search: %v", err)
		}
	}

	if err := conn.WriteJSON(StreamEvent{Type: "done", Final: result.Frozen}); err != nil {
		logger.Debugf("writing final stream event: %v", err)
	}
}

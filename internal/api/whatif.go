package api

import (
	"encoding/json"
	"net/http"

	"student-perf/internal/ml"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// handleWhatIf answers every inbound predict request with one prediction frame,
// or a {"detail": ...} frame when the request fails. The connection stays open
// until the client closes it.
func (s *Server) handleWhatIf(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	connections := s.metrics.WSConnections()
	connections.Add(1)
	defer connections.Add(-1)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("What-if connection closed unexpectedly")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if err := conn.WriteJSON(s.whatIf(data)); err != nil {
			log.Error().Err(err).Msg("Failed to write what-if response")
			return
		}
	}
}

func (s *Server) whatIf(data []byte) interface{} {
	var req ml.BatchItem
	if err := json.Unmarshal(data, &req); err != nil {
		return errorResponse{Detail: "invalid request: " + err.Error()}
	}

	result, err := s.predict(req)
	if err != nil {
		_, detail := statusFor(err)
		return errorResponse{Detail: detail}
	}
	return result
}

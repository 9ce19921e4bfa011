package api

import (
	"net/http"
)

// handleEvents upgrades the connection to a websocket and streams
// broker events as JSON frames until either side goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.captain.Events().Subscribe()
	defer s.captain.Events().Unsubscribe(sub)

	s.logger.Debug().Str("remote", r.RemoteAddr).Msg("event stream opened")

	// Drain the client side so we notice a close promptly.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

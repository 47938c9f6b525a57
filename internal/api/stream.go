package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"slotbook/internal/events"
	"slotbook/internal/metrics"
	"slotbook/internal/schedule"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second
	writeWait  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleDayStream pushes a snapshot of the day's route followed by every
// stop.updated event for that day.
func (s *Server) handleDayStream(w http.ResponseWriter, r *http.Request) {
	day, err := schedule.ParseDay(r.PathValue("day"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid day", err.Error(), r.URL.Path)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stops, err := s.Booking.ListStops(ctx, day.String())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ch, unsubscribe, err := s.Broker.Subscribe(ctx, day.String())
	if err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Stream unavailable", err.Error(), r.URL.Path)
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		return
	}
	defer func() { _ = conn.Close() }()
	metrics.StreamSubscribers.Inc()
	defer metrics.StreamSubscribers.Dec()

	// reader: only control frames are expected; any error ends the stream
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}
	if err := write(events.Event{Type: "snapshot", Day: day.String(), Data: map[string]any{"stops": stops}}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := write(evt); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

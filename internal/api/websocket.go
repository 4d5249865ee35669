package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"signal-engine/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage tags each pushed payload with its originating event.
type wsMessage struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// websocket streams strategy signals, aggregate decisions, fills and
// risk alerts to the client. The connection closes when the client
// goes away or the bus shuts down.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[api] ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	topics := []events.Event{
		events.EventStrategySignal,
		events.EventAggregateDecision,
		events.EventOrderFilled,
		events.EventRiskAlert,
	}

	out := make(chan wsMessage, 100)
	var wg sync.WaitGroup
	unsubs := make([]func(), 0, len(topics))
	for _, topic := range topics {
		stream, unsub := s.Bus.Subscribe(topic, 100)
		unsubs = append(unsubs, unsub)
		wg.Add(1)
		go func(topic events.Event, stream <-chan any) {
			defer wg.Done()
			for msg := range stream {
				select {
				case out <- wsMessage{Event: string(topic), Payload: msg}:
				default: // a gone client never blocks the bus
				}
			}
		}(topic, stream)
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
		go func() {
			wg.Wait()
			close(out)
		}()
	}()

	// Drain client reads so close frames and pings are processed.
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
		case msg, ok := <-out:
			if !ok {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("[api] ws write error: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}

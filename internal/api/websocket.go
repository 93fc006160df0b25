package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"signal-trader/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// websocket streams pipeline events to a client as tagged JSON envelopes.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("api: ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	stream, unsub := s.Bus.SubscribeAll(100,
		events.EventSignalParsed,
		events.EventTradeExecuted,
		events.EventTradeClosed,
		events.EventDecision,
		events.EventRiskAlert,
	)
	defer unsub()

	for env := range stream {
		if err := conn.WriteJSON(env); err != nil {
			log.Printf("api: ws write error: %v", err)
			return
		}
	}
}

/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Client is one websocket watcher. Watchers only receive; whatever they send
// is discarded.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan any
}

// Hub fans jar state out to every connected watcher. All client bookkeeping
// happens on the run goroutine.
type Hub struct {
	clients map[*Client]bool

	register  chan *Client
	unreg     chan *Client
	broadcast chan JarState

	current func() JarState
	log     zerolog.Logger
	done    <-chan struct{}
}

func newHub(ctx context.Context, current func() JarState, log zerolog.Logger) *Hub {
	return &Hub{
		done:      ctx.Done(),
		clients:   make(map[*Client]bool),
		register:  make(chan *Client),
		unreg:     make(chan *Client),
		broadcast: make(chan JarState, 64),
		current:   current,
		log:       log,
	}
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			metricWatchers.Set(0)
			return

		case c := <-h.register:
			h.clients[c] = true
			metricWatchers.Set(float64(len(h.clients)))

			// Newcomers get the current state right away.
			c.send <- h.current()

		case c := <-h.unreg:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			metricWatchers.Set(float64(len(h.clients)))

		case state := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- state:
				default:
					h.log.Warn().Str("client", c.id).Msg("GAMES: Dropping slow watcher")
					delete(h.clients, c)
					close(c.send)
				}
			}
			metricWatchers.Set(float64(len(h.clients)))
		}
	}
}

// publish never blocks the caller; if the queue is full the update is
// dropped and the next one carries the newer state.
func (h *Hub) publish(state JarState) {
	select {
	case h.broadcast <- state:
	default:
		h.log.Warn().Msg("GAMES: Broadcast queue full, dropping jar update")
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func serveWatch(h *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warn().Err(err).Str("remote", realIP(r)).Msg("SERVE: Websocket upgrade failed")
			return
		}

		client := &Client{
			id:   uuid.NewString(),
			conn: conn,
			send: make(chan any, 8),
		}

		h.log.Info().Str("client", client.id).Str("remote", realIP(r)).Msg("GAMES: Watcher connected")

		select {
		case h.register <- client:
		case <-h.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(h)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
		h.log.Info().Str("client", c.id).Msg("GAMES: Watcher disconnected")
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/match"
	"github.com/victornm/quizduel/internal/matchmaking"
	"github.com/victornm/quizduel/internal/rating"
)

// Queue is the matchmaking side the gateway routes inbound events to.
type Queue interface {
	Enqueue(ctx context.Context, req matchmaking.EnqueueRequest) (*matchmaking.EnqueueResponse, error)
	Leave(connID string)
}

// Matches is the session side the gateway routes inbound events to.
type Matches interface {
	Create(ctx context.Context, a, b domain.QueuedPlayer) (string, error)
	Ready(ctx context.Context, connID, roomID string) error
	Answer(ctx context.Context, connID, roomID string, correct bool) error
	Disconnect(ctx context.Context, connID string) bool
}

// Players is the profile/rating lookup done on join_queue.
type Players interface {
	UpsertProfile(ctx context.Context, deviceID, name, civID string) error
	GetRating(ctx context.Context, deviceID string) (int, error)
}

type Config struct {
	Players Players
}

// Gateway maps websocket connections to queue entries and session seats. It
// is the only component that touches the transport.
type Gateway struct {
	players Players
	queue   Queue
	matches Matches

	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*conn
}

func New(c Config) *Gateway {
	return &Gateway{
		players: c.Players,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[string]*conn),
	}
}

// Bind attaches the queue and match services. Called once during server
// wiring, before the first connection is accepted.
func (g *Gateway) Bind(q Queue, m Matches) {
	g.queue = q
	g.matches = m
}

// HandleWS upgrades the request and serves the connection until it drops.
func (g *Gateway) HandleWS(c *gin.Context) {
	sock, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "gateway: upgrade failed", "error", err)
		return
	}

	cn := &conn{
		id:   uuid.NewString(),
		sock: sock,
		send: make(chan []byte, sendBuffer),
	}

	g.mu.Lock()
	g.conns[cn.id] = cn
	g.mu.Unlock()

	slog.InfoContext(c.Request.Context(), "gateway: connected", "conn", cn.id)

	go cn.writePump()
	g.readLoop(cn)
}

func (g *Gateway) readLoop(cn *conn) {
	defer g.disconnect(cn)

	cn.prepareRead()
	for {
		_, raw, err := cn.sock.ReadMessage()
		if err != nil {
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			g.sendError(cn.id, "malformed event")
			continue
		}

		g.route(cn, env)
	}
}

func (g *Gateway) route(cn *conn, env envelope) {
	ctx := context.Background()

	switch env.Event {
	case eventJoinQueue:
		var d joinQueueData
		if err := json.Unmarshal(env.Data, &d); err != nil || d.DeviceID == "" || d.Name == "" || d.CivID == "" {
			g.sendError(cn.id, "deviceId, name, civId required")
			return
		}
		g.handleJoinQueue(ctx, cn, d)

	case eventLeaveQueue:
		g.queue.Leave(cn.id)

	case eventReady:
		var d readyData
		if err := json.Unmarshal(env.Data, &d); err != nil || d.RoomID == "" {
			g.sendError(cn.id, "roomId required")
			return
		}
		if err := g.matches.Ready(ctx, cn.id, d.RoomID); err != nil {
			slog.InfoContext(ctx, "gateway: ready rejected", "conn", cn.id, "error", err)
		}

	case eventAnswer:
		var d answerData
		if err := json.Unmarshal(env.Data, &d); err != nil || d.RoomID == "" {
			g.sendError(cn.id, "roomId required")
			return
		}
		if err := g.matches.Answer(ctx, cn.id, d.RoomID, d.Correct); err != nil {
			// Duplicate answers and foreign rooms are protocol violations;
			// log and move on, never drop the connection for them.
			slog.InfoContext(ctx, "gateway: answer rejected", "conn", cn.id, "error", err)
		}

	default:
		g.sendError(cn.id, "unknown event: "+env.Event)
	}
}

func (g *Gateway) handleJoinQueue(ctx context.Context, cn *conn, d joinQueueData) {
	if err := g.players.UpsertProfile(ctx, d.DeviceID, d.Name, d.CivID); err != nil {
		slog.ErrorContext(ctx, "gateway: upsert profile failed", "device", d.DeviceID, "error", err)
	}

	r, err := g.players.GetRating(ctx, d.DeviceID)
	if err != nil {
		slog.ErrorContext(ctx, "gateway: read rating failed", "device", d.DeviceID, "error", err)
		r = rating.Initial
	}

	resp, err := g.queue.Enqueue(ctx, matchmaking.EnqueueRequest{
		ConnID:   cn.id,
		DeviceID: d.DeviceID,
		Name:     d.Name,
		CivID:    d.CivID,
		Rating:   r,
	})
	if err != nil {
		g.sendError(cn.id, "cannot join queue: "+err.Error())
		return
	}

	if resp.Matched {
		if _, err := g.matches.Create(ctx, resp.Player, resp.Opponent); err != nil {
			slog.ErrorContext(ctx, "gateway: create match failed", "conn", cn.id, "error", err)
			// The opponent already left the queue for this pairing; both
			// seats must hear that the match is not happening.
			g.sendError(cn.id, "cannot start match")
			g.sendError(resp.Opponent.ConnID, "cannot start match")
		}
	}
}

func (g *Gateway) disconnect(cn *conn) {
	g.mu.Lock()
	if _, ok := g.conns[cn.id]; ok {
		delete(g.conns, cn.id)
		close(cn.send)
	}
	g.mu.Unlock()
	cn.sock.Close()

	ctx := context.Background()
	if !g.matches.Disconnect(ctx, cn.id) {
		g.queue.Leave(cn.id)
	}

	slog.InfoContext(ctx, "gateway: disconnected", "conn", cn.id)
}

// Alive reports whether a connection is still attached.
func (g *Gateway) Alive(connID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.conns[connID]
	return ok
}

// send marshals one outbound event for a connection. A connection whose send
// buffer is full is considered dead and is closed; its read loop then runs
// the normal disconnect path.
func (g *Gateway) send(connID, event string, data any) {
	b, err := json.Marshal(notification{Event: event, Data: data})
	if err != nil {
		slog.Error("gateway: marshal event failed", "event", event, "error", err)
		return
	}

	g.mu.RLock()
	cn, ok := g.conns[connID]
	if !ok {
		g.mu.RUnlock()
		return
	}

	select {
	case cn.send <- b:
		g.mu.RUnlock()
	default:
		g.mu.RUnlock()
		slog.Warn("gateway: send buffer full, closing connection", "conn", connID)
		cn.sock.Close()
	}
}

func (g *Gateway) sendError(connID, msg string) {
	g.send(connID, eventError, errorData{Message: msg})
}

// EmitMatchFound implements match.Emitter.
func (g *Gateway) EmitMatchFound(connID string, m match.MatchFound) {
	g.send(connID, eventMatchFound, m)
}

// EmitQuestion implements match.Emitter.
func (g *Gateway) EmitQuestion(connID string, q match.Question) {
	g.send(connID, eventQuestion, q)
}

// EmitGameOver implements match.Emitter.
func (g *Gateway) EmitGameOver(connID string, o match.GameOver) {
	g.send(connID, eventGameOver, o)
}

// NotifyQueueTimeout implements matchmaking.Notifier.
func (g *Gateway) NotifyQueueTimeout(connID string) {
	g.send(connID, eventMatchmakingTimeout, struct{}{})
}

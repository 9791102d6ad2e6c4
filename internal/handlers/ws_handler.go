package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pocketbase/pocketbase/core"

	"code-duel/config"
	"code-duel/internal/services"
	"code-duel/internal/status"
	"code-duel/models"
)

const maxMessageSize = 64 << 10

// Gateway terminates player websockets and turns inbound events into calls
// on the queue, the match manager and the submission service.
type Gateway struct {
	cfg         *config.Config
	registry    *services.ConnectionRegistry
	queue       *services.MatchmakingQueue
	matches     *services.MatchManager
	submissions *services.SubmissionService
	upgrader    websocket.Upgrader
}

func NewGateway(cfg *config.Config, registry *services.ConnectionRegistry, queue *services.MatchmakingQueue, matches *services.MatchManager, submissions *services.SubmissionService) *Gateway {
	return &Gateway{
		cfg:         cfg,
		registry:    registry,
		queue:       queue,
		matches:     matches,
		submissions: submissions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and serves the connection until it drops.
func (g *Gateway) ServeWS(e *core.RequestEvent) error {
	ws, err := g.upgrader.Upgrade(e.Response, e.Request, nil)
	if err != nil {
		// Upgrade has already answered the client
		slog.Warn("websocket upgrade failed", "remote", e.Request.RemoteAddr, "error", err)
		return nil
	}

	conn := newWSConn(ws, g.cfg.WSWriteTimeout)
	slog.Info("websocket connected", "conn", conn.ID(), "remote", e.Request.RemoteAddr)

	g.serve(conn)
	return nil
}

func (g *Gateway) serve(conn *wsConn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		g.registry.OnDisconnect(conn)
		_ = conn.Close()
		slog.Info("websocket closed", "conn", conn.ID())
	}()

	ws := conn.ws
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(g.cfg.WSPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(g.cfg.WSPongWait))
	})

	go g.keepAlive(ctx, conn)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read failed", "conn", conn.ID(), "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(g.cfg.WSPongWait))

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			sendError(conn, fmt.Errorf("%w: %v", status.ErrMalformedEvent, err))
			continue
		}
		g.Handle(ctx, conn, env)
	}
}

func (g *Gateway) keepAlive(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(g.cfg.WSPongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				slog.Debug("websocket ping failed", "conn", conn.ID(), "error", err)
				return
			}
		}
	}
}

// Handle processes one inbound event. Every connection must authenticate
// before anything else.
func (g *Gateway) Handle(ctx context.Context, conn services.Conn, env models.Envelope) {
	if env.Event == models.EventAuthenticate {
		g.authenticate(conn, env)
		return
	}

	player, ok := g.registry.PlayerFor(conn)
	if !ok {
		sendError(conn, status.ErrNotAuthenticated)
		return
	}

	var err error
	switch env.Event {
	case models.EventJoinMatchmaking:
		err = g.joinMatchmaking(ctx, player, env)
	case models.EventLeaveMatchmaking:
		g.queue.Leave(player.PlayerID)
		err = conn.Send(models.EventMatchmakingLeft, struct{}{})
	case models.EventPlayerWon:
		err = g.playerWon(player, env)
	case models.EventSubmitCode, models.EventRunCode:
		err = g.evaluate(ctx, conn, player, env)
	case models.EventSyncClock:
		err = g.syncClock(conn, player, env)
	default:
		err = fmt.Errorf("%w: %q", status.ErrUnknownEvent, env.Event)
	}

	if err != nil {
		sendError(conn, err)
	}
}

func (g *Gateway) authenticate(conn services.Conn, env models.Envelope) {
	var p models.AuthenticatePayload
	if err := decode(env, &p); err != nil {
		sendError(conn, err)
		return
	}
	if p.PlayerID == "" {
		sendError(conn, status.ErrInvalidPlayer)
		return
	}

	ack := models.PlayerRef{PlayerID: p.PlayerID, DisplayName: p.DisplayName, ConnectionID: conn.ID()}
	if err := conn.Send(models.EventAuthenticated, ack); err != nil {
		slog.Warn("failed to acknowledge authentication", "playerID", p.PlayerID, "error", err)
		return
	}
	g.registry.Register(p.PlayerID, p.DisplayName, conn)
	slog.Info("player authenticated", "playerID", p.PlayerID, "conn", conn.ID())
}

func (g *Gateway) joinMatchmaking(ctx context.Context, player models.PlayerRef, env models.Envelope) error {
	var p models.JoinMatchmakingPayload
	if err := decode(env, &p); err != nil {
		return err
	}
	if p.PlayerID != "" && p.PlayerID != player.PlayerID {
		return status.ErrNotParticipant
	}

	name := p.DisplayName
	if name == "" {
		name = player.DisplayName
	}
	_, err := g.queue.Join(ctx, player.PlayerID, name, p.TimeLimitMinutes)
	return err
}

// playerWon only logs the claim; wins are decided by accepted judge
// verdicts.
func (g *Gateway) playerWon(player models.PlayerRef, env models.Envelope) error {
	var p models.PlayerWonPayload
	if err := decode(env, &p); err != nil {
		return err
	}

	view, err := g.matches.View(p.MatchID)
	if err != nil {
		return err
	}
	if !view.Has(player.PlayerID) {
		return status.ErrNotParticipant
	}

	slog.Info("ignoring unverified win claim", "matchID", p.MatchID, "playerID", player.PlayerID, "status", view.Status)
	return nil
}

func (g *Gateway) evaluate(ctx context.Context, conn services.Conn, player models.PlayerRef, env models.Envelope) error {
	var p models.CodePayload
	if err := decode(env, &p); err != nil {
		return err
	}

	run := g.submissions.Submit
	if env.Event == models.EventRunCode {
		run = g.submissions.Run
	}

	// the judge round trip must not hold up this connection's other events
	go func() {
		if err := run(ctx, player.PlayerID, p); err != nil {
			if !errors.Is(err, context.Canceled) {
				sendError(conn, err)
			}
		}
	}()
	return nil
}

func (g *Gateway) syncClock(conn services.Conn, player models.PlayerRef, env models.Envelope) error {
	var p models.SyncClockPayload
	if err := decode(env, &p); err != nil {
		return err
	}

	clock, err := g.matches.Clock(p.MatchID, player.PlayerID)
	if err != nil {
		return err
	}
	return conn.Send(models.EventClock, clock)
}

func decode(env models.Envelope, dst any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", status.ErrMalformedEvent, env.Event)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("%w: %v", status.ErrMalformedEvent, err)
	}
	return nil
}

func sendError(conn services.Conn, err error) {
	payload := models.ErrorPayload{
		Reason:  status.Reason(err),
		Message: err.Error(),
	}
	if sendErr := conn.Send(models.EventError, payload); sendErr != nil {
		slog.Debug("failed to send error event", "conn", conn.ID(), "error", sendErr)
	}
}

// Package realtime pushes session events to signed-in clients over
// WebSocket. It runs on its own net/http listener because the WebSocket
// library needs http.Hijacker, which Fiber's fasthttp context lacks.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/aisentinel/session-service/internal/domain"
	"github.com/aisentinel/session-service/internal/events"
)

const writeTimeout = 5 * time.Second

// IdentityResolver is satisfied by *service.AuthService.
type IdentityResolver interface {
	Me(ctx context.Context, token string) (*domain.Identity, *domain.Session, error)
}

type Server struct {
	identities     IdentityResolver
	hub            *events.Hub
	cookieName     string
	originPatterns []string
	logger         *zap.Logger
}

func NewServer(identities IdentityResolver, hub *events.Hub, cookieName string, allowOrigins string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		identities:     identities,
		hub:            hub,
		cookieName:     cookieName,
		originPatterns: originPatterns(allowOrigins),
		logger:         logger,
	}
}

// Handler returns the mux serving /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	return mux
}

func (s *Server) token(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if c, err := r.Cookie(s.cookieName); err == nil {
		return c.Value
	}
	return ""
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	identity, session, err := s.identities.Me(r.Context(), s.token(r))
	if err != nil {
		s.logger.Error("failed to resolve websocket session", zap.Error(err))
		http.Error(w, "failed to verify session", http.StatusInternalServerError)
		return
	}
	if !identity.Authenticated || identity.User == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	opts := &websocket.AcceptOptions{}
	if len(s.originPatterns) > 0 {
		opts.OriginPatterns = s.originPatterns
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var sessionID string
	if session != nil {
		sessionID = session.ID.String()
	}

	sub := s.hub.Subscribe(identity.User.ID, 64)
	defer s.hub.Unsubscribe(sub)

	s.logger.Debug("websocket subscribed", zap.String("user_id", identity.User.ID))

	if err := s.write(ctx, conn, events.NewEvent(events.TypeReady, identity.User.ID, nil)); err != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
		return
	}

	echoes := make(chan []byte, 8)
	readErr := make(chan error, 1)
	go func() {
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			if typ != websocket.MessageText {
				continue
			}
			select {
			case echoes <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case data := <-echoes:
			evt := events.NewEvent(events.TypeEcho, identity.User.ID, map[string]string{"message": string(data)})
			if err := s.write(ctx, conn, evt); err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		case evt, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return
			}
			if err := s.write(ctx, conn, evt); err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
			if revokes(evt, sessionID) {
				s.logger.Debug("websocket session revoked", zap.String("user_id", identity.User.ID))
				_ = conn.Close(websocket.StatusPolicyViolation, "session_revoked")
				return
			}
		}
	}
}

// revokes reports whether evt revokes the session the connection was
// opened with.
func revokes(evt events.Event, sessionID string) bool {
	if evt.Type != events.TypeSessionRevoked || sessionID == "" || len(evt.Data) == 0 {
		return false
	}
	var data struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return false
	}
	return data.SessionID == sessionID
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, evt events.Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, evt)
}

// originPatterns turns a CORS origin list into host patterns.
func originPatterns(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if raw == "*" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(strings.TrimPrefix(p, "https://"), "http://")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

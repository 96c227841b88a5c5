package ws

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/config"
	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/events"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/security"
)

var (
	wsOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_online",
			Help: "Current number of users with a live websocket connection.",
		},
	)

	wsConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_connections_total",
			Help: "Websocket handshakes by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(wsOnline, wsConnects)
}

// Server upgrades authenticated HTTP requests to websocket clients, registers
// them with the hub and joins them to their conversation rooms.
type Server struct {
	Auth       security.Authenticator
	Hub        *realtime.Hub
	Dispatcher *events.Dispatcher
	DB         *gorm.DB
	Config     config.WSConfig

	// Logger is the base logger for connections; the global logger when nil.
	Logger *zerolog.Logger

	upgrader websocket.Upgrader
	// registered runs after a client is registered and before its rooms
	// are loaded. Tests only.
	registered func(*Client)
}

// NewServer returns a websocket endpoint. Browser origins are checked against
// allowedOrigins; an empty list accepts any origin.
func NewServer(auth security.Authenticator, hub *realtime.Hub, d *events.Dispatcher, db *gorm.DB, cfg config.WSConfig, allowedOrigins []string) *Server {
	return &Server{
		Auth:       auth,
		Hub:        hub,
		Dispatcher: d,
		DB:         db,
		Config:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// ServeHTTP authenticates the handshake, upgrades, and runs the client until
// it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	base := log.Logger
	if s.Logger != nil {
		base = *s.Logger
	}

	identity, err := s.authenticate(r)
	if err != nil {
		wsConnects.WithLabelValues("unauthorized").Inc()
		base.Debug().Err(err).Str("remote_ip", r.RemoteAddr).Msg("websocket handshake rejected")
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		wsConnects.WithLabelValues("upgrade_failed").Inc()
		return
	}

	// Register before loading rooms so a conversation created meanwhile
	// reaches this connection through its join intent or the query below.
	c := newClient(conn, identity, s.Config, base)
	if prev := s.Hub.Connect(c); prev != nil {
		c.log.Info().Str("replaced_conn_id", prev.ID()).Msg("connection replaced")
	}
	wsOnline.Set(float64(s.Hub.Registry.Len()))
	if s.registered != nil {
		s.registered(c)
	}

	n, err := s.joinRooms(r.Context(), c)
	if err != nil {
		wsConnects.WithLabelValues("error").Inc()
		c.log.Error().Err(err).Msg("load conversation rooms")
		s.Hub.Disconnect(c)
		wsOnline.Set(float64(s.Hub.Registry.Len()))
		c.Close()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, ""),
			time.Now().Add(s.Config.WriteWait))
		_ = conn.Close()
		return
	}
	wsConnects.WithLabelValues("ok").Inc()
	c.log.Info().Int("rooms", n).Msg("client connected")

	go c.writePump()
	c.readPump(r.Context(), s.Dispatcher, events.NewLimiter(s.Config.RateRPS, s.Config.RateBurst))

	s.Hub.Disconnect(c)
	wsOnline.Set(float64(s.Hub.Registry.Len()))
	c.log.Info().Msg("client disconnected")
}

// joinRooms joins c to the room of every conversation its user is part of.
func (s *Server) joinRooms(ctx context.Context, c *Client) (int, error) {
	ids, err := repo.ListConversationIDs(ctx, s.DB, c.UserID())
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.Hub.Rooms.Join(c, realtime.ConversationRoom(id))
	}
	return len(ids), nil
}

func (s *Server) authenticate(r *http.Request) (domain.Identity, error) {
	token := bearerToken(r)
	if token == "" {
		return domain.Identity{}, security.ErrInvalidToken
	}
	return s.Auth.Authenticate(token)
}

// bearerToken reads the Authorization header, then the "token" query
// parameter browsers use during the handshake.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[u.Scheme+"://"+u.Host]
		return ok
	}
}

// Shutdown closes every client in the hub's registry.
func (s *Server) Shutdown(_ context.Context) {
	for _, c := range s.Hub.Registry.All() {
		_ = c.Close()
	}
}

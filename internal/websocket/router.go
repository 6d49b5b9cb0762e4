package websocket

import (
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/dennisdiepolder/monti/callmonitor/internal/auth"
	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Route is the handler a connection is dispatched to
type Route int

const (
	RouteRejected Route = iota
	RouteAudio
	RouteAgentUI
	RouteSupervisorUI
)

func (r Route) String() string {
	switch r {
	case RouteAudio:
		return "audio"
	case RouteAgentUI:
		return "agent_ui"
	case RouteSupervisorUI:
		return "supervisor_ui"
	default:
		return "rejected"
	}
}

const transcriptsSegment = "/transcripts"

// Classify decides which handler serves a connection and the normalized id
// it is registered under. It has no side effects.
func Classify(path string, query url.Values) (Route, string) {
	if !strings.Contains(path, transcriptsSegment) {
		return RouteAudio, ""
	}

	if id := types.NormalizeID(query.Get("supervisorId")); id != "" {
		return RouteSupervisorUI, id
	}
	if id := types.NormalizeID(query.Get("agentId")); id != "" {
		return RouteAgentUI, id
	}

	tail := strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(path, transcriptsSegment, ""), "/", ""))
	switch {
	case strings.HasPrefix(tail, "supervisor"):
		return RouteSupervisorUI, tail
	case tail != "" && allDigits(tail):
		return RouteAgentUI, tail
	}
	return RouteRejected, ""
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Authenticator verifies the caller of a UI connection
type Authenticator interface {
	Authenticate(r *http.Request) (*auth.Claims, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Audio gateways and UIs connect from arbitrary origins
		return true
	},
}

// Router upgrades every websocket request and hands it to the role handler
type Router struct {
	agents      *AgentHandler
	supervisors *SupervisorHandler
	audio       *AudioHandler
	auth        Authenticator
	logger      zerolog.Logger
}

// NewRouter creates a new Router. auth may be nil, in which case UI
// connections are not authenticated.
func NewRouter(agents *AgentHandler, supervisors *SupervisorHandler, audio *AudioHandler, authn Authenticator, logger zerolog.Logger) *Router {
	return &Router{
		agents:      agents,
		supervisors: supervisors,
		audio:       audio,
		auth:        authn,
		logger:      logger.With().Str("component", "ws_router").Logger(),
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, id := Classify(r.URL.Path, r.URL.Query())

	if route == RouteAgentUI || route == RouteSupervisorUI {
		if !rt.authorize(w, r, route) {
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		rt.logger.Error().Err(err).Str("path", r.URL.Path).Msg("failed to upgrade connection")
		return
	}

	switch route {
	case RouteAgentUI:
		rt.agents.Serve(conn, id)
	case RouteSupervisorUI:
		rt.supervisors.Serve(conn, id)
	case RouteAudio:
		rt.audio.Serve(r.Context(), conn, r.URL.RequestURI())
	default:
		rt.reject(conn, r.URL.Path)
	}
}

func (rt *Router) authorize(w http.ResponseWriter, r *http.Request, route Route) bool {
	if rt.auth == nil {
		return true
	}
	claims, err := rt.auth.Authenticate(r)
	if err != nil {
		rt.logger.Debug().Err(err).Str("route", route.String()).Msg("websocket authentication failed")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return false
	}
	if route == RouteSupervisorUI && !auth.HasAnyRole(claims, auth.RoleSupervisor, auth.RoleAdmin) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func (rt *Router) reject(conn *websocket.Conn, path string) {
	metrics.Get().RecordRoutingRejection()
	rt.logger.Warn().Str("path", path).Msg("rejecting connection without identifiers")

	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Missing identifiers")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
}

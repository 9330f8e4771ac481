// Package server is the OneList Store HTTP server: entry CRUD, chat-stream
// ingestion, the search facade, memory governance endpoints, task
// coordination, historical import, and the WebSocket observer feed.
//
// Every request is authenticated with an opaque bearer token and tagged by
// the agent identity headers. Errors leave as {ok:false, error:{code,message}}.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/trinsiklabs/onelist/internal/bus"
	"github.com/trinsiklabs/onelist/internal/config"
	"github.com/trinsiklabs/onelist/internal/importer"
	"github.com/trinsiklabs/onelist/internal/ingest"
	"github.com/trinsiklabs/onelist/internal/memory"
	"github.com/trinsiklabs/onelist/internal/store"
	"github.com/trinsiklabs/onelist/pkg/protocol"
)

// defaultOwner is the single-tenant owner id. Multi-tenancy would move
// owner resolution into the auth layer; the storage contracts already key
// everything by owner.
const defaultOwner = "default"

// Server hosts the Store API.
type Server struct {
	cfg    *config.Config
	stores *store.Stores
	ingest *ingest.Service
	guard  *memory.Guard
	chain  *memory.Chain
	events *bus.Bus
	imp    *importer.Importer
	tracer trace.Tracer

	upgrader websocket.Upgrader
	clients  map[string]*observer
	mu       sync.RWMutex

	httpServer *http.Server
	mux        *http.ServeMux
}

// New assembles the Store server over the given backends.
func New(cfg *config.Config, stores *store.Stores, svc *ingest.Service, guard *memory.Guard, chain *memory.Chain, events *bus.Bus, imp *importer.Importer) *Server {
	s := &Server{
		cfg:     cfg,
		stores:  stores,
		ingest:  svc,
		guard:   guard,
		chain:   chain,
		events:  events,
		imp:     imp,
		tracer:  otel.Tracer("onelist/server"),
		clients: make(map[string]*observer),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// Observers are trusted dashboards behind the bearer token.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return s
}

// BuildMux creates and caches the mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()
	p := protocol.APIPrefix

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET "+p+"/events", s.withAuth(s.handleEvents))

	mux.HandleFunc("POST "+p+"/entries", s.route("entries.create", s.handleCreateEntry))
	mux.HandleFunc("GET "+p+"/entries/{id}", s.route("entries.get", s.handleGetEntry))
	mux.HandleFunc("PUT "+p+"/entries/{id}", s.route("entries.update", s.handleUpdateEntry))
	mux.HandleFunc("DELETE "+p+"/entries/{id}", s.route("entries.delete", s.handleDeleteEntry))
	mux.HandleFunc("POST "+p+"/entries/{id}/assets", s.route("entries.assets.add", s.handleAddAsset))
	mux.HandleFunc("GET "+p+"/entries/{id}/assets", s.route("entries.assets.list", s.handleListAssets))
	mux.HandleFunc("GET "+p+"/entries/{id}/relationships", s.route("relationships.list", s.handleListRelationships))
	mux.HandleFunc("GET "+p+"/entries/{id}/relationships/blocking-chain", s.route("relationships.blocking", s.handleBlockingChain))

	mux.HandleFunc("POST "+p+"/chat-stream/append", s.route("chat.append", s.handleAppend))
	mux.HandleFunc("POST "+p+"/chat-stream/reaction", s.route("chat.reaction", s.handleReaction))

	mux.HandleFunc("POST "+p+"/search", s.route("search", s.handleSearch))
	mux.HandleFunc("GET "+p+"/search", s.route("search", s.handleSearchGet))

	mux.HandleFunc("POST "+p+"/memories/check-derivation", s.route("memories.check", s.handleCheckDerivation))
	mux.HandleFunc("GET "+p+"/memories/chain/verify", s.route("memories.verify", s.handleVerifyChain))

	mux.HandleFunc("POST "+p+"/relationships", s.route("relationships.create", s.handleCreateRelationship))
	mux.HandleFunc("POST "+p+"/tasks/{id}/claim", s.route("tasks.claim", s.handleClaimTask))
	mux.HandleFunc("GET "+p+"/persons/{id}/assigned-tasks", s.route("tasks.assigned", s.handleAssignedTasks))

	mux.HandleFunc("GET "+p+"/openclaw/import/preview", s.route("import.preview", s.handleImportPreview))
	mux.HandleFunc("POST "+p+"/openclaw/import", s.route("import.run", s.handleImportRun))
	mux.HandleFunc("POST "+p+"/openclaw/import/file", s.route("import.file", s.handleImportFile))

	s.mux = mux
	return mux
}

// Start listens until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	slog.Info("store server starting", "addr", addr, "protocol", protocol.ProtocolVersion)

	go func() {
		<-ctx.Done()
		s.broadcastShutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("store server: %w", err)
	}
	return nil
}

// route wraps a handler with auth and a server span.
func (s *Server) route(name string, next http.HandlerFunc) http.HandlerFunc {
	return s.withAuth(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.Start(r.Context(), name,
			trace.WithAttributes(
				attribute.String("agent.kind", r.Header.Get(protocol.HeaderAgentID)),
				attribute.String("http.method", r.Method),
			))
		defer span.End()
		next(w, r.WithContext(ctx))
	})
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.Token != "" && extractBearerToken(r) != s.cfg.Server.Token {
			writeErr(w, http.StatusUnauthorized, protocol.CodeUnauthorized, "invalid token")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","protocol":%d}`+"\n", protocol.ProtocolVersion)
}

// observer is one connected WebSocket event consumer.
type observer struct {
	id   string
	conn *websocket.Conn
	send chan *protocol.EventFrame
}

// handleEvents upgrades the connection and streams bus events until the
// client goes away. Slow observers drop frames rather than stall the bus.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	ob := &observer{
		id:   uuid.Must(uuid.NewV7()).String(),
		conn: conn,
		send: make(chan *protocol.EventFrame, 64),
	}

	s.mu.Lock()
	s.clients[ob.id] = ob
	s.mu.Unlock()
	s.events.Subscribe(ob.id, func(ev *protocol.EventFrame) {
		select {
		case ob.send <- ev:
		default:
		}
	})
	slog.Info("observer connected", "id", ob.id)

	defer func() {
		s.events.Unsubscribe(ob.id)
		s.mu.Lock()
		delete(s.clients, ob.id)
		s.mu.Unlock()
		conn.Close()
		slog.Info("observer disconnected", "id", ob.id)
	}()

	go func() {
		for ev := range ob.send {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}()

	// Reads are discarded; the socket is a one-way feed. A read error
	// means the client hung up.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			close(ob.send)
			return
		}
	}
}

func (s *Server) broadcastShutdown() {
	s.events.Broadcast(protocol.NewEvent(protocol.EventShutdown, nil))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ob := range s.clients {
		ob.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
			time.Now().Add(time.Second))
	}
}

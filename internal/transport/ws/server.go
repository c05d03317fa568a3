package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tinyhabits.city/internal/protocol"
	"tinyhabits.city/internal/sim/multiworld"
	"tinyhabits.city/internal/sim/world"
)

// Engine is the part of multiworld.Manager the transport drives.
type Engine interface {
	Complete(ctx context.Context) (multiworld.CompleteResult, error)
	Decorate(ctx context.Context) (*world.Descriptor, error)
	Stats(id string) (world.Stats, error)
	Cells(id string) ([]world.CellView, error)
	Activate(ctx context.Context, id string) (world.Stats, error)
	Save(ctx context.Context) (world.Stats, error)
	Active() string
	Manifest() []protocol.WorldRef
}

// Server speaks the JSON protocol to habit tracker clients and pushes every
// committed cell change to all connected sessions.
type Server struct {
	engine  Engine
	log     *log.Logger
	digests protocol.CatalogDigests

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]chan []byte

	requestsTotal atomic.Uint64
	droppedEvents atomic.Uint64
}

func NewServer(engine Engine, digests protocol.CatalogDigests, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		engine:   engine,
		log:      logger,
		digests:  digests,
		sessions: map[string]chan []byte{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sid, out := s.handshake(conn)
		if sid == "" {
			return
		}
		defer s.removeSession(sid)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			reply := s.dispatch(ctx, msg)
			b, err := json.Marshal(reply)
			if err != nil {
				s.log.Printf("warn: ws %s: encode reply: %v", sid, err)
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (string, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}

	sid := uuid.NewString()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sid,
		ActiveWorld:     s.engine.Active(),
		Worlds:          s.engine.Manifest(),
		Catalogs:        s.digests,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", nil
	}

	out := make(chan []byte, 256)
	s.mu.Lock()
	s.sessions[sid] = out
	s.mu.Unlock()
	s.log.Printf("ws session %s connected (client=%q)", sid, hello.ClientName)
	return sid, out
}

func (s *Server) removeSession(sid string) {
	s.mu.Lock()
	delete(s.sessions, sid)
	s.mu.Unlock()
	s.log.Printf("ws session %s closed", sid)
}

// Render broadcasts ev to every session. Slow sessions lose events rather
// than stalling growth.
func (s *Server) Render(ev world.Event) error {
	b, err := json.Marshal(protocol.EventMsg{Type: protocol.TypeEvent, Event: ev})
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, out := range s.sessions {
		select {
		case out <- b:
		default:
			s.droppedEvents.Add(1)
		}
	}
	return nil
}

func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) RequestsTotal() uint64 { return s.requestsTotal.Load() }
func (s *Server) DroppedEvents() uint64 { return s.droppedEvents.Load() }

func (s *Server) dispatch(ctx context.Context, msg []byte) any {
	s.requestsTotal.Add(1)
	var req protocol.RequestMsg
	if err := json.Unmarshal(msg, &req); err != nil || req.Type == "" {
		return errorMsg("", protocol.ErrProtoBadRequest, "malformed message")
	}
	if req.ProtocolVersion != "" && req.ProtocolVersion != protocol.Version {
		return errorMsg(req.RequestID, protocol.ErrProtoUnsupported, fmt.Sprintf("protocol_version %q not supported", req.ProtocolVersion))
	}

	switch req.Type {
	case protocol.TypeGrow:
		res, err := s.engine.Complete(ctx)
		if err != nil {
			return errorFor(req.RequestID, err)
		}
		return protocol.GrownMsg{
			Type:       protocol.TypeGrown,
			RequestID:  req.RequestID,
			WorldID:    res.WorldID,
			Grown:      res.Grown,
			Decoration: res.Decoration,
			Stats:      res.Stats,
		}

	case protocol.TypeDecorate:
		d, err := s.engine.Decorate(ctx)
		if err != nil {
			return errorFor(req.RequestID, err)
		}
		st, err := s.engine.Stats("")
		if err != nil {
			return errorFor(req.RequestID, err)
		}
		return protocol.GrownMsg{Type: protocol.TypeGrown, RequestID: req.RequestID, WorldID: st.WorldID, Decoration: d, Stats: st}

	case protocol.TypeStats:
		st, err := s.engine.Stats(req.WorldID)
		if err != nil {
			return errorFor(req.RequestID, err)
		}
		return protocol.StatsMsg{Type: protocol.TypeStats, RequestID: req.RequestID, WorldID: st.WorldID, Stats: st}

	case protocol.TypeCells:
		cells, err := s.engine.Cells(req.WorldID)
		if err != nil {
			return errorFor(req.RequestID, err)
		}
		id := req.WorldID
		if id == "" {
			id = s.engine.Active()
		}
		return protocol.CellsMsg{Type: protocol.TypeCells, RequestID: req.RequestID, WorldID: id, Cells: cells}

	case protocol.TypeActivate:
		if req.WorldID == "" {
			return errorMsg(req.RequestID, protocol.ErrBadRequest, "missing world_id")
		}
		st, err := s.engine.Activate(ctx, req.WorldID)
		if err != nil {
			return errorFor(req.RequestID, err)
		}
		return protocol.StatsMsg{Type: protocol.TypeActivated, RequestID: req.RequestID, WorldID: st.WorldID, Stats: st}

	case protocol.TypeSave:
		st, err := s.engine.Save(ctx)
		if err != nil {
			return errorMsg(req.RequestID, protocol.ErrStore, err.Error())
		}
		return protocol.StatsMsg{Type: protocol.TypeSaved, RequestID: req.RequestID, WorldID: st.WorldID, Stats: st}

	default:
		return errorMsg(req.RequestID, protocol.ErrBadRequest, fmt.Sprintf("unknown message type %q", req.Type))
	}
}

func errorFor(requestID string, err error) protocol.ErrorMsg {
	if errors.Is(err, multiworld.ErrWorldNotFound) {
		return errorMsg(requestID, protocol.ErrWorldNotFound, err.Error())
	}
	return errorMsg(requestID, protocol.ErrInternal, err.Error())
}

func errorMsg(requestID, code, message string) protocol.ErrorMsg {
	return protocol.ErrorMsg{Type: protocol.TypeError, RequestID: requestID, Code: code, Message: message}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	inkling "github.com/greyfriar/inkling"
	"github.com/greyfriar/inkling/assemble"
	"github.com/greyfriar/inkling/cache"
	"github.com/greyfriar/inkling/index"
	"github.com/greyfriar/inkling/session"
)

// Engine processes one assist request. *assemble.Assembler is the real
// implementation; tests substitute their own.
type Engine interface {
	Assist(ctx context.Context, req *inkling.Request) (*assemble.Result, error)
}

// ModelLister enumerates the models the inference server has available.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Server listens on a Unix domain socket for editor requests, one JSON
// message per line. Requests run concurrently; an in-flight request is
// abandoned only by an explicit cancel message, never by a newer request
// arriving for the same session.
type Server struct {
	listener net.Listener
	sockPath string
	engine   Engine
	models   ModelLister
	store    *session.Store
	cache    *cache.Disk
	idx      *index.Index

	mu       sync.Mutex
	inflight map[string]map[int]*inflightEntry
}

// inflightEntry identifies one tracked request. Entries are compared by
// pointer so that, if a client reuses a (session, request_id) pair, the
// first request finishing cannot untrack the second.
type inflightEntry struct {
	cancel context.CancelFunc
}

// NewServer creates an IPC server bound to the given socket path.
func NewServer(sockPath string, engine Engine, models ModelLister, store *session.Store, disk *cache.Disk, idx *index.Index) (*Server, error) {
	// Remove stale socket file if it exists
	if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	return &Server{
		listener: listener,
		sockPath: sockPath,
		engine:   engine,
		models:   models,
		store:    store,
		cache:    disk,
		idx:      idx,
		inflight: make(map[string]map[int]*inflightEntry),
	}, nil
}

// Serve accepts connections and handles requests.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close shuts down the listener and removes the socket file.
func (s *Server) Close() {
	s.listener.Close()
	os.Remove(s.sockPath)
	if s.cache != nil {
		s.cache.Close()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	if !scanner.Scan() {
		return
	}

	raw := append([]byte(nil), scanner.Bytes()...)
	slog.Debug("request", "data", string(raw))

	// Assist requests carry no "type" field; every other kind does.
	var kind struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &kind); err != nil {
		slog.Warn("invalid message", "error", err)
		writeJSON(conn, &inkling.Response{Error: &inkling.Error{
			Code:    inkling.CodeInvalidRequest,
			Message: "malformed JSON",
		}})
		return
	}

	switch kind.Type {
	case "":
		s.handleAssist(conn, raw)
	case "cancel":
		s.handleCancel(raw)
	case "command":
		s.handleCommand(conn, raw)
	case "config":
		s.handleConfig(conn, raw)
	default:
		writeJSON(conn, &inkling.Response{Error: &inkling.Error{
			Code:    inkling.CodeInvalidRequest,
			Message: "unknown message type: " + kind.Type,
		}})
	}
}

func (s *Server) handleAssist(conn net.Conn, raw []byte) {
	var req inkling.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		slog.Warn("invalid request", "error", err)
		writeJSON(conn, &inkling.Response{Error: &inkling.Error{
			Code:    inkling.CodeInvalidRequest,
			Message: err.Error(),
		}})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := s.track(req.SessionID, req.RequestID, cancel)
	defer func() {
		cancel()
		s.untrack(req.SessionID, req.RequestID, entry)
	}()

	resp := inkling.Response{RequestID: req.RequestID}

	res, err := s.engine.Assist(ctx, &req)
	if err != nil {
		resp.Error = classifyError(err)
	} else {
		resp.Text = res.Text
		resp.FromCache = res.FromCache
	}

	writeJSON(conn, &resp)
}

// classifyError maps an engine error to a wire error. Unrecognized errors
// surface as server errors rather than being swallowed.
func classifyError(err error) *inkling.Error {
	var verr *assemble.ValidationError
	if errors.As(err, &verr) {
		return &inkling.Error{Code: verr.Code, Message: verr.Message}
	}
	var inferErr *assemble.InferError
	if errors.As(err, &inferErr) {
		return &inkling.Error{Code: inferErr.Kind.Code(), Message: inferErr.Error()}
	}
	if errors.Is(err, assemble.ErrCancelled) {
		return &inkling.Error{Code: inkling.CodeCancelled, Message: "request cancelled"}
	}
	return &inkling.Error{Code: inkling.CodeServer, Message: err.Error()}
}

// handleCancel abandons the named in-flight request. Unknown requests
// (already finished, or never seen) are ignored. No reply is sent; the
// editor has already moved on.
func (s *Server) handleCancel(raw []byte) {
	var req inkling.CancelRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		slog.Warn("invalid cancel", "error", err)
		return
	}

	s.mu.Lock()
	entry, ok := s.inflight[req.SessionID][req.RequestID]
	s.mu.Unlock()

	if ok {
		slog.Debug("cancelling request", "session", req.SessionID, "request", req.RequestID)
		entry.cancel()
	}
}

func (s *Server) handleCommand(conn net.Conn, raw []byte) {
	var req inkling.CommandRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		slog.Warn("invalid command", "error", err)
		writeJSON(conn, &inkling.CommandResponse{Error: &inkling.Error{
			Code:    inkling.CodeInvalidRequest,
			Message: err.Error(),
		}})
		return
	}

	resp := inkling.CommandResponse{OK: true}

	switch req.Action {
	case "clear_history":
		s.store.Clear()
		slog.Info("session history cleared")

	case "clear_all":
		s.store.Clear()
		s.idx.Reset()
		if err := s.cache.ClearAll(); err != nil {
			resp.OK = false
			resp.Error = &inkling.Error{Code: inkling.CodeServer, Message: err.Error()}
		} else {
			slog.Info("session history and cache cleared")
		}

	case "show_context":
		resp.Context = s.contextDump()

	case "list_models":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		models, err := s.models.ListModels(ctx)
		if err != nil {
			resp.OK = false
			resp.Error = classifyError(err)
		} else {
			resp.Models = models
		}

	default:
		resp.OK = false
		resp.Error = &inkling.Error{
			Code:    inkling.CodeInvalidRequest,
			Message: "unknown command action: " + req.Action,
		}
	}

	writeJSON(conn, &resp)
}

// contextDump snapshots the session and cache for display in the editor.
func (s *Server) contextDump() *inkling.ContextDump {
	const maxDisplay = 80

	turns := s.store.History(s.store.Len())
	summaries := make([]inkling.TurnSummary, len(turns))
	for i, t := range turns {
		summaries[i] = inkling.TurnSummary{
			Mode:      t.Mode,
			Prompt:    truncate(t.Prompt, maxDisplay),
			Response:  truncate(t.Response, maxDisplay),
			Timestamp: t.Timestamp,
		}
	}

	return &inkling.ContextDump{
		Turns:        summaries,
		CacheKeys:    s.cache.RecentKeys(10),
		CacheEntries: s.cache.Len(),
	}
}

func (s *Server) handleConfig(conn net.Conn, raw []byte) {
	var req inkling.ConfigRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		slog.Warn("invalid config request", "error", err)
		return
	}

	var resp inkling.ConfigResponse

	switch req.Action {
	case "get", "reload":
		cfg, err := inkling.LoadConfig()
		if err != nil {
			resp.Error = &inkling.Error{Code: "config_error", Message: err.Error()}
		} else {
			resp.Config = cfg
		}

	case "defaults":
		resp.Config = inkling.DefaultConfig()

	default:
		resp.Error = &inkling.Error{
			Code:    inkling.CodeInvalidRequest,
			Message: "unknown config action: " + req.Action,
		}
	}

	writeJSON(conn, &resp)
}

func (s *Server) track(sessionID string, requestID int, cancel context.CancelFunc) *inflightEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[sessionID] == nil {
		s.inflight[sessionID] = make(map[int]*inflightEntry)
	}
	if _, ok := s.inflight[sessionID][requestID]; ok {
		// request IDs should be unique per session; a cancel for this id
		// now reaches only the newer request
		slog.Warn("duplicate in-flight request id", "session", sessionID, "request", requestID)
	}
	entry := &inflightEntry{cancel: cancel}
	s.inflight[sessionID][requestID] = entry
	return entry
}

// untrack removes the entry only if it is still the one track returned,
// so a stale finisher never untracks a newer request with the same id.
func (s *Server) untrack(sessionID string, requestID int, entry *inflightEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.inflight[sessionID][requestID]; !ok || cur != entry {
		return
	}
	delete(s.inflight[sessionID], requestID)
	if len(s.inflight[sessionID]) == 0 {
		delete(s.inflight, sessionID)
	}
}

func writeJSON(conn net.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}
	slog.Debug("response", "data", string(data))
	conn.Write(append(data, '\n'))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

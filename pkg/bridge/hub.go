// Package bridge is the push-synchronization channel: one WebSocket per
// browser tab, a session handshake on connect, and a fixed-interval full
// snapshot broadcast. The client always reconciles by replacing its local
// list, so partial-update bugs are structurally impossible.
package bridge

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"annotated/pkg/logger"
	"annotated/pkg/manifest"
	"annotated/pkg/models"
	"annotated/pkg/store"
	"annotated/pkg/telemetry"
)

const (
	defaultSyncInterval = 2 * time.Second
	writeTimeout        = 5 * time.Second
	defaultRPS          = 20
	defaultBurst        = 40
)

// Options configures a Hub.
type Options struct {
	// ProjectRoot is scanned for the component manifest pushed on connect.
	ProjectRoot string
	// SyncInterval is the snapshot broadcast cadence; 0 means 2s.
	SyncInterval time.Duration
	// RPS/Burst bound inbound messages per connection; 0 means defaults.
	RPS   float64
	Burst int
}

// Hub owns every live push-channel connection, keyed by session id.
type Hub struct {
	store *store.Store
	opts  Options

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*client

	stop        chan struct{}
	unsubscribe func()
}

type client struct {
	sessionID string
	ws        *websocket.Conn
	limiter   *rate.Limiter

	writeMu sync.Mutex
	closed  bool
}

// NewHub builds a hub over the given store. Call Start to begin the
// snapshot broadcast and Stop to shut it down.
func NewHub(st *store.Store, opts Options) *Hub {
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = defaultSyncInterval
	}
	if opts.RPS <= 0 {
		opts.RPS = defaultRPS
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	return &Hub{
		store: st,
		opts:  opts,
		upgrader: websocket.Upgrader{
			// The channel serves the page the dev server itself renders;
			// origin enforcement is left to the embedding server.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: map[string]*client{},
		stop:  make(chan struct{}),
	}
}

// Start launches the periodic snapshot broadcast and subscribes to store
// mutations for point updates.
func (h *Hub) Start() {
	h.unsubscribe = h.store.Subscribe(h.pushUpdate)
	go h.broadcastLoop()
}

// Stop halts the broadcast and closes every open connection.
func (h *Hub) Stop() {
	close(h.stop)
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	conns := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}

// ConnectionCount returns the number of currently registered sockets.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// HasConnection reports whether the given session currently holds a socket.
func (h *Hub) HasConnection(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.conns[sessionID]
	return ok
}

// ServeHTTP upgrades the request, creates the connection's session and runs
// the inbound read loop until the socket closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws_upgrade_failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	referer := r.Header.Get("Referer")
	if referer == "" {
		referer = r.Header.Get("Origin")
	}
	sess, err := h.store.CreateSession(referer, true)
	if err != nil {
		logger.Error("session_create_failed", "error", err)
		ws.Close()
		return
	}

	c := &client{
		sessionID: sess.ID,
		ws:        ws,
		limiter:   rate.NewLimiter(rate.Limit(h.opts.RPS), h.opts.Burst),
	}
	c.send(sessionCreatedMsg{Type: TypeSessionCreated, Session: sess})
	c.send(manifestUpdateMsg{Type: TypeManifestUpdate, Manifest: manifest.Build(h.opts.ProjectRoot)})

	h.mu.Lock()
	h.conns[sess.ID] = c
	h.mu.Unlock()
	telemetry.ActiveConnections.Inc()
	logger.Info("ws_connected", "session", sess.ID, "url", referer)

	h.readLoop(c)

	h.mu.Lock()
	delete(h.conns, sess.ID)
	h.mu.Unlock()
	telemetry.ActiveConnections.Dec()
	c.close()

	inactive := false
	if _, err := h.store.UpdateSession(sess.ID, store.SessionPatch{Active: &inactive}); err != nil {
		logger.Warn("session_deactivate_failed", "session", sess.ID, "error", err)
	}
	logger.Info("ws_disconnected", "session", sess.ID)
}

// readLoop consumes inbound messages until the socket errors or closes.
// Malformed payloads are dropped; the connection is never torn down for
// bad input.
func (h *Hub) readLoop(c *client) {
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			telemetry.DroppedMessages.Inc()
			continue
		}
		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			telemetry.DroppedMessages.Inc()
			continue
		}
		if err := h.store.Touch(c.sessionID); err != nil {
			logger.Debug("session_touch_failed", "session", c.sessionID, "error", err)
		}
		h.dispatch(c, msg)
	}
}

func (h *Hub) dispatch(c *client, msg inbound) {
	switch msg.Type {
	case TypeAnnotationCreate:
		h.handleCreate(c, msg)
	case TypeAnnotationReply:
		h.handleReply(c, msg)
	case TypeAnnotationApprove:
		h.handleDiffDecision(c, msg.ID, models.DiffApproved)
	case TypeAnnotationReject:
		h.handleDiffDecision(c, msg.ID, models.DiffRejected)
	default:
		// Recognized-as-JSON but unknown type: deliberately a no-op.
		telemetry.DroppedMessages.Inc()
	}
}

func (h *Hub) handleCreate(c *client, msg inbound) {
	if msg.Payload == nil {
		telemetry.DroppedMessages.Inc()
		return
	}
	var payload models.Annotation
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		telemetry.DroppedMessages.Inc()
		return
	}
	payload.SessionID = c.sessionID
	ann, err := h.store.CreateAnnotation(payload)
	if err != nil {
		logger.Error("annotation_create_failed", "session", c.sessionID, "error", err)
		return
	}
	logger.Info("annotation_created", "id", ann.ID, "session", c.sessionID, "component", ann.ComponentName)
	c.send(annotationMsg{Type: TypeAnnotationCreated, Annotation: ann})
}

func (h *Hub) handleReply(c *client, msg inbound) {
	if msg.ID == "" || msg.Message == "" {
		telemetry.DroppedMessages.Inc()
		return
	}
	ann, err := h.store.AddReply(msg.ID, models.AuthorUser, msg.Message)
	if err != nil {
		// Unknown ids are silently ignored on this channel.
		if !errors.Is(err, store.ErrNotFound) {
			logger.Error("annotation_reply_failed", "id", msg.ID, "error", err)
		}
		return
	}
	c.send(annotationMsg{Type: TypeAnnotationUpdated, Annotation: ann})
}

func (h *Hub) handleDiffDecision(c *client, id string, decision models.DiffResponse) {
	if id == "" {
		telemetry.DroppedMessages.Inc()
		return
	}
	ann, err := h.store.UpdateAnnotation(id, store.AnnotationPatch{DiffResponse: &decision})
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Error("diff_decision_failed", "id", id, "error", err)
		}
		return
	}
	logger.AuditEvent("diff_decision", "annotation", id, "session", c.sessionID, "decision", string(decision))
	c.send(annotationMsg{Type: TypeAnnotationUpdated, Annotation: ann})
}

// pushUpdate delivers a point annotation:updated event to the owning
// session's socket when the agent mutates an annotation out-of-band. The
// periodic snapshot would deliver it within the sync interval anyway; the
// point event just shortens the latency.
func (h *Hub) pushUpdate(ann models.Annotation) {
	h.mu.Lock()
	c, ok := h.conns[ann.SessionID]
	h.mu.Unlock()
	if !ok {
		return
	}
	c.send(annotationMsg{Type: TypeAnnotationUpdated, Annotation: ann})
}

// broadcastLoop pushes the full annotation snapshot for each connected
// session on a fixed cadence.
func (h *Hub) broadcastLoop() {
	ticker := time.NewTicker(h.opts.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.broadcastOnce()
		case <-h.stop:
			return
		}
	}
}

func (h *Hub) broadcastOnce() {
	h.mu.Lock()
	conns := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		anns, err := h.store.ListAnnotations(c.sessionID, "")
		if err != nil {
			logger.Error("sync_list_failed", "session", c.sessionID, "error", err)
			continue
		}
		c.send(annotationsSyncMsg{Type: TypeAnnotationsSync, Annotations: anns})
		telemetry.SyncBroadcasts.Inc()
	}
}

// send writes one JSON message, swallowing transport errors: a socket that
// died mid-write is skipped and will be reaped by its read loop. A closed
// client is never written to.
func (c *client) send(v any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(v); err != nil {
		logger.Debug("ws_send_failed", "session", c.sessionID, "error", err)
	}
}

func (c *client) close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.ws.Close()
}

package wsserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"go-tmux/internal/ipc"
	"go-tmux/internal/tmux"
)

// writeDeadline is the maximum time allowed for a single WebSocket write.
const writeDeadline = 5 * time.Second

// readDeadline allows for ~3 missed pings before a viewer is considered dead.
const readDeadline = 90 * time.Second

// pingInterval is the interval between server-initiated WebSocket pings.
const pingInterval = 30 * time.Second

// maxReadMessageSize limits incoming frames. Commands are short JSON objects.
const maxReadMessageSize = 32 * 1024

const (
	// defaultRedrawInterval is the token refill period of a viewer's redraw
	// limiter: at most ten status frames per second once the burst is spent.
	// Job output and option changes can request redraws far faster than that.
	defaultRedrawInterval = 100 * time.Millisecond

	// defaultRedrawBurst lets a few back-to-back redraws (attach, resize, a
	// command result) go out immediately before throttling starts.
	defaultRedrawBurst = 4
)

var wsUpgrader = websocket.Upgrader{
	// The hub binds to loopback by default; viewers are local pages and tools.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4 * 1024,
}

// Backend is the client and status side of the server the hub serves.
type Backend interface {
	AttachClient(opts tmux.ClientOptions) (*tmux.TmuxClient, error)
	DetachClient(name string) (string, error)
	ResizeClient(name string, width, height int) error
	RenderStatus(name string) (tmux.StatusLine, error)
}

// HubOptions configures the WebSocket server.
type HubOptions struct {
	// Addr is the listen address. Use "127.0.0.1:0" for OS-assigned port.
	Addr string
	// Backend attaches viewers and renders their status lines.
	Backend Backend
	// Commands runs command actions. Nil rejects them.
	Commands ipc.CommandExecutor
	// RedrawInterval is the sustained minimum spacing of status frames per
	// viewer; RedrawBurst frames may be sent back to back.
	RedrawInterval time.Duration
	RedrawBurst    int
}

// Hub serves any number of viewers. Each viewer attaches as one client and
// receives that client's status line on every redraw request.
//
// Hub.mu protects the viewer sets; viewer.mu protects a viewer's client
// identity; viewer.writeMu serializes writes on its connection. The three
// are never nested, and none is held while calling the Backend.
type Hub struct {
	opts HubOptions

	mu      sync.RWMutex
	viewers map[*viewer]struct{}
	byID    map[string]*viewer // attached client id -> viewer

	listener net.Listener
	server   *http.Server
	url      string

	// closeOnce makes Stop idempotent. A stopped Hub cannot be restarted.
	closeOnce sync.Once
}

// viewer is one WebSocket connection.
type viewer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.Mutex
	clientID string
	name     string

	limiter *rate.Limiter
	redraw  chan struct{} // capacity 1; pending redraws coalesce
	ctx     context.Context
	cancel  context.CancelFunc
}

func (v *viewer) identity() (id, name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.clientID, v.name
}

func (v *viewer) setIdentity(id, name string) {
	v.mu.Lock()
	v.clientID, v.name = id, name
	v.mu.Unlock()
}

// NewHub creates a Hub with the given options.
// The hub is not started until Start is called.
func NewHub(opts HubOptions) *Hub {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	if opts.RedrawInterval <= 0 {
		opts.RedrawInterval = defaultRedrawInterval
	}
	if opts.RedrawBurst <= 0 {
		opts.RedrawBurst = defaultRedrawBurst
	}
	return &Hub{
		opts:    opts,
		viewers: make(map[*viewer]struct{}),
		byID:    make(map[string]*viewer),
	}
}

// Start begins listening on the configured address and serves WebSocket
// connections on /ws. ctx becomes the base context of every connection;
// the server itself must be stopped with Stop.
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return errors.New("wsserver: already started")
	}
	if h.opts.Backend == nil {
		return errors.New("wsserver: backend required")
	}

	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("wsserver: listen: %w", err)
	}
	h.listener = ln
	h.url = fmt.Sprintf("ws://%s/ws", ln.Addr().String())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)

	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if serveErr := h.server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("[DEBUG-WS] server error", "error", serveErr)
		}
	}()

	slog.Info("[DEBUG-WS] server started", "url", h.url)
	return nil
}

// Stop closes every viewer and shuts the HTTP server down. Safe to call
// more than once.
func (h *Hub) Stop() error {
	var stopErr error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		viewers := make([]*viewer, 0, len(h.viewers))
		for v := range h.viewers {
			viewers = append(viewers, v)
		}
		h.mu.Unlock()

		// Read pumps notice the closed conns and detach their clients.
		for _, v := range viewers {
			v.cancel()
			h.closeConn(v.conn, "hub stop")
		}

		if h.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.server.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("wsserver: shutdown: %w", err)
			}
		}
		slog.Info("[DEBUG-WS] server stopped")
	})
	return stopErr
}

// URL returns the WebSocket URL (e.g. "ws://127.0.0.1:54321/ws"), or ""
// before Start.
func (h *Hub) URL() string {
	return h.url
}

// Connections returns the number of open viewer connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// AttachedClients returns the ids of clients attached through the hub.
func (h *Hub) AttachedClients() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.byID))
	for id := range h.byID {
		out = append(out, id)
	}
	return out
}

// RedrawStatus implements tmux.StatusRedrawer. Requests for clients not
// attached through the hub are ignored. It never blocks.
func (h *Hub) RedrawStatus(clientID string) {
	h.mu.RLock()
	v := h.byID[clientID]
	h.mu.RUnlock()
	if v != nil {
		v.requestRedraw()
	}
}

// RedrawAll queues a redraw for every attached viewer.
func (h *Hub) RedrawAll() {
	h.mu.RLock()
	viewers := make([]*viewer, 0, len(h.byID))
	for _, v := range h.byID {
		viewers = append(viewers, v)
	}
	h.mu.RUnlock()
	for _, v := range viewers {
		v.requestRedraw()
	}
}

func (v *viewer) requestRedraw() {
	select {
	case v.redraw <- struct{}{}:
	default:
	}
}

// closeConn closes a connection; closing twice is harmless.
func (h *Hub) closeConn(conn *websocket.Conn, reason string) {
	if closeErr := conn.Close(); closeErr != nil {
		slog.Debug("[DEBUG-WS] connection close", "reason", reason, "error", closeErr)
	}
}

// write sends one text frame. A failed write closes the connection, which
// ends the read pump and detaches the client.
func (h *Hub) write(v *viewer, messageType int, payload []byte) bool {
	v.writeMu.Lock()
	if err := v.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		v.writeMu.Unlock()
		slog.Warn("[DEBUG-WS] SetWriteDeadline failed, closing connection", "error", err)
		h.closeConn(v.conn, "SetWriteDeadline failure")
		return false
	}
	err := v.conn.WriteMessage(messageType, payload)
	if clearErr := v.conn.SetWriteDeadline(time.Time{}); clearErr != nil {
		slog.Debug("[DEBUG-WS] clear write deadline failed (non-fatal)", "error", clearErr)
	}
	v.writeMu.Unlock()

	if err != nil {
		slog.Debug("[DEBUG-WS] write failed, closing connection", "error", err)
		h.closeConn(v.conn, "write error")
		return false
	}
	return true
}

func (h *Hub) sendError(v *viewer, message string) {
	payload, err := EncodeError(message)
	if err != nil {
		slog.Debug("[DEBUG-WS] failed to marshal error frame", "error", err)
		return
	}
	h.write(v, websocket.TextMessage, payload)
}

// handleWS upgrades HTTP to WebSocket and runs the read pump.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[DEBUG-WS] upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxReadMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		slog.Warn("[DEBUG-WS] SetReadDeadline failed on new connection", "error", err)
		h.closeConn(conn, "initial SetReadDeadline failure")
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	ctx, cancel := context.WithCancel(r.Context())
	v := &viewer{
		conn:    conn,
		limiter: rate.NewLimiter(rate.Every(h.opts.RedrawInterval), h.opts.RedrawBurst),
		redraw:  make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	h.mu.Lock()
	h.viewers[v] = struct{}{}
	h.mu.Unlock()
	slog.Info("[DEBUG-WS] viewer connected", "remoteAddr", conn.RemoteAddr())

	var workers sync.WaitGroup
	workers.Go(func() { h.pingLoop(v) })
	workers.Go(func() { h.redrawLoop(v) })

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] wsserver handleWS recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
		cancel()
		h.closeConn(conn, "read pump exit")
		workers.Wait()
		h.detach(v, "connection lost")
		h.mu.Lock()
		delete(h.viewers, v)
		h.mu.Unlock()
		slog.Info("[DEBUG-WS] viewer disconnected")
	}()

	for {
		msgType, raw, readErr := conn.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("[DEBUG-WS] read error", "error", readErr)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		msg, decodeErr := DecodeClientMessage(raw)
		if decodeErr != nil {
			slog.Debug("[DEBUG-WS] bad frame from viewer", "error", decodeErr)
			h.sendError(v, decodeErr.Error())
			continue
		}
		h.dispatch(v, msg)
	}
}

func (h *Hub) dispatch(v *viewer, msg ClientMessage) {
	switch msg.Action {
	case ActionAttach:
		h.attach(v, msg)
	case ActionDetach:
		if id, _ := v.identity(); id == "" {
			h.sendError(v, "detach: not attached")
			return
		}
		h.detach(v, "detach requested")
	case ActionResize:
		_, name := v.identity()
		if name == "" {
			h.sendError(v, "resize: not attached")
			return
		}
		if err := h.opts.Backend.ResizeClient(name, msg.Width, msg.Height); err != nil {
			h.sendError(v, err.Error())
			return
		}
		v.requestRedraw()
	case ActionCommand:
		h.command(v, msg.Argv)
	}
}

func (h *Hub) attach(v *viewer, msg ClientMessage) {
	if id, name := v.identity(); id != "" {
		h.sendError(v, "attach: already attached as "+name)
		return
	}
	c, err := h.opts.Backend.AttachClient(tmux.ClientOptions{
		Name:     msg.Client,
		Target:   msg.Target,
		Width:    msg.Width,
		Height:   msg.Height,
		TermName: msg.Term,
		TTY:      "ws:" + v.conn.RemoteAddr().String(),
	})
	if err != nil {
		h.sendError(v, "attach: "+err.Error())
		return
	}
	v.setIdentity(c.ID, c.Name)
	h.mu.Lock()
	h.byID[c.ID] = v
	h.mu.Unlock()
	slog.Debug("[DEBUG-WS] viewer attached", "client", c.Name, "id", c.ID)
	v.requestRedraw()
}

// detach releases the viewer's client, if any. The client may already be
// gone (kill-server, a second detach), which is not an error here.
func (h *Hub) detach(v *viewer, reason string) {
	id, name := v.identity()
	if id == "" {
		return
	}
	v.setIdentity("", "")
	h.mu.Lock()
	if h.byID[id] == v {
		delete(h.byID, id)
	}
	h.mu.Unlock()
	if _, err := h.opts.Backend.DetachClient(name); err != nil {
		slog.Debug("[DEBUG-WS] detach", "client", name, "reason", reason, "error", err)
		return
	}
	slog.Debug("[DEBUG-WS] viewer detached", "client", name, "reason", reason)
}

func (h *Hub) command(v *viewer, argv []string) {
	if h.opts.Commands == nil {
		h.sendError(v, "command: commands are disabled")
		return
	}
	var resp ipc.TmuxResponse
	req, err := ipc.ParseCommand(argv)
	if err != nil {
		resp = ipc.TmuxResponse{ExitCode: 1, Stderr: err.Error() + "\n"}
	} else {
		_, req.Client = v.identity()
		resp = h.opts.Commands.Execute(req)
	}
	payload, err := EncodeResult(resp)
	if err != nil {
		slog.Debug("[DEBUG-WS] failed to marshal result frame", "error", err)
		return
	}
	h.write(v, websocket.TextMessage, payload)
}

// redrawLoop turns redraw requests into status frames, at most as fast as
// the viewer's limiter allows. Requests arriving while waiting coalesce.
func (h *Hub) redrawLoop(v *viewer) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] wsserver redrawLoop recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			h.closeConn(v.conn, "redrawLoop panic recovery")
		}
	}()
	for {
		select {
		case <-v.ctx.Done():
			return
		case <-v.redraw:
		}
		if err := v.limiter.Wait(v.ctx); err != nil {
			return
		}
		_, name := v.identity()
		if name == "" {
			continue
		}
		line, err := h.opts.Backend.RenderStatus(name)
		if err != nil {
			slog.Debug("[DEBUG-WS] render status failed", "client", name, "error", err)
			continue
		}
		payload, err := EncodeStatus(line)
		if err != nil {
			slog.Debug("[DEBUG-WS] failed to marshal status frame", "error", err)
			continue
		}
		if !h.write(v, websocket.TextMessage, payload) {
			return
		}
	}
}

// pingLoop sends periodic pings so dead viewers are noticed by readDeadline.
func (h *Hub) pingLoop(v *viewer) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] wsserver pingLoop recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			h.closeConn(v.conn, "pingLoop panic recovery")
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-v.ctx.Done():
			return
		case <-ticker.C:
			if !h.write(v, websocket.PingMessage, nil) {
				return
			}
		}
	}
}

package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// defaultConnTimeout is the read/write deadline for one request and its
	// response. Commands run synchronously on the router, so a client that
	// stalls longer than this is dropped.
	defaultConnTimeout = 30 * time.Second

	// maxRequestBytes caps one JSON request. Command argv is small; larger
	// payloads are rejected before decoding.
	maxRequestBytes = 64 * 1024

	// defaultMaxConcurrentConnections bounds handler goroutines. A script
	// looping over `go-tmux run` stays far below it.
	defaultMaxConcurrentConnections = 64

	// connSlotAcquireTimeout is how long a new connection waits for a free
	// slot before it is closed.
	connSlotAcquireTimeout = 5 * time.Second
)

// SocketServer receives one request per connection on a unix socket.
type SocketServer struct {
	path   string
	router CommandExecutor

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	listener  net.Listener
	started   bool
	wg        sync.WaitGroup
	connSlots chan struct{}
}

// NewSocketServer constructs a SocketServer. An empty path uses
// DefaultSocketPath.
func NewSocketServer(path string, router CommandExecutor) *SocketServer {
	ctx, cancel := context.WithCancel(context.Background())
	if path == "" {
		path = DefaultSocketPath()
	}
	return &SocketServer{
		path:      path,
		router:    router,
		ctx:       ctx,
		cancel:    cancel,
		connSlots: make(chan struct{}, defaultMaxConcurrentConnections),
	}
}

// Path returns the socket path.
func (s *SocketServer) Path() string {
	return s.path
}

// Start creates the socket (directory 0700, socket 0600) and begins
// accepting. A stale socket left by a dead server is replaced.
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("socket server already started")
	}
	if s.router == nil {
		return errors.New("socket server requires router")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if err := removeStaleSocket(s.path); err != nil {
		return err
	}

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		slog.Warn("[DEBUG-IPC] failed to restrict socket permissions", "path", s.path, "error", err)
	}

	s.listener = listener
	s.started = true
	s.wg.Go(s.acceptLoop)
	slog.Debug("[DEBUG-IPC] listening", "path", s.path)
	return nil
}

// removeStaleSocket deletes path when nothing answers on it.
func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err == nil {
		conn.Close()
		return fmt.Errorf("server already running on %s", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

// Stop closes the listener, waits for in-flight requests and removes the
// socket.
func (s *SocketServer) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cancel()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	if listener != nil {
		if err := listener.Close(); err != nil {
			slog.Warn("[DEBUG-IPC] failed to close listener during shutdown", "error", err)
		}
	}
	s.wg.Wait()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove socket: %w", err)
	}
	return nil
}

func (s *SocketServer) acceptLoop() {
	consecutiveErrors := 0
	for {
		s.mu.Lock()
		listener := s.listener
		s.mu.Unlock()
		if listener == nil {
			return
		}

		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			consecutiveErrors++
			if consecutiveErrors > 10 {
				slog.Warn("[DEBUG-IPC] repeated accept failures", "error", err, "count", consecutiveErrors)
				time.Sleep(500 * time.Millisecond)
			} else {
				slog.Debug("[DEBUG-IPC] accept error", "error", err)
			}
			continue
		}
		consecutiveErrors = 0

		if !s.acquireConnectionSlot() {
			writeResponse(conn, TmuxResponse{ExitCode: 1, Stderr: "server busy, try again later\n"})
			if closeErr := conn.Close(); closeErr != nil {
				slog.Debug("[DEBUG-IPC] failed to close rejected connection", "error", closeErr)
			}
			continue
		}
		s.wg.Go(func() {
			defer s.releaseConnectionSlot()
			s.handleConnection(conn)
		})
	}
}

// handleConnection serves one request. Requests over maxRequestBytes are
// rejected.
func (s *SocketServer) handleConnection(conn net.Conn) {
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		slog.Warn("[DEBUG-IPC] failed to set connection deadline", "error", err)
		return
	}

	raw, err := readFrame(bufio.NewReaderSize(conn, maxRequestBytes+1), maxRequestBytes)
	if errors.Is(err, io.EOF) {
		slog.Debug("[DEBUG-IPC] client disconnected without sending data")
		return
	}
	if err != nil {
		writeResponse(conn, TmuxResponse{ExitCode: 1, Stderr: fmt.Sprintf("invalid request: %v\n", err)})
		return
	}
	req, err := decodeRequest(raw)
	if err != nil {
		writeResponse(conn, TmuxResponse{ExitCode: 1, Stderr: fmt.Sprintf("invalid request: %v\n", err)})
		return
	}

	slog.Debug("[DEBUG-IPC] request",
		"command", req.Command,
		"client", req.Client,
		"args", req.Args,
		"flags", req.Flags,
	)
	writeResponse(conn, s.router.Execute(req))
}

func writeResponse(conn net.Conn, resp TmuxResponse) {
	raw, err := encodeResponse(resp)
	if err != nil {
		slog.Warn("[DEBUG-IPC] failed to encode response", "error", err, "exitCode", resp.ExitCode)
		raw = []byte(`{"exit_code":1,"stderr":"internal encode error\n"}`)
	}
	if _, err := conn.Write(append(raw, '\n')); err != nil {
		slog.Debug("[DEBUG-IPC] failed to write response", "error", err)
	}
}

// readFrame reads one newline-terminated frame of at most maxBytes. A final
// frame without a newline is accepted.
func readFrame(reader *bufio.Reader, maxBytes int) ([]byte, error) {
	raw, err := reader.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("frame exceeds %d bytes", maxBytes)
	}
	if errors.Is(err, io.EOF) {
		if len(raw) == 0 {
			return nil, io.EOF
		}
		return raw, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *SocketServer) acquireConnectionSlot() bool {
	timer := time.NewTimer(connSlotAcquireTimeout)
	defer timer.Stop()
	select {
	case s.connSlots <- struct{}{}:
		return true
	case <-timer.C:
		slog.Warn("[DEBUG-IPC] connection slots exhausted, rejecting client")
		return false
	case <-s.ctx.Done():
		return false
	}
}

func (s *SocketServer) releaseConnectionSlot() {
	select {
	case <-s.connSlots:
	default:
		slog.Warn("[DEBUG-IPC] connection slot released twice")
	}
}

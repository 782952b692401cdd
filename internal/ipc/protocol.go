// Package ipc carries commands between go-tmux clients and the server: the
// request/response types, argv parsing and the unix socket transport.
package ipc

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go-tmux/internal/userutil"
)

// TmuxRequest is a single tmux-compatible command request.
type TmuxRequest struct {
	Command string            `json:"command"`
	Flags   map[string]any    `json:"flags,omitempty"` // string, bool or int values
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	// CallerPane is the %N id of the pane the command came from, if any.
	CallerPane string `json:"caller_pane,omitempty"`
	// Client names the attached client the command runs for, if any.
	Client string `json:"client,omitempty"`
}

// TmuxResponse is a tmux-compatible command response.
type TmuxResponse struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// CommandExecutor handles a tmux request and returns a response.
type CommandExecutor interface {
	Execute(req TmuxRequest) TmuxResponse
}

// FlagString returns a string flag, or "".
func (r TmuxRequest) FlagString(name string) string {
	switch v := r.Flags[name].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

// HasFlag reports whether a flag was given at all.
func (r TmuxRequest) HasFlag(name string) bool {
	_, ok := r.Flags[name]
	return ok
}

// FlagBool returns a boolean flag.
func (r TmuxRequest) FlagBool(name string) bool {
	b, ok := r.Flags[name].(bool)
	return ok && b
}

// FlagInt returns an integer flag, or def when absent or malformed. JSON
// decoding turns integers into float64, so both forms are accepted.
func (r TmuxRequest) FlagInt(name string, def int) int {
	switch v := r.Flags[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// DefaultSocketPath returns the server socket path. GO_TMUX_SOCKET
// overrides the per-user default under the temp directory.
func DefaultSocketPath() string {
	if v := strings.TrimSpace(os.Getenv("GO_TMUX_SOCKET")); v != "" {
		if !filepath.IsAbs(v) {
			slog.Warn("[DEBUG-IPC] GO_TMUX_SOCKET ignored: path is not absolute", "value", v)
		} else {
			return v
		}
	}
	return filepath.Join(os.TempDir(), "go-tmux-"+userutil.SanitizeUsername(userutil.Current()), "default")
}

func encodeRequest(req TmuxRequest) ([]byte, error) {
	return json.Marshal(req)
}

func decodeRequest(raw []byte) (TmuxRequest, error) {
	var req TmuxRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return TmuxRequest{}, err
	}
	if req.Flags == nil {
		req.Flags = map[string]any{}
	}
	if req.Env == nil {
		req.Env = map[string]string{}
	}
	return req, nil
}

func encodeResponse(resp TmuxResponse) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeResponse(raw []byte) (TmuxResponse, error) {
	var resp TmuxResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return TmuxResponse{}, err
	}
	return resp, nil
}

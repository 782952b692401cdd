// Package wsserver serves attached viewers over WebSocket: each connection
// attaches as a client, receives its rendered status line whenever it is
// redrawn, and may run commands.
//
// # Text frame protocol
//
// Viewer to server, one JSON object per frame:
//
//	{"action":"attach","client":"web1","target":"main","width":120,"height":40}
//	{"action":"resize","width":100,"height":30}
//	{"action":"command","argv":["display-message","-p","#S"]}
//	{"action":"detach"}
//
// Server to viewer:
//
//	{"type":"status","client":"web1","left":"[main] ","windows":"0:sh*","right":"..."}
//	{"type":"result","exit_code":0,"stdout":"main\n"}
//	{"type":"error","message":"..."}
package wsserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go-tmux/internal/ipc"
	"go-tmux/internal/tmux"
)

// Viewer actions.
const (
	ActionAttach  = "attach"
	ActionDetach  = "detach"
	ActionResize  = "resize"
	ActionCommand = "command"
)

// Server frame types.
const (
	FrameStatus = "status"
	FrameResult = "result"
	FrameError  = "error"
)

// maxArgv bounds the argument vector of a command action.
const maxArgv = 256

// ClientMessage is a decoded viewer frame.
type ClientMessage struct {
	Action string   `json:"action"`
	Client string   `json:"client,omitempty"`
	Target string   `json:"target,omitempty"`
	Width  int      `json:"width,omitempty"`
	Height int      `json:"height,omitempty"`
	Term   string   `json:"term,omitempty"`
	Argv   []string `json:"argv,omitempty"`
}

// StatusFrame carries one client's status line.
type StatusFrame struct {
	Type    string `json:"type"`
	Client  string `json:"client"`
	Off     bool   `json:"off,omitempty"`
	Left    string `json:"left"`
	Windows string `json:"windows"`
	Right   string `json:"right"`
}

// ResultFrame carries the response to a command action.
type ResultFrame struct {
	Type     string `json:"type"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// ErrorFrame reports a protocol error.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

var errEmptyArgv = errors.New("command: argv must not be empty")

// DecodeClientMessage parses and checks a viewer frame.
func DecodeClientMessage(raw []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("invalid JSON: %w", err)
	}
	msg.Action = strings.TrimSpace(msg.Action)
	switch msg.Action {
	case ActionAttach, ActionDetach:
	case ActionResize:
		if msg.Width <= 0 && msg.Height <= 0 {
			return ClientMessage{}, errors.New("resize: width or height required")
		}
	case ActionCommand:
		if len(msg.Argv) == 0 {
			return ClientMessage{}, errEmptyArgv
		}
		if len(msg.Argv) > maxArgv {
			return ClientMessage{}, fmt.Errorf("command: argv has %d entries, limit %d", len(msg.Argv), maxArgv)
		}
	case "":
		return ClientMessage{}, errors.New("missing action")
	default:
		return ClientMessage{}, fmt.Errorf("unknown action %q", msg.Action)
	}
	if msg.Width < 0 || msg.Height < 0 {
		return ClientMessage{}, fmt.Errorf("%s: negative size", msg.Action)
	}
	return msg, nil
}

// EncodeStatus builds a status frame.
func EncodeStatus(line tmux.StatusLine) ([]byte, error) {
	return json.Marshal(StatusFrame{
		Type:    FrameStatus,
		Client:  line.Client,
		Off:     line.Off,
		Left:    line.Left,
		Windows: line.Windows,
		Right:   line.Right,
	})
}

// EncodeResult builds a result frame.
func EncodeResult(resp ipc.TmuxResponse) ([]byte, error) {
	return json.Marshal(ResultFrame{
		Type:     FrameResult,
		ExitCode: resp.ExitCode,
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
	})
}

// EncodeError builds an error frame.
func EncodeError(message string) ([]byte, error) {
	return json.Marshal(ErrorFrame{Type: FrameError, Message: message})
}

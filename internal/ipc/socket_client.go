package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	defaultDialTimeout = 3 * time.Second
	defaultRWTimeout   = 15 * time.Second
	maxResponseBytes   = 1024 * 1024
)

// Send sends one request to the server at path and waits for its response.
func Send(path string, req TmuxRequest) (TmuxResponse, error) {
	if path == "" {
		path = DefaultSocketPath()
	}

	conn, err := net.DialTimeout("unix", path, defaultDialTimeout)
	if err != nil {
		return TmuxResponse{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(defaultRWTimeout)); err != nil {
		return TmuxResponse{}, fmt.Errorf("set deadline: %w", err)
	}

	raw, err := encodeRequest(req)
	if err != nil {
		return TmuxResponse{}, err
	}
	if _, err := conn.Write(append(raw, '\n')); err != nil {
		return TmuxResponse{}, err
	}

	respRaw, err := readFrame(bufio.NewReaderSize(conn, maxResponseBytes+1), maxResponseBytes)
	if err != nil {
		return TmuxResponse{}, err
	}
	resp, err := decodeResponse(respRaw)
	if err != nil {
		return TmuxResponse{}, fmt.Errorf("invalid response: %w", err)
	}
	return resp, nil
}

// IsConnectionError reports whether err means no server is listening.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}

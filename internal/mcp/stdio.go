package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/michiel/ratchet-sub007/internal/logger"
)

// StdioTransport runs one session over line-delimited JSON on the given
// reader/writer: stdin/stdout in production, in-memory pipes in tests.
// Every connection gets exactly one session, since stdio has no concept of
// multiplexing several logical clients onto one stream.
type StdioTransport struct {
	dispatcher *Dispatcher
	sessions   *SessionManager
	log        logger.Logger
}

func NewStdioTransport(dispatcher *Dispatcher, sessions *SessionManager, log logger.Logger) *StdioTransport {
	return &StdioTransport{dispatcher: dispatcher, sessions: sessions, log: log}
}

// Serve reads one JSON-RPC message per line from r until EOF or ctx is
// done, dispatches it, and writes any response (also one line of JSON,
// newline-terminated) to w. Malformed lines produce a parse-error response
// rather than terminating the loop.
func (t *StdioTransport) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	sessionID := t.sessions.Create()
	defer t.sessions.Close(sessionID)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			resp := errorResponse(nil, CodeParseError, "failed to parse request: "+err.Error())
			if writeErr := writeLine(w, resp); writeErr != nil {
				return writeErr
			}
			continue
		}

		resp := t.dispatcher.Handle(ctx, sessionID, &req, "")
		if resp == nil {
			continue
		}
		if err := writeLine(w, resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func writeLine(w io.Writer, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

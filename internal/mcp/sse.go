package mcp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/logger"
)

// SSE header constants and wire format, grounded on
// infrastructure/sse/middleware.go: the same header set and
// "event: ...\nid: ...\ndata: ...\n\n" frame shape, adapted from a
// broadcast-to-all-subscribers broker into a per-session replay buffer
// addressed by session id.
const (
	headerContentType     = "Content-Type"
	headerCacheControl    = "Cache-Control"
	headerConnection      = "Connection"
	headerXAccelBuffering = "X-Accel-Buffering"
	sseContentType        = "text/event-stream"

	heartbeatInterval = 15 * time.Second
	sseSubscriberBuf  = 16
)

// SSEServer hosts the three HTTP endpoints a session-based SSE MCP
// transport needs: session creation is implicit in the first POST to a
// session id the caller chooses, so the surface is just message/stream/health.
type SSEServer struct {
	dispatcher *Dispatcher
	sessions   *SessionManager
	log        logger.Logger
}

func NewSSEServer(dispatcher *Dispatcher, sessions *SessionManager, log logger.Logger) *SSEServer {
	return &SSEServer{dispatcher: dispatcher, sessions: sessions, log: log}
}

// Register attaches the transport's routes to engine.
func (s *SSEServer) Register(engine *gin.Engine) {
	engine.POST("/message/:session_id", s.handleMessage)
	engine.GET("/sse/:session_id", s.handleStream)
	engine.GET("/health", s.handleHealth)
}

func (s *SSEServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleMessage accepts one JSON-RPC request for a session. The session is
// created on first use if the id hasn't been seen before, so a client can
// mint its own session id and POST before ever opening the event stream.
func (s *SSEServer) handleMessage(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
		return
	}
	s.ensureSession(sessionID)

	body, err := c.GetRawData()
	if err != nil || len(body) > maxMessageSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or oversized request body"})
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONRPCHTTPError(c, errorResponse(nil, CodeParseError, "failed to parse request: "+err.Error()))
		return
	}

	credential := c.GetHeader("Authorization")
	resp := s.dispatcher.Handle(c.Request.Context(), sessionID, &req, credential)
	if resp == nil {
		c.Status(http.StatusAccepted)
		return
	}

	// A response to a request delivered over POST is also published onto
	// the session's SSE stream, so a client driving both endpoints sees a
	// single ordered event log regardless of which connection it reads.
	if _, err := s.sessions.Publish(sessionID, resp); err != nil {
		s.log.Error("failed to publish response event", logger.Error(err))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *SSEServer) ensureSession(sessionID uuid.UUID) {
	s.sessions.EnsureSession(sessionID)
}

// handleStream is the server -> client event stream for one session.
// Reconnects send Last-Event-ID; everything buffered with a higher id
// replays before the stream continues live.
func (s *SSEServer) handleStream(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
		return
	}
	s.ensureSession(sessionID)

	var lastEventID int64
	if raw := c.GetHeader("Last-Event-ID"); raw != "" {
		lastEventID, _ = strconv.ParseInt(raw, 10, 64)
	}

	setSSEHeaders(c.Writer)
	c.Writer.Flush()

	ch := make(chan domain.SSEEvent, sseSubscriberBuf)
	if err := s.sessions.Subscribe(sessionID, lastEventID, ch); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}
	defer s.sessions.Unsubscribe(sessionID, ch)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSSEEvent(c.Writer, event); err != nil {
				return
			}
		case <-ticker.C:
			if err := writeHeartbeat(c.Writer); err != nil {
				return
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}

func setSSEHeaders(w gin.ResponseWriter) {
	w.Header().Set(headerContentType, sseContentType)
	w.Header().Set(headerCacheControl, "no-cache")
	w.Header().Set(headerConnection, "keep-alive")
	w.Header().Set(headerXAccelBuffering, "no")
}

func writeSSEEvent(w gin.ResponseWriter, event domain.SSEEvent) error {
	if _, err := fmt.Fprintf(w, "event: message\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\n", event.ID); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func writeHeartbeat(w gin.ResponseWriter) error {
	if _, err := fmt.Fprintf(w, ": heartbeat %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func writeJSONRPCHTTPError(c *gin.Context, resp *Response) {
	c.JSON(http.StatusBadRequest, resp)
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/errs"
	"github.com/michiel/ratchet-sub007/internal/logger"
)

// serverName/serverVersion identify this implementation in the initialize
// response's serverInfo.
const (
	serverName    = "ratchet-mcp"
	serverVersion = "1.0.0"
)

// Dispatcher routes JSON-RPC requests through the session state machine
// into the tool/prompt/resource surfaces, applying auth, rate limiting,
// sanitization and audit logging around every call. Adapted from
// mcp-north-cloud/internal/mcp/server.go's HandleRequestWithContext method
// dispatch, generalized from that service's stateless single-shot handling
// into the Uninitialized -> Initializing -> Active -> Closed gate this
// layer's sessions enforce.
type Dispatcher struct {
	sessions  *SessionManager
	tools     *ToolRegistry
	prompts   *PromptRegistry
	resources *ResourceRegistry
	auth      *Authenticator
	limiter   *RateLimiter
	audit     *AuditLogger
	log       logger.Logger
}

// resources may be nil (e.g. a CLI diagnostics command with no repository
// layer to back it), in which case resources/list returns empty and
// resources/read always errors not-found.
func NewDispatcher(sessions *SessionManager, tools *ToolRegistry, resources *ResourceRegistry, auth *Authenticator, limiter *RateLimiter, audit *AuditLogger, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		sessions:  sessions,
		tools:     tools,
		prompts:   NewPromptRegistry(),
		resources: resources,
		auth:      auth,
		limiter:   limiter,
		audit:     audit,
		log:       log,
	}
}

// Handle processes one request on sessionID and returns the response to
// send, or nil for a notification (no id). credential is the out-of-band
// auth token (e.g. an Authorization header value); transports that have no
// such concept pass "".
func (d *Dispatcher) Handle(ctx context.Context, sessionID uuid.UUID, req *Request, credential string) *Response {
	d.sessions.touch(sessionID)

	state := d.sessions.State(sessionID)
	if state == domain.SessionClosed {
		return d.reject(req, CodeServerShuttingDown, "session is closed")
	}

	if req.Method != "initialize" && state != domain.SessionActive {
		return d.reject(req, CodeNotInitialized, "server not initialized")
	}

	clientID := d.sessions.ClientID(sessionID)
	if clientID == "" {
		clientID = sessionID.String()
	}
	if d.limiter != nil && !d.limiter.Allow(clientID) {
		d.audit.LogRateLimitExceeded(clientID, requestIDString(req.ID))
		return d.reject(req, CodeGeneric, "rate limit exceeded")
	}

	switch req.Method {
	case "initialize":
		return d.handleInitialize(ctx, sessionID, req, credential)
	case "notifications/initialized":
		return nil
	case "tools/list":
		return d.handleToolsList(req)
	case "tools/call":
		return d.handleToolsCall(ctx, clientID, req)
	case "prompts/list":
		return resultResponse(req.ID, map[string]any{"prompts": d.prompts.Descriptors()})
	case "prompts/get":
		return d.handlePromptsGet(req)
	case "resources/list":
		return d.handleResourcesList(ctx, req)
	case "resources/read":
		return d.handleResourcesRead(ctx, req)
	case "ping":
		return resultResponse(req.ID, "pong")
	case "shutdown", "notifications/cancelled":
		d.sessions.Transition(sessionID, domain.SessionClosed, "")
		if req.IsNotification() {
			return nil
		}
		return resultResponse(req.ID, map[string]any{"ok": true})
	default:
		if req.IsNotification() {
			return nil
		}
		return errorResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (d *Dispatcher) reject(req *Request, code int, message string) *Response {
	if req.IsNotification() {
		return nil
	}
	return errorResponse(req.ID, code, message)
}

func requestIDString(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func (d *Dispatcher) handleInitialize(ctx context.Context, sessionID uuid.UUID, req *Request, credential string) *Response {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return d.reject(req, CodeInvalidParams, "invalid initialize params: "+err.Error())
		}
	}

	d.sessions.Transition(sessionID, domain.SessionInitializing, "")

	if d.auth != nil {
		clientID, err := d.auth.Authenticate(credential)
		if err != nil {
			d.audit.LogAuthentication(sessionID.String(), false, string(d.auth.cfg.Mode), requestIDString(req.ID))
			d.sessions.Transition(sessionID, domain.SessionClosed, "")
			return d.reject(req, CodeGeneric, "authentication failed: "+err.Error())
		}
		d.sessions.SetClientID(sessionID, clientID)
		d.audit.LogAuthentication(clientID, true, string(d.auth.cfg.Mode), requestIDString(req.ID))
	}

	negotiated := protocolVersion
	if params.ProtocolVersion != "" {
		negotiated = params.ProtocolVersion
	}

	d.sessions.Transition(sessionID, domain.SessionActive, negotiated)

	result := map[string]any{
		"protocolVersion": negotiated,
		"capabilities": map[string]any{
			"tools":     map[string]any{},
			"prompts":   map[string]any{"listChanged": false},
			"resources": map[string]any{"subscribe": false, "listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": serverVersion,
		},
	}
	return resultResponse(req.ID, result)
}

func (d *Dispatcher) handleToolsList(req *Request) *Response {
	return resultResponse(req.ID, map[string]any{"tools": d.tools.Descriptors()})
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, clientID string, req *Request) *Response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return d.reject(req, CodeInvalidParams, "invalid tools/call params: "+err.Error())
	}

	name := SanitizeString(params.Name, 256)
	if len(params.Arguments) > maxMessageSize {
		return d.reject(req, CodeInvalidParams, "tool arguments exceed max message size")
	}

	start := time.Now()
	result, err := d.tools.Call(ctx, name, params.Arguments)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		d.audit.LogToolExecution(clientID, name, false, duration, requestIDString(req.ID))
		code := CodeMethodNotFound
		if !errors.Is(err, ErrUnknownTool) {
			code = jsonRPCCode(errs.CategoryOf(err))
		}
		return d.reject(req, code, err.Error())
	}
	d.audit.LogToolExecution(clientID, name, !result.IsError, duration, requestIDString(req.ID))
	return resultResponse(req.ID, result)
}

// promptsGetParams is prompts/get's request params.
type promptsGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

func (d *Dispatcher) handlePromptsGet(req *Request) *Response {
	var params promptsGetParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return d.reject(req, CodeInvalidParams, "invalid prompts/get params: "+err.Error())
	}
	messages, err := d.prompts.Get(params.Name, params.Arguments)
	if err != nil {
		return d.reject(req, CodeInvalidParams, err.Error())
	}
	return resultResponse(req.ID, map[string]any{"messages": messages})
}

func (d *Dispatcher) handleResourcesList(ctx context.Context, req *Request) *Response {
	if d.resources == nil {
		return resultResponse(req.ID, map[string]any{"resources": []ResourceDescriptor{}})
	}
	resources, err := d.resources.List(ctx)
	if err != nil {
		return d.reject(req, CodeInternalError, "failed to list resources: "+err.Error())
	}
	return resultResponse(req.ID, map[string]any{"resources": resources})
}

// resourcesReadParams is resources/read's request params.
type resourcesReadParams struct {
	URI string `json:"uri"`
}

func (d *Dispatcher) handleResourcesRead(ctx context.Context, req *Request) *Response {
	if d.resources == nil {
		return d.reject(req, CodeInvalidParams, "no resources are registered")
	}
	var params resourcesReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return d.reject(req, CodeInvalidParams, "invalid resources/read params: "+err.Error())
	}
	if !ValidResourceURI(params.URI) {
		return d.reject(req, CodeInvalidParams, "resource uri is not allowed: "+params.URI)
	}
	contents, err := d.resources.Read(ctx, params.URI)
	if err != nil {
		return d.reject(req, CodeInvalidParams, "failed to read resource: "+err.Error())
	}
	return resultResponse(req.ID, map[string]any{"contents": []ResourceContents{contents}})
}

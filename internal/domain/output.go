package domain

import "time"

// OutputFormat controls how an execution's output is serialized before
// delivery.
type OutputFormat string

const (
	FormatJSON        OutputFormat = "json"
	FormatJSONCompact OutputFormat = "json_compact"
	FormatYAML        OutputFormat = "yaml"
	FormatCSV         OutputFormat = "csv"
	FormatRaw         OutputFormat = "raw"
	FormatTemplate    OutputFormat = "template"
)

// AuthKind selects a webhook authentication scheme.
type AuthKind string

const (
	AuthNone      AuthKind = ""
	AuthBearer    AuthKind = "bearer"
	AuthBasic     AuthKind = "basic"
	AuthAPIKey    AuthKind = "api_key"
	AuthSignature AuthKind = "signature"
)

// WebhookAuth configures one of the supported authentication schemes.
type WebhookAuth struct {
	Kind AuthKind `json:"kind"`

	// Bearer / ApiKey
	Token      string `json:"token,omitempty"`
	HeaderName string `json:"header_name,omitempty"` // ApiKey only, defaults to X-API-Key

	// Basic
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// Signature (HMAC over method + path + body)
	Secret    string `json:"secret,omitempty"`
	Algorithm string `json:"algorithm,omitempty"` // "sha-256" | "sha-512"
}

// RetryPolicy governs webhook delivery retries.
type RetryPolicy struct {
	MaxAttempts       int     `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
	Jitter            bool    `json:"jitter"`
	RetryOnStatus     []int   `json:"retry_on_status,omitempty"`
}

// DefaultRetryPolicy holds the package's default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		RetryOnStatus:     []int{429, 500, 502, 503, 504},
	}
}

// FilesystemDestination writes output to a templated path on disk.
type FilesystemDestination struct {
	PathTemplate    string       `json:"path_template"`
	Format          OutputFormat `json:"format"`
	ContentTemplate string       `json:"content_template,omitempty"` // FormatTemplate only
	Permissions     uint32       `json:"permissions,omitempty"`      // default 0644
	CreateDirs      bool         `json:"create_dirs"`
	Overwrite       bool         `json:"overwrite"`
	BackupExisting  bool         `json:"backup_existing"`
}

// WebhookDestination POSTs (or otherwise requests) output to a templated
// URL.
type WebhookDestination struct {
	URLTemplate string            `json:"url_template"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers,omitempty"`
	Timeout     time.Duration     `json:"timeout"`
	RetryPolicy RetryPolicy       `json:"retry_policy"`
	Auth        *WebhookAuth      `json:"auth,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
}

// OutputDestinationConfig is a tagged union of delivery sinks; exactly one
// of Filesystem/Webhook is non-nil.
type OutputDestinationConfig struct {
	Filesystem *FilesystemDestination `json:"filesystem,omitempty"`
	Webhook    *WebhookDestination    `json:"webhook,omitempty"`
}

// Kind returns a label for logging/metrics.
func (d OutputDestinationConfig) Kind() string {
	switch {
	case d.Filesystem != nil:
		return "filesystem"
	case d.Webhook != nil:
		return "webhook"
	default:
		return "unknown"
	}
}

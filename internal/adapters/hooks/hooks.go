// Package hooks fires webhook notifications at search lifecycle points.
// Hooks are GET requests with query parameters, fired best-effort: a
// slow or failing endpoint is logged and never propagates into the
// search result.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Timeout bounds every hook call.
const Timeout = 3 * time.Second

// Event types reported to hook endpoints.
const (
	EventOnFile     = "on_file"
	EventOnMatch    = "on_match"
	EventOnComplete = "on_complete"
)

// Config holds the hook endpoints. Empty URLs disable the event.
type Config struct {
	OnFileURL     string
	OnMatchURL    string
	OnCompleteURL string

	// Disabled suppresses caller-supplied hook URLs, keeping only the
	// ones configured via environment. Set for untrusted environments.
	Disabled bool
}

// FromEnv reads hook configuration from RX_HOOK_* variables.
func FromEnv() Config {
	return Config{
		OnFileURL:     os.Getenv("RX_HOOK_ON_FILE_URL"),
		OnMatchURL:    os.Getenv("RX_HOOK_ON_MATCH_URL"),
		OnCompleteURL: os.Getenv("RX_HOOK_ON_COMPLETE_URL"),
		Disabled:      envBool("RX_DISABLE_CUSTOM_HOOKS"),
	}
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// HasAny reports whether any endpoint is configured.
func (c Config) HasAny() bool {
	return c.OnFileURL != "" || c.OnMatchURL != "" || c.OnCompleteURL != ""
}

// Merge overlays caller-supplied URLs onto the environment config.
// When Disabled is set the overlay is ignored.
func (c Config) Merge(onFile, onMatch, onComplete string) Config {
	if c.Disabled {
		return c
	}
	out := c
	if onFile != "" {
		out.OnFileURL = onFile
	}
	if onMatch != "" {
		out.OnMatchURL = onMatch
	}
	if onComplete != "" {
		out.OnCompleteURL = onComplete
	}
	return out
}

// Notifier fires hook calls for one request.
type Notifier struct {
	config    Config
	client    *http.Client
	requestID string
}

// NewNotifier creates a notifier with a fresh request ID.
func NewNotifier(config Config) *Notifier {
	return &Notifier{
		config:    config,
		client:    &http.Client{Timeout: Timeout},
		requestID: uuid.NewString(),
	}
}

// RequestID returns the ID attached to every call from this notifier.
func (n *Notifier) RequestID() string {
	return n.requestID
}

// OnFile reports that a file is about to be searched.
func (n *Notifier) OnFile(ctx context.Context, path string, sizeBytes int64) {
	n.call(ctx, n.config.OnFileURL, EventOnFile, url.Values{
		"path": {path},
		"size": {fmt.Sprintf("%d", sizeBytes)},
	})
}

// OnMatch reports one match. High-volume searches should sample rather
// than call per match.
func (n *Notifier) OnMatch(ctx context.Context, path string, offset int64, text string) {
	n.call(ctx, n.config.OnMatchURL, EventOnMatch, url.Values{
		"path":   {path},
		"offset": {fmt.Sprintf("%d", offset)},
		"text":   {text},
	})
}

// OnComplete reports the finished search.
func (n *Notifier) OnComplete(ctx context.Context, totalMatches, filesScanned int, elapsed time.Duration) {
	n.call(ctx, n.config.OnCompleteURL, EventOnComplete, url.Values{
		"total_matches": {fmt.Sprintf("%d", totalMatches)},
		"files_scanned": {fmt.Sprintf("%d", filesScanned)},
		"elapsed_ms":    {fmt.Sprintf("%d", elapsed.Milliseconds())},
	})
}

func (n *Notifier) call(ctx context.Context, endpoint, event string, params url.Values) {
	if endpoint == "" {
		return
	}
	params.Set("event", event)
	params.Set("request_id", n.requestID)

	u, err := url.Parse(endpoint)
	if err != nil {
		slog.Warn("invalid hook url", "event", event, "url", endpoint, "error", err)
		return
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		slog.Warn("hook request build failed", "event", event, "error", err)
		return
	}

	start := time.Now()
	resp, err := n.client.Do(req)
	if err != nil {
		slog.Warn("hook call failed", "event", event, "url", endpoint,
			"request_id", n.requestID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		slog.Warn("hook returned error status", "event", event,
			"status", resp.StatusCode, "request_id", n.requestID)
		return
	}
	slog.Debug("hook delivered", "event", event,
		"status", resp.StatusCode, "elapsed", time.Since(start))
}

package collab

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPConfig holds the endpoints for an HTTP-backed collaborator set.
// Empty endpoints fall back to noop behaviour so a partially configured
// deployment still runs.
type HTTPConfig struct {
	PublishURL  string
	GenerateURL string
	AnimateURL  string
	DisplayURL  string
	DeviceURL   string
	ReasonURL   string
	Timeout     time.Duration
}

// NewHTTPSet returns a Set that posts JSON requests to the configured
// endpoints. Collaborators enforce their own deadlines; the client timeout
// is only a backstop.
func NewHTTPSet(cfg HTTPConfig) Set {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	h := &httpSet{cfg: cfg, client: client}
	_, set := NewNoopSet()
	if cfg.PublishURL != "" {
		set.Publisher = h
	}
	if cfg.GenerateURL != "" {
		set.Generator = h
	}
	if cfg.AnimateURL != "" {
		set.Animator = h
	}
	if cfg.DisplayURL != "" {
		set.Display = h
	}
	if cfg.DeviceURL != "" {
		set.Device = h
	}
	if cfg.ReasonURL != "" {
		set.Reasoner = h
	}
	return set
}

type httpSet struct {
	cfg    HTTPConfig
	client *resty.Client
}

func (h *httpSet) post(ctx context.Context, url string, body any, result any) error {
	req := h.client.R().SetContext(ctx).SetBody(body)
	if result != nil {
		req = req.SetResult(result)
	}
	resp, err := req.Post(url)
	if err != nil {
		return fmt.Errorf("collaborator request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("collaborator returned %s", resp.Status())
	}
	return nil
}

func (h *httpSet) Publish(ctx context.Context, req PublishRequest) (PublishResult, error) {
	var result PublishResult
	if err := h.post(ctx, h.cfg.PublishURL, req, &result); err != nil {
		return PublishResult{}, err
	}
	return result, nil
}

func (h *httpSet) Purge(ctx context.Context, destination string, before string) error {
	body := map[string]any{"destination": destination, "before": before}
	return h.post(ctx, h.cfg.PublishURL+"/purge", body, nil)
}

func (h *httpSet) Generate(ctx context.Context, req GenerateRequest) ([]GenerateResult, error) {
	var results []GenerateResult
	if err := h.post(ctx, h.cfg.GenerateURL, req, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (h *httpSet) Animate(ctx context.Context, req AnimateRequest) error {
	return h.post(ctx, h.cfg.AnimateURL, req, nil)
}

func (h *httpSet) Show(ctx context.Context, req DisplayRequest) error {
	return h.post(ctx, h.cfg.DisplayURL, req, nil)
}

func (h *httpSet) device(ctx context.Context, destination, op string) error {
	body := map[string]any{"destination": destination, "op": op}
	return h.post(ctx, h.cfg.DeviceURL, body, nil)
}

func (h *httpSet) Wake(ctx context.Context, destination string) error {
	return h.device(ctx, destination, "wake")
}

func (h *httpSet) Sleep(ctx context.Context, destination string) error {
	return h.device(ctx, destination, "sleep")
}

func (h *httpSet) Standby(ctx context.Context, destination string) error {
	return h.device(ctx, destination, "standby")
}

func (h *httpSet) MediaSync(ctx context.Context, destination string) error {
	return h.device(ctx, destination, "media_sync")
}

func (h *httpSet) Reason(ctx context.Context, req ReasonRequest) (ReasonResult, error) {
	var result ReasonResult
	if err := h.post(ctx, h.cfg.ReasonURL, req, &result); err != nil {
		return ReasonResult{}, err
	}
	return result, nil
}

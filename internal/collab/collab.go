// Package collab defines the contracts for external collaborators the
// scheduler core delegates to: publishing, media generation, animation,
// display and device drivers, and the reasoner. The core only guarantees
// when and with what context these run; what they do is out of its hands.
package collab

import "context"

// PublishRequest asks the publisher to place a source asset on a
// destination's surface or, in silent mode, only into its bucket.
type PublishRequest struct {
	Source      string         `json:"source"`
	Destination string         `json:"destination"`
	Silent      bool           `json:"silent,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	BatchID     string         `json:"batch_id,omitempty"`
}

// PublishResult is the publisher's success/failure report.
type PublishResult struct {
	Success bool           `json:"success"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Publisher publishes assets and purges destination buckets.
type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) (PublishResult, error)
	Purge(ctx context.Context, destination string, before string) error
}

// GenerateRequest asks the generation service for new assets.
// Empty Targets means generate without publishing.
type GenerateRequest struct {
	Prompt     string         `json:"prompt"`
	Images     []string       `json:"images,omitempty"`
	Refiner    string         `json:"refiner,omitempty"`
	Workflow   string         `json:"workflow,omitempty"`
	Targets    []string       `json:"targets"`
	ExtraProps map[string]any `json:"extra_props,omitempty"`
}

// GenerateResult is one generated asset.
type GenerateResult struct {
	Message       string `json:"message"`
	PublishedPath string `json:"published_path,omitempty"`
}

// Generator generates assets.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]GenerateResult, error)
}

// AnimateRequest asks the animation back-end to animate a prompt or asset
// on a destination.
type AnimateRequest struct {
	Destination string `json:"destination"`
	Prompt      string `json:"prompt,omitempty"`
	Source      string `json:"source,omitempty"`
}

// Animator runs animations.
type Animator interface {
	Animate(ctx context.Context, req AnimateRequest) error
}

// DisplayRequest asks the display driver to show an asset.
type DisplayRequest struct {
	Destination string `json:"destination"`
	Source      string `json:"source,omitempty"`
	Mode        string `json:"mode,omitempty"`
}

// Display drives a destination's display surface.
type Display interface {
	Show(ctx context.Context, req DisplayRequest) error
}

// Device controls a destination's output device power/media state.
type Device interface {
	Wake(ctx context.Context, destination string) error
	Sleep(ctx context.Context, destination string) error
	Standby(ctx context.Context, destination string) error
	MediaSync(ctx context.Context, destination string) error
}

// ReasonRequest asks the reasoner for structured outputs.
type ReasonRequest struct {
	SystemPrompt string         `json:"system_prompt"`
	UserPrompt   string         `json:"user_prompt"`
	Schema       map[string]any `json:"schema,omitempty"`
	Images       []string       `json:"images,omitempty"`
}

// ReasonResult carries the reasoner's positional outputs.
type ReasonResult struct {
	Outputs     []string `json:"outputs"`
	Explanation string   `json:"explanation,omitempty"`
}

// Reasoner delegates to an LLM-backed collaborator.
type Reasoner interface {
	Reason(ctx context.Context, req ReasonRequest) (ReasonResult, error)
}

// Set bundles the collaborators the instruction handlers need.
type Set struct {
	Publisher Publisher
	Generator Generator
	Animator  Animator
	Display   Display
	Device    Device
	Reasoner  Reasoner
}

package dropship

import (
	"context"

	"github.com/bft-labs/dropship/internal/domain"
)

// Report is the aggregate result of a run.
type Report = domain.Report

// Runner starts one run reading source. It is safe to call from plugin
// goroutines; runs are serialized.
type Runner func(ctx context.Context, source RecipientSource) (Report, error)

// PluginConfig is handed to plugins on initialization.
type PluginConfig struct {
	Logger Logger
	Run    Runner

	// ReportDir is where runs store reports; empty when reports are not
	// written to disk.
	ReportDir string
}

// Plugin extends a long-lived Dropship started with Serve.
type Plugin interface {
	Name() string
	Initialize(ctx context.Context, cfg PluginConfig) error
	Shutdown(ctx context.Context) error
}

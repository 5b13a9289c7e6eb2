package dropship

import (
	"github.com/bft-labs/dropship/internal/app"
	"github.com/bft-labs/dropship/internal/ports"
	"github.com/bft-labs/dropship/pkg/log"
)

// Re-exported types so callers can implement adapters without importing
// internal packages.
type (
	Logger           = log.Logger
	Ledger           = ports.Ledger
	MintInspector    = ports.MintInspector
	Compiler         = ports.Compiler
	AddressDeriver   = ports.AddressDeriver
	RecipientSource  = ports.RecipientSource
	ReportRepository = ports.ReportRepository
	ReportNotifier   = ports.ReportNotifier

	// EventHandler receives run progress. Calls are synchronous from the
	// run goroutine.
	EventHandler = app.EventEmitter
)

// Option configures optional behavior of Dropship.
type Option func(*options)

type options struct {
	logger   ports.Logger
	ledger   ports.Ledger
	compiler ports.Compiler
	deriver  ports.AddressDeriver
	source   ports.RecipientSource
	reports  ports.ReportRepository
	notifier ports.ReportNotifier
	handlers []app.EventEmitter
	plugins  []Plugin
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLedger replaces the JSON-RPC ledger client. When the ledger also
// implements MintInspector, it is used to read mint metadata.
func WithLedger(l Ledger) Option {
	return func(o *options) {
		o.ledger = l
	}
}

// WithCompiler replaces the message compiler.
func WithCompiler(c Compiler) Option {
	return func(o *options) {
		o.compiler = c
	}
}

// WithDeriver replaces the address deriver.
func WithDeriver(d AddressDeriver) Option {
	return func(o *options) {
		o.deriver = d
	}
}

// WithRecipientSource sets where recipients are read from.
func WithRecipientSource(s RecipientSource) Option {
	return func(o *options) {
		o.source = s
	}
}

// WithReportRepository replaces the report file writer.
func WithReportRepository(r ReportRepository) Option {
	return func(o *options) {
		o.reports = r
	}
}

// WithReportNotifier replaces the webhook notifier built from
// Config.ReportWebhook.
func WithReportNotifier(n ReportNotifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithEventHandler adds a handler for run events. May be given several times.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.handlers = append(o.handlers, handler)
	}
}

// WithPlugin registers a plugin started by Serve.
// Plugins are initialized in registration order and shutdown in reverse order.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

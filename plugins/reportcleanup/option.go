package reportcleanup

import "github.com/bft-labs/dropship/pkg/dropship"

// WithReportCleanup returns a dropship Option that keeps the report
// directory under the configured watermarks while Serve runs.
//
// Usage:
//
//	d, err := dropship.New(cfg,
//	    reportcleanup.WithReportCleanup(reportcleanup.Config{
//	        CheckInterval: time.Hour,
//	        HighWatermark: 256 << 20,
//	        LowWatermark:  192 << 20,
//	    }),
//	)
func WithReportCleanup(cfg Config) dropship.Option {
	return dropship.WithPlugin(New(cfg))
}

// WithDefaultReportCleanup enables report cleanup with default settings.
func WithDefaultReportCleanup() dropship.Option {
	return WithReportCleanup(DefaultConfig())
}

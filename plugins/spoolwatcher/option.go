package spoolwatcher

import "github.com/bft-labs/dropship/pkg/dropship"

// WithSpoolWatcher returns a dropship Option that runs every recipient
// file dropped into cfg.Dir. The watcher is active while Serve runs.
//
// Usage:
//
//	d, err := dropship.New(cfg,
//	    spoolwatcher.WithSpoolWatcher(spoolwatcher.DefaultConfig("/var/spool/dropship")),
//	)
//	err = d.Serve(ctx)
func WithSpoolWatcher(cfg Config) dropship.Option {
	return dropship.WithPlugin(New(cfg))
}

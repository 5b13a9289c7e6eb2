// Package dropship provides an embeddable bulk token distributor for
// Solana-style ledgers.
//
// Dropship reads a recipient list, partitions it into envelopes that fit
// the ledger's size limits, creates missing holding accounts, signs with
// the custodial keys (and recipient keys in claim mode), submits, and
// reports what landed. It can be used as the dropship CLI or embedded as a
// library.
//
// # Basic Usage
//
//	cfg := dropship.DefaultConfig()
//	cfg.RPCURL = "https://api.devnet.solana.com"
//	cfg.Mint = "<mint address>"
//	cfg.FeePayer = payerKey
//	cfg.RecipientsFile = "recipients.csv"
//
//	d, err := dropship.New(cfg, dropship.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report, err := d.Run(ctx)
//	if err != nil {
//	    log.Printf("run stopped: %v", err)
//	}
//	fmt.Println(report.Summary())
//
// # Modes
//
// transfer moves tokens out of the authority's holding account. claim
// invokes a claim program that mints (or burns, for negative amounts)
// with each recipient co-signing. compress sends batched directives into
// a registered liquidity pool.
//
// # Reports
//
// Every run writes report-<run-id>.json and, when something is left to do,
// rerun-<run-id>.json into Config.ReportDir. Feeding the rerun list back
// as the recipient file re-runs only failed and not-attempted entries.
// Set Config.ReportWebhook to also POST each report to a service.
//
// # Plugins
//
// Serve keeps a Dropship alive for plugins such as the spool watcher,
// which starts a run for every recipient file dropped into a directory,
// and report cleanup, which bounds the size of the report directory.
package dropship

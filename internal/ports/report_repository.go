package ports

import (
	"context"
	"net/http"

	"github.com/bft-labs/dropship/internal/domain"
)

// ReportRepository persists run reports for operators.
// Implementations should write atomically (temp file then rename, or a
// single transaction) so a crash never leaves a truncated report.
type ReportRepository interface {
	// Save stores the report and returns where it was written.
	Save(ctx context.Context, report domain.Report) (string, error)
}

// ReportNotifier announces a finished run to an external service.
type ReportNotifier interface {
	Notify(ctx context.Context, report domain.Report) error
}

// HTTPClient abstracts HTTP request execution for testing and custom transports.
// The standard *http.Client satisfies this interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

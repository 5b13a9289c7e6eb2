package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/bft-labs/dropship/internal/domain"
	"github.com/bft-labs/dropship/internal/ports"
)

// Notifier implements ports.ReportNotifier by posting the report to a
// webhook as multipart form data: a "summary" field with the compact
// outcome and a "report" file with the full report.
type Notifier struct {
	client  ports.HTTPClient
	url     string
	authKey string
	logger  ports.Logger
}

// NewNotifier creates a webhook notifier. A nil client gets an
// *http.Client with a 10 second timeout.
func NewNotifier(url, authKey string, client ports.HTTPClient, logger ports.Logger) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{
		client:  client,
		url:     url,
		authKey: authKey,
		logger:  logger,
	}
}

type summary struct {
	RunID        string `json:"run_id"`
	Mint         string `json:"mint"`
	Total        int    `json:"total"`
	Succeeded    int    `json:"succeeded"`
	Failed       int    `json:"failed"`
	Skipped      int    `json:"skipped"`
	NotAttempted int    `json:"not_attempted"`
	Distributed  string `json:"distributed"`
	HaltReason   string `json:"halt_reason,omitempty"`
}

// Notify posts report to the webhook.
func (n *Notifier) Notify(ctx context.Context, report domain.Report) error {
	s := report.Summary()
	summaryJSON, err := json.Marshal(summary{
		RunID:        report.RunID,
		Mint:         report.Mint.String(),
		Total:        report.Total,
		Succeeded:    s.Succeeded,
		Failed:       len(s.Failed),
		Skipped:      s.Skipped,
		NotAttempted: len(report.NotAttempted),
		Distributed:  report.Distributed.String(),
		HaltReason:   report.HaltReason,
	})
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	summaryPart, err := writer.CreateFormField("summary")
	if err != nil {
		return fmt.Errorf("create summary field: %w", err)
	}
	if _, err := summaryPart.Write(summaryJSON); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	reportPart, err := writer.CreateFormFile("report", "report-"+report.RunID+".json")
	if err != nil {
		return fmt.Errorf("create report field: %w", err)
	}
	if _, err := reportPart.Write(reportJSON); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, &body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	hostname, _ := os.Hostname()
	if n.authKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.authKey)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Agent-Hostname", hostname)
	req.Header.Set("X-Agent-OSArch", runtime.GOOS+"/"+runtime.GOARCH)
	req.Header.Set("X-Dropship-Run-Id", report.RunID)
	req.Header.Set("X-Dropship-Mint", report.Mint.String())

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Debug("report delivered", ports.String("run_id", report.RunID), ports.String("url", n.url))
	return nil
}

var _ ports.ReportNotifier = (*Notifier)(nil)

// Package reporter posts the per-block canonical event string to an
// upstream indexer as an independent check that the local implementation's
// hash chain agrees with others running the same protocol (§4.4.1 step 4,
// SPEC_FULL.md supplemental feature FULL-3).
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brc20idx/indexer/internal/config"
)

// Reporter posts one block at a time to a configured upstream URL, retrying
// a failed post after a fixed config.RetryBackoff pause.
type Reporter struct {
	client  *http.Client
	url     string
	name    string
	retries int
}

// New builds a Reporter posting to url under the given reporter name,
// retrying up to retries times on failure.
func New(url, name string, retries int) *Reporter {
	return &Reporter{
		client:  &http.Client{Timeout: 10 * time.Second},
		url:     url,
		name:    name,
		retries: retries,
	}
}

type blockReport struct {
	Reporter   string `json:"reporter"`
	Height     int32  `json:"height"`
	EventStr   string `json:"block_event_str"`
}

// ReportBlock posts the height and its joined canonical event string. Errors
// are logged, not returned: a failed report never blocks indexing (§5, §7
// "reporting is informational").
func (r *Reporter) ReportBlock(ctx context.Context, height int32, blockEventStr string) {
	if r == nil || r.url == "" {
		return
	}

	body, err := json.Marshal(blockReport{Reporter: r.name, Height: height, EventStr: blockEventStr})
	if err != nil {
		slog.Error("reporter: encode block report", "height", height, "error", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(config.RetryBackoff):
			}
		}

		if err := r.post(ctx, body); err != nil {
			lastErr = err
			slog.Warn("reporter: post failed, will retry", "height", height, "attempt", attempt, "error", err)
			continue
		}

		slog.Debug("reporter: block reported", "height", height)
		return
	}

	slog.Error("reporter: exhausted retries reporting block", "height", height, "error", lastErr)
}

func (r *Reporter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("upstream returned HTTP %d", resp.StatusCode)
	}
	return nil
}

package crmdata

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TranscriptFetcher implements transcript.Fetcher against the telephony
// provider's recording/transcript endpoint, resolving the provider and
// external call id from the calls table the webhook already upserted.
type TranscriptFetcher struct {
	db         *sql.DB
	httpClient *http.Client
	apiBase    string
	apiKey     string
}

// NewTranscriptFetcher wraps a pooled connection and the provider API
// credentials (spec §6's telephony provider, fixed 15s call timeout —
// generous relative to the dispatcher's 10s Slack budget since transcript
// fetches are a background retry loop, not in the hot delivery path).
func NewTranscriptFetcher(db *sql.DB, apiBase, apiKey string) *TranscriptFetcher {
	return &TranscriptFetcher{
		db:         db,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiBase:    apiBase,
		apiKey:     apiKey,
	}
}

func (f *TranscriptFetcher) FetchTranscript(ctx context.Context, orgID, callID string) (string, int, error) {
	var provider string
	err := f.db.QueryRowContext(ctx,
		`SELECT provider FROM calls WHERE org_id = $1 AND external_id = $2`,
		orgID, callID,
	).Scan(&provider)
	if err != nil {
		return "", 0, fmt.Errorf("crmdata: resolve call %s: %w", callID, err)
	}

	url := fmt.Sprintf("%s/%s/calls/%s/transcript", f.apiBase, provider, callID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", resp.StatusCode, err
	}

	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, fmt.Errorf("crmdata: transcript fetch for %s returned %d", callID, resp.StatusCode)
	}

	return string(body), resp.StatusCode, nil
}

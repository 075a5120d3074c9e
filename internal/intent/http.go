package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vesper-voice/vesper/internal/eventlog"
	"github.com/vesper-voice/vesper/internal/reliability"
)

const (
	logSource        = "classifier"
	classifyAttempts = 2
	retryBackoffBase = 150 * time.Millisecond
	retryBackoffCap  = 600 * time.Millisecond
)

type classifyRequest struct {
	Utterance string `json:"utterance"`
}

// HTTPClassifier calls the intent-classification service over HTTP. A
// malformed reply, an error status, or a transport fault all classify as
// IntentNone so the conversation continues unaugmented.
type HTTPClassifier struct {
	endpoint string
	client   *http.Client
	log      *eventlog.Log
}

// NewHTTPClassifier creates a classifier client with the given per-request
// timeout.
func NewHTTPClassifier(endpoint string, timeout time.Duration, log *eventlog.Log) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &HTTPClassifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

func (c *HTTPClassifier) Classify(ctx context.Context, utterance string) Classification {
	none := Classification{Intent: IntentNone}

	payload, err := json.Marshal(classifyRequest{Utterance: utterance})
	if err != nil {
		return none
	}
	var body []byte
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			c.log.Error(logSource, "bad request: "+err.Error())
			return none
		}
		req.Header.Set("Content-Type", "application/json")

		res, err := c.client.Do(req)
		if err != nil {
			c.log.Error(logSource, "classification failed: "+err.Error())
			return none
		}
		body, err = io.ReadAll(io.LimitReader(res.Body, 1<<20))
		res.Body.Close()
		if err != nil {
			c.log.Error(logSource, "read response: "+err.Error())
			return none
		}
		if res.StatusCode == http.StatusOK {
			break
		}
		if attempt+1 < classifyAttempts && reliability.IsRetryableHTTPStatus(res.StatusCode) {
			c.log.Info(logSource, "retrying after HTTP "+res.Status)
			select {
			case <-time.After(reliability.ExponentialBackoff(attempt, retryBackoffBase, retryBackoffCap)):
				continue
			case <-ctx.Done():
				return none
			}
		}
		c.log.Error(logSource, "HTTP "+res.Status)
		return none
	}

	var out Classification
	if err := json.Unmarshal(body, &out); err != nil {
		c.log.Error(logSource, "malformed classification, treating as NONE")
		return none
	}
	out.Intent = Intent(strings.ToUpper(strings.TrimSpace(string(out.Intent))))
	switch out.Intent {
	case IntentSave, IntentRetrieve:
		return out
	default:
		return none
	}
}

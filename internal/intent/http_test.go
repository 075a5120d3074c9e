package intent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vesper-voice/vesper/internal/eventlog"
)

func classifierFor(t *testing.T, status int, body string) *HTTPClassifier {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewHTTPClassifier(srv.URL, time.Second, eventlog.New(16))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   Intent
	}{
		{"save", http.StatusOK, `{"intent":"SAVE","saveData":{"content":"likes tea","category":"preferences","tags":["drinks"]}}`, IntentSave},
		{"retrieve", http.StatusOK, `{"intent":"RETRIEVE","searchData":{"query":"tea","tags":[]}}`, IntentRetrieve},
		{"none", http.StatusOK, `{"intent":"NONE"}`, IntentNone},
		{"lowercase intent", http.StatusOK, `{"intent":"save","saveData":{"content":"x"}}`, IntentSave},
		{"unknown intent", http.StatusOK, `{"intent":"SUMMARIZE"}`, IntentNone},
		{"malformed json", http.StatusOK, `{"intent": SAVE`, IntentNone},
		{"server error", http.StatusInternalServerError, "boom", IntentNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := classifierFor(t, tc.status, tc.body)
			got := c.Classify(context.Background(), "remember that I like tea")
			if got.Intent != tc.want {
				t.Fatalf("intent = %s, want %s", got.Intent, tc.want)
			}
		})
	}
}

func TestClassifySavePayload(t *testing.T) {
	c := classifierFor(t, http.StatusOK,
		`{"intent":"SAVE","saveData":{"content":"likes tea","category":"preferences","tags":["drinks"]}}`)
	got := c.Classify(context.Background(), "remember that I like tea")
	if got.Save == nil {
		t.Fatal("saveData missing")
	}
	if got.Save.Content != "likes tea" || got.Save.Category != "preferences" {
		t.Fatalf("saveData = %+v", got.Save)
	}
}

func TestClassifyRetriesOnRetryableStatus(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"intent":"SAVE","saveData":{"content":"x"}}`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, 2*time.Second, eventlog.New(16))
	got := c.Classify(context.Background(), "remember x")
	if got.Intent != IntentSave {
		t.Fatalf("intent = %s, want SAVE after retry", got.Intent)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestClassifyTransportFault(t *testing.T) {
	c := NewHTTPClassifier("http://127.0.0.1:1", 200*time.Millisecond, eventlog.New(16))
	if got := c.Classify(context.Background(), "anything"); got.Intent != IntentNone {
		t.Fatalf("intent = %s, want NONE on transport fault", got.Intent)
	}
}

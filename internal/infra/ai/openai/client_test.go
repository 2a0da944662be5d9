package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/viruslens/internal/domain/ai"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return NewClientWithConfig(cfg, "")
}

func TestAnalyze(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != defaultModel || len(req.Messages) != 2 || !strings.Contains(req.Messages[1].Content, "Overall Risk: High") {
			t.Errorf("unexpected request: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"finish_reason":"stop",
			"message":{"role":"assistant","content":"{\"verdict\":\"malicious\",\"confidence\":0.9,\"summary\":\"flagged\"}"}}]}`))
	})

	out, err := c.Analyze(context.Background(), "Overall Risk: High")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"verdict":"malicious"`) {
		t.Fatalf("out = %s", out)
	}
	if c.ModelName() != defaultModel {
		t.Fatalf("model = %s", c.ModelName())
	}
}

func TestAnalyzeQuota(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`))
	})
	_, err := c.Analyze(context.Background(), "report")
	if !errors.Is(err, ai.ErrQuotaExceeded) {
		t.Fatalf("err = %v", err)
	}
}

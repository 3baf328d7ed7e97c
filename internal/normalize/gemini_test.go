package normalize

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func geminiServer(t *testing.T, status int, text string) (*httptest.Server, *string) {
	t.Helper()
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"code":500,"message":"boom","status":"INTERNAL"}}`))
			return
		}
		body, _ := json.Marshal(map[string]interface{}{
			"candidates": []interface{}{
				map[string]interface{}{
					"content": map[string]interface{}{
						"role":  "model",
						"parts": []interface{}{map[string]interface{}{"text": text}},
					},
				},
			},
		})
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &gotPath
}

func TestNewGeminiCompleter_RequiresKey(t *testing.T) {
	if _, err := NewGeminiCompleter(context.Background(), "", "", ""); err == nil {
		t.Error("expected error for empty api key")
	}
}

func TestGeminiCompleter_Complete(t *testing.T) {
	srv, path := geminiServer(t, http.StatusOK, `[{"date":"2023-01-01"}]`)

	c, err := NewGeminiCompleter(context.Background(), "test-key", "", srv.URL)
	if err != nil {
		t.Fatalf("NewGeminiCompleter failed: %v", err)
	}

	got, err := c.Complete(context.Background(), "normalize this")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != `[{"date":"2023-01-01"}]` {
		t.Errorf("Complete() = %q", got)
	}
	if !strings.Contains(*path, DefaultModelName) || !strings.HasSuffix(*path, ":generateContent") {
		t.Errorf("unexpected request path %q", *path)
	}
}

func TestGeminiCompleter_ErrorStatusFallsBack(t *testing.T) {
	srv, _ := geminiServer(t, http.StatusInternalServerError, "")

	c, err := NewGeminiCompleter(context.Background(), "test-key", "gemini-test", srv.URL)
	if err != nil {
		t.Fatalf("NewGeminiCompleter failed: %v", err)
	}
	if _, err := c.Complete(context.Background(), "x"); err == nil {
		t.Fatal("expected error on non-200 status")
	}

	got := NewRemoteNormalizer(c, time.Second, zerolog.Nop()).Normalize(context.Background(), twoRows, "2023")
	want := Heuristic(twoRows, "2023")
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestGeminiCompleter_EndToEnd(t *testing.T) {
	completion := `[
		{"date": "2023-03-01", "category": "Food", "description": "Coffee", "amount": 4.5},
		{"date": "2023-03-02", "category": "Transport", "description": "Taxi", "amount": 12}
	]`
	srv, _ := geminiServer(t, http.StatusOK, completion)

	c, err := NewGeminiCompleter(context.Background(), "test-key", "", srv.URL)
	if err != nil {
		t.Fatalf("NewGeminiCompleter failed: %v", err)
	}

	got := NewRemoteNormalizer(c, time.Second, zerolog.Nop()).Normalize(context.Background(), twoRows, "2023")
	if len(got) != 2 || got[1].Category != "Transport" {
		t.Errorf("expected remote result, got %+v", got)
	}
}

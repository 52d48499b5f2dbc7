package stitch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/storyreel/stitcher/internal/logging"
)

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.mp4":
			_, _ = w.Write([]byte("0123456789"))
		case "/big.mp4":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		case "/hop.mp4":
			http.Redirect(w, r, "/ok.mp4", http.StatusFound)
		case "/away.mp4":
			http.Redirect(w, r, "https://elsewhere.example.net/ok.mp4", http.StatusFound)
		case "/forbidden.mp4":
			http.Error(w, "nope", http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	policy, err := NewOriginPolicy(srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	f := NewFetcher(5*time.Second, 32, logging.Discard())

	tests := []struct {
		path       string
		wantBytes  int64
		wantStatus int
		wantErr    bool
	}{
		{"/ok.mp4", 10, 0, false},
		{"/hop.mp4", 10, 0, false},
		{"/big.mp4", 0, 200, true},
		{"/away.mp4", 0, 0, true},
		{"/forbidden.mp4", 0, 403, true},
		{"/missing.mp4", 0, 404, true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			u, _ := url.Parse(srv.URL + tt.path)
			dest := filepath.Join(t.TempDir(), "clip_000.mp4")
			n, err := f.Fetch(context.Background(), policy, u, dest)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Fetch: %v", err)
				}
				data, _ := os.ReadFile(dest)
				if n != tt.wantBytes || string(data) != "0123456789" {
					t.Errorf("got %d bytes %q", n, data)
				}
				return
			}
			var se *Error
			if !errors.As(err, &se) || se.Kind != KindDownload {
				t.Fatalf("error = %v, want download failure", err)
			}
			if se.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", se.StatusCode, tt.wantStatus)
			}
		})
	}
}

package upload

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExternalHostSink_NoAPIKeyFailsFast(t *testing.T) {
	sink := NewExternalHostSink("guest", "http://example.invalid", "", "", time.Second)
	if _, _, err := sink.Upload(context.Background(), []byte("img"), Meta{}); err == nil {
		t.Fatalf("expected configuration error with no API key")
	}
}

func TestExternalHostSink_UploadReturnsURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret-key" {
			t.Fatalf("got auth header %q", auth)
		}
		json.NewEncoder(w).Encode(map[string]string{"url": "https://host.example/img.png", "deletion_handle": "del-1"})
	}))
	defer srv.Close()

	sink := NewExternalHostSink("guest", srv.URL, "secret-key", "album1", time.Second)
	url, handle, err := sink.Upload(context.Background(), []byte("img"), Meta{Title: "a cat"})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "https://host.example/img.png" || handle != "del-1" {
		t.Fatalf("got url=%q handle=%q", url, handle)
	}
}

func TestExternalHostSink_MissingURLInResponseFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	sink := NewExternalHostSink("guest", srv.URL, "secret-key", "", time.Second)
	if _, _, err := sink.Upload(context.Background(), []byte("img"), Meta{}); err == nil {
		t.Fatalf("expected error for a response with no url field")
	}
}

func TestExternalHostSink_NonOKStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	sink := NewExternalHostSink("guest", srv.URL, "secret-key", "", time.Second)
	if _, _, err := sink.Upload(context.Background(), []byte("img"), Meta{}); err == nil {
		t.Fatalf("expected error for a non-200 response")
	}
}

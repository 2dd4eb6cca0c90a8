package upload

import (
	"context"
	"errors"
	"testing"

	"github.com/sdforge/sdforge-gateway/internal/store"
)

type fakeSink struct {
	name   string
	url    string
	handle string
	err    error
	calls  int
}

func (f *fakeSink) Name() string { return f.name }
func (f *fakeSink) Upload(ctx context.Context, image []byte, meta Meta) (string, string, error) {
	f.calls++
	if f.err != nil {
		return "", "", f.err
	}
	return f.url, f.handle, nil
}

type fakeHostingStore struct {
	creds map[string]store.HostingCredential
}

func (f *fakeHostingStore) SetCredential(ctx context.Context, cred store.HostingCredential) error {
	f.creds[cred.UserID] = cred
	return nil
}
func (f *fakeHostingStore) GetCredential(ctx context.Context, userID string) (*store.HostingCredential, error) {
	c, ok := f.creds[userID]
	if !ok {
		return nil, errors.New("no credential")
	}
	return &c, nil
}
func (f *fakeHostingStore) DeleteCredential(ctx context.Context, userID string) error {
	delete(f.creds, userID)
	return nil
}

func TestDeliver_UsesPerUserSinkWhenCredentialExists(t *testing.T) {
	creds := &fakeHostingStore{creds: map[string]store.HostingCredential{"u1": {UserID: "u1"}}}
	perUser := &fakeSink{name: "per-user", url: "https://per-user/img.png"}
	guest := &fakeSink{name: "guest", url: "https://guest/img.png"}
	local := &fakeSink{name: "local", url: "https://local/img.png"}

	r := New(creds, perUser, guest, nil, local)
	result, err := r.Deliver(context.Background(), "u1", []byte("data"), Meta{})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if result.SinkName != "per-user" {
		t.Fatalf("got sink %q, want per-user", result.SinkName)
	}
	if guest.calls != 0 || local.calls != 0 {
		t.Fatalf("expected lower-priority sinks untouched, guest=%d local=%d", guest.calls, local.calls)
	}
}

func TestDeliver_FallsThroughToGuestWithoutCredential(t *testing.T) {
	creds := &fakeHostingStore{creds: map[string]store.HostingCredential{}}
	perUser := &fakeSink{name: "per-user"}
	guest := &fakeSink{name: "guest", url: "https://guest/img.png"}
	local := &fakeSink{name: "local"}

	r := New(creds, perUser, guest, nil, local)
	result, err := r.Deliver(context.Background(), "u1", []byte("data"), Meta{})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if result.SinkName != "guest" {
		t.Fatalf("got sink %q, want guest", result.SinkName)
	}
	if perUser.calls != 0 {
		t.Fatalf("expected per-user sink not attempted without a credential")
	}
}

func TestDeliver_FallsThroughOnSinkFailure(t *testing.T) {
	guest := &fakeSink{name: "guest", err: errors.New("upload refused")}
	local := &fakeSink{name: "local", url: "https://local/img.png"}

	r := New(nil, nil, guest, nil, local)
	result, err := r.Deliver(context.Background(), "", []byte("data"), Meta{})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if result.SinkName != "local" {
		t.Fatalf("got sink %q, want local", result.SinkName)
	}
	if len(result.EarlierFailures) != 1 || result.EarlierFailures[0].SinkName != "guest" {
		t.Fatalf("expected guest recorded as an earlier failure, got %+v", result.EarlierFailures)
	}
}

func TestDeliver_AllSinksFailReturnsError(t *testing.T) {
	local := &fakeSink{name: "local", err: errors.New("disk full")}
	r := New(nil, nil, nil, nil, local)

	_, err := r.Deliver(context.Background(), "", []byte("data"), Meta{})
	if err == nil {
		t.Fatalf("expected error when every sink fails")
	}
}

func TestDeliver_NoLocalSinkConfiguredReturnsConfigurationError(t *testing.T) {
	r := New(nil, nil, nil, nil, nil)
	_, err := r.Deliver(context.Background(), "", []byte("data"), Meta{})
	if err == nil {
		t.Fatalf("expected configuration error with no local fallback")
	}
}

func TestLocalFileSink_WritesUnderDatedDirectory(t *testing.T) {
	dir := t.TempDir()
	sink := NewLocalFileSink(dir, "http://localhost:8090/images")

	url, handle, err := sink.Upload(context.Background(), []byte("png-bytes"), Meta{})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if handle != "" {
		t.Fatalf("expected no deletion handle from the local sink, got %q", handle)
	}
	if url == "" {
		t.Fatalf("expected a non-empty URL")
	}
}

// Package upload implements UploadRouter (spec §4.7): route a generated
// image to the best available hosting sink, falling through on failure —
// per-user external host, then guest external host, then a local file
// server.
//
// Grounded on the teacher pack's internal/tools/create_image.go
// credentialProvider pattern (a narrow interface exposing exactly the
// credential fields a caller needs) and its temp-file naming convention,
// generalized from "write one temp PNG" to a priority-ordered sink chain.
package upload

import (
	"context"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
	"github.com/sdforge/sdforge-gateway/internal/store"
)

// Meta carries the optional metadata an external host sink may attach.
type Meta struct {
	Title       string
	Description string
	Tags        []string
	Album       string
}

// Result reports which sink delivered the image plus the public URL and an
// optional deletion handle (spec §4.7).
type Result struct {
	SinkName       string
	URL            string
	DeletionHandle string
	EarlierFailures []SinkFailure
}

// SinkFailure records one sink that was tried and failed before the one
// that succeeded, surfaced back to the caller per spec §4.7.
type SinkFailure struct {
	SinkName string
	Error    string
}

// Sink delivers image bytes somewhere and returns a public URL.
type Sink interface {
	Name() string
	Upload(ctx context.Context, image []byte, meta Meta) (url, deletionHandle string, err error)
}

// Router tries sinks in priority order, falling through to the next on
// failure.
type Router struct {
	credentials store.HostingStore
	perUser     Sink // nil if no per-user external host is configured
	guest       Sink // nil if no guest external host is configured
	local       Sink // always present: the final fallback
	cloud       Sink // optional fourth tier, off by default
}

// New creates a Router. perUser/guest/cloud may be nil to disable that
// tier; local must always be provided as the last-resort sink.
func New(credentials store.HostingStore, perUser, guest, cloud, local Sink) *Router {
	return &Router{credentials: credentials, perUser: perUser, guest: guest, cloud: cloud, local: local}
}

// Deliver uploads image through the priority chain: per-user authenticated
// host (if userID has a stored credential), then guest host, then cloud
// bucket (if configured), then the local file server.
func (r *Router) Deliver(ctx context.Context, userID string, image []byte, meta Meta) (*Result, error) {
	var failures []SinkFailure

	if userID != "" && r.perUser != nil && r.credentials != nil {
		if _, err := r.credentials.GetCredential(ctx, userID); err == nil {
			if url, handle, err := r.perUser.Upload(ctx, image, meta); err == nil {
				return &Result{SinkName: r.perUser.Name(), URL: url, DeletionHandle: handle, EarlierFailures: failures}, nil
			} else {
				failures = append(failures, SinkFailure{SinkName: r.perUser.Name(), Error: err.Error()})
			}
		}
	}

	if r.guest != nil {
		if url, handle, err := r.guest.Upload(ctx, image, meta); err == nil {
			return &Result{SinkName: r.guest.Name(), URL: url, DeletionHandle: handle, EarlierFailures: failures}, nil
		} else {
			failures = append(failures, SinkFailure{SinkName: r.guest.Name(), Error: err.Error()})
		}
	}

	if r.cloud != nil {
		if url, handle, err := r.cloud.Upload(ctx, image, meta); err == nil {
			return &Result{SinkName: r.cloud.Name(), URL: url, DeletionHandle: handle, EarlierFailures: failures}, nil
		} else {
			failures = append(failures, SinkFailure{SinkName: r.cloud.Name(), Error: err.Error()})
		}
	}

	if r.local == nil {
		return nil, apperr.New(apperr.Configuration, "no local fallback sink configured")
	}
	url, handle, err := r.local.Upload(ctx, image, meta)
	if err != nil {
		failures = append(failures, SinkFailure{SinkName: r.local.Name(), Error: err.Error()})
		return nil, apperr.Newf(apperr.Upstream, "every upload sink failed: %v", failures)
	}
	return &Result{SinkName: r.local.Name(), URL: url, DeletionHandle: handle, EarlierFailures: failures}, nil
}

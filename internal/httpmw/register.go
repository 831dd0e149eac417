// Package httpmw supplies the huma operation-registration helpers C9's
// handlers use to bind typed input/output structs to routes, following the
// same OperationOption pattern used across the rest of the corpus.
package httpmw

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// OperationOption customizes a registered operation's metadata.
type OperationOption func(*huma.Operation)

// WithTags sets the operation's OpenAPI tags.
func WithTags(tags ...string) OperationOption {
	return func(op *huma.Operation) { op.Tags = append(op.Tags, tags...) }
}

// WithSummary sets the operation's one-line summary.
func WithSummary(summary string) OperationOption {
	return func(op *huma.Operation) { op.Summary = summary }
}

// WithDescription sets the operation's long-form description.
func WithDescription(desc string) OperationOption {
	return func(op *huma.Operation) { op.Description = desc }
}

// WithOperationID overrides the generated operation id.
func WithOperationID(id string) OperationOption {
	return func(op *huma.Operation) { op.OperationID = id }
}

// WithHidden hides the operation from the generated OpenAPI document, for
// routes like the admin dataset-eviction endpoint.
func WithHidden() OperationOption {
	return func(op *huma.Operation) { op.Hidden = true }
}

// WithDefaultStatus sets the success status code (huma defaults to 200/201;
// job-creation routes need 202 Accepted).
func WithDefaultStatus(code int) OperationOption {
	return func(op *huma.Operation) { op.DefaultStatus = code }
}

func register[I, O any](api huma.API, method, path string, handler func(ctx context.Context, input *I) (*O, error), opts []OperationOption) {
	op := huma.Operation{Method: method, Path: path}
	for _, opt := range opts {
		opt(&op)
	}
	huma.Register(api, op, handler)
}

// Get registers a GET operation.
func Get[I, O any](api huma.API, path string, handler func(ctx context.Context, input *I) (*O, error), opts ...OperationOption) {
	register(api, http.MethodGet, path, handler, opts)
}

// Post registers a POST operation.
func Post[I, O any](api huma.API, path string, handler func(ctx context.Context, input *I) (*O, error), opts ...OperationOption) {
	register(api, http.MethodPost, path, handler, opts)
}

// Delete registers a DELETE operation.
func Delete[I, O any](api huma.API, path string, handler func(ctx context.Context, input *I) (*O, error), opts ...OperationOption) {
	register(api, http.MethodDelete, path, handler, opts)
}

package scanner

import (
	"context"
	"net/http"
)

// Connection issues requests against path-style resource keys such as
// "/users/scanner". Implementations own transport, pooling, auth and
// retries; package rest provides one over net/http.
//
// A Connection returns a non-nil *Response whenever the server answered,
// including together with an error for non-2xx statuses.
type Connection interface {
	Put(ctx context.Context, key string, body any) (*Response, error)
	Get(ctx context.Context, key string) (*Response, error)
	Delete(ctx context.Context, key string) (*Response, error)
}

// Response is the part of a server reply the scanner needs.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

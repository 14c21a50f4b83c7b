// Package testkit drives a Darcho HTTP handler from tests: it fires JSON
// requests with httptest, decodes the response envelope, and runs table or
// file driven scenarios against it.
//
//	api := testkit.New(t, r.Handler())
//	res := api.As(token).Post("/api/buyer/checkout", body).Status(http.StatusCreated)
//	var out checkoutResult
//	res.Decode(&out)
package testkit

import (
	"bytes"
	"encoding/json"
	"io"
	"maps"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Client fires requests at a handler.
type Client struct {
	t       testing.TB
	handler http.Handler
	headers map[string]string
}

// New wraps handler.
func New(t testing.TB, handler http.Handler) *Client {
	return &Client{t: t, handler: handler, headers: map[string]string{}}
}

// As returns a copy that sends token as a bearer credential.
func (c *Client) As(token string) *Client {
	return c.WithHeader("Authorization", "Bearer "+token)
}

// WithHeader returns a copy that sends an extra header.
func (c *Client) WithHeader(key, value string) *Client {
	cp := &Client{t: c.t, handler: c.handler, headers: maps.Clone(c.headers)}
	cp.headers[key] = value
	return cp
}

func (c *Client) Get(path string) *Response             { return c.Do(http.MethodGet, path, nil) }
func (c *Client) Post(path string, body any) *Response  { return c.Do(http.MethodPost, path, body) }
func (c *Client) Put(path string, body any) *Response   { return c.Do(http.MethodPut, path, body) }
func (c *Client) Patch(path string, body any) *Response { return c.Do(http.MethodPatch, path, body) }
func (c *Client) Delete(path string) *Response          { return c.Do(http.MethodDelete, path, nil) }

// Do sends body as JSON. A []byte or string body is sent verbatim.
func (c *Client) Do(method, path string, body any) *Response {
	c.t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		r = bytes.NewReader(b)
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(c.t, err, "testkit: marshal request body")
		r = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return &Response{t: c.t, Code: rec.Code, Header: rec.Header(), Body: rec.Body.Bytes(), label: method + " " + path}
}

// Response is a recorded reply.
type Response struct {
	t      testing.TB
	Code   int
	Header http.Header
	Body   []byte
	label  string
}

type envelope struct {
	Status  int               `json:"status"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Errors  map[string]string `json:"errors"`
}

// Status asserts the status code and stops the test on a mismatch.
func (r *Response) Status(code int) *Response {
	r.t.Helper()
	require.Equal(r.t, code, r.Code, "[%s] status mismatch\nbody: %s", r.label, r.Body)
	return r
}

func (r *Response) envelope() envelope {
	r.t.Helper()
	var env envelope
	require.NoError(r.t, json.Unmarshal(r.Body, &env), "[%s] body is not an envelope: %s", r.label, r.Body)
	return env
}

// Decode unmarshals the envelope's data into dest.
func (r *Response) Decode(dest any) *Response {
	r.t.Helper()
	env := r.envelope()
	require.NotEmpty(r.t, env.Data, "[%s] envelope has no data", r.label)
	require.NoError(r.t, json.Unmarshal(env.Data, dest), "[%s] decode data", r.label)
	return r
}

// Message is the envelope's message.
func (r *Response) Message() string {
	r.t.Helper()
	return r.envelope().Message
}

// FieldErrors is the envelope's per-field validation errors.
func (r *Response) FieldErrors() map[string]string {
	r.t.Helper()
	return r.envelope().Errors
}

// HasFieldError asserts a validation error on field.
func (r *Response) HasFieldError(field string) *Response {
	r.t.Helper()
	assert.Contains(r.t, r.FieldErrors(), field, "[%s] expected a %q field error", r.label, field)
	return r
}

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"syscall"

	"ipv6-provision-backend/internal/success"
)

// TransportKind classifies why a dispatch never produced an HTTP response.
type TransportKind string

const (
	KindTimeout    TransportKind = "timeout"
	KindConnection TransportKind = "connection"
	KindOther      TransportKind = "other"
)

// TransportError is a failed HTTP exchange. It is only ever carried inside a
// Result and never returned as an error from the client.
type TransportError struct {
	Kind TransportKind
	Err  error
}

func (e *TransportError) Error() string {
	switch e.Kind {
	case KindTimeout:
		return "provider request timed out"
	case KindConnection:
		return "unable to connect to provider"
	}
	return fmt.Sprintf("provider request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func classify(err error) *TransportError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TransportError{Kind: KindTimeout, Err: err}
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return &TransportError{Kind: KindConnection, Err: err}
	}
	return &TransportError{Kind: KindOther, Err: err}
}

// BodyKind tags the shape of a provider response body.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyJSON
	BodyRaw
)

// Body is a provider response. JSON objects are decoded into Fields; anything
// else is kept verbatim in Raw.
type Body struct {
	Kind   BodyKind
	Fields map[string]any
	Raw    string
}

func parseBody(data []byte) Body {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err == nil && fields != nil {
		return Body{Kind: BodyJSON, Fields: fields}
	}
	// JSON arrays and scalars land here too. The heuristics only read object
	// fields, and archiving them as raw text keeps the stored shape uniform.
	return Body{Kind: BodyRaw, Raw: string(data)}
}

// Get returns a top-level field of a JSON body.
func (b Body) Get(key string) (any, bool) {
	if b.Kind != BodyJSON {
		return nil, false
	}
	v, ok := b.Fields[key]
	return v, ok && v != nil
}

// MarshalJSON renders raw bodies as {"raw_response": text}.
func (b Body) MarshalJSON() ([]byte, error) {
	switch b.Kind {
	case BodyJSON:
		return json.Marshal(b.Fields)
	case BodyRaw:
		return json.Marshal(map[string]string{"raw_response": b.Raw})
	}
	return []byte("null"), nil
}

// Result is the immediate outcome of a dispatch.
type Result struct {
	// Accepted is true only for HTTP 200: the provider queued the request.
	// It says nothing about whether provisioning will succeed.
	Accepted   bool
	StatusCode *int
	Body       Body
	Err        *TransportError
}

// ErrorText describes a non-accepted result for storage and display.
func (r Result) ErrorText() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if r.StatusCode != nil && !r.Accepted {
		return fmt.Sprintf("provider returned HTTP %d", *r.StatusCode)
	}
	return ""
}

// Archive is the JSON stored in a record's api_response column.
func (r Result) Archive() string {
	data, err := json.Marshal(r.Body)
	if err != nil || r.Body.Kind == BodyNone {
		data, _ = json.Marshal(map[string]string{"error": r.ErrorText()})
	}
	return string(data)
}

// BusinessSuccess scans success, status, result and code for a success
// indicator. It is telemetry only; binding status is finalized by callbacks.
func (r Result) BusinessSuccess() bool {
	if !r.Accepted {
		return false
	}
	for _, key := range []string{"success", "status", "result", "code"} {
		if v, ok := r.Body.Get(key); ok && success.Indicator(v) {
			return true
		}
	}
	return false
}

// OfflineConfirmed applies the stricter offline rule: success must be truthy
// and, when present, result must name success as well.
func (r Result) OfflineConfirmed() bool {
	if !r.Accepted {
		return false
	}
	s, _ := r.Body.Get("success")
	if !success.Flag(s) {
		return false
	}
	if res, ok := r.Body.Get("result"); ok {
		return success.Indicator(res)
	}
	return true
}

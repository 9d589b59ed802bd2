package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime"
	"net/url"
	"strconv"
	"strings"

	"ipv6-provision-backend/internal/store"
)

var (
	// ErrPayload is returned for a callback body that is neither a JSON
	// object nor a form.
	ErrPayload = errors.New("malformed callback payload")
	// ErrCorrelation is returned when a callback carries no usable id.
	ErrCorrelation = errors.New("missing or invalid correlation id")
	// ErrNotResolved is returned when no record matches a callback.
	ErrNotResolved = errors.New("no record matches callback")

	errMissingID = fmt.Errorf("%w: id is missing", ErrCorrelation)
)

// Payload is a decoded callback body.
type Payload map[string]any

// ParsePayload decodes a JSON object, or a url-encoded form for any other
// content type. Repeated form keys become lists.
func ParsePayload(contentType string, body []byte) (Payload, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	trimmed := bytes.TrimSpace(body)

	if mediaType == "application/json" || (mediaType == "" && bytes.HasPrefix(trimmed, []byte("{"))) {
		var p Payload
		if err := json.Unmarshal(trimmed, &p); err != nil || p == nil {
			return nil, fmt.Errorf("%w: expected a JSON object", ErrPayload)
		}
		return p, nil
	}

	values, err := url.ParseQuery(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	p := make(Payload, len(values))
	for k, vs := range values {
		if len(vs) == 1 {
			p[k] = vs[0]
			continue
		}
		list := make([]any, len(vs))
		for i, v := range vs {
			list[i] = v
		}
		p[k] = list
	}
	return p, nil
}

// String returns a field rendered as text, or "" when absent.
func (p Payload) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// JSON returns the payload as stored in response archives.
func (p Payload) JSON() json.RawMessage {
	data, err := json.Marshal(p)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// Strings returns a list field as strings. Non-list values yield nil.
func (p Payload) Strings(key string) []string {
	list, ok := p[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		} else if v != nil {
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

// present mirrors the loose truthiness callers use to decide whether a
// correlation field was sent at all.
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case float64:
		return t != 0
	case bool:
		return t
	}
	return true
}

// toID coerces a JSON number or a numeric string to an id.
func toID(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrCorrelation, t)
		}
		return int64(t), nil
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", ErrCorrelation, t)
		}
		return id, nil
	}
	return 0, fmt.Errorf("%w: unsupported type %T", ErrCorrelation, v)
}

// BindingRecordID reads record_id from the root, falling back to data.record_id.
func BindingRecordID(p Payload) (int64, error) {
	v := p["record_id"]
	if !present(v) {
		if data, ok := p["data"].(map[string]any); ok {
			v = data["record_id"]
		}
	}
	if !present(v) {
		return 0, fmt.Errorf("%w: record_id", errMissingID)
	}
	return toID(v)
}

// FirstID reads the first present key, e.g. device_id then record_id.
func FirstID(p Payload, keys ...string) (int64, error) {
	for _, k := range keys {
		if v := p[k]; present(v) {
			return toID(v)
		}
	}
	return 0, fmt.Errorf("%w: %s", errMissingID, strings.Join(keys, "/"))
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

package mockservertest

import (
	"mime"
	"net/http"
	"net/url"
	"reflect"
	"slices"
	"strings"

	"github.com/ohler55/ojg/oj"

	"github.com/getmockd/endpointkit/pkg/expectation"
)

// record is a request received by the fake server.
type record struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   []byte
}

func newRecord(r *http.Request, body []byte) record {
	return record{
		method: r.Method,
		path:   r.URL.Path,
		query:  r.URL.Query(),
		header: r.Header.Clone(),
		body:   body,
	}
}

// definition renders the record in the shape returned by /retrieve.
func (rec record) definition() expectation.RequestDefinition {
	path := rec.path
	if len(rec.query) > 0 {
		path += "?" + rec.query.Encode()
	}
	def := expectation.RequestDefinition{Method: rec.method, Path: path}
	if len(rec.header) > 0 {
		def.Headers = map[string][]string(rec.header.Clone())
	}
	if len(rec.body) == 0 {
		return def
	}
	contentType := rec.header.Get("Content-Type")
	if isJSONContentType(contentType) {
		if obj, ok := parseJSON(rec.body).(map[string]any); ok {
			def.Body = expectation.JSONBody{JSON: obj, MatchType: expectation.Strict}
			return def
		}
	}
	if _, _, err := mime.ParseMediaType(contentType); err != nil {
		contentType = ""
	}
	def.Body = expectation.PlainBody{String: string(rec.body), ContentType: contentType}
	return def
}

// matches reports whether rec satisfies the request matcher def.
func matches(def expectation.RequestDefinition, rec record) bool {
	if def.Method != "" && !strings.EqualFold(def.Method, rec.method) {
		return false
	}
	if !matchPath(def.Path, rec) {
		return false
	}
	if !matchHeaders(def.Headers, rec.header) {
		return false
	}
	return matchBody(def.Body, rec)
}

func matchPath(want string, rec record) bool {
	if want == "" {
		return true
	}
	u, err := url.Parse(want)
	if err != nil || u.Path != rec.path {
		return false
	}
	for key, values := range u.Query() {
		got := rec.query[key]
		for _, v := range values {
			if !slices.Contains(got, v) {
				return false
			}
		}
	}
	return true
}

func matchHeaders(want map[string][]string, got http.Header) bool {
	for name, values := range want {
		received := got.Values(name)
		if len(received) == 0 {
			return false
		}
		for _, v := range values {
			if !slices.Contains(received, v) {
				return false
			}
		}
	}
	return true
}

func matchBody(want expectation.BodyDefinition, rec record) bool {
	switch b := want.(type) {
	case nil:
		return true
	case expectation.PlainBody:
		if string(rec.body) != b.String {
			return false
		}
		if b.ContentType == "" {
			return true
		}
		return sameMediaType(b.ContentType, rec.header.Get("Content-Type"))
	case expectation.JSONBody:
		got := parseJSON(rec.body)
		if got == nil {
			return false
		}
		expected := normalize(b.JSON)
		if b.MatchType == expectation.OnlyMatchingFields {
			return containsJSON(expected, got)
		}
		return reflect.DeepEqual(expected, got)
	default:
		return false
	}
}

// parseJSON parses body with ojg and normalizes numbers to float64. It
// returns nil when body is not JSON.
func parseJSON(body []byte) any {
	v, err := oj.Parse(body)
	if err != nil {
		return nil
	}
	return normalize(v)
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return v
	}
}

// containsJSON reports whether every field of want is present in got with a
// matching value. Arrays must have equal length and match element-wise.
func containsJSON(want, got any) bool {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range w {
			gv, present := g[k]
			if !present || !containsJSON(wv, gv) {
				return false
			}
		}
		return true
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !containsJSON(w[i], g[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(want, got)
	}
}

func isJSONContentType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func sameMediaType(a, b string) bool {
	ma, _, errA := mime.ParseMediaType(a)
	mb, _, errB := mime.ParseMediaType(b)
	return errA == nil && errB == nil && ma == mb
}

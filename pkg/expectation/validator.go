package expectation

import (
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// ValidMethod reports whether method is a syntactically valid HTTP method
// token.
func ValidMethod(method string) bool {
	return method != "" && strings.IndexFunc(method, isNotToken) == -1
}

func isNotToken(r rune) bool {
	return !httpguts.IsTokenRune(r)
}

// Validate checks the input constraints of a request matcher: a valid method
// token, a parseable URI path and header names that are non-empty tokens.
func (r RequestDefinition) Validate() error {
	var errs []error
	if !ValidMethod(r.Method) {
		errs = append(errs, &ValidationError{Field: "httpRequest.method", Message: fmt.Sprintf("invalid HTTP method %q", r.Method)})
	}
	if err := validatePath(r.Path); err != nil {
		errs = append(errs, &ValidationError{Field: "httpRequest.path", Message: err.Error()})
	}
	if err := validateHeaders(r.Headers); err != nil {
		errs = append(errs, &ValidationError{Field: "httpRequest.headers", Message: err.Error()})
	}
	switch b := r.Body.(type) {
	case nil:
	case PlainBody:
		if err := validateContentType(b.ContentType); err != nil {
			errs = append(errs, &ValidationError{Field: "httpRequest.body.contentType", Message: err.Error()})
		}
	case JSONBody:
		if !b.MatchType.Valid() {
			errs = append(errs, &ValidationError{Field: "httpRequest.body.matchType", Message: fmt.Sprintf("unknown match type %q", b.MatchType)})
		}
		if b.JSON == nil {
			errs = append(errs, &ValidationError{Field: "httpRequest.body.json", Message: "required"})
		}
	}
	return errors.Join(errs...)
}

// Validate checks that the status code is in range and header names are
// valid.
func (r ResponseDefinition) Validate() error {
	var errs []error
	if !validStatusCode(r.StatusCode) {
		errs = append(errs, &ValidationError{Field: "httpResponse.statusCode", Message: fmt.Sprintf("must be between 100 and 599, got %d", r.StatusCode)})
	}
	if err := validateHeaders(r.Headers); err != nil {
		errs = append(errs, &ValidationError{Field: "httpResponse.headers", Message: err.Error()})
	}
	return errors.Join(errs...)
}

// Validate checks both definitions and the repeat and lifetime policies.
func (e Expectation) Validate() error {
	errs := []error{e.HTTPRequest.Validate(), e.HTTPResponse.Validate()}
	if e.Times.RemainingTimes != nil && *e.Times.RemainingTimes < 0 {
		errs = append(errs, &ValidationError{Field: "times.remainingTimes", Message: "must not be negative"})
	}
	if err := e.TimeToLive.check(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func validatePath(path string) error {
	if path == "" {
		return errors.New("required")
	}
	if _, err := url.Parse(path); err != nil {
		return fmt.Errorf("invalid URI %q", path)
	}
	return nil
}

func validateHeaders(headers map[string][]string) error {
	for name := range headers {
		if name == "" {
			return errors.New("header name must not be empty")
		}
		if !httpguts.ValidHeaderFieldName(name) {
			return fmt.Errorf("invalid header name %q", name)
		}
	}
	return nil
}

func validateContentType(contentType string) error {
	if contentType == "" {
		return nil
	}
	if _, _, err := mime.ParseMediaType(contentType); err != nil {
		return fmt.Errorf("invalid media type %q", contentType)
	}
	return nil
}

func validStatusCode(code int) bool {
	return code >= 100 && code <= 599
}

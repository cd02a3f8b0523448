package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/getmockd/endpointkit/pkg/expectation"
)

//go:embed schema/expectation.schema.json
var expectationSchema []byte

const expectationSchemaURL = "expectation.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// ErrNoExpectationFiles is returned when none of the given paths or patterns
// match a file.
var ErrNoExpectationFiles = errors.New("no expectation files matched")

// LoadedExpectation is one expectation read from a file.
type LoadedExpectation struct {
	Source  string // file the expectation came from
	Index   int    // position within the file, 0 for single-object files
	Request *expectation.CreateExpectationRequest
}

// FileError wraps a failure loading a single expectation file.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// ExpandPatterns resolves plain paths and doublestar globs into a sorted,
// de-duplicated list of files. A plain path must exist; a glob may match
// nothing as long as some other argument matches.
func ExpandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string

	add := func(p string) {
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}

	for _, pattern := range patterns {
		if !isGlob(pattern) {
			info, err := os.Stat(pattern)
			if err != nil {
				if os.IsNotExist(err) {
					return nil, fmt.Errorf("file not found: %s", pattern)
				}
				return nil, fmt.Errorf("stat %s: %w", pattern, err)
			}
			if info.IsDir() {
				return nil, fmt.Errorf("%s is a directory, use a glob such as %s", pattern, filepath.Join(pattern, "*.json"))
			}
			add(pattern)
			continue
		}

		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding glob pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			add(m)
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoExpectationFiles, strings.Join(patterns, ", "))
	}
	sort.Strings(files)
	return files, nil
}

func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// LoadExpectations expands patterns and loads every matching file in order.
func LoadExpectations(patterns []string) ([]LoadedExpectation, error) {
	files, err := ExpandPatterns(patterns)
	if err != nil {
		return nil, err
	}

	var result []LoadedExpectation
	for _, file := range files {
		reqs, err := LoadExpectationFile(file)
		if err != nil {
			return nil, err
		}
		for i, req := range reqs {
			result = append(result, LoadedExpectation{Source: file, Index: i, Request: req})
		}
	}
	return result, nil
}

// LoadExpectationFile reads a YAML or JSON file holding one expectation or a
// list of them. ${VAR} and ${VAR:-default} references are expanded before
// parsing. The document is checked against the expectation schema and then
// decoded and validated through the wire codec.
func LoadExpectationFile(path string) ([]*expectation.CreateExpectationRequest, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &FileError{Path: path, Err: ErrFileNotFound}
		}
		if os.IsPermission(err) {
			return nil, &FileError{Path: path, Err: ErrPermissionDenied}
		}
		return nil, &FileError{Path: path, Err: err}
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, &FileError{Path: path, Err: fmt.Errorf("reading file: %w", err)}
	}

	reqs, err := ParseExpectations(data, formatOf(path))
	if err != nil {
		return nil, &FileError{Path: path, Err: err}
	}
	return reqs, nil
}

// FileFormat is the encoding of an expectation file.
type FileFormat int

const (
	FormatJSON FileFormat = iota
	FormatYAML
)

func formatOf(path string) FileFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ParseExpectations parses an expectation document already in memory.
func ParseExpectations(data []byte, format FileFormat) ([]*expectation.CreateExpectationRequest, error) {
	data = []byte(ExpandEnvVars(string(data)))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("file is empty")
	}

	if format == FormatYAML {
		converted, err := yamlToJSON(data)
		if err != nil {
			return nil, err
		}
		data = converted
	}

	if err := validateAgainstSchema(data); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if trimmed[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, &expectation.DecodeError{Msg: "invalid expectation list", Err: err}
		}
		reqs := make([]*expectation.CreateExpectationRequest, 0, len(raw))
		for i, item := range raw {
			req, err := decodeExpectation(item)
			if err != nil {
				return nil, fmt.Errorf("expectation %d: %w", i, err)
			}
			reqs = append(reqs, req)
		}
		return reqs, nil
	}

	req, err := decodeExpectation(trimmed)
	if err != nil {
		return nil, err
	}
	return []*expectation.CreateExpectationRequest{req}, nil
}

func decodeExpectation(data []byte) (*expectation.CreateExpectationRequest, error) {
	var req expectation.CreateExpectationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		var decErr *expectation.DecodeError
		if errors.As(err, &decErr) {
			return nil, decErr
		}
		return nil, &expectation.DecodeError{Msg: "invalid expectation", Err: err}
	}
	if err := req.HTTPRequest.Validate(); err != nil {
		return nil, err
	}
	if err := req.HTTPResponse.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("converting YAML to JSON: %w", err)
	}
	return out, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(expectationSchemaURL, bytes.NewReader(expectationSchema)); err != nil {
			schemaErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(expectationSchemaURL)
	})
	return compiledSchema, schemaErr
}

func validateAgainstSchema(data []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("expectation schema: %w", err)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return &expectation.DecodeError{Msg: "invalid JSON", Err: err}
	}

	err = schema.Validate(doc)
	if err == nil {
		return nil
	}
	var vErr *jsonschema.ValidationError
	if !errors.As(err, &vErr) {
		return err
	}
	result := &ValidationResult{}
	parseSchemaErrors(vErr, result)
	return result
}

// parseSchemaErrors flattens the cause tree into leaf errors.
func parseSchemaErrors(err *jsonschema.ValidationError, result *ValidationResult) {
	if len(err.Causes) == 0 {
		result.AddError(fieldFromPointer(err.InstanceLocation), err.Message)
		return
	}
	for _, cause := range err.Causes {
		parseSchemaErrors(cause, result)
	}
}

// fieldFromPointer turns a JSON pointer into dot notation.
func fieldFromPointer(pointer string) string {
	if pointer == "" || pointer == "/" {
		return ""
	}
	pointer = strings.TrimPrefix(pointer, "/")
	return strings.ReplaceAll(pointer, "/", ".")
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnvVars expands ${VAR_NAME} and ${VAR_NAME:-default} references.
// Unset variables without a default expand to the empty string.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if val := os.Getenv(submatch[1]); val != "" {
			return val
		}
		return submatch[2]
	})
}

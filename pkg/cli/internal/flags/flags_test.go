package flags

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestStringSlice(t *testing.T) {
	var headers StringSlice
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.VarP(&headers, "header", "H", "header")

	if err := fs.Parse([]string{"-H", "Accept: a, b", "--header", "X-Id: 1"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(headers) != 2 || headers[0] != "Accept: a, b" || headers[1] != "X-Id: 1" {
		t.Errorf("headers = %q", []string(headers))
	}
	if got := headers.Type(); got != "stringSlice" {
		t.Errorf("Type = %q", got)
	}
}

package mockservertest

import (
	"testing"

	"github.com/getmockd/endpointkit/pkg/expectation"
)

// AssertReceived fails the test unless the requests matching def satisfy
// times.
func (s *Server) AssertReceived(t testing.TB, def expectation.RequestDefinition, times expectation.VerificationTimes) {
	t.Helper()

	bounds := times.Definition()
	count := s.RequestCount(def)
	if !bounds.Allows(count) {
		t.Errorf("expected %s %s to be received %s, but it was received %d times",
			def.Method, def.Path, times, count)
	}
}

// AssertNotReceived fails the test if any request matched def.
func (s *Server) AssertNotReceived(t testing.TB, def expectation.RequestDefinition) {
	t.Helper()
	s.AssertReceived(t, def, expectation.Never())
}

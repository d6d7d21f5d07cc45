package metrics

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"/":                   "/",
		"":                    "/",
		"/healthz":            "/healthz",
		"/metrics":            "/metrics",
		"/executions":         "/executions",
		"/executions/abc-123": "/executions/{id}",
		"/executions/stream":  "/executions/stream",
	}
	for path, want := range cases {
		if got := canonicalPath(path); got != want {
			t.Errorf("canonicalPath(%q) = %q, want %q", path, got, want)
		}
	}
}

package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                            "/",
		"/metrics":                    "/metrics",
		"/v1/credentials":             "/v1/credentials",
		"/v1/credentials/abc":         "/v1/credentials/:id",
		"/v1/credentials/abc/shares":  "/v1/credentials/:id/shares",
		"/v1/credentials/abc/extra":   "/v1/credentials/abc/extra",
		"/v1/shares":                  "/v1/shares",
		"/v1/shares/xyz":              "/v1/shares/:id",
		"/v1/credentials?category=x":  "/v1/credentials",
		"/v1/shares/xyz?confirm=true": "/v1/shares/:id",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

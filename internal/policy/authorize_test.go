package policy

import (
	"net/http/httptest"
	"testing"
)

func TestCheckSharedSecret(t *testing.T) {
	cases := []struct {
		expected, presented string
		want                bool
	}{
		{"", "", true},
		{"", "anything", true},
		{"s3cret", "", false},
		{"s3cret", "s3cret", true},
		{"s3cret", "s3cre", false},
		{"s3cret", "S3CRET", false},
	}
	for _, tc := range cases {
		if got := CheckSharedSecret(tc.expected, tc.presented); got != tc.want {
			t.Fatalf("CheckSharedSecret(%q, %q) = %v, want %v", tc.expected, tc.presented, got, tc.want)
		}
	}
}

func TestAuthorizeRequestHeaders(t *testing.T) {
	bearer := httptest.NewRequest("GET", "/v1/tasks", nil)
	bearer.Header.Set("Authorization", "Bearer s3cret")
	if !AuthorizeRequest("s3cret", bearer) {
		t.Fatalf("bearer credential rejected")
	}

	lower := httptest.NewRequest("GET", "/v1/tasks", nil)
	lower.Header.Set("Authorization", "bearer s3cret")
	if !AuthorizeRequest("s3cret", lower) {
		t.Fatalf("lowercase bearer scheme rejected")
	}

	apiKey := httptest.NewRequest("GET", "/v1/tasks", nil)
	apiKey.Header.Set("X-API-Key", "s3cret")
	if !AuthorizeRequest("s3cret", apiKey) {
		t.Fatalf("X-API-Key credential rejected")
	}

	wrong := httptest.NewRequest("GET", "/v1/tasks", nil)
	wrong.Header.Set("Authorization", "Bearer nope")
	if AuthorizeRequest("s3cret", wrong) {
		t.Fatalf("wrong credential accepted")
	}

	none := httptest.NewRequest("GET", "/v1/tasks", nil)
	if AuthorizeRequest("s3cret", none) {
		t.Fatalf("missing credential accepted")
	}
}

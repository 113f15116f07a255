package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyMatches(t *testing.T) {
	assert.True(t, keyMatches("k-1", "k-1"))
	assert.False(t, keyMatches("k-1", "k-2"))
	assert.False(t, keyMatches("", "k-1"))
	assert.False(t, keyMatches("k-1", ""))
}

func TestBearerKey(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"bearer", "Bearer k-1", "k-1", nil},
		{"lowercase scheme", "bearer k-1", "k-1", nil},
		{"padded key", "Bearer   k-1  ", "k-1", nil},
		{"missing", "", "", errNoCredentials},
		{"basic auth", "Basic dXNlcjpwYXNz", "", errNotBearer},
		{"scheme only", "Bearer", "", errNotBearer},
		{"blank key", "Bearer    ", "", errEmptyKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/alerts/current", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := bearerKey(req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.want, got)
		})
	}
}

//nolint:lll,funlen // readablity
package traefik

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

const acme = `{"myresolver":{"Certificates":[
	{"domain":{"main":"example.com"}, "certificate": "cert1", "key": "key1"},
	{"domain":{"main":"*.example.org"}, "certificate": "cert2", "key": "key2"}
]}}`

func TestLookup(t *testing.T) {
	tests := []struct {
		name     string
		jsonData string
		domain   string
		want     acmeEntry
		wantErr  error
	}{
		{name: "plain domain", jsonData: acme, domain: "example.com", want: acmeEntry{"cert1", "key1"}},
		{name: "wildcard domain", jsonData: acme, domain: "*.example.org", want: acmeEntry{"cert2", "key2"}},
		{name: "domain not found", jsonData: acme, domain: "notfound.com", wantErr: ErrDomainNotFound},
		{name: "empty json", jsonData: `{}`, domain: "example.com", wantErr: ErrDomainNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lookup(tt.jsonData, tt.domain)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	_, err := lookup(`{broken`, "example.com")
	assert.Error(t, err)
}

func TestWildcardOf(t *testing.T) {
	tests := []struct {
		domain string
		want   string
		ok     bool
	}{
		{"seq.example.org", "*.example.org", true},
		{"a.b.example.org", "*.b.example.org", true},
		{"example.org", "", false},
		{"*.example.org", "", false},
		{"localhost", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			got, ok := wildcardOf(tt.domain)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCertificate(t *testing.T) {
	// the entries are found but contain no valid base64 PEM data
	_, err := Certificate(acme, "seq.example.org")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrDomainNotFound), "wildcard entry should be used")

	_, err = Certificate(acme, "seq.example.net")
	assert.ErrorIs(t, err, ErrDomainNotFound)
}

func TestLoadCertificate(t *testing.T) {
	_, err := LoadCertificate(filepath.Join(t.TempDir(), "missing.json"), "example.com")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

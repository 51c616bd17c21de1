// Package traefik reads certificates from the acme storage file of traefik.
package traefik

import (
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

var ErrDomainNotFound = errors.New("domain not found")

type acmeEntry struct {
	Certificate string `json:"certificate"`
	Key         string `json:"key"`
}

// LoadCertificate reads the acme file and returns the key pair for domain
func LoadCertificate(file, domain string) (tls.Certificate, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return tls.Certificate{}, err
	}
	return Certificate(string(data), domain)
}

// Certificate extracts the key pair for domain from acme json data.
// If there is no entry for domain, the wildcard entry of the parent domain is used.
func Certificate(jsonData, domain string) (tls.Certificate, error) {
	entry, err := lookup(jsonData, domain)
	if errors.Is(err, ErrDomainNotFound) {
		if wildcard, ok := wildcardOf(domain); ok {
			entry, err = lookup(jsonData, wildcard)
		}
	}
	if err != nil {
		return tls.Certificate{}, err
	}
	certPEM, err := base64.StdEncoding.DecodeString(entry.Certificate)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("certificate: %w", err)
	}
	keyPEM, err := base64.StdEncoding.DecodeString(entry.Key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("key: %w", err)
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

func lookup(jsonData, domain string) (acmeEntry, error) {
	obj, err := oj.ParseString(jsonData)
	if err != nil {
		return acmeEntry{}, err
	}
	path, err := jp.ParseString(
		fmt.Sprintf(`$..Certificates[?(@.domain.main == %q)]`, domain))
	if err != nil {
		return acmeEntry{}, err
	}
	res := path.Get(obj)
	if len(res) == 0 {
		return acmeEntry{}, fmt.Errorf("%w: %s", ErrDomainNotFound, domain)
	}
	entry := acmeEntry{}
	if err := oj.Unmarshal([]byte(oj.JSON(res[0])), &entry); err != nil {
		return acmeEntry{}, err
	}
	return entry, nil
}

// wildcardOf returns *.example.com for host.example.com
func wildcardOf(domain string) (string, bool) {
	if strings.HasPrefix(domain, "*.") {
		return "", false
	}
	_, parent, found := strings.Cut(domain, ".")
	if !found || !strings.Contains(parent, ".") {
		return "", false
	}
	return "*." + parent, true
}

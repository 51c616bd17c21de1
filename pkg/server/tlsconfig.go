package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/mpapenbr/sequential/log"
	"github.com/mpapenbr/sequential/pkg/utils/certs/traefik"
)

var errNoCertConfigured = errors.New("no certificate configured")

// TLSFiles references the certificate sources.
// A traefik acme file takes precedence over cert/key files.
type TLSFiles struct {
	CertFile      string
	KeyFile       string
	CAFile        string
	TraefikCerts  string
	TraefikDomain string
}

func (f TLSFiles) watched() []string {
	ret := []string{}
	for _, name := range []string{f.CertFile, f.KeyFile, f.TraefikCerts} {
		if name != "" {
			ret = append(ret, name)
		}
	}
	return ret
}

type certs struct {
	ctx   context.Context
	files TLSFiles
	log   *log.Logger
	cert  *tls.Certificate
	mu    sync.RWMutex
}

// NewTLSConfig returns a tls config serving the configured certificate.
// Changes of the certificate files are picked up while ctx is active.
// Nil is returned if no certificate could be loaded.
func NewTLSConfig(ctx context.Context, files TLSFiles) *tls.Config {
	c := &certs{
		ctx:   ctx,
		files: files,
		log:   log.GetFromContext(ctx).Named("certs"),
	}
	if err := c.loadCert(); err != nil {
		if !errors.Is(err, errNoCertConfigured) {
			c.log.Error("could not load certificate", log.ErrorField(err))
		}
		return nil
	}
	ret := &tls.Config{
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return c.current(), nil
		},
		MinVersion: tls.VersionTLS13,
	}
	if files.CAFile != "" {
		if pool, err := loadCAPool(files.CAFile); err == nil {
			ret.ClientCAs = pool
			ret.ClientAuth = tls.VerifyClientCertIfGiven
		} else {
			c.log.Error("could not read TLS root CA", log.ErrorField(err))
		}
	}
	go c.watchAndReloadCerts()
	return ret
}

func loadCAPool(file string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(caCert); !ok {
		return nil, errors.New("no certificates found in " + file)
	}
	return pool, nil
}

func (c *certs) current() *tls.Certificate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cert
}

func (c *certs) watchAndReloadCerts() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.log.Error("could not create fsnotify watcher", log.ErrorField(err))
		return
	}
	defer watcher.Close()
	for _, name := range c.files.watched() {
		if err := watcher.Add(name); err != nil {
			c.log.Error("could not watch file",
				log.String("file", name), log.ErrorField(err))
		}
	}
	for {
		select {
		case <-c.ctx.Done():
			c.log.Debug("context done, stopping cert reload")
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) ||
				event.Has(fsnotify.Create) {

				c.log.Info("cert file changed, reloading cert",
					log.String("file", event.Name))
				if err := c.loadCert(); err != nil {
					c.log.Error("could not reload certificate, keeping previous one",
						log.ErrorField(err))
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.log.Error("watcher error", log.ErrorField(err))
		}
	}
}

func (c *certs) loadCert() error {
	var (
		cert tls.Certificate
		err  error
	)
	switch {
	case c.files.TraefikCerts != "" && c.files.TraefikDomain != "":
		c.log.Info("Looking up traefik certs",
			log.String("file", c.files.TraefikCerts),
			log.String("domain", c.files.TraefikDomain))
		cert, err = traefik.LoadCertificate(c.files.TraefikCerts, c.files.TraefikDomain)
	case c.files.CertFile != "" && c.files.KeyFile != "":
		c.log.Info("Loading cert",
			log.String("key", c.files.KeyFile),
			log.String("cert", c.files.CertFile))
		cert, err = tls.LoadX509KeyPair(c.files.CertFile, c.files.KeyFile)
	default:
		return errNoCertConfigured
	}
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cert = &cert
	return nil
}

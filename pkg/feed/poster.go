package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mpapenbr/sequential/log"
	"github.com/mpapenbr/sequential/pkg/model"
	"github.com/mpapenbr/sequential/pkg/relay"
	"github.com/mpapenbr/sequential/version"
)

const DefaultTimeout = 5 * time.Second

type (
	// Poster sends batches to the ingest endpoint of a relay
	Poster struct {
		endpoint      string
		sessionID     string
		clientVersion string
		client        *http.Client
		l             *log.Logger
	}
	PosterOption func(*Poster)
)

func WithSessionID(id string) PosterOption {
	return func(p *Poster) {
		p.sessionID = id
	}
}

func WithHTTPClient(c *http.Client) PosterOption {
	return func(p *Poster) {
		p.client = c
	}
}

// WithClientVersion overrides the announced client version. Empty omits the header.
func WithClientVersion(v string) PosterOption {
	return func(p *Poster) {
		p.clientVersion = v
	}
}

func WithPosterLogger(l *log.Logger) PosterOption {
	return func(p *Poster) {
		p.l = l
	}
}

// NewPoster creates a poster for the relay at baseURL (e.g. http://localhost:5000)
func NewPoster(baseURL string, opts ...PosterOption) (*Poster, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u = u.JoinPath("ingest")
	ret := &Poster{
		endpoint:      u.String(),
		sessionID:     relay.DefaultSessionID,
		clientVersion: version.Version,
		client:        &http.Client{Timeout: DefaultTimeout},
		l:             log.Default().Named("feed"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret, nil
}

// Post sends records as one batch. A negative lap is not transmitted,
// the relay continues with the last lap of the session.
//
//nolint:whitespace // can't make both editor and linter happy
func (p *Poster) Post(
	ctx context.Context, lap int, records []model.RawSample,
) error {
	body, err := json.Marshal(records)
	if err != nil {
		return err
	}
	q := url.Values{}
	q.Set("session_id", p.sessionID)
	if lap >= 0 {
		q.Set("lap", strconv.Itoa(lap))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.endpoint+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.clientVersion != "" {
		req.Header.Set(relay.ClientVersionHeader, p.clientVersion)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	//nolint:errcheck // drain for connection reuse
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", ErrRejected, resp.Status)
	}
	p.l.Debug("batch sent",
		log.Int("lap", lap),
		log.Int("frames", len(records)))
	return nil
}

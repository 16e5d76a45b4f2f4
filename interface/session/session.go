// Package session holds the authenticated http clients of a batch:
// Earthdata credentials from a netrc file and the cookies persisted between runs.
package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/habforecast/eo-fetcher/service/log"
	"go.uber.org/zap"
)

// Options of the session
type Options struct {
	// CookieFile is loaded at startup and saved on Close. Empty: cookies are not persisted.
	CookieFile string
	// NetrcFile provides the basic authentication of the hosts (see Credentials.File)
	NetrcFile string
	UserAgent string

	// Probe requests
	Retries      int
	RetryDelay   time.Duration
	ProbeTimeout time.Duration
}

// Session shares the cookies and the credentials between the probes and the transfers
type Session struct {
	client     *http.Client
	cookies    *cookieStore
	cookieFile string

	probe         *resty.Client
	probeNoRedir  *resty.Client
	probeApproval *resty.Client
	retries       int
	retryDelay    time.Duration
}

// maxApprovalRedirects is the number of redirections followed by the authorization probe
const maxApprovalRedirects = 5

// New creates a session, loading the cookie file if any
func New(ctx context.Context, opts Options) (*Session, error) {
	cookies, err := newCookieStore()
	if err != nil {
		return nil, fmt.Errorf("session.New.%w", err)
	}
	if opts.CookieFile != "" {
		if err := cookies.LoadFile(opts.CookieFile); err != nil {
			// A corrupted cookie file only costs a new authentication
			log.Logger(ctx).Warn("unable to load cookies", zap.String("file", opts.CookieFile), zap.Error(err))
		}
	}
	transport, err := newTransportNetrc(http.DefaultTransport.(*http.Transport).Clone(), opts.NetrcFile, opts.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("session.New.%w", err)
	}

	s := &Session{
		client:     &http.Client{Transport: transport, Jar: cookies},
		cookies:    cookies,
		cookieFile: opts.CookieFile,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
	}

	newProbe := func(checkRedirect func(*http.Request, []*http.Request) error) *resty.Client {
		return resty.NewWithClient(&http.Client{
			Transport:     transport,
			Jar:           cookies,
			Timeout:       opts.ProbeTimeout,
			CheckRedirect: checkRedirect,
		}).SetLogger(log.Logger(ctx).Sugar())
	}
	s.probe = newProbe(nil)
	s.probeNoRedir = newProbe(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})
	s.probeApproval = newProbe(func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxApprovalRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	})
	return s, nil
}

// Client returns the http client used by the transfers (no timeout)
func (s *Session) Client() *http.Client {
	return s.client
}

// Close saves the cookies
func (s *Session) Close() error {
	if s.cookieFile == "" {
		return nil
	}
	if err := s.cookies.SaveFile(s.cookieFile); err != nil {
		return fmt.Errorf("session.Close.%w", err)
	}
	return nil
}

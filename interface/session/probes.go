package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/habforecast/eo-fetcher/service"
	"github.com/habforecast/eo-fetcher/service/log"
	"go.uber.org/zap"
)

// RemoteFile is the result of a HEAD request on a remote file
type RemoteFile struct {
	URL          string // after redirections
	StatusCode   int
	Size         int64 // -1 if unknown
	AcceptRanges bool
}

// Exists returns true if the remote file is available
func (f RemoteFile) Exists() bool {
	return f.StatusCode >= 200 && f.StatusCode < 300
}

// Stat sends a HEAD request following redirections.
// Network failures and transient statuses are retried, other statuses are returned as is.
func (s *Session) Stat(ctx context.Context, rawURL string) (RemoteFile, error) {
	var rf RemoteFile
	err := service.Retriable(ctx, func() error {
		resp, err := s.probe.R().SetContext(ctx).Head(rawURL)
		if err != nil {
			return service.MakeTemporary(fmt.Errorf("Stat[%s]: %w", rawURL, err))
		}
		if service.TemporaryStatus(resp.StatusCode()) {
			log.Logger(ctx).Debug("stat: temporary status", zap.String("url", rawURL), zap.Int("status", resp.StatusCode()))
			return service.MakeTemporary(fmt.Errorf("Stat[%s]: %s", rawURL, resp.Status()))
		}
		rf = RemoteFile{
			URL:          rawURL,
			StatusCode:   resp.StatusCode(),
			Size:         -1,
			AcceptRanges: strings.EqualFold(resp.Header().Get("Accept-Ranges"), "bytes"),
		}
		if raw := resp.RawResponse; raw != nil {
			rf.Size = raw.ContentLength
			if raw.Request != nil {
				rf.URL = raw.Request.URL.String()
			}
		}
		return nil
	}, s.retryDelay, s.retries+1)
	return rf, err
}

// CheckExists returns a service.AbsentError if the remote file is not available
func (s *Session) CheckExists(ctx context.Context, rawURL string) (RemoteFile, error) {
	rf, err := s.Stat(ctx, rawURL)
	if err != nil {
		return rf, fmt.Errorf("CheckExists.%w", err)
	}
	if !rf.Exists() {
		return rf, &service.AbsentError{URL: rawURL, StatusCode: rf.StatusCode}
	}
	return rf, nil
}

// ProbeAuthorization checks that the account is allowed to download the resource.
// First, a conditional request without redirection (200 or 304 means authorized),
// then a request following the login redirections (200, 206, 301 or 302 means authorized).
// Otherwise, the user must approve the application: a service.AuthorizationError is returned.
func (s *Session) ProbeAuthorization(ctx context.Context, rawURL string) error {
	status, err := probeStatus(s.probeNoRedir.R().
		SetContext(ctx).
		SetHeader("If-Modified-Since", time.Now().UTC().Format(http.TimeFormat)), rawURL)
	if err != nil {
		return fmt.Errorf("ProbeAuthorization.%w", err)
	}
	log.Logger(ctx).Debug("authorization probe", zap.String("url", rawURL), zap.Int("status", status))
	if status == http.StatusOK || status == http.StatusNotModified {
		return nil
	}

	status, err = probeStatus(s.probeApproval.R().SetContext(ctx), rawURL)
	if err != nil {
		return fmt.Errorf("ProbeAuthorization.%w", err)
	}
	log.Logger(ctx).Debug("authorization probe (with redirections)", zap.String("url", rawURL), zap.Int("status", status))
	switch status {
	case http.StatusOK, http.StatusPartialContent, http.StatusMovedPermanently, http.StatusFound:
		return nil
	}
	return &service.AuthorizationError{StatusCode: status, Remediation: rawURL}
}

// probeStatus sends a GET request and returns the status without reading the body
func probeStatus(req *resty.Request, rawURL string) (int, error) {
	resp, err := req.SetDoNotParseResponse(true).Get(rawURL)
	if err != nil {
		return 0, service.MakeTemporary(fmt.Errorf("probeStatus[%s]: %w", rawURL, err))
	}
	if body := resp.RawBody(); body != nil {
		body.Close()
	}
	return resp.StatusCode(), nil
}

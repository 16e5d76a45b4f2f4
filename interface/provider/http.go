package provider

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cavaliercoder/grab"
	"github.com/habforecast/eo-fetcher/service/log"
	"go.uber.org/zap"
)

// HTTPProvider implements Provider for an https archive, through an authenticated client (cookies, credentials)
type HTTPProvider struct {
	name   string
	client *grab.Client
}

// NewHTTPProvider creates a new Provider using the given http client
func NewHTTPProvider(name string, client *http.Client, userAgent string) *HTTPProvider {
	gc := grab.NewClient()
	gc.HTTPClient = client
	gc.UserAgent = userAgent
	return &HTTPProvider{name: name, client: gc}
}

// NewDaymetProvider creates the Provider of the ORNL DAAC archive
func NewDaymetProvider(client *http.Client, userAgent string) *HTTPProvider {
	return NewHTTPProvider("Earthdata (ORNL DAAC)", client, userAgent)
}

// NewOceanColorProvider creates the Provider of the Ocean Color archive
func NewOceanColorProvider(client *http.Client, userAgent string) *HTTPProvider {
	return NewHTTPProvider("Ocean Color", client, userAgent)
}

// Name implements Provider
func (p *HTTPProvider) Name() string {
	return p.name
}

// Download implements Provider
func (p *HTTPProvider) Download(ctx context.Context, url, localFile string, resume bool, expectedSize int64) (Transfer, error) {
	if err := os.MkdirAll(filepath.Dir(localFile), 0755); err != nil {
		return Transfer{}, fmt.Errorf("HTTPProvider.Download.MkdirAll: %w", err)
	}
	req, err := grab.NewRequest(localFile, url)
	if err != nil {
		return Transfer{}, fmt.Errorf("HTTPProvider.Download.NewRequest: %w", err)
	}
	req = req.WithContext(ctx)
	req.NoResume = !resume
	if resume && expectedSize > 0 {
		req.Size = expectedSize
	}

	var offset int64
	if resume {
		if fi, err := os.Stat(localFile); err == nil {
			offset = fi.Size()
		}
	}
	log.Logger(ctx).Debug("download", zap.String("provider", p.name), zap.Bool("resume", resume), zap.Int64("offset", offset))

	resp, err := download(ctx, p.client, req, p.name+":"+filepath.Base(localFile))
	if err != nil {
		return Transfer{}, fmt.Errorf("HTTPProvider.Download.%w", err)
	}
	t := Transfer{
		URL:      url,
		File:     resp.Filename,
		Resumed:  resp.DidResume,
		Size:     resp.BytesComplete(),
		Bytes:    resp.BytesComplete(),
		Duration: resp.Duration(),
	}
	if t.Resumed {
		t.Bytes -= offset
	}
	return t, nil
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cavaliercoder/grab"
	"github.com/habforecast/eo-fetcher/service"
	"github.com/habforecast/eo-fetcher/service/log"
)

// FormatBytes returns a human readable size
func FormatBytes(bytes int64) string {
	v := float64(bytes)
	switch {
	case v > 1<<30:
		return fmt.Sprintf("%.2fGiB", v/(1<<30))
	case v > 1<<20:
		return fmt.Sprintf("%.2fMiB", v/(1<<20))
	case v > 1<<10:
		return fmt.Sprintf("%.2fKiB", v/(1<<10))
	default:
		return fmt.Sprintf("%.0fB", v)
	}
}

func displayProgress(ctx context.Context, prefix string, resp *grab.Response, progressPeriod float64) {
	t := time.NewTicker(time.Second)
	defer t.Stop()

	progress, lastBytes, seconds := 0.0, resp.BytesComplete(), int64(0)
	for {
		select {
		case <-t.C:
			seconds++
			if resp.Progress() > progress {
				log.Logger(ctx).Sugar().Infof("%s: %.2f%% %s/%s (%s/s)", prefix, 100*resp.Progress(), FormatBytes(resp.BytesComplete()), FormatBytes(resp.Size), FormatBytes((resp.BytesComplete()-lastBytes)/seconds))
				seconds = 0
				progress += progressPeriod
				lastBytes = resp.BytesComplete()
			}

		case <-resp.Done:
			return
		}
	}
}

// download a file with display every 5%
func download(ctx context.Context, client *grab.Client, req *grab.Request, displayPrefix string) (*grab.Response, error) {
	resp := client.Do(req)

	displayProgress(ctx, displayPrefix, resp, 0.05)

	if err := resp.Err(); err != nil {
		err = fmt.Errorf("download[%s]: %w", req.URL(), err)
		if errors.Is(err, grab.ErrBadLength) {
			return resp, &service.LocalStateError{File: req.Filename, Reason: "size does not match the remote file"}
		}
		if resp.HTTPResponse == nil {
			return resp, service.MakeTemporary(err)
		}
		// connection dropped during the transfer of the body
		if code := resp.HTTPResponse.StatusCode; code >= 200 && code < 300 {
			return resp, service.MakeTemporary(err)
		}
		if service.TemporaryStatus(resp.HTTPResponse.StatusCode) {
			return resp, service.MakeTemporary(err)
		}
		return resp, err
	}
	return resp, nil
}

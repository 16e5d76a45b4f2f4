package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/habforecast/eo-fetcher/catalog"
	"github.com/habforecast/eo-fetcher/common"
	"github.com/habforecast/eo-fetcher/interface/provider"
	"github.com/habforecast/eo-fetcher/interface/session"
	"github.com/habforecast/eo-fetcher/service"
	"github.com/habforecast/eo-fetcher/service/log"
	"go.uber.org/zap"
)

// Remote probes the remote files
type Remote interface {
	ProbeAuthorization(ctx context.Context, url string) error
	// CheckExists returns a service.AbsentError if the file is not available
	CheckExists(ctx context.Context, url string) (session.RemoteFile, error)
}

// Mirror is an archive of previously fetched files (see service.Archive)
type Mirror interface {
	// Fetch copies the file from the archive to localFile, raising service.ErrFileNotFound
	Fetch(ctx context.Context, relPath, localFile string) error
}

// Options of a batch
type Options struct {
	Policy Policy
	// ProbeAuthorization once, before the first transfer
	ProbeAuthorization bool
	// ProbeExistence of every target before the transfer: absent targets are skipped
	ProbeExistence bool
	// Retries of a target in case of temporary failure, waiting RetryDelay between two tries
	Retries    int
	RetryDelay time.Duration
	// SkipExisting non-empty local files without checking the remote size
	SkipExisting bool
	// OutDir is the download root
	OutDir string
	// Mirror, if set, is checked for the targets missing locally before any transfer.
	// A restored file is then checked (and completed) like any local file.
	Mirror Mirror
}

// DefaultOptions returns the options of the dataset:
// the static list of Daymet files aborts at the first failure,
// the templated Ocean Color lists probe, retry and skip the failures.
func DefaultOptions(dataset common.Dataset) Options {
	switch dataset {
	case common.DatasetMonthly, common.DatasetDaily:
		return Options{
			Policy:         PolicySkipAndContinue,
			ProbeExistence: true,
			Retries:        3,
			RetryDelay:     10 * time.Second,
			OutDir:         ".",
		}
	default:
		return Options{
			Policy:             PolicyAbortBatch,
			ProbeAuthorization: true,
			OutDir:             ".",
		}
	}
}

// Executor processes the targets of a batch sequentially
type Executor struct {
	remote    Remote
	provider  provider.Provider
	opts      Options
	listeners []Listener

	report atomic.Pointer[Report]
}

// NewExecutor creates an executor. Listeners are notified of the outcome of every target.
func NewExecutor(remote Remote, p provider.Provider, opts Options, listeners ...Listener) *Executor {
	if opts.OutDir == "" {
		opts.OutDir = "."
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Executor{remote: remote, provider: p, opts: opts, listeners: listeners}
}

// Report returns the report of the current (or last) batch, nil before the first batch
func (e *Executor) Report() *Report {
	return e.report.Load()
}

// Run processes all the targets of the inventory.
// With PolicyAbortBatch, it returns the first failure. With PolicySkipAndContinue, failures are only reported.
// In any case, a context cancellation stops the batch.
func (e *Executor) Run(ctx context.Context, inv catalog.Inventory) (*Report, error) {
	if err := inv.Validate(); err != nil {
		return nil, fmt.Errorf("Run.%w", err)
	}
	runID := uuid.New().String()
	ctx = log.With(ctx, "run", runID)
	report := newReport(runID, inv.Dataset(), e.opts.Policy)
	e.report.Store(report)
	defer report.finish()

	log.Logger(ctx).Sugar().Infof("starting %s batch with %s (policy: %s)", inv.Dataset(), e.provider.Name(), e.opts.Policy)

	filenames := map[string]string{}
	urls := service.StringSet{}
	authorized := !e.opts.ProbeAuthorization
	for t := range inv.Targets() {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("Run: %w", err)
		}
		tctx := log.With(ctx, "file", t.Filename())

		if urls.Exists(t.URL) {
			log.Logger(tctx).Warn("duplicate url skipped", zap.String("url", t.URL))
			continue
		}
		urls.Push(t.URL)
		if other, ok := filenames[t.Filename()]; ok {
			err := fmt.Errorf("filename collision: %s and %s are both stored as %s", other, t.URL, t.Filename())
			res := e.result(runID, t, "", common.StatusFAILED, 0, err)
			report.add(res, nil)
			e.notify(tctx, res)
			if e.opts.Policy == PolicyAbortBatch {
				return report, fmt.Errorf("Run[%s]: %w", t.Filename(), err)
			}
			log.Logger(tctx).Warn("target skipped", zap.Error(err))
			continue
		}
		filenames[t.Filename()] = t.URL

		if !authorized {
			if err := e.remote.ProbeAuthorization(tctx, t.URL); err != nil {
				return report, fmt.Errorf("Run.%w", err)
			}
			authorized = true
		}

		res, attempt, err := e.ProcessTarget(tctx, runID, t)
		report.add(res, attempt)
		e.notify(tctx, res)
		if err != nil {
			if ctx.Err() != nil || e.opts.Policy == PolicyAbortBatch {
				return report, fmt.Errorf("Run[%s].%w", t.Filename(), err)
			}
			log.Logger(tctx).Warn("target failed, skipping", zap.Error(err))
		}
	}
	log.Logger(ctx).Sugar().Infof("batch done: %d done, %d resumed, %d existing, %d absent, %d failed",
		report.Count(common.StatusDONE), report.Count(common.StatusRESUMED), report.Count(common.StatusEXISTING),
		report.Count(common.StatusABSENT), report.Count(common.StatusFAILED))
	return report, nil
}

// ProcessTarget fetches one target, resuming or skipping an existing local file.
// It returns the attempted transfer if any (nil if no transfer started: absent, complete or conflicting local file).
// An absent target is not an error.
func (e *Executor) ProcessTarget(ctx context.Context, runID string, t common.Target) (common.Result, *Attempt, error) {
	localFile := filepath.Join(e.opts.OutDir, filepath.FromSlash(t.Path))

	size, err := localSize(localFile)
	if err != nil {
		return e.result(runID, t, localFile, common.StatusFAILED, 0, err), nil, fmt.Errorf("ProcessTarget.%w", err)
	}
	if size == 0 && e.opts.Mirror != nil {
		size = e.restore(ctx, t, localFile)
	}
	if size > 0 && e.opts.SkipExisting {
		log.Logger(ctx).Sugar().Infof("%s exists (%s), skipped", t.Filename(), provider.FormatBytes(size))
		return e.result(runID, t, localFile, common.StatusEXISTING, size, nil), nil, nil
	}

	var remote *session.RemoteFile
	if e.opts.ProbeExistence {
		rf, err := e.remote.CheckExists(ctx, t.URL)
		if errors.Is(err, service.ErrAbsent) {
			log.Logger(ctx).Info("not available upstream, skipped", zap.Int("status", rf.StatusCode))
			return e.result(runID, t, localFile, common.StatusABSENT, 0, nil), nil, nil
		}
		if err != nil {
			return e.result(runID, t, localFile, common.StatusFAILED, size, err), nil, fmt.Errorf("ProcessTarget.%w", err)
		}
		remote = &rf
	}

	var attempt *Attempt
	var transfer provider.Transfer
	complete := false
	err = service.Retriable(ctx, func() error {
		resume, expectedSize, done, err := e.plan(ctx, t, localFile, remote)
		remote = nil // local state may change between two tries
		if err != nil {
			return err
		}
		if complete = done; complete {
			return nil
		}
		if attempt == nil {
			attempt = &Attempt{URL: t.URL, File: localFile}
		}
		attempt.Tries++
		attempt.Mode = TransferFull
		if resume {
			attempt.Mode = TransferResume
		}
		if transfer, err = e.provider.Download(ctx, t.URL, localFile, resume, expectedSize); err != nil {
			if service.Temporary(err) && attempt.Tries <= e.opts.Retries {
				log.Logger(ctx).Warn("temporary failure, retrying", zap.Error(err), zap.Duration("delay", e.opts.RetryDelay))
			}
			return err
		}
		return nil
	}, e.opts.RetryDelay, e.opts.Retries+1)

	if err != nil {
		if attempt != nil {
			attempt.Status, attempt.Error = common.StatusFAILED, err.Error()
		}
		return e.result(runID, t, localFile, common.StatusFAILED, 0, err), attempt, fmt.Errorf("ProcessTarget.%w", err)
	}
	if complete {
		if attempt != nil {
			// completed by a previous try
			attempt.Status = common.StatusEXISTING
		}
		size, _ = localSize(localFile)
		log.Logger(ctx).Sugar().Infof("%s already complete (%s)", t.Filename(), provider.FormatBytes(size))
		return e.result(runID, t, localFile, common.StatusEXISTING, size, nil), attempt, nil
	}

	status := common.StatusDONE
	if transfer.Resumed {
		status = common.StatusRESUMED
	}
	attempt.Status = status
	log.Logger(ctx).Sugar().Infof("%s %s: %s in %s", t.Filename(), status, provider.FormatBytes(transfer.Bytes), transfer.Duration.Round(time.Millisecond))
	return e.result(runID, t, localFile, status, transfer.Size, nil), attempt, nil
}

// plan decides how to fetch the target, given the local file:
// absent or empty: full transfer; same size as the remote: complete; smaller: resumed transfer.
// A local file that cannot be resumed is a service.LocalStateError.
func (e *Executor) plan(ctx context.Context, t common.Target, localFile string, remote *session.RemoteFile) (resume bool, expectedSize int64, complete bool, err error) {
	size, err := localSize(localFile)
	if err != nil {
		return false, 0, false, err
	}
	if size == 0 {
		return false, 0, false, nil
	}
	if remote == nil {
		rf, err := e.remote.CheckExists(ctx, t.URL)
		if err != nil {
			return false, 0, false, err
		}
		remote = &rf
	}
	switch {
	case remote.Size == size:
		return false, size, true, nil
	case remote.Size < 0:
		return false, 0, false, &service.LocalStateError{File: localFile, Reason: "the remote size is unknown, completeness cannot be checked"}
	case remote.Size < size:
		return false, 0, false, &service.LocalStateError{File: localFile, Reason: fmt.Sprintf("the local file (%s) is larger than the remote file (%s)", provider.FormatBytes(size), provider.FormatBytes(remote.Size))}
	case !remote.AcceptRanges:
		return false, 0, false, &service.LocalStateError{File: localFile, Reason: "partial file but the server does not support resume"}
	}
	log.Logger(ctx).Sugar().Infof("resuming %s at %s/%s", t.Filename(), provider.FormatBytes(size), provider.FormatBytes(remote.Size))
	return true, remote.Size, false, nil
}

// restore fetches the target from the mirror and returns the size of the restored file (0 if not restored)
func (e *Executor) restore(ctx context.Context, t common.Target, localFile string) int64 {
	err := e.opts.Mirror.Fetch(ctx, t.Path, localFile)
	var notFound service.ErrFileNotFound
	switch {
	case errors.As(err, &notFound):
		log.Logger(ctx).Debug("not in the archive")
	case err != nil:
		log.Logger(ctx).Warn("unable to restore from the archive", zap.Error(err))
	}
	if err != nil {
		if rerr := os.Remove(localFile); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			log.Logger(ctx).Warn("unable to remove "+localFile, zap.Error(rerr))
		}
		return 0
	}
	size, err := localSize(localFile)
	if err != nil {
		return 0
	}
	log.Logger(ctx).Sugar().Infof("%s restored from the archive (%s)", t.Filename(), provider.FormatBytes(size))
	return size
}

func (e *Executor) result(runID string, t common.Target, localFile string, status common.Status, size int64, err error) common.Result {
	res := common.Result{
		RunID:   runID,
		Dataset: t.Dataset,
		URL:     t.URL,
		File:    localFile,
		Status:  status,
		Size:    size,
	}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}

func (e *Executor) notify(ctx context.Context, res common.Result) {
	for _, l := range e.listeners {
		if err := l.Handle(ctx, res); err != nil {
			log.Logger(ctx).Warn("listener failed", zap.String("listener", l.Name()), zap.Error(err))
		}
	}
}

// localSize returns 0 if the file does not exist
func localSize(file string) (int64, error) {
	fi, err := os.Stat(file)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("localSize: %w", err)
	}
	if fi.IsDir() {
		return 0, &service.LocalStateError{File: file, Reason: "is a directory"}
	}
	return fi.Size(), nil
}

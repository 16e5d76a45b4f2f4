package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	neturl "net/url"
	"syscall"
	"time"

	"google.golang.org/api/googleapi"
)

type errTmpIf interface{ Temporary() bool }
type errTmp struct{ error }

func (t errTmp) Temporary() bool    { return true }
func (t *errTmp) Unwrap() error     { return t.error }
func MakeTemporary(err error) error { return &errTmp{err} }

type errFatalIf interface{ Fatal() bool }

// ErrAbsent is returned when a remote file does not exist in the archive.
// It is expected for some dates and never stops a batch.
var ErrAbsent = errors.New("absent upstream")

// AbsentError wraps ErrAbsent with the probed url and status
type AbsentError struct {
	URL        string
	StatusCode int
}

func (e *AbsentError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", ErrAbsent.Error(), e.URL, e.StatusCode)
}

func (e *AbsentError) Unwrap() error { return ErrAbsent }

// AuthorizationError is returned when the Earthdata account cannot access the resource.
// The user has to approve the application on the provider side, no retry will fix it.
type AuthorizationError struct {
	StatusCode  int
	Remediation string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("unable to retrieve data (status %d): please ensure that you have authorized the remote application by visiting %s", e.StatusCode, e.Remediation)
}

// Fatal implements errFatalIf
func (e *AuthorizationError) Fatal() bool { return true }

// LocalStateError is returned when a local file cannot be resumed
type LocalStateError struct {
	File   string
	Reason string
}

func (e *LocalStateError) Error() string {
	return fmt.Sprintf("%s: %s. Inspect or delete the file and run again", e.File, e.Reason)
}

// Temporary inspects the error trace and returns whether the error is transient
func Temporary(err error) bool {
	//first check explicitely marked error
	var marked *errTmp
	if errors.As(err, &marked) {
		return true
	}

	var uerr *neturl.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}

	//override some default syscall temporary statuses
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EIO, syscall.EBUSY, syscall.ECANCELED, syscall.ECONNABORTED, syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ENOMEM, syscall.EPIPE, syscall.ETIMEDOUT:
			return true
		}
	}

	// connection dropped by the remote
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}

	var tmp errTmpIf
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	var gapiError *googleapi.Error
	if errors.As(err, &gapiError) {
		return gapiError.Code == 429 || gapiError.Code == 500
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// Fatal inspects the error and returns whether it's a fatal error
func Fatal(err error) bool {
	var tmp errFatalIf
	if errors.As(err, &tmp) {
		return tmp.Fatal()
	}
	return false
}

// TemporaryStatus returns whether an HTTP status code is worth a retry
func TemporaryStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// MergeErrors, appending texts
// if priorityToErr is true, priority to the fatal error then to the temporary
// else, priority to no error, then to the temporary and finally to the fatal error.
func MergeErrors(priorityToError bool, err error, newErrs ...error) error {
	if len(newErrs) == 0 {
		return err
	}
	newErr := newErrs[0]

	if newErr == nil {
		if !priorityToError {
			return nil
		}
	} else if err == nil {
		err = newErr
	} else if priorityToError != Temporary(err) {
		err = fmt.Errorf("%w\n %v", err, newErr)
	} else {
		err = fmt.Errorf("%w\n %v", newErr, err)
	}
	return MergeErrors(priorityToError, err, newErrs[1:]...)
}

// Retriable calls f up to nbTries times, waiting delay between two tries.
// It stops as soon as f succeeds, returns a non-temporary error or ctx is done.
func Retriable(ctx context.Context, f func() error, delay time.Duration, nbTries int) error {
	if nbTries < 1 {
		nbTries = 1
	}
	var err error
	for i := 0; i < nbTries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return MergeErrors(true, err, ctx.Err())
			case <-time.After(delay):
			}
		}
		if err = f(); err == nil || !Temporary(err) {
			return err
		}
	}
	return err
}

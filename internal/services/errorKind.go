package services

import (
	"context"
	"errors"
	"io"
	"net"
	"net/textproto"
	"syscall"

	"google.golang.org/api/googleapi"
)

// ErrorKind tells the retry executor what to do with a failed attempt.
type ErrorKind int

const (
	KindPermanent ErrorKind = iota
	KindTransient
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindCanceled:
		return "canceled"
	default:
		return "permanent"
	}
}

// TransientError marks a failure worth retrying. Transports wrap their own
// connection-level errors with it at the boundary.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// MarkTransient wraps err so that Classify reports KindTransient. nil stays nil.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return err
	}
	return &TransientError{Err: err}
}

var transientErrnos = []syscall.Errno{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.ECONNABORTED,
	syscall.EPIPE,
	syscall.ETIMEDOUT,
}

// Classify maps an error onto an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindPermanent
	}

	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return KindTransient
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindTransient
	}

	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return KindTransient
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout || dnsErr.IsTemporary {
			return KindTransient
		}
		return KindPermanent
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}

	// FTP 4xx replies are transient negative completions
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		if protoErr.Code >= 400 && protoErr.Code < 500 {
			return KindTransient
		}
		return KindPermanent
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 408, apiErr.Code == 429, apiErr.Code >= 500:
			return KindTransient
		}
		return KindPermanent
	}

	return KindPermanent
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return Classify(err) == KindTransient
}

// Interrupted reports whether a stage stopped because the run was cancelled
// rather than because the work itself failed.
func Interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || Classify(err) == KindCanceled
}

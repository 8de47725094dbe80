// SPDX-License-Identifier: MIT
//
// Adapted from: bassosimone-nop's ErrClassifier convention (errclassifier.go),
// with the platform errno tables supplied by unix.go/windows.go.

// Package errclass classifies transport-layer errors into short categorical
// strings (e.g. "econnreset", "etimedout") so the connection's logger and
// the observer error taxonomy can report *why* a transport failed without
// every caller re-implementing syscall-errno sniffing.
package errclass

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// New classifies err, returning "" for a nil error and "unknown" for an
// error this package does not recognise.
func New(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, io.EOF) {
		return "eof"
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return "etimedout"
	}
	if errors.Is(err, net.ErrClosed) {
		return "use-of-closed-connection"
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case errEADDRNOTAVAIL:
			return "eaddrnotavail"
		case errEADDRINUSE:
			return "eaddrinuse"
		case errECONNABORTED:
			return "econnaborted"
		case errECONNREFUSED:
			return "econnrefused"
		case errECONNRESET:
			return "econnreset"
		case errEHOSTUNREACH:
			return "ehostunreach"
		case errEINVAL:
			return "einval"
		case errEINTR:
			return "eintr"
		case errENETDOWN:
			return "enetdown"
		case errENETUNREACH:
			return "enetunreach"
		case errENOTCONN:
			return "enotconn"
		case errEPIPE:
			return "epipe"
		case errETIMEDOUT:
			return "etimedout"
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "etimedout"
	}

	return "unknown"
}

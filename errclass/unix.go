//go:build unix

//
// SPDX-License-Identifier: MIT
//
// Adapted from: bassosimone-nop/errclass/unix.go
//

package errclass

import "golang.org/x/sys/unix"

const (
	errEADDRNOTAVAIL = unix.EADDRNOTAVAIL
	errEADDRINUSE    = unix.EADDRINUSE
	errECONNABORTED  = unix.ECONNABORTED
	errECONNREFUSED  = unix.ECONNREFUSED
	errECONNRESET    = unix.ECONNRESET
	errEHOSTUNREACH  = unix.EHOSTUNREACH
	errEINVAL        = unix.EINVAL
	errEINTR         = unix.EINTR
	errENETDOWN      = unix.ENETDOWN
	errENETUNREACH   = unix.ENETUNREACH
	errENOTCONN      = unix.ENOTCONN
	errEPIPE         = unix.EPIPE
	errETIMEDOUT     = unix.ETIMEDOUT
)

//go:build windows

//
// SPDX-License-Identifier: MIT
//
// Adapted from: bassosimone-nop/errclass/windows.go
//

package errclass

import "golang.org/x/sys/windows"

const (
	errEADDRNOTAVAIL = windows.WSAEADDRNOTAVAIL
	errEADDRINUSE    = windows.WSAEADDRINUSE
	errECONNABORTED  = windows.WSAECONNABORTED
	errECONNREFUSED  = windows.WSAECONNREFUSED
	errECONNRESET    = windows.WSAECONNRESET
	errEHOSTUNREACH  = windows.WSAEHOSTUNREACH
	errEINVAL        = windows.WSAEINVAL
	errEINTR         = windows.WSAEINTR
	errENETDOWN      = windows.WSAENETDOWN
	errENETUNREACH   = windows.WSAENETUNREACH
	errENOTCONN      = windows.WSAENOTCONN
	errEPIPE         = windows.WSAESHUTDOWN
	errETIMEDOUT     = windows.WSAETIMEDOUT
)

// SPDX-License-Identifier: MIT

// Package ids generates correlation identifiers used only for log
// correlation — never for equality checks or map keys.
//
// Adapted from bassosimone/nop's NewSpanID (uses a UUIDv7 so ids sort
// roughly by creation time, which makes log correlation by eye easier).
package ids

import "github.com/google/uuid"

// NewSpanID returns a UUIDv7 string identifying a connection or observer
// for the lifetime of a log session.
func NewSpanID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Extraordinarily unlikely (would require a broken system RNG);
		// fall back to the nil UUID rather than taking down the caller.
		return uuid.Nil.String()
	}
	return id.String()
}

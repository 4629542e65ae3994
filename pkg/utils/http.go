package utils

import "io"

// drainLimit bounds how much of an unread body is discarded before close.
// Larger leftovers cost more than a fresh connection.
const drainLimit = 64 << 10

// DrainAndClose discards up to drainLimit unread bytes of a response body so
// the keep-alive connection can be reused, then closes it. A nil body is a no-op.
func DrainAndClose(rc io.ReadCloser) error {
	if rc == nil {
		return nil
	}
	_, _ = io.CopyN(io.Discard, rc, drainLimit)
	return rc.Close()
}

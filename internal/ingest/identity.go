package ingest

import (
	"github.com/google/uuid"
)

// SecureUserID derives a stable pseudonymous user id from the transport's
// raw sender id. Records never store the raw id; the same sender always
// maps to the same value for a given salt.
func SecureUserID(salt, rawID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(salt+":"+rawID)).String()
}

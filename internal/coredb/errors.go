// SPDX-License-Identifier: AGPL-3.0-or-later

package coredb

import (
	"errors"
	"strings"

	sqlite3 "modernc.org/sqlite/lib"
)

// ErrJournalQuotaExceeded is returned for an event larger than the whole
// journal budget.
var ErrJournalQuotaExceeded = errors.New("coredb: journal quota exceeded")

// IsQuotaExceeded reports whether err means the journal cannot grow, either
// because of the event size, the database size cap or the disk.
func IsQuotaExceeded(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrJournalQuotaExceeded) {
		return true
	}
	var coded interface{ Code() int }
	if errors.As(err, &coded) && coded.Code()&0xff == int(sqlite3.SQLITE_FULL) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database or disk is full") ||
		(strings.Contains(msg, "quota") && strings.Contains(msg, "exceeded"))
}

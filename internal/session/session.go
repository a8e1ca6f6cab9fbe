// Package session holds scroll-session state: an opaque token mapping to a
// cursor position within one collection's id-ordered point sequence.
package session

import "time"

// Session is the server-held state of one scroll iteration. The cursor is
// the last returned point id (exclusive lower bound for the next page) and
// is strictly increasing for the lifetime of the session.
type Session struct {
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	Cursor     uint64    `json:"cursor"`
	BatchSize  int       `json:"batch_size"`
	Exhausted  bool      `json:"exhausted"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the idle timeout elapsed at the given instant.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

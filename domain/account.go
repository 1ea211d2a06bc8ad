package domain

import "time"

// Account is what the account oracle knows about a user.
// Deleted accounts keep existing so that history stays attributable.
type Account struct {
	ID        string
	Deleted   bool
	CreatedAt time.Time
}

// Package store persists canonical health event records in Redis with
// last-writer-wins conditional upserts, retention-based expiry, and a
// per-account actionable index.
package store

// Redis key layout. The actionable index set and the counts hash are
// maintained atomically with the event record inside the upsert script, so
// the index always reflects stored state.
const (
	eventKeyPrefix   = "event:"
	indexKeyPrefix   = "account:"
	indexKeySuffix   = ":actionable"
	countsKeyPrefix  = "counts:"
	removedKeyPrefix = "removed:"
	accountsKnownKey = "accounts:known"
)

// EventKeyFor returns the Redis key holding one event record.
func EventKeyFor(eventID, accountID string) string {
	return eventKeyPrefix + eventID + ":" + accountID
}

// IndexKeyFor returns the Redis key of an account's actionable event set.
func IndexKeyFor(accountID string) string {
	return indexKeyPrefix + accountID + indexKeySuffix
}

// CountsKeyFor returns the Redis key of an account's live counter hash.
func CountsKeyFor(accountID string) string {
	return countsKeyPrefix + accountID
}

// RemovedKeyFor returns the tombstone key marking one handled removal.
func RemovedKeyFor(eventID, accountID string) string {
	return removedKeyPrefix + eventID + ":" + accountID
}

// AccountsKnownKey returns the Redis key of the known-accounts set.
func AccountsKnownKey() string {
	return accountsKnownKey
}

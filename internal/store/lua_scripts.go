package store

import "github.com/redis/go-redis/v9"

// Lua scripts for direct Redis updates

const (
	// upsertEventScript writes an event record with last-writer-wins
	// ordering and keeps the account's actionable index set and counter
	// hash consistent with the stored record. Returns
	// {prior_status, applied, delta}.
	upsertEventScript = `
		local event_key = KEYS[1]
		local index_key = KEYS[2]
		local counts_key = KEYS[3]
		local accounts_key = KEYS[4]
		local record_json = ARGV[1]
		local last_update = tonumber(ARGV[2])
		local expires_at = tonumber(ARGV[3])
		local actionable = ARGV[4]
		local event_id = ARGV[5]
		local account_id = ARGV[6]
		local now = ARGV[7]

		-- Reject writes older than the stored record
		local prior_status = ''
		local existing = redis.call('GET', event_key)
		if existing then
			local record = cjson.decode(existing)
			prior_status = record['status'] or ''
			local stored = tonumber(record['lastUpdateUnix']) or 0
			if stored > last_update then
				return {prior_status, 0, 0}
			end
		end

		redis.call('SET', event_key, record_json)
		redis.call('EXPIREAT', event_key, expires_at)
		redis.call('SADD', accounts_key, account_id)

		-- Index membership follows the stored status; SADD/SREM report
		-- whether membership actually changed, which gates the counter
		local delta = 0
		if actionable == '1' then
			delta = redis.call('SADD', index_key, event_id)
		else
			delta = -redis.call('SREM', index_key, event_id)
		end
		if delta ~= 0 then
			redis.call('HINCRBY', counts_key, 'actionable', delta)
			redis.call('HSET', counts_key, 'last_updated', now)
		end
		return {prior_status, 1, delta}
	`

	// removeEventScript drops an event from the account's actionable index
	// and decrements the counter, once per removal regardless of redelivery.
	// A live record at the key means it was re-ingested after the expiry
	// this removal reports, so the removal is a no-op; its own expiry will
	// emit a fresh removal. A tombstone marks the removal as handled so a
	// redelivered message cannot strip a record re-ingested in between.
	// Returns the delta applied (0 or -1).
	removeEventScript = `
		local event_key = KEYS[1]
		local index_key = KEYS[2]
		local counts_key = KEYS[3]
		local tombstone_key = KEYS[4]
		local event_id = ARGV[1]
		local now = ARGV[2]
		local tombstone_ttl = tonumber(ARGV[3])

		if redis.call('EXISTS', event_key) == 1 then
			return 0
		end

		local first = redis.call('SET', tombstone_key, now, 'NX', 'EX', tombstone_ttl)
		if not first then
			return 0
		end

		local removed = redis.call('SREM', index_key, event_id)
		if removed == 0 then
			return 0
		end
		redis.call('HINCRBY', counts_key, 'actionable', -1)
		redis.call('HSET', counts_key, 'last_updated', now)
		return -1
	`

	// rebuildCountsScript resets an account's actionable index and counter
	// from an authoritative list of event IDs.
	rebuildCountsScript = `
		local index_key = KEYS[1]
		local counts_key = KEYS[2]
		local now = ARGV[1]

		redis.call('DEL', index_key)
		for i = 2, #ARGV do
			redis.call('SADD', index_key, ARGV[i])
		end
		local count = redis.call('SCARD', index_key)
		redis.call('HSET', counts_key, 'actionable', count)
		redis.call('HSET', counts_key, 'last_updated', now)
		return count
	`
)

// newLuaScripts initializes the Lua scripts for the Store.
func newLuaScripts() (*redis.Script, *redis.Script, *redis.Script) {
	return redis.NewScript(upsertEventScript), redis.NewScript(removeEventScript), redis.NewScript(rebuildCountsScript)
}

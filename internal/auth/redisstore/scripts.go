// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package redisstore

import (
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// createScript writes the field/value pairs in ARGV only if KEYS[1] is absent.
// Returns 1 on write, 0 if the key exists.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// updateScript writes the field/value pairs in ARGV only if KEYS[1] exists.
// Returns 1 on write, 0 if the key is missing.
var updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// incrFailuresScript bumps failed_attempts. ARGV[1] is updated_at.
// Returns the new count, or -1 if the user is missing.
var incrFailuresScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local n = redis.call('HINCRBY', KEYS[1], 'failed_attempts', 1)
redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
return n
`)

// consumeScript marks a token consumed when it exists, has purpose ARGV[1],
// is unconsumed, expires after ARGV[2] and, when ARGV[3] is non-empty, is
// owned by ARGV[3]. Returns the owner, or nil.
var consumeScript = redis.NewScript(`
local t = redis.call('HMGET', KEYS[1], 'username', 'purpose', 'consumed', 'expires_at')
if not t[1] then
  return false
end
if t[2] ~= ARGV[1] or t[3] == '1' or tonumber(t[4]) <= tonumber(ARGV[2]) then
  return false
end
if ARGV[3] ~= '' and t[1] ~= ARGV[3] then
  return false
end
redis.call('HSET', KEYS[1], 'consumed', '1')
return t[1]
`)

// deactivateScript flips an active session inactive. ARGV[1] is
// last_modified. Returns 1 on transition, 0 otherwise.
var deactivateScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'active') ~= '1' then
  return 0
end
redis.call('HSET', KEYS[1], 'active', '0', 'last_modified', ARGV[1])
return 1
`)

// unlockScript deletes KEYS[1] only while it still holds ARGV[1].
var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Timestamps are stored as Unix microseconds; "0" is the zero time.
func encodeTime(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMicro(), 10)
}

func decodeTime(s string) (time.Time, error) {
	us, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if us == 0 {
		return time.Time{}, nil
	}
	return time.UnixMicro(us).UTC(), nil
}

func encodeBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// SPDX-License-Identifier: MIT

package ledger

import "github.com/redis/go-redis/v9"

// Every script starts with a version tag comment. The tag changes the SHA1
// the script cache keys on, so a deploy that edits a script can never collide
// with the cached body loaded by an older binary.
//
// Shared ARGV layout across all four scripts:
//
//	ARGV[1] owner    ARGV[2] version    ARGV[3] ttl_ms    ARGV[4] now_ms
//
// ttl_ms is ignored by release and rollback, now_ms is carried for audit
// parity with the shadow store.

// scriptAcquire locks every key or none. A key held by the requesting owner
// does not conflict: re-acquiring your own seats writes the new version and a
// fresh TTL. Reply: {1} on success, {0, conflicting keys...} otherwise.
const scriptAcquire = `-- sle:acquire:v1
local conflicts = {}
for i = 1, #KEYS do
  local value = redis.call("GET", KEYS[i])
  if value then
    local sep = string.find(value, ":", 1, true)
    if not sep or string.sub(value, sep + 1) ~= ARGV[1] then
      conflicts[#conflicts + 1] = KEYS[i]
    end
  end
end
if #conflicts > 0 then
  local reply = {0}
  for i = 1, #conflicts do
    reply[i + 1] = conflicts[i]
  end
  return reply
end
local value = ARGV[2] .. ":" .. ARGV[1]
for i = 1, #KEYS do
  redis.call("SET", KEYS[i], value, "PX", ARGV[3])
end
return {1}
`

// scriptExtend refreshes the TTL of every key still fenced by the exact
// version and owner. Reply: {applied count, noop keys...}.
const scriptExtend = `-- sle:extend:v1
local fence = ARGV[2] .. ":" .. ARGV[1]
local applied = 0
local noop = {}
for i = 1, #KEYS do
  if redis.call("GET", KEYS[i]) == fence then
    redis.call("PEXPIRE", KEYS[i], ARGV[3])
    applied = applied + 1
  else
    noop[#noop + 1] = KEYS[i]
  end
end
local reply = {applied}
for i = 1, #noop do
  reply[i + 1] = noop[i]
end
return reply
`

// scriptRelease deletes every key still fenced by the exact version and
// owner. Reply: {applied count, noop keys...}.
const scriptRelease = `-- sle:release:v1
local fence = ARGV[2] .. ":" .. ARGV[1]
local applied = 0
local noop = {}
for i = 1, #KEYS do
  if redis.call("GET", KEYS[i]) == fence then
    redis.call("DEL", KEYS[i])
    applied = applied + 1
  else
    noop[#noop + 1] = KEYS[i]
  end
end
local reply = {applied}
for i = 1, #noop do
  reply[i + 1] = noop[i]
end
return reply
`

// scriptRollback compensates a failed shadow commit. The body matches
// release, but the distinct version tag gives it its own SHA1 so the two
// operations stay independently evolvable and separately observable.
const scriptRollback = `-- sle:rollback:v1
local fence = ARGV[2] .. ":" .. ARGV[1]
local applied = 0
local noop = {}
for i = 1, #KEYS do
  if redis.call("GET", KEYS[i]) == fence then
    redis.call("DEL", KEYS[i])
    applied = applied + 1
  else
    noop[#noop + 1] = KEYS[i]
  end
end
local reply = {applied}
for i = 1, #noop do
  reply[i + 1] = noop[i]
end
return reply
`

// Script names used for metrics labels and logging.
const (
	opAcquire  = "acquire"
	opExtend   = "extend"
	opRelease  = "release"
	opRollback = "rollback"
)

func newScripts() map[string]*redis.Script {
	return map[string]*redis.Script{
		opAcquire:  redis.NewScript(scriptAcquire),
		opExtend:   redis.NewScript(scriptExtend),
		opRelease:  redis.NewScript(scriptRelease),
		opRollback: redis.NewScript(scriptRollback),
	}
}

package redis

import "github.com/redis/go-redis/v9"

// The aggregate presence set is a hash user_id → number of processes that
// hold at least one connection for the user. Each process also keeps the set
// of users it contributed, so a dead process can be subtracted exactly once.

// KEYS: online, instance users, instances. ARGV: user id, instance id.
var addOnlineScript = redis.NewScript(`
redis.call('SADD', KEYS[3], ARGV[2])
if redis.call('SADD', KEYS[2], ARGV[1]) == 0 then
  return 0
end
if redis.call('HINCRBY', KEYS[1], ARGV[1], 1) == 1 then
  return 1
end
return 0
`)

// KEYS: online, instance users. ARGV: user id.
var removeOnlineScript = redis.NewScript(`
if redis.call('SREM', KEYS[2], ARGV[1]) == 0 then
  return 0
end
if redis.call('HINCRBY', KEYS[1], ARGV[1], -1) <= 0 then
  redis.call('HDEL', KEYS[1], ARGV[1])
  return 1
end
return 0
`)

// KEYS: online, instance users, instances, instance alive.
// ARGV: instance id, "reap" to require the instance to be dead.
// Returns the users that went offline across all processes.
var releaseInstanceScript = redis.NewScript(`
if ARGV[2] == 'reap' and redis.call('EXISTS', KEYS[4]) == 1 then
  return {}
end
if redis.call('SREM', KEYS[3], ARGV[1]) == 0 and ARGV[2] == 'reap' then
  return {}
end
local offline = {}
for _, u in ipairs(redis.call('SMEMBERS', KEYS[2])) do
  if redis.call('HINCRBY', KEYS[1], u, -1) <= 0 then
    redis.call('HDEL', KEYS[1], u)
    table.insert(offline, u)
  end
end
redis.call('DEL', KEYS[2], KEYS[4])
return offline
`)

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/container-inventory/internal/core/domain"
	"github.com/rl1809/container-inventory/internal/logger"
	"github.com/rl1809/container-inventory/internal/port"
)

var _ port.Store = (*RedisAdapter)(nil)

// valueSeparator joins the values of an "in" condition inside one script argument.
const valueSeparator = "\x1f"

// guardedWriteScript checks every write's guard, then applies every write.
// Nothing is applied unless all guards hold. Returns 0 on success or the
// 1-based index of the first write whose guard failed.
//
// ARGV per write: mode, ncond, (attr, op, values)*, nattr, (attr, value)*
var guardedWriteScript = redis.NewScript(`
local pos = 1
local writes = {}
for i = 1, #KEYS do
	local w = { mode = ARGV[pos], conds = {}, attrs = {} }
	pos = pos + 1
	local ncond = tonumber(ARGV[pos])
	pos = pos + 1
	for c = 1, ncond do
		w.conds[c] = { ARGV[pos], ARGV[pos + 1], ARGV[pos + 2] }
		pos = pos + 3
	end
	local nattr = tonumber(ARGV[pos])
	pos = pos + 1
	for a = 1, nattr do
		w.attrs[a] = { ARGV[pos], ARGV[pos + 1] }
		pos = pos + 2
	end
	writes[i] = w
end

local function holds(current, op, values)
	local present = current and current ~= ''
	if op == 'absent' then
		return not present
	end
	if not present then
		return false
	end
	if op == 'eq' then
		return current == values
	end
	if op == 'in' then
		for v in string.gmatch(values, '[^\31]+') do
			if v == current then
				return true
			end
		end
	end
	return false
end

for i = 1, #KEYS do
	local w = writes[i]
	local exists = redis.call('EXISTS', KEYS[i]) == 1
	if (w.mode == 'create') == exists then
		return i
	end
	for _, c in ipairs(w.conds) do
		if not holds(redis.call('HGET', KEYS[i], c[1]), c[2], c[3]) then
			return i
		end
	end
end

for i = 1, #KEYS do
	for _, a in ipairs(writes[i].attrs) do
		if a[2] == '' then
			redis.call('HDEL', KEYS[i], a[1])
		else
			redis.call('HSET', KEYS[i], a[1], a[2])
		end
	end
end
return 0
`)

// RedisAdapter stores records as hashes. Keys carry the warehouse as a hash tag
// so that every record of one transaction lands in the same cluster slot.
type RedisAdapter struct {
	client redis.UniversalClient
	log    *logger.Logger
}

func NewRedisAdapter(client redis.UniversalClient, log *logger.Logger) *RedisAdapter {
	return &RedisAdapter{client: client, log: log.Component("redis-store")}
}

func redisKey(k domain.Key) string {
	return fmt.Sprintf("%s:{%s}:%s", k.Table, k.WarehouseID, k.ID)
}

func (r *RedisAdapter) Get(ctx context.Context, key domain.Key) (domain.Record, bool, error) {
	fields, err := r.client.HGetAll(ctx, redisKey(key)).Result()
	if err != nil {
		return nil, false, classifyRedisError("get", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	return domain.Record(fields), true, nil
}

func (r *RedisAdapter) Put(ctx context.Context, write domain.Write) error {
	return r.Transact(ctx, []domain.Write{write})
}

func (r *RedisAdapter) Transact(ctx context.Context, writes []domain.Write) error {
	if len(writes) == 0 {
		return nil
	}

	keys := make([]string, len(writes))
	args := make([]any, 0, len(writes)*8)
	for i, w := range writes {
		keys[i] = redisKey(w.Key)
		args = append(args, string(w.Mode), len(w.Conditions))
		for _, c := range w.Conditions {
			args = append(args, c.Attr, string(c.Op), strings.Join(c.Values, valueSeparator))
		}
		args = append(args, len(w.Attributes))
		for attr, v := range w.Attributes {
			args = append(args, attr, v)
		}
	}

	failed, err := guardedWriteScript.Run(ctx, r.client, keys, args...).Int()
	if err != nil {
		return classifyRedisError("transact", err)
	}
	if failed != 0 {
		idx := failed - 1
		r.log.Trace().Int("index", idx).Str("key", keys[idx]).Msg("guard failed")
		return &domain.TransactionCanceledError{Index: idx, Key: writes[idx].Key}
	}
	return nil
}

func (r *RedisAdapter) BatchGet(ctx context.Context, keys []domain.Key) (map[domain.Key]domain.Record, error) {
	if len(keys) == 0 {
		return map[domain.Key]domain.Record{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.HGetAll(ctx, redisKey(k))
		}
		return nil
	})
	if err != nil {
		return nil, classifyRedisError("batch get", err)
	}

	found := make(map[domain.Key]domain.Record, len(keys))
	for i, cmd := range cmds {
		if fields := cmd.Val(); len(fields) > 0 {
			found[keys[i]] = domain.Record(fields)
		}
	}
	return found, nil
}

var transientRedisPrefixes = []string{"LOADING", "BUSY", "TRYAGAIN", "CLUSTERDOWN", "MASTERDOWN", "READONLY"}

func classifyRedisError(op string, err error) error {
	if isTransientRedisError(err) {
		return domain.NewError(domain.KindRetriable, "redis "+op, "", err)
	}
	return domain.NewError(domain.KindNonRetriable, "redis "+op, "", err)
}

func isTransientRedisError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, redis.ErrClosed) {
		return true
	}
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		msg := redisErr.Error()
		for _, prefix := range transientRedisPrefixes {
			if strings.HasPrefix(msg, prefix) {
				return true
			}
		}
	}
	return false
}

package state

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
)

type ValkeyManager struct {
	client valkey.Client
}

func NewValkeyManager(client valkey.Client) *ValkeyManager {
	return &ValkeyManager{client: client}
}

func (r *ValkeyManager) CountRequest(ctx context.Context, key string, window time.Duration) (int64, error) {
	setKey := fmt.Sprintf("overmind:requests:%s", key)

	// Sliding window over a sorted set scored by server time in microseconds.
	// The member carries a nonce so concurrent requests in the same
	// microsecond still count separately.
	script := `
		local time = redis.call('TIME')
		local now_micro = time[1] * 1000000 + time[2]
		local window_micro = tonumber(ARGV[1]) * 1000
		redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, now_micro - window_micro)
		redis.call('ZADD', KEYS[1], now_micro, now_micro .. ':' .. ARGV[2])
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
		return redis.call('ZCARD', KEYS[1])
	`

	resp := r.client.Do(ctx, r.client.B().Eval().Script(script).Numkeys(1).Key(setKey).Arg(
		fmt.Sprintf("%d", window.Milliseconds()),
		uuid.NewString(),
	).Build())

	count, err := resp.AsInt64()
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ValkeyManager) SaveCache(
	ctx context.Context, key string, value []byte, duration time.Duration,
) error {
	return r.client.Do(
		ctx, r.client.B().Set().
			Key(key).
			Value(valkey.BinaryString(value)).
			Ex(duration).
			Build(),
	).Error()
}

func (r *ValkeyManager) LoadCache(ctx context.Context, key string) ([]byte, error) {
	valkeyResponse := r.client.Do(ctx, r.client.B().Get().Key(key).Build())
	if err := valkeyResponse.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, err
	}
	return valkeyResponse.AsBytes()
}

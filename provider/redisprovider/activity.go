package redisprovider

import (
	"context"
	"encoding/json"
	"fmt"

	portalAuth "github.com/MrEthical07/portalAuth"
	"github.com/redis/go-redis/v9"
)

const activityField = "record"

func appendActivity(ctx context.Context, rdb redis.UniversalClient, key string, maxLen int64, a portalAuth.Activity) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: key,
		Values: map[string]any{activityField: data},
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	if err := rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// readActivity returns up to n records, newest first. Entries that fail to decode
// are skipped.
func readActivity(ctx context.Context, rdb redis.UniversalClient, key string, n int64) ([]portalAuth.Activity, error) {
	if n <= 0 {
		return nil, nil
	}
	msgs, err := rdb.XRevRangeN(ctx, key, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]portalAuth.Activity, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values[activityField].(string)
		if !ok {
			continue
		}
		var a portalAuth.Activity
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

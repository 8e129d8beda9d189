package redis

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	redisLib "github.com/redis/go-redis/v9"

	"github.com/gnuser/red-envelope-server/domain/num"
)

type Options struct {
	Addr     string
	Password string
	DB       int
}

// PriceStore keeps the last trade price of every market under
// k:<market>:last.
type PriceStore struct {
	cli *redisLib.Client
}

func NewPriceStore(ctx context.Context, opts Options) (*PriceStore, error) {
	cli := redisLib.NewClient(&redisLib.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, errors.Wrapf(err, "ping redis %s", opts.Addr)
	}
	return &PriceStore{cli: cli}, nil
}

func lastKey(market string) string {
	return fmt.Sprintf("k:%s:last", market)
}

func (s *PriceStore) SetLast(ctx context.Context, market string, price num.Decimal) error {
	return s.cli.Set(ctx, lastKey(market), price.String(), 0).Err()
}

// LoadLast returns the stored last price of each market that has one.
func (s *PriceStore) LoadLast(ctx context.Context, markets []string) (map[string]num.Decimal, error) {
	out := make(map[string]num.Decimal, len(markets))
	if len(markets) == 0 {
		return out, nil
	}

	keys := make([]string, len(markets))
	for i, m := range markets {
		keys[i] = lastKey(m)
	}

	vals, err := s.cli.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		price, err := num.DecimalFromString(str)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", keys[i])
		}
		out[markets[i]] = price
	}
	return out, nil
}

func (s *PriceStore) Close() error {
	return s.cli.Close()
}

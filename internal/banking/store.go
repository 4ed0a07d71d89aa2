package banking

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	balanceKeyPrefix = "account:balance:"

	// DefaultSeedBalance is the opening balance, in cents, of unknown accounts.
	DefaultSeedBalance int64 = 100000

	maxTxRetries = 10
)

// seedBalances holds the opening balances, in cents, of the demo accounts.
var seedBalances = map[string]int64{
	"acc_001": 100000,
	"acc_002": 50000,
	"acc_003": 250000,
	"acc_004": 75000,
}

// SeedBalance returns the opening balance of an account in cents.
func SeedBalance(accountID string) int64 {
	if b, ok := seedBalances[accountID]; ok {
		return b
	}
	return DefaultSeedBalance
}

// Store keeps account balances in Redis.
type Store struct {
	client *redis.Client
	logger *zap.Logger
}

// NewStore creates a new balance store
func NewStore(client *redis.Client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client: client,
		logger: logger,
	}
}

func balanceKey(accountID string) string {
	return balanceKeyPrefix + accountID
}

// Balance returns the balance of an account in cents.
func (s *Store) Balance(ctx context.Context, accountID string) (int64, error) {
	return s.balance(ctx, s.client, accountID)
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Store) balance(ctx context.Context, c getter, accountID string) (int64, error) {
	raw, err := c.Get(ctx, balanceKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return SeedBalance(accountID), nil
		}
		return 0, fmt.Errorf("failed to load balance: %w", err)
	}

	balance, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse balance for %s: %w", accountID, err)
	}
	return balance, nil
}

// Withdraw debits an account and returns the new balance. When the balance
// does not cover the amount, the current balance is returned together with
// ErrInsufficientFunds.
func (s *Store) Withdraw(ctx context.Context, accountID string, cents int64) (int64, error) {
	if cents <= 0 {
		return 0, fmt.Errorf("%w: %d cents", ErrInvalidAmount, cents)
	}

	key := balanceKey(accountID)
	var after int64

	txf := func(tx *redis.Tx) error {
		current, err := s.balance(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if current < cents {
			after = current
			return ErrInsufficientFunds
		}

		after = current - cents
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, after, 0)
			return nil
		})
		return err
	}

	// Optimistic locking: retry when another worker touched the balance
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			s.logger.Debug("balance updated",
				zap.String("account_id", accountID),
				zap.Int64("balance_after", after))
			return after, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrInsufficientFunds):
			return after, err
		default:
			return 0, fmt.Errorf("failed to withdraw from %s: %w", accountID, err)
		}
	}

	return 0, fmt.Errorf("failed to withdraw from %s: %w", accountID, redis.TxFailedErr)
}

// Deposit credits an account and returns the new balance.
func (s *Store) Deposit(ctx context.Context, accountID string, cents int64) (int64, error) {
	if cents <= 0 {
		return 0, fmt.Errorf("%w: %d cents", ErrInvalidAmount, cents)
	}

	key := balanceKey(accountID)

	// Seed the account if needed, then increment, in one MULTI
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, SeedBalance(accountID), 0)
		incr = pipe.IncrBy(ctx, key, cents)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to deposit to %s: %w", accountID, err)
	}

	after := incr.Val()
	s.logger.Debug("balance updated",
		zap.String("account_id", accountID),
		zap.Int64("balance_after", after))
	return after, nil
}

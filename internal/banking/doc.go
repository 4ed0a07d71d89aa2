// Package banking implements the money-transfer workload executed by the
// worker fleet: withdraw, deposit and transfer tasks on account balances
// kept in Redis.
//
// Balances are stored in cents under account:balance:<id>. Accounts that
// have never been written start from a seed balance, so the demo works
// against an empty Redis.
//
// Example:
//
//	store := banking.NewStore(redisClient, logger)
//	svc := banking.NewService(store, logger)
//	svc.Register(registry)
//
// An insufficient balance is a business outcome: the handler returns a
// Result with Success set to false and a nil error, so the task is not
// retried.
package banking

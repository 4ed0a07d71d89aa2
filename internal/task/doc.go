// Package task defines the unit of work exchanged over the task queue and
// the handler interface that executes it.
//
// A Task is a JSON envelope with a type, an opaque payload and a header map
// that carries W3C baggage (and with it the routing key). Handlers are
// registered per task type in a Registry, which is itself a Handler:
//
//	registry := task.NewRegistry()
//	registry.Register("withdraw", banking.NewWithdrawHandler(store, logger))
//
//	t, _ := task.New("withdraw", banking.WithdrawRequest{AccountID: "acc_001", Amount: "10.00"})
//	_ = t.SetRoutingKey("canary1")
//	result, err := registry.Handle(ctx, t)
//
// Handler errors are infrastructure failures and are retried by the
// transport. A business failure, such as insufficient funds, is a Result
// with Success set to false.
package task

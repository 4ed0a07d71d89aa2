package commands

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/aescanero/dago-sandbox-router/internal/banking"
	"github.com/aescanero/dago-sandbox-router/internal/config"
	"github.com/aescanero/dago-sandbox-router/internal/task"
	"github.com/aescanero/dago-sandbox-router/internal/worker"
)

type enqueueOptions struct {
	taskType   string
	from       string
	to         string
	amount     string
	reference  string
	routingKey string
	transport  string
	count      int
}

// NewEnqueueCmd creates the enqueue command
func NewEnqueueCmd() *cobra.Command {
	opts := &enqueueOptions{}

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a money-transfer task",
		Long: `Enqueue a withdraw, deposit or transfer task on the fleet's queue.

With --routing-key the task carries the key in its W3C baggage header and is
executed by the sandbox that claims the key; without it the baseline runs it.

Examples:
  sandboxctl enqueue --type transfer --from acc_001 --to acc_002 --amount 10.00
  sandboxctl enqueue --type transfer --from acc_001 --to acc_002 --amount 10.00 --routing-key canary1
  sandboxctl enqueue --type withdraw --from acc_003 --amount 5 --transport amqp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnqueue(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.taskType, "type", banking.TypeTransfer, "Task type: transfer, withdraw or deposit")
	cmd.Flags().StringVar(&opts.from, "from", "", "Source account (transfer, withdraw)")
	cmd.Flags().StringVar(&opts.to, "to", "", "Destination account (transfer, deposit)")
	cmd.Flags().StringVar(&opts.amount, "amount", "", "Amount, e.g. 10.00")
	cmd.Flags().StringVar(&opts.reference, "reference", "", "Free-form payment reference")
	cmd.Flags().StringVar(&opts.routingKey, "routing-key", "", "Routing key to attach as baggage")
	cmd.Flags().StringVar(&opts.transport, "transport", "", "Transport override: redis or amqp")
	cmd.Flags().IntVar(&opts.count, "count", 1, "Number of tasks to enqueue")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

// buildTask creates the task described by opts
func buildTask(opts *enqueueOptions) (*task.Task, error) {
	var payload any
	switch opts.taskType {
	case banking.TypeTransfer:
		if opts.from == "" || opts.to == "" {
			return nil, fmt.Errorf("transfer requires --from and --to")
		}
		payload = banking.TransferRequest{FromAccount: opts.from, ToAccount: opts.to, Amount: opts.amount, Reference: opts.reference}
	case banking.TypeWithdraw:
		if opts.from == "" {
			return nil, fmt.Errorf("withdraw requires --from")
		}
		payload = banking.WithdrawRequest{AccountID: opts.from, Amount: opts.amount, Reference: opts.reference}
	case banking.TypeDeposit:
		if opts.to == "" {
			return nil, fmt.Errorf("deposit requires --to")
		}
		payload = banking.DepositRequest{AccountID: opts.to, Amount: opts.amount, Reference: opts.reference}
	default:
		return nil, fmt.Errorf("unknown task type %q", opts.taskType)
	}

	if _, err := banking.ParseAmount(opts.amount); err != nil {
		return nil, err
	}

	t, err := task.New(opts.taskType, payload)
	if err != nil {
		return nil, err
	}
	if opts.routingKey != "" {
		if err := t.SetRoutingKey(opts.routingKey); err != nil {
			return nil, fmt.Errorf("setting routing key: %w", err)
		}
	}
	return t, nil
}

func runEnqueue(cmd *cobra.Command, opts *enqueueOptions) error {
	if opts.count < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.transport != "" {
		cfg.Transport = opts.transport
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	enqueuer, closeFn, err := newEnqueuer(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	routedTo := "None (baseline)"
	if opts.routingKey != "" {
		routedTo = opts.routingKey
	}

	for i := 0; i < opts.count; i++ {
		t, err := buildTask(opts)
		if err != nil {
			return err
		}
		if err := enqueuer.Enqueue(ctx, t); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %s task %s via %s, routing key: %s\n", t.Type, t.ID, cfg.Transport, routedTo)
	}
	return nil
}

// newEnqueuer connects to the configured transport
func newEnqueuer(cfg *config.Config) (worker.Enqueuer, func(), error) {
	switch cfg.Transport {
	case config.TransportAMQP:
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to rabbitmq: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("opening channel: %w", err)
		}
		if err := worker.DeclareTopology(ch, cfg.AMQPQueue, cfg.AMQPResultQueue); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return worker.NewAMQPProducer(ch, cfg.AMQPQueue), func() { _ = conn.Close() }, nil

	default:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return worker.NewStreamProducer(client, cfg.StreamKey), func() { _ = client.Close() }, nil
	}
}

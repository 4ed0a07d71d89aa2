package banking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aescanero/dago-sandbox-router/internal/task"
)

// Task types handled by the service.
const (
	TypeWithdraw = "withdraw"
	TypeDeposit  = "deposit"
	TypeTransfer = "transfer"
)

// WithdrawRequest is the payload of a withdraw task.
type WithdrawRequest struct {
	AccountID string `json:"account_id"`
	Amount    string `json:"amount"`
	Reference string `json:"reference,omitempty"`
}

// DepositRequest is the payload of a deposit task.
type DepositRequest struct {
	AccountID string `json:"account_id"`
	Amount    string `json:"amount"`
	Reference string `json:"reference,omitempty"`
}

// TransferRequest is the payload of a transfer task.
type TransferRequest struct {
	FromAccount string `json:"from_account"`
	ToAccount   string `json:"to_account"`
	Amount      string `json:"amount"`
	Reference   string `json:"reference,omitempty"`
}

// Service executes banking tasks against a Store.
type Service struct {
	store  *Store
	logger *zap.Logger
}

// NewService creates a new banking service
func NewService(store *Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Register adds the banking handlers to a registry.
func (s *Service) Register(registry *task.Registry) {
	registry.Register(TypeWithdraw, task.HandlerFunc(s.HandleWithdraw))
	registry.Register(TypeDeposit, task.HandlerFunc(s.HandleDeposit))
	registry.Register(TypeTransfer, task.HandlerFunc(s.HandleTransfer))
}

// HandleWithdraw debits one account.
func (s *Service) HandleWithdraw(ctx context.Context, t *task.Task) (*task.Result, error) {
	var req WithdrawRequest
	if err := t.DecodePayload(&req); err != nil {
		return nil, err
	}
	cents, err := parseRequestAmount(req.AccountID, req.Amount)
	if err != nil {
		return nil, err
	}

	s.logger.Info("processing withdrawal",
		zap.String("task_id", t.ID),
		zap.String("account_id", req.AccountID),
		zap.String("amount", req.Amount))

	after, err := s.store.Withdraw(ctx, req.AccountID, cents)
	if errors.Is(err, ErrInsufficientFunds) {
		return s.rejected(t, req.AccountID, cents, after, "Insufficient funds"), nil
	}
	if err != nil {
		return nil, err
	}

	txID := uuid.NewString()
	s.logger.Info("withdrawal successful", zap.String("transaction_id", txID))
	return s.completed(t, "Withdrawal successful", map[string]any{
		"transaction_id": txID,
		"account_id":     req.AccountID,
		"amount":         FormatAmount(cents),
		"balance_after":  FormatAmount(after),
	}), nil
}

// HandleDeposit credits one account.
func (s *Service) HandleDeposit(ctx context.Context, t *task.Task) (*task.Result, error) {
	var req DepositRequest
	if err := t.DecodePayload(&req); err != nil {
		return nil, err
	}
	cents, err := parseRequestAmount(req.AccountID, req.Amount)
	if err != nil {
		return nil, err
	}

	s.logger.Info("processing deposit",
		zap.String("task_id", t.ID),
		zap.String("account_id", req.AccountID),
		zap.String("amount", req.Amount))

	after, err := s.store.Deposit(ctx, req.AccountID, cents)
	if err != nil {
		return nil, err
	}

	txID := uuid.NewString()
	s.logger.Info("deposit successful", zap.String("transaction_id", txID))
	return s.completed(t, "Deposit successful", map[string]any{
		"transaction_id": txID,
		"account_id":     req.AccountID,
		"amount":         FormatAmount(cents),
		"balance_after":  FormatAmount(after),
	}), nil
}

// HandleTransfer withdraws from the source account and deposits into the
// destination. A failed deposit refunds the withdrawal before the error is
// returned, so a retry starts from the original balances.
func (s *Service) HandleTransfer(ctx context.Context, t *task.Task) (*task.Result, error) {
	var req TransferRequest
	if err := t.DecodePayload(&req); err != nil {
		return nil, err
	}
	if req.FromAccount == "" || req.ToAccount == "" {
		return nil, fmt.Errorf("%w: from_account and to_account are required", task.ErrInvalidTask)
	}
	if req.FromAccount == req.ToAccount {
		return nil, fmt.Errorf("%w: cannot transfer to the same account", task.ErrInvalidTask)
	}
	cents, err := parseRequestAmount(req.FromAccount, req.Amount)
	if err != nil {
		return nil, err
	}

	s.logger.Info("starting money transfer",
		zap.String("task_id", t.ID),
		zap.String("from_account", req.FromAccount),
		zap.String("to_account", req.ToAccount),
		zap.String("amount", req.Amount))

	// Step 1: withdraw from the source account
	fromAfter, err := s.store.Withdraw(ctx, req.FromAccount, cents)
	if errors.Is(err, ErrInsufficientFunds) {
		s.logger.Info("transfer rejected", zap.String("task_id", t.ID), zap.Error(err))
		return s.rejected(t, req.FromAccount, cents, fromAfter, "Transfer failed: Insufficient funds"), nil
	}
	if err != nil {
		return nil, err
	}
	withdrawID := uuid.NewString()

	// Step 2: deposit into the destination account
	toAfter, err := s.store.Deposit(ctx, req.ToAccount, cents)
	if err != nil {
		if _, refundErr := s.store.Deposit(context.WithoutCancel(ctx), req.FromAccount, cents); refundErr != nil {
			s.logger.Error("failed to refund withdrawal",
				zap.String("task_id", t.ID),
				zap.String("account_id", req.FromAccount),
				zap.Error(refundErr))
			return nil, fmt.Errorf("deposit failed: %w (refund failed: %v)", err, refundErr)
		}
		return nil, fmt.Errorf("deposit failed, withdrawal refunded: %w", err)
	}
	depositID := uuid.NewString()

	s.logger.Info("money transfer completed",
		zap.String("task_id", t.ID),
		zap.String("withdraw_transaction_id", withdrawID),
		zap.String("deposit_transaction_id", depositID))

	return s.completed(t, fmt.Sprintf("Transfer complete: %s -> %s", withdrawID, depositID), map[string]any{
		"withdraw_transaction_id": withdrawID,
		"deposit_transaction_id":  depositID,
		"from_account":            req.FromAccount,
		"to_account":              req.ToAccount,
		"amount":                  FormatAmount(cents),
		"from_balance_after":      FormatAmount(fromAfter),
		"to_balance_after":        FormatAmount(toAfter),
	}), nil
}

func parseRequestAmount(accountID, amount string) (int64, error) {
	if accountID == "" {
		return 0, fmt.Errorf("%w: account_id is required", task.ErrInvalidTask)
	}
	cents, err := ParseAmount(amount)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", task.ErrInvalidTask, err)
	}
	return cents, nil
}

func (s *Service) completed(t *task.Task, message string, output map[string]any) *task.Result {
	return &task.Result{
		TaskID:      t.ID,
		Type:        t.Type,
		Success:     true,
		Message:     message,
		Output:      output,
		CompletedAt: time.Now().UTC(),
	}
}

func (s *Service) rejected(t *task.Task, accountID string, cents, balance int64, message string) *task.Result {
	return &task.Result{
		TaskID:  t.ID,
		Type:    t.Type,
		Success: false,
		Message: message,
		Output: map[string]any{
			"account_id":    accountID,
			"amount":        FormatAmount(cents),
			"balance_after": FormatAmount(balance),
		},
		CompletedAt: time.Now().UTC(),
	}
}

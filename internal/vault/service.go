// Package vault drives the custodial UserVault contract: registration,
// password login, logout, withdrawals and the account's vault record.
package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/justinabrahms/gomokuvault/internal/ledger"
	"github.com/rs/zerolog"
)

// ErrInvalidInput marks a request rejected before anything was submitted.
var ErrInvalidInput = errors.New("invalid input")

const (
	loginFallback      = "Login failed, please check password or if account is registered"
	alreadyRegistered  = "User already registered"
	registeredMessage  = "You have already registered with this address"
	registerFallback   = "Registration failed"
	logoutFallback     = "Logout failed"
	withdrawFallback   = "Withdraw failed"
	userInfoFallback   = "Failed to load vault record"
	missingFieldsError = "Please fill in all fields"
)

// Ledger is the vault contract surface. *ledger.Client implements it.
type Ledger interface {
	Account(ctx context.Context) (common.Address, error)
	UserInfo(ctx context.Context) (ledger.UserInfo, error)
	RegisterUser(ctx context.Context, username, password string) (ledger.PendingTx, error)
	Login(ctx context.Context, password string) (ledger.PendingTx, error)
	Logout(ctx context.Context) (ledger.PendingTx, error)
	Withdraw(ctx context.Context, amount *big.Int) (ledger.PendingTx, error)
}

// Error carries the message shown to the user alongside the cause.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil || errors.Is(e.Err, ErrInvalidInput) {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Service wraps the vault contract calls.
type Service struct {
	ledger     Ledger
	logger     zerolog.Logger
	afterWrite func(ctx context.Context) error
}

// Option configures the service
type Option func(*Service)

// WithLogger sets a custom logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithAfterWrite runs fn once every successful write is mined. Its error is
// logged, not returned.
func WithAfterWrite(fn func(ctx context.Context) error) Option {
	return func(s *Service) {
		s.afterWrite = fn
	}
}

func New(l Ledger, opts ...Option) *Service {
	s := &Service{
		ledger: l,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates the vault record of the signing account.
func (s *Service) Register(ctx context.Context, username, password, confirm string) error {
	const op = "register"

	if username == "" || password == "" || confirm == "" {
		return &Error{Op: op, Message: missingFieldsError, Err: ErrInvalidInput}
	}
	if password != confirm {
		return &Error{Op: op, Message: "Passwords do not match", Err: ErrInvalidInput}
	}

	if err := s.write(ctx, "registerUser", func(ctx context.Context) (ledger.PendingTx, error) {
		return s.ledger.RegisterUser(ctx, username, password)
	}); err != nil {
		msg := ledger.Reason(err, registerFallback)
		if strings.Contains(msg, alreadyRegistered) {
			msg = registeredMessage
		}
		return &Error{Op: op, Message: msg, Err: err}
	}

	s.logger.Info().Str("username", username).Msg("User registered")
	return nil
}

// Login proves the password to the vault and returns the logged-in account.
func (s *Service) Login(ctx context.Context, password string) (common.Address, error) {
	const op = "login"

	if password == "" {
		return common.Address{}, &Error{Op: op, Message: missingFieldsError, Err: ErrInvalidInput}
	}

	if err := s.write(ctx, "login", func(ctx context.Context) (ledger.PendingTx, error) {
		return s.ledger.Login(ctx, password)
	}); err != nil {
		msg := ledger.RevertReason(err)
		if msg == "" {
			msg = loginFallback
		}
		return common.Address{}, &Error{Op: op, Message: msg, Err: err}
	}

	account, err := s.ledger.Account(ctx)
	if err != nil {
		return common.Address{}, &Error{Op: op, Message: loginFallback, Err: err}
	}

	s.logger.Info().Str("account", account.Hex()).Msg("User logged in")
	return account, nil
}

func (s *Service) Logout(ctx context.Context) error {
	if err := s.write(ctx, "logout", s.ledger.Logout); err != nil {
		return &Error{Op: "logout", Message: ledger.Reason(err, logoutFallback), Err: err}
	}
	s.logger.Info().Msg("User logged out")
	return nil
}

// Withdraw moves amount (decimal ether) out of the vault to the account.
func (s *Service) Withdraw(ctx context.Context, amount string) error {
	const op = "withdraw"

	wei, err := ledger.ParseEther(amount)
	if err != nil || wei.Sign() <= 0 {
		return &Error{Op: op, Message: "Please enter a valid amount", Err: ErrInvalidInput}
	}

	if err := s.write(ctx, "withdraw", func(ctx context.Context) (ledger.PendingTx, error) {
		return s.ledger.Withdraw(ctx, wei)
	}); err != nil {
		return &Error{Op: op, Message: ledger.Reason(err, withdrawFallback), Err: err}
	}

	s.logger.Info().Str("amount", ledger.FormatEther(wei)).Msg("Withdraw successful")
	return nil
}

// UserInfo returns the vault record of the signing account.
func (s *Service) UserInfo(ctx context.Context) (ledger.UserInfo, error) {
	info, err := s.ledger.UserInfo(ctx)
	if err != nil {
		return ledger.UserInfo{}, &Error{Op: "user info", Message: ledger.Reason(err, userInfoFallback), Err: err}
	}
	return info, nil
}

func (s *Service) write(ctx context.Context, method string, send func(context.Context) (ledger.PendingTx, error)) error {
	tx, err := send(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("method", method).Msg("Vault transaction not submitted")
		return err
	}
	if err := tx.Wait(ctx); err != nil {
		s.logger.Error().Err(err).Str("method", method).Str("tx", tx.Hash().Hex()).Msg("Vault transaction failed")
		return err
	}

	if s.afterWrite != nil {
		if err := s.afterWrite(ctx); err != nil {
			s.logger.Warn().Err(err).Str("method", method).Msg("Refresh after vault write failed")
		}
	}
	return nil
}

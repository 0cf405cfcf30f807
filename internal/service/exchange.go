// Package service implements order placement, cancellation and matching
// over the transactional ledger store.
package service

import (
	"errors"
	"log/slog"

	"exchange_core/internal/domain"
	"exchange_core/internal/infra"
	"exchange_core/internal/infra/storage"
)

// DefaultFeeRate is the taker fee charged to the buyer on every match.
var DefaultFeeRate = domain.MustMoney("0.015")

// User-facing failure reasons.
const (
	ReasonBuyFailed          = "Unable to buy order"
	ReasonSellFailed         = "Unable to sell order"
	ReasonCancelFailed       = "Unable to cancel order. Order may already be filled or cancelled."
	ReasonInsufficientCash   = "No sufficient balance to buy"
	ReasonAssetNotAvailable  = "Asset not available to sell"
	ReasonInsufficientAssets = "No sufficient asset to sell"
	ReasonInvalidOrder       = "Invalid order"
)

// Exchange is the order core. It holds no state of its own; every
// operation runs in one store transaction.
type Exchange struct {
	store      *storage.Storage
	dispatcher domain.Dispatcher
	notifier   domain.Notifier
	metrics    *infra.Metrics
	feeRate    domain.Money
	logger     *slog.Logger
}

// Option configures an Exchange.
type Option func(*Exchange)

// WithFeeRate overrides DefaultFeeRate.
func WithFeeRate(rate domain.Money) Option {
	return func(e *Exchange) { e.feeRate = rate }
}

// WithMetrics records into m instead of infra.GlobalMetrics.
func WithMetrics(m *infra.Metrics) Option {
	return func(e *Exchange) { e.metrics = m }
}

// NewExchange wires the core to its store and collaborators.
func NewExchange(store *storage.Storage, dispatcher domain.Dispatcher, notifier domain.Notifier, opts ...Option) *Exchange {
	e := &Exchange{
		store:      store,
		dispatcher: dispatcher,
		notifier:   notifier,
		metrics:    infra.GlobalMetrics,
		feeRate:    DefaultFeeRate,
		logger:     slog.Default().With("module", "exchange"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FeeRate returns the configured taker fee rate.
func (e *Exchange) FeeRate() domain.Money {
	return e.feeRate
}

func classify(err error) domain.Kind {
	switch {
	case errors.Is(err, errIntegrity),
		errors.Is(err, domain.ErrLockedUnderflow):
		return domain.KindIntegrity
	case errors.Is(err, domain.ErrInvalidOrder),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientInventory),
		errors.Is(err, domain.ErrPositionNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrOrderNotCancellable):
		return domain.KindValidation
	default:
		return domain.KindStorage
	}
}

// errIntegrity marks a cause that would otherwise look like a validation
// outcome but means the ledger is inconsistent.
var errIntegrity = errors.New("ledger integrity violated")

// integrity wraps err so classify reports KindIntegrity.
func integrity(err error) error {
	return errors.Join(errIntegrity, err)
}

// failure builds the error returned across the service boundary and
// records integrity faults for operations.
func (e *Exchange) failure(reason string, err error) *domain.Failure {
	f := &domain.Failure{Kind: classify(err), Reason: reason, Err: err}
	if f.Kind == domain.KindIntegrity {
		e.metrics.RecordIntegrityFailure()
	}
	return f
}

package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a transport error talking to the dispatch queue
type NetworkError struct {
	Op        string // Operation that failed (e.g., "publish", "fetch", "commit")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Kind classifies a failed operation.
type Kind int

const (
	// KindValidation is an expected business outcome (insufficient funds, order not open).
	KindValidation Kind = iota + 1
	// KindIntegrity means an upstream invariant was violated; surfaced to operations.
	KindIntegrity
	// KindStorage is a transaction or connection error.
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindIntegrity:
		return "integrity"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Failure is the only error type PlaceOrder and CancelOrder return.
// Reason is safe to show to the end user; Err carries the cause for logs.
type Failure struct {
	Kind   Kind
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Kind.String() + ": " + f.Reason
	}
	return f.Kind.String() + ": " + f.Reason + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// KindOf returns the Kind of a Failure, or 0 for any other error.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return 0
}

var (
	// ErrInvalidOrder is returned for a non-positive price/amount or unknown side.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrInsufficientBalance is returned when a user's cash cannot cover a debit.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientInventory is returned when available inventory cannot cover a sell.
	ErrInsufficientInventory = errors.New("insufficient inventory")

	// ErrLockedUnderflow is returned when locked inventory would go negative.
	ErrLockedUnderflow = errors.New("locked inventory underflow")

	// ErrPositionNotFound is returned when a user holds no position in the symbol.
	ErrPositionNotFound = errors.New("inventory position not found")

	// ErrUserNotFound is returned when a user row does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrOrderNotFound is returned when an order row does not exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderNotCancellable is returned when the order is missing, foreign or no longer OPEN.
	ErrOrderNotCancellable = errors.New("order not cancellable")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)

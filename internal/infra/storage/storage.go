package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"exchange_core/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects the backend.
// An empty DSN with the sqlite driver resolves to a per-user data file.
type Options struct {
	Driver string
	DSN    string
}

// Storage is the transactional ledger of users, inventory positions and orders.
type Storage struct {
	db     *gorm.DB
	driver string
}

// NewStorage opens the configured backend and migrates the schema.
func NewStorage(opts Options) (*Storage, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		dsn := opts.DSN
		if dsn == "" {
			dbPath, err := getDBPath()
			if err != nil {
				return nil, fmt.Errorf("failed to resolve DB path: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
				return nil, fmt.Errorf("failed to create DB directory: %w", err)
			}
			dsn = dbPath
		}
		return open(sqlite.Open(dsn), DriverSQLite)
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres driver requires a DSN")
		}
		return open(postgres.Open(opts.DSN), DriverPostgres)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}

func open(dialector gorm.Dialector, driver string) (*Storage, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite has no row locks: one connection serializes every transaction,
		// which is at least as strong as the FOR UPDATE locks used on Postgres.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
	}

	if err := db.AutoMigrate(&domain.User{}, &domain.InventoryPosition{}, &domain.Order{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db, driver: driver}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "ExchangeCore", "data", "exchange.db"), nil
}

// Driver reports the backend in use.
func (s *Storage) Driver() string {
	return s.driver
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InTx runs fn inside one database transaction. Returning an error (or
// panicking) from fn rolls back every write made through tx.
func (s *Storage) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&Tx{db: db, rowLocks: s.driver == DriverPostgres})
	})
}

// ======================================================================================
// Account Operations (outside transactions)
// ======================================================================================

// CreateUser inserts a user with an opening balance.
func (s *Storage) CreateUser(ctx context.Context, name string, balance domain.Money) (*domain.User, error) {
	user := &domain.User{Name: name, Balance: balance}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("create user %q: %w", name, err)
	}
	return user, nil
}

// CountUsers returns the number of accounts in the ledger.
func (s *Storage) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&domain.User{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// GetUser retrieves a user by id
func (s *Storage) GetUser(ctx context.Context, id uint64) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &user, nil
}

// GetPosition retrieves a position without locking it
func (s *Storage) GetPosition(ctx context.Context, userID uint64, symbol string) (*domain.InventoryPosition, error) {
	var pos domain.InventoryPosition
	err := s.db.WithContext(ctx).First(&pos, "user_id = ? AND symbol = ?", userID, symbol).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("get position %d/%s: %w", userID, symbol, err)
	}
	return &pos, nil
}

// ListPositions returns every position held by a user
func (s *Storage) ListPositions(ctx context.Context, userID uint64) ([]domain.InventoryPosition, error) {
	var positions []domain.InventoryPosition
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("symbol").Find(&positions).Error
	if err != nil {
		return nil, fmt.Errorf("list positions of %d: %w", userID, err)
	}
	return positions, nil
}

// Deposit credits available inventory, creating the position when absent.
func (s *Storage) Deposit(ctx context.Context, userID uint64, symbol string, amount domain.Money) (*domain.InventoryPosition, error) {
	var pos *domain.InventoryPosition
	err := s.InTx(ctx, func(tx *Tx) error {
		p, err := tx.LockOrCreatePosition(userID, symbol)
		if err != nil {
			return err
		}
		p.Receive(amount)
		if err := tx.SavePosition(p); err != nil {
			return err
		}
		pos = p
		return nil
	})
	return pos, err
}

// ======================================================================================
// Order Operations (outside transactions)
// ======================================================================================

// OrderFilter narrows ListOrders. Zero fields match everything.
type OrderFilter struct {
	UserID uint64
	Symbol string
	Status domain.OrderStatus
	Side   domain.Side
}

// GetOrder retrieves an order by id
func (s *Storage) GetOrder(ctx context.Context, id uint64) (*domain.Order, error) {
	var order domain.Order
	err := s.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	return &order, nil
}

// ListOrders returns orders matching filter, cheapest first then oldest first.
func (s *Storage) ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error) {
	q := s.db.WithContext(ctx).Model(&domain.Order{})
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Symbol != "" {
		q = q.Where("symbol = ?", filter.Symbol)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Side != "" {
		q = q.Where("side = ?", filter.Side)
	}

	var orders []domain.Order
	if err := q.Order("price_ticks ASC").Order("created_at ASC").Order("id ASC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// OpenOrderIDs returns the ids of all OPEN orders, oldest first.
func (s *Storage) OpenOrderIDs(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&domain.Order{}).
		Where("status = ?", domain.OrderStatusOpen).
		Order("created_at ASC").Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list open order ids: %w", err)
	}
	return ids, nil
}

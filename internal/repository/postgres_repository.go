package repository

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/yixuanzhou/student-portal-server/internal/models"
)

// Repository interface defines the methods that any repository implementation must satisfy
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdatePasswordByName(ctx context.Context, name, passwordHash string) (bool, error)

	// Idea operations
	CreateIdea(ctx context.Context, idea *models.Idea) error
	GetIdea(ctx context.Context, ideaID int64) (*models.Idea, error)
	ListIdeas(ctx context.Context) ([]models.Idea, error)
	UpdateIdea(ctx context.Context, idea *models.Idea) error
	DeleteIdea(ctx context.Context, ideaID int64) error

	// Marketplace item operations
	CreateItem(ctx context.Context, item *models.MarketplaceItem) error
	GetItem(ctx context.Context, itemID int64) (*models.MarketplaceItem, error)
	ListItems(ctx context.Context) ([]models.MarketplaceItem, error)
	UpdateItem(ctx context.Context, item *models.MarketplaceItem) error
	DeleteItem(ctx context.Context, itemID int64) error

	// Ledger operations
	GiveRoses(ctx context.Context, ideaID int64, fromUsername string, roses int64) (*models.RoseTransaction, error)
	ExchangeItem(ctx context.Context, itemID int64, username string, quantity int64) (*models.ExchangeRecord, *models.RoseTransaction, error)
	GetExchangeHistory(ctx context.Context, username string) ([]models.ExchangeRecord, error)
}

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

// User repository methods
func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username, name, password, role, rose_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	// Generate a new UUID if not provided
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Username, user.Name, user.Password, user.Role,
		user.RoseBalance, user.CreatedAt, user.UpdatedAt)

	if err != nil && isUniqueViolation(err) {
		return models.ErrDuplicateUser
	}

	return err
}

func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT * FROM users WHERE username = $1`

	var user models.User
	err := r.db.GetContext(ctx, &user, query, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	return &user, nil
}

// UpdatePasswordByName resets the password of the user with the given display
// name. Returns false when no user matches. When several accounts share the
// name the reset is ambiguous, so the whole update is rolled back and
// ErrAmbiguousName is returned instead of touching any of them.
func (r *PostgresRepository) UpdatePasswordByName(ctx context.Context, name, passwordHash string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET password = $1, updated_at = $2 WHERE name = $3`,
		passwordHash, time.Now().UTC(), name)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if rows > 1 {
		err = models.ErrAmbiguousName
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}

	return rows == 1, nil
}

// Idea repository methods
func (r *PostgresRepository) CreateIdea(ctx context.Context, idea *models.Idea) error {
	query := `
		INSERT INTO ideas (title, description, idea_owner, sdgs, rose_count, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)
		RETURNING id
	`

	if idea.CreatedAt.IsZero() {
		idea.CreatedAt = time.Now().UTC()
	}
	if idea.Sdgs == nil {
		idea.Sdgs = pq.Int64Array{}
	}

	return r.db.QueryRowContext(ctx, query,
		idea.Title, idea.Description, idea.IdeaOwner, idea.Sdgs, idea.CreatedAt).Scan(&idea.ID)
}

func (r *PostgresRepository) GetIdea(ctx context.Context, ideaID int64) (*models.Idea, error) {
	query := `SELECT * FROM ideas WHERE id = $1`

	var idea models.Idea
	err := r.db.GetContext(ctx, &idea, query, ideaID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Idea not found
		}
		return nil, err
	}

	return &idea, nil
}

func (r *PostgresRepository) ListIdeas(ctx context.Context) ([]models.Idea, error) {
	query := `SELECT * FROM ideas ORDER BY created_at DESC, id DESC`

	ideas := []models.Idea{}
	err := r.db.SelectContext(ctx, &ideas, query)
	if err != nil {
		return nil, err
	}

	return ideas, nil
}

// UpdateIdea replaces title, description and sdgs as a whole. The rose count
// is only ever mutated through GiveRoses.
func (r *PostgresRepository) UpdateIdea(ctx context.Context, idea *models.Idea) error {
	query := `UPDATE ideas SET title = $1, description = $2, sdgs = $3 WHERE id = $4`

	if idea.Sdgs == nil {
		idea.Sdgs = pq.Int64Array{}
	}

	_, err := r.db.ExecContext(ctx, query, idea.Title, idea.Description, idea.Sdgs, idea.ID)
	return err
}

func (r *PostgresRepository) DeleteIdea(ctx context.Context, ideaID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM ideas WHERE id = $1`, ideaID)
	return err
}

// Marketplace item repository methods
func (r *PostgresRepository) CreateItem(ctx context.Context, item *models.MarketplaceItem) error {
	query := `
		INSERT INTO marketplace_items (name, description, quantity, price, category, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	return r.db.QueryRowContext(ctx, query,
		item.Name, item.Description, item.Quantity, item.Price,
		item.Category, item.Image, item.CreatedAt, item.UpdatedAt).Scan(&item.ID)
}

func (r *PostgresRepository) GetItem(ctx context.Context, itemID int64) (*models.MarketplaceItem, error) {
	query := `SELECT * FROM marketplace_items WHERE id = $1`

	var item models.MarketplaceItem
	err := r.db.GetContext(ctx, &item, query, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Item not found
		}
		return nil, err
	}

	return &item, nil
}

func (r *PostgresRepository) ListItems(ctx context.Context) ([]models.MarketplaceItem, error) {
	query := `SELECT * FROM marketplace_items ORDER BY id ASC`

	var items []models.MarketplaceItem
	err := r.db.SelectContext(ctx, &items, query)
	if err != nil {
		return nil, err
	}

	return items, nil
}

// UpdateItem replaces the item fields as a whole. A nil image keeps the
// stored one; quantity is set directly here because admin restocking is not
// a ledger operation.
func (r *PostgresRepository) UpdateItem(ctx context.Context, item *models.MarketplaceItem) error {
	item.UpdatedAt = time.Now().UTC()

	if item.Image == nil {
		query := `
			UPDATE marketplace_items
			SET name = $1, description = $2, quantity = $3, price = $4, category = $5, updated_at = $6
			WHERE id = $7
		`
		_, err := r.db.ExecContext(ctx, query,
			item.Name, item.Description, item.Quantity, item.Price,
			item.Category, item.UpdatedAt, item.ID)
		return err
	}

	query := `
		UPDATE marketplace_items
		SET name = $1, description = $2, quantity = $3, price = $4, category = $5, image = $6, updated_at = $7
		WHERE id = $8
	`
	_, err := r.db.ExecContext(ctx, query,
		item.Name, item.Description, item.Quantity, item.Price,
		item.Category, item.Image, item.UpdatedAt, item.ID)
	return err
}

func (r *PostgresRepository) DeleteItem(ctx context.Context, itemID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM marketplace_items WHERE id = $1`, itemID)
	return err
}

// Ledger repository methods
//
// GiveRoses and ExchangeItem are the only code paths that mutate a rose
// balance, an idea's rose count or an item's stock. Each runs as a single
// transaction locking the payer's user row first and the target row second,
// so concurrent mixed traffic cannot deadlock and lost updates are impossible.

// GiveRoses debits the giver and credits the idea's rose count atomically.
func (r *PostgresRepository) GiveRoses(
	ctx context.Context,
	ideaID int64,
	fromUsername string,
	roses int64,
) (*models.RoseTransaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	// Lock the giver's row and read the balance
	var balance int64
	err = tx.QueryRowContext(ctx,
		`SELECT rose_balance FROM users WHERE username = $1 FOR UPDATE`,
		fromUsername).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = models.ErrNotFound
		}
		return nil, err
	}

	// Lock the idea row and read the owner
	var owner string
	err = tx.QueryRowContext(ctx,
		`SELECT idea_owner FROM ideas WHERE id = $1 FOR UPDATE`,
		ideaID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = models.ErrNotFound
		}
		return nil, err
	}

	if owner == fromUsername {
		err = models.ErrSelfGift
		return nil, err
	}

	if balance < roses {
		err = models.ErrInsufficientBalance
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET rose_balance = rose_balance - $1, updated_at = $2 WHERE username = $3`,
		roses, time.Now().UTC(), fromUsername)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE ideas SET rose_count = rose_count + $1 WHERE id = $2`,
		roses, ideaID)
	if err != nil {
		return nil, err
	}

	txn := &models.RoseTransaction{
		ID:        uuid.New().String(),
		Username:  fromUsername,
		TxType:    models.TxTypeGift,
		Amount:    roses,
		IdeaID:    sql.NullInt64{Int64: ideaID, Valid: true},
		CreatedAt: time.Now().UTC(),
	}

	err = insertRoseTransaction(ctx, tx, txn)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return txn, nil
}

// ExchangeItem debits price*quantity from the user, decrements the item's
// stock and appends the exchange record, all-or-nothing.
func (r *PostgresRepository) ExchangeItem(
	ctx context.Context,
	itemID int64,
	username string,
	quantity int64,
) (*models.ExchangeRecord, *models.RoseTransaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	// Lock the user's row and read the balance
	var balance int64
	err = tx.QueryRowContext(ctx,
		`SELECT rose_balance FROM users WHERE username = $1 FOR UPDATE`,
		username).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = models.ErrNotFound
		}
		return nil, nil, err
	}

	// Lock the item row and read name, price and remaining stock
	var (
		itemName string
		price    int64
		stock    int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT name, price, quantity FROM marketplace_items WHERE id = $1 FOR UPDATE`,
		itemID).Scan(&itemName, &price, &stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = models.ErrNotFound
		}
		return nil, nil, err
	}

	if quantity > stock {
		err = models.ErrOutOfStock
		return nil, nil, err
	}

	// The product must not wrap around, or the balance check below would
	// compare against a negative cost
	if price > 0 && quantity > math.MaxInt64/price {
		err = models.ErrValidation
		return nil, nil, err
	}

	totalCost := price * quantity
	if balance < totalCost {
		err = models.ErrInsufficientBalance
		return nil, nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET rose_balance = rose_balance - $1, updated_at = $2 WHERE username = $3`,
		totalCost, time.Now().UTC(), username)
	if err != nil {
		return nil, nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE marketplace_items SET quantity = quantity - $1, updated_at = $2 WHERE id = $3`,
		quantity, time.Now().UTC(), itemID)
	if err != nil {
		return nil, nil, err
	}

	record := &models.ExchangeRecord{
		Username:          username,
		ItemName:          itemName,
		QuantityExchanged: quantity,
		TotalRosesSpent:   totalCost,
		ExchangeDate:      time.Now().UTC(),
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO exchange_history (username, item_name, quantity_exchanged, total_roses_spent, exchange_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		record.Username, record.ItemName, record.QuantityExchanged,
		record.TotalRosesSpent, record.ExchangeDate).Scan(&record.ID)
	if err != nil {
		return nil, nil, err
	}

	txn := &models.RoseTransaction{
		ID:        uuid.New().String(),
		Username:  username,
		TxType:    models.TxTypeExchange,
		Amount:    totalCost,
		ItemID:    sql.NullInt64{Int64: itemID, Valid: true},
		CreatedAt: record.ExchangeDate,
	}

	err = insertRoseTransaction(ctx, tx, txn)
	if err != nil {
		return nil, nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, err
	}

	return record, txn, nil
}

// GetExchangeHistory returns the user's exchange records, newest first.
func (r *PostgresRepository) GetExchangeHistory(ctx context.Context, username string) ([]models.ExchangeRecord, error) {
	query := `
		SELECT * FROM exchange_history
		WHERE username = $1
		ORDER BY exchange_date DESC, id DESC
	`

	records := []models.ExchangeRecord{}
	err := r.db.SelectContext(ctx, &records, query, username)
	if err != nil {
		return nil, err
	}

	return records, nil
}

// insertRoseTransaction appends a ledger entry within an existing transaction
func insertRoseTransaction(ctx context.Context, tx *sql.Tx, txn *models.RoseTransaction) error {
	query := `
		INSERT INTO rose_transactions (id, username, tx_type, amount, idea_id, item_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := tx.ExecContext(ctx, query,
		txn.ID, txn.Username, txn.TxType, txn.Amount, txn.IdeaID, txn.ItemID, txn.CreatedAt)

	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

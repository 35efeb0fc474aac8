package config

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// SetupDatabase initializes the database connection
func SetupDatabase(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	// Create tables if they don't exist
	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// createTables creates the necessary tables in the database
func createTables(db *sqlx.DB) error {
	// Create users table
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(36) PRIMARY KEY,
			username VARCHAR(255) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL,
			password VARCHAR(255) NOT NULL,
			role VARCHAR(20) NOT NULL,
			rose_balance BIGINT NOT NULL DEFAULT 0 CHECK (rose_balance >= 0),
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create ideas table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS ideas (
			id BIGSERIAL PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			idea_owner VARCHAR(255) NOT NULL REFERENCES users(username) ON DELETE CASCADE,
			sdgs BIGINT[] NOT NULL DEFAULT '{}',
			rose_count BIGINT NOT NULL DEFAULT 0 CHECK (rose_count >= 0),
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create marketplace_items table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS marketplace_items (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			quantity BIGINT NOT NULL CHECK (quantity >= 0),
			price BIGINT NOT NULL CHECK (price >= 0),
			category VARCHAR(255) NOT NULL DEFAULT '',
			image BYTEA,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create exchange_history table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS exchange_history (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(255) NOT NULL REFERENCES users(username) ON DELETE CASCADE,
			item_name VARCHAR(255) NOT NULL,
			quantity_exchanged BIGINT NOT NULL,
			total_roses_spent BIGINT NOT NULL,
			exchange_date TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create rose_transactions table (append-only ledger of balance mutations)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rose_transactions (
			id VARCHAR(36) PRIMARY KEY,
			username VARCHAR(255) NOT NULL REFERENCES users(username) ON DELETE CASCADE,
			tx_type VARCHAR(10) NOT NULL,
			amount BIGINT NOT NULL,
			idea_id BIGINT,
			item_id BIGINT,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create indexes for better performance
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_ideas_owner ON ideas(idea_owner)",
		"CREATE INDEX IF NOT EXISTS idx_exchange_history_user ON exchange_history(username, exchange_date DESC)",
		"CREATE INDEX IF NOT EXISTS idx_rose_transactions_user ON rose_transactions(username)",
	}

	for _, idx := range indexes {
		_, err = db.Exec(idx)
		if err != nil {
			log.Printf("Warning: Failed to create index: %v", err)
			// Don't return error here, indexes are not critical
		}
	}

	return nil
}

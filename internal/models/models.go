package models

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// Roles assigned to users. Marketplace item management is restricted to
// ROLE_ADMIN; everything else is available to ROLE_STUDENT.
const (
	RoleAdmin   = "ROLE_ADMIN"
	RoleStudent = "ROLE_STUDENT"
)

// Rose transaction types recorded in the ledger
const (
	TxTypeGift     = "gift"
	TxTypeExchange = "exchange"
)

// User represents a portal account. The rose balance is the spendable side
// of the ledger and is never allowed to go negative.
type User struct {
	ID          string    `db:"id" json:"id"`
	Username    string    `db:"username" json:"username"`
	Name        string    `db:"name" json:"name"`
	Password    string    `db:"password" json:"-"` // Password hash, not returned in JSON
	Role        string    `db:"role" json:"role"`
	RoseBalance int64     `db:"rose_balance" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// Idea represents a submission on the ideas board. RoseCount accumulates
// roses gifted by other users; it is not spendable by the owner.
type Idea struct {
	ID          int64         `db:"id" json:"id"`
	Title       string        `db:"title" json:"title"`
	Description string        `db:"description" json:"description"`
	IdeaOwner   string        `db:"idea_owner" json:"ideaOwner"`
	Sdgs        pq.Int64Array `db:"sdgs" json:"sdgs"`
	RoseCount   int64         `db:"rose_count" json:"roseCount"`
	CreatedAt   time.Time     `db:"created_at" json:"createdAt"`
}

// MarketplaceItem represents an item whose stock is exchanged for roses.
type MarketplaceItem struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Quantity    int64     `db:"quantity" json:"quantity"`
	Price       int64     `db:"price" json:"price"`
	Category    string    `db:"category" json:"category"`
	Image       []byte    `db:"image" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// ExchangeRecord is the immutable per-user record appended on every
// successful exchange.
type ExchangeRecord struct {
	ID                int64     `db:"id" json:"id"`
	Username          string    `db:"username" json:"-"`
	ItemName          string    `db:"item_name" json:"itemName"`
	QuantityExchanged int64     `db:"quantity_exchanged" json:"quantityExchanged"`
	TotalRosesSpent   int64     `db:"total_roses_spent" json:"totalRosesSpent"`
	ExchangeDate      time.Time `db:"exchange_date" json:"exchangeDate"`
}

// RoseTransaction is the append-only ledger entry written inside the same
// database transaction as the balance mutation it records.
type RoseTransaction struct {
	ID        string        `db:"id" json:"id"`
	Username  string        `db:"username" json:"username"`
	TxType    string        `db:"tx_type" json:"txType"`
	Amount    int64         `db:"amount" json:"amount"`
	IdeaID    sql.NullInt64 `db:"idea_id" json:"ideaId,omitempty"`
	ItemID    sql.NullInt64 `db:"item_id" json:"itemId,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
}

// RoseTransactionEvent is published to the event stream after a ledger
// transaction commits.
type RoseTransactionEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Username  string    `json:"username"`
	Amount    int64     `json:"amount"`
	IdeaID    int64     `json:"ideaId,omitempty"`
	ItemID    int64     `json:"itemId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ActivityRecord is the audit-trail document stored for every committed
// ledger transaction.
type ActivityRecord struct {
	Username  string    `bson:"username"`
	Action    string    `bson:"action"`
	Detail    string    `bson:"detail"`
	Amount    int64     `bson:"amount"`
	Timestamp time.Time `bson:"timestamp"`
}

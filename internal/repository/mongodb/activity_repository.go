package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/yixuanzhou/student-portal-server/internal/models"
	"go.mongodb.org/mongo-driver/mongo"
)

const collectionActivity = "ledger_activity"

// ActivityRepository records an audit trail of committed ledger transactions.
// Recording is best-effort; callers log failures and never roll back the
// transaction that was already committed.
type ActivityRepository interface {
	SaveActivity(doc *models.ActivityRecord) error
}

type activityRepository struct {
	collection *mongo.Collection
}

// NewActivityRepository creates an ActivityRepository backed by MongoDB
func NewActivityRepository(client *mongo.Client, dbName string) ActivityRepository {
	db := client.Database(dbName)
	return &activityRepository{
		collection: db.Collection(collectionActivity),
	}
}

func (r *activityRepository) SaveActivity(doc *models.ActivityRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if doc.Timestamp.IsZero() {
		doc.Timestamp = time.Now().UTC()
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert activity record: %w", err)
	}

	return nil
}

type nopActivityRepository struct{}

// NewNopActivityRepository returns a recorder that discards everything. Used
// when no Mongo URI is configured.
func NewNopActivityRepository() ActivityRepository {
	return nopActivityRepository{}
}

func (nopActivityRepository) SaveActivity(*models.ActivityRecord) error { return nil }

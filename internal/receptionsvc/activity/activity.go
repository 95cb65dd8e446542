package activity

import (
	"context"
	"net/url"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Entry is one staff action on a visit, kept as an append-only audit trail.
type Entry struct {
	Actor       int64     `bson:"actor"`
	Verb        string    `bson:"verb"` // "Claimed", "Verified", "Finished"
	Description string    `bson:"description"`
	PatientID   int64     `bson:"patient_id"`
	VisitID     int64     `bson:"visit_id"`
	At          time.Time `bson:"at"`
}

type Logger struct {
	col *mongo.Collection
}

// Connect opens the activity log collection. The database name comes from the
// MONGODB_URI path segment.
func Connect(ctx context.Context) (*Logger, error) {
	mongoURI := os.Getenv("MONGODB_URI")

	uri, err := url.Parse(mongoURI)
	if err != nil {
		return nil, err
	}
	dbName := strings.TrimPrefix(uri.Path, "/")

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	return &Logger{col: client.Database(dbName).Collection("activity_log")}, nil
}

func (l *Logger) Record(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := l.col.InsertOne(ctx, e)
	return err
}

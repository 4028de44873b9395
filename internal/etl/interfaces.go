package etl

import (
	"context"

	"github.com/BartekS5/movielens-etl/pkg/models"
)

// Well-known object keys of the three source files.
const (
	ItemsKey        = "movielens/items/u.item"
	ActorsKey       = "movielens/users/u.user"
	InteractionsKey = "movielens/ratings/u.data"
)

// ObjectStore retrieves raw source files. GetObject returns an error matching
// ErrObjectNotFound when the key does not exist.
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	CheckConnection(ctx context.Context) error
}

// ObjectWriter uploads raw source files.
type ObjectWriter interface {
	PutObject(ctx context.Context, key string, data []byte) error
}

// RecordStore persists parsed records. Item and actor inserts ignore rows whose
// natural key already exists; interaction batches are atomic.
type RecordStore interface {
	CheckConnection(ctx context.Context) bool
	InsertItem(ctx context.Context, item models.Item) (int, error)
	InsertItemsBatch(ctx context.Context, items []models.Item) (int, error)
	InsertActor(ctx context.Context, actor models.Actor) (int, error)
	InsertActorsBatch(ctx context.Context, actors []models.Actor) (int, error)
	InsertInteractionsBatch(ctx context.Context, batch []models.Interaction) (int, error)
	TableRowCounts(ctx context.Context) (map[string]int64, error)
}

// Recorder observes run outcomes, e.g. to export metrics.
type Recorder interface {
	ObserveBatch(kind string, rows int, err error)
	ObserveRun(stats *models.RunStats)
}

type nopRecorder struct{}

func (nopRecorder) ObserveBatch(string, int, error) {}
func (nopRecorder) ObserveRun(*models.RunStats) {}

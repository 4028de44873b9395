package etl

import (
	"context"
	"database/sql"
	"time"

	"github.com/BartekS5/movielens-etl/pkg/database"
	"github.com/BartekS5/movielens-etl/pkg/logger"
	"github.com/BartekS5/movielens-etl/pkg/models"
	"github.com/pkg/errors"
)

const (
	itemsTable        = "items"
	actorsTable       = "actors"
	interactionsTable = "interactions"
)

var (
	itemColumns = append([]string{
		"item_id", "title", "release_date", "video_release_date", "imdb_url",
	}, models.GenreNames[:]...)
	actorColumns       = []string{"actor_id", "age", "gender", "occupation", "zip_code"}
	interactionColumns = []string{"actor_id", "item_id", "score", "raw_timestamp", "rated_at"}
)

// SQLLoader writes records through a bounded database/sql pool. Every
// operation takes its own connection and hands it back on return.
type SQLLoader struct {
	DB             *sql.DB
	Dialect        *database.Dialect
	AcquireTimeout time.Duration
}

func NewSQLLoader(db *sql.DB, dialect *database.Dialect, acquireTimeout time.Duration) *SQLLoader {
	return &SQLLoader{
		DB:             db,
		Dialect:        dialect,
		AcquireTimeout: acquireTimeout,
	}
}

func (l *SQLLoader) acquire(ctx context.Context, op string) (*sql.Conn, error) {
	actx := ctx
	if l.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, l.AcquireTimeout)
		defer cancel()
	}

	conn, err := l.DB.Conn(actx)
	if err == nil {
		return conn, nil
	}

	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		stats := l.DB.Stats()
		if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
			return nil, &database.StoreError{Kind: database.KindPoolTimeout, Op: op, Err: err}
		}
		return nil, &database.StoreError{Kind: database.KindConnectivity, Op: op, Err: err}
	}
	se := database.NewStoreError(op, err)
	if se.Kind == database.KindUnknown {
		se.Kind = database.KindConnectivity
	}
	return nil, se
}

// inTx runs fn inside one transaction on a dedicated connection. Any error
// rolls the whole transaction back.
func (l *SQLLoader) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) (int, error)) (int, error) {
	conn, err := l.acquire(ctx, op)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, database.NewStoreError(op, err)
	}

	n, err := fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Warnf("%s: rollback failed: %v", op, rbErr)
		}
		return 0, database.NewStoreError(op, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, database.NewStoreError(op, err)
	}
	return n, nil
}

// CheckConnection issues a trivial round trip.
func (l *SQLLoader) CheckConnection(ctx context.Context) bool {
	conn, err := l.acquire(ctx, "check connection")
	if err != nil {
		logger.Errorf("Relational store unreachable: %v", err)
		return false
	}
	defer conn.Close()

	var one int
	if err := conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		logger.Errorf("Relational store liveness query failed: %v", err)
		return false
	}
	logger.Debugf("%s store is reachable", l.Dialect.Name)
	return true
}

// InsertItem stores one item unless its id already exists. Either way the id
// is returned and an existing row is left untouched.
func (l *SQLLoader) InsertItem(ctx context.Context, item models.Item) (int, error) {
	query := l.Dialect.InsertIgnoreSQL(itemsTable, "item_id", itemColumns, 1)
	if err := l.execSingle(ctx, "insert item", query, itemArgs(item)); err != nil {
		return 0, err
	}
	return item.ID, nil
}

// InsertActor stores one actor unless its id already exists.
func (l *SQLLoader) InsertActor(ctx context.Context, actor models.Actor) (int, error) {
	query := l.Dialect.InsertIgnoreSQL(actorsTable, "actor_id", actorColumns, 1)
	if err := l.execSingle(ctx, "insert actor", query, actorArgs(actor)); err != nil {
		return 0, err
	}
	return actor.ID, nil
}

func (l *SQLLoader) execSingle(ctx context.Context, op, query string, args []interface{}) error {
	conn, err := l.acquire(ctx, op)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		return database.NewStoreError(op, err)
	}
	return nil
}

// InsertItemsBatch stores a batch of items in one transaction, skipping ids
// that already exist. Within the batch the first record for an id wins. It
// returns the number of rows newly inserted.
func (l *SQLLoader) InsertItemsBatch(ctx context.Context, items []models.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	seen := make(map[int]struct{}, len(items))
	rows := make([][]interface{}, 0, len(items))
	for _, it := range items {
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		rows = append(rows, itemArgs(it))
	}
	return l.inTx(ctx, "insert items batch", func(tx *sql.Tx) (int, error) {
		return l.execChunks(ctx, tx, rows, len(itemColumns), func(n int) string {
			return l.Dialect.InsertIgnoreSQL(itemsTable, "item_id", itemColumns, n)
		})
	})
}

// InsertActorsBatch is the actor counterpart of InsertItemsBatch.
func (l *SQLLoader) InsertActorsBatch(ctx context.Context, actors []models.Actor) (int, error) {
	if len(actors) == 0 {
		return 0, nil
	}
	seen := make(map[int]struct{}, len(actors))
	rows := make([][]interface{}, 0, len(actors))
	for _, a := range actors {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		rows = append(rows, actorArgs(a))
	}
	return l.inTx(ctx, "insert actors batch", func(tx *sql.Tx) (int, error) {
		return l.execChunks(ctx, tx, rows, len(actorColumns), func(n int) string {
			return l.Dialect.InsertIgnoreSQL(actorsTable, "actor_id", actorColumns, n)
		})
	})
}

// InsertInteractionsBatch stores the whole batch in one transaction or
// nothing at all. It returns the number of rows committed.
func (l *SQLLoader) InsertInteractionsBatch(ctx context.Context, batch []models.Interaction) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	rows := make([][]interface{}, len(batch))
	for i, in := range batch {
		rows[i] = interactionArgs(in)
	}
	n, err := l.inTx(ctx, "insert interactions batch", func(tx *sql.Tx) (int, error) {
		return l.execChunks(ctx, tx, rows, len(interactionColumns), func(n int) string {
			return l.Dialect.InsertSQL(interactionsTable, interactionColumns, n)
		})
	})
	if err != nil {
		return 0, err
	}
	if n > len(batch) {
		n = len(batch)
	}
	return n, nil
}

// execChunks splits rows into statements the dialect accepts and sums the
// affected row counts.
func (l *SQLLoader) execChunks(ctx context.Context, tx *sql.Tx, rows [][]interface{}, width int, render func(n int) string) (int, error) {
	per := l.Dialect.RowsPerStatement(width)
	total := 0
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		args := make([]interface{}, 0, len(chunk)*width)
		for _, r := range chunk {
			args = append(args, r...)
		}

		res, err := tx.ExecContext(ctx, render(len(chunk)), args...)
		if err != nil {
			return 0, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += int(affected)
	}
	return total, nil
}

// TableRowCounts returns the row count of every base table in the schema.
func (l *SQLLoader) TableRowCounts(ctx context.Context) (map[string]int64, error) {
	conn, err := l.acquire(ctx, "table row counts")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	tables, err := listTables(ctx, conn, l.Dialect.TablesQuery())
	if err != nil {
		return nil, database.NewStoreError("list tables", err)
	}

	counts := make(map[string]int64, len(tables))
	for _, t := range tables {
		var n int64
		if err := conn.QueryRowContext(ctx, l.Dialect.CountSQL(t)).Scan(&n); err != nil {
			return nil, database.NewStoreError("count "+t, err)
		}
		counts[t] = n
	}
	return counts, nil
}

func listTables(ctx context.Context, conn *sql.Conn, query string) ([]string, error) {
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// EnsureSchema creates the three tables when they do not exist yet.
func (l *SQLLoader) EnsureSchema(ctx context.Context, scoreMin, scoreMax int) error {
	_, err := l.inTx(ctx, "ensure schema", func(tx *sql.Tx) (int, error) {
		for _, stmt := range l.Dialect.SchemaStatements(scoreMin, scoreMax) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return 0, errors.Wrap(err, "executing schema statement")
			}
		}
		return 0, nil
	})
	return err
}

func itemArgs(it models.Item) []interface{} {
	args := make([]interface{}, 0, len(itemColumns))
	args = append(args, it.ID, it.Title, nullableTime(it.ReleaseDate), nullableTime(it.VideoReleaseDate), nullableString(it.IMDbURL))
	for _, g := range it.Genres {
		args = append(args, g)
	}
	return args
}

func actorArgs(a models.Actor) []interface{} {
	return []interface{}{a.ID, a.Age, a.Gender, a.Occupation, a.ZipCode}
}

func interactionArgs(in models.Interaction) []interface{} {
	return []interface{}{in.ActorID, in.ItemID, in.Score, in.Timestamp, in.RatedAt}
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

package database

import (
	"fmt"
	"strings"

	"github.com/BartekS5/movielens-etl/pkg/models"
	"github.com/pkg/errors"
)

// Dialect captures what differs between the supported relational stores:
// placeholders, identifier quoting, the conflict-ignoring insert form, the
// table catalog and statement size limits.
type Dialect struct {
	Name       string
	DriverName string
	// MaxParams and MaxRows bound a single multi-row statement.
	MaxParams int
	MaxRows   int

	placeholder  func(n int) string
	quote        func(ident string) string
	tablesQuery  string
	insertIgnore func(d *Dialect, table, key string, cols []string, rows int) string
	ddl          func(d *Dialect, scoreMin, scoreMax int) []string
}

var (
	Postgres = &Dialect{
		Name:        "postgres",
		DriverName:  "postgres",
		MaxParams:   65535,
		MaxRows:     5000,
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		quote:       doubleQuote,
		tablesQuery: `SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
ORDER BY table_name`,
		insertIgnore: onConflictDoNothing,
		ddl:          postgresDDL,
	}

	SQLServer = &Dialect{
		Name:        "sqlserver",
		DriverName:  "sqlserver",
		MaxParams:   2000,
		MaxRows:     1000,
		placeholder: func(n int) string { return fmt.Sprintf("@p%d", n) },
		quote:       func(ident string) string { return "[" + strings.ReplaceAll(ident, "]", "]]") + "]" },
		tablesQuery: `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
WHERE TABLE_TYPE = 'BASE TABLE'
ORDER BY TABLE_NAME`,
		insertIgnore: notExistsInsert,
		ddl:          sqlServerDDL,
	}

	SQLite = &Dialect{
		Name:        "sqlite3",
		DriverName:  "sqlite3",
		MaxParams:   32766,
		MaxRows:     500,
		placeholder: func(int) string { return "?" },
		quote:       doubleQuote,
		tablesQuery: `SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`,
		insertIgnore: onConflictDoNothing,
		ddl:          sqliteDDL,
	}
)

// LookupDialect resolves a configured driver name.
func LookupDialect(name string) (*Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "sqlserver", "mssql":
		return SQLServer, nil
	case "sqlite3", "sqlite":
		return SQLite, nil
	default:
		return nil, errors.Errorf("unsupported database driver %q", name)
	}
}

func (d *Dialect) Placeholder(n int) string {
	return d.placeholder(n)
}

func (d *Dialect) QuoteIdent(ident string) string {
	return d.quote(ident)
}

// TablesQuery lists base tables of the current schema, one name per row.
func (d *Dialect) TablesQuery() string {
	return d.tablesQuery
}

// RowsPerStatement is how many rows of the given width fit in one statement.
func (d *Dialect) RowsPerStatement(cols int) int {
	if cols <= 0 {
		return d.MaxRows
	}
	n := d.MaxParams / cols
	if n > d.MaxRows {
		n = d.MaxRows
	}
	if n < 1 {
		n = 1
	}
	return n
}

// InsertSQL renders a plain multi-row insert.
func (d *Dialect) InsertSQL(table string, cols []string, rows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.QuoteIdent(table))
	b.WriteString(" (")
	b.WriteString(d.columnList(cols))
	b.WriteString(") VALUES ")
	b.WriteString(d.valuesList(len(cols), rows))
	return b.String()
}

// InsertIgnoreSQL renders a multi-row insert that skips rows whose key already
// exists, leaving the stored row untouched.
func (d *Dialect) InsertIgnoreSQL(table, key string, cols []string, rows int) string {
	return d.insertIgnore(d, table, key, cols, rows)
}

// CountSQL counts the rows of one table.
func (d *Dialect) CountSQL(table string) string {
	return "SELECT COUNT(*) FROM " + d.QuoteIdent(table)
}

// SchemaStatements creates the items, actors and interactions tables when
// they are missing.
func (d *Dialect) SchemaStatements(scoreMin, scoreMax int) []string {
	return d.ddl(d, scoreMin, scoreMax)
}

func (d *Dialect) columnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func (d *Dialect) valuesList(width, rows int) string {
	var b strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < width; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

func doubleQuote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func onConflictDoNothing(d *Dialect, table, key string, cols []string, rows int) string {
	return d.InsertSQL(table, cols, rows) + " ON CONFLICT (" + d.QuoteIdent(key) + ") DO NOTHING"
}

func notExistsInsert(d *Dialect, table, key string, cols []string, rows int) string {
	colList := d.columnList(cols)
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.QuoteIdent(table))
	b.WriteString(" (")
	b.WriteString(colList)
	b.WriteString(") SELECT ")
	b.WriteString(colList)
	b.WriteString(" FROM (VALUES ")
	b.WriteString(d.valuesList(len(cols), rows))
	b.WriteString(") AS v (")
	b.WriteString(colList)
	b.WriteString(") WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(d.QuoteIdent(table))
	b.WriteString(" t WHERE t.")
	b.WriteString(d.QuoteIdent(key))
	b.WriteString(" = v.")
	b.WriteString(d.QuoteIdent(key))
	b.WriteString(")")
	return b.String()
}

func genreColumns(boolType, falseValue string) string {
	parts := make([]string, len(models.GenreNames))
	for i, g := range models.GenreNames {
		parts[i] = fmt.Sprintf("    %s %s NOT NULL DEFAULT %s", g, boolType, falseValue)
	}
	return strings.Join(parts, ",\n")
}

func postgresDDL(_ *Dialect, scoreMin, scoreMax int) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS items (
    item_id INTEGER PRIMARY KEY,
    title TEXT NOT NULL,
    release_date DATE,
    video_release_date DATE,
    imdb_url TEXT,
` + genreColumns("BOOLEAN", "FALSE") + `
)`,
		`CREATE TABLE IF NOT EXISTS actors (
    actor_id INTEGER PRIMARY KEY,
    age INTEGER NOT NULL,
    gender CHAR(1) NOT NULL,
    occupation TEXT NOT NULL,
    zip_code TEXT NOT NULL
)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS interactions (
    interaction_id BIGSERIAL PRIMARY KEY,
    actor_id INTEGER NOT NULL REFERENCES actors (actor_id),
    item_id INTEGER NOT NULL REFERENCES items (item_id),
    score SMALLINT NOT NULL CHECK (score BETWEEN %d AND %d),
    raw_timestamp BIGINT NOT NULL,
    rated_at TIMESTAMPTZ NOT NULL
)`, scoreMin, scoreMax),
		`CREATE INDEX IF NOT EXISTS idx_interactions_actor ON interactions (actor_id)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_item ON interactions (item_id)`,
	}
}

func sqlServerDDL(_ *Dialect, scoreMin, scoreMax int) []string {
	return []string{
		`IF OBJECT_ID(N'items', N'U') IS NULL
CREATE TABLE items (
    item_id INT NOT NULL PRIMARY KEY,
    title NVARCHAR(512) NOT NULL,
    release_date DATE NULL,
    video_release_date DATE NULL,
    imdb_url NVARCHAR(1024) NULL,
` + genreColumns("BIT", "0") + `
)`,
		`IF OBJECT_ID(N'actors', N'U') IS NULL
CREATE TABLE actors (
    actor_id INT NOT NULL PRIMARY KEY,
    age INT NOT NULL,
    gender NCHAR(1) NOT NULL,
    occupation NVARCHAR(128) NOT NULL,
    zip_code NVARCHAR(16) NOT NULL
)`,
		fmt.Sprintf(`IF OBJECT_ID(N'interactions', N'U') IS NULL
CREATE TABLE interactions (
    interaction_id BIGINT IDENTITY(1,1) NOT NULL PRIMARY KEY,
    actor_id INT NOT NULL REFERENCES actors (actor_id),
    item_id INT NOT NULL REFERENCES items (item_id),
    score SMALLINT NOT NULL CHECK (score BETWEEN %d AND %d),
    raw_timestamp BIGINT NOT NULL,
    rated_at DATETIME2 NOT NULL
)`, scoreMin, scoreMax),
	}
}

func sqliteDDL(_ *Dialect, scoreMin, scoreMax int) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS items (
    item_id INTEGER PRIMARY KEY,
    title TEXT NOT NULL,
    release_date DATE,
    video_release_date DATE,
    imdb_url TEXT,
` + genreColumns("BOOLEAN", "0") + `
)`,
		`CREATE TABLE IF NOT EXISTS actors (
    actor_id INTEGER PRIMARY KEY,
    age INTEGER NOT NULL,
    gender TEXT NOT NULL CHECK (length(gender) = 1),
    occupation TEXT NOT NULL,
    zip_code TEXT NOT NULL
)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS interactions (
    interaction_id INTEGER PRIMARY KEY AUTOINCREMENT,
    actor_id INTEGER NOT NULL REFERENCES actors (actor_id),
    item_id INTEGER NOT NULL REFERENCES items (item_id),
    score INTEGER NOT NULL CHECK (score BETWEEN %d AND %d),
    raw_timestamp INTEGER NOT NULL,
    rated_at DATETIME NOT NULL
)`, scoreMin, scoreMax),
	}
}

// Package sqlstore maps the memory engine's normalized snapshot onto SQL
// tables. The SQLite and Postgres backends share it and differ only in their
// Dialect.
package sqlstore

import (
	"bufio"
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"time"

	"orgdirectory/internal/infra/persistence/memory"
	"orgdirectory/pkg/domain"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

// Dialect captures the differences between SQL engines.
type Dialect struct {
	Name string
	// Schema is the DDL script applied on open.
	Schema string
	// Numbered reports whether placeholders are $1, $2... instead of ?.
	Numbered bool
	// TextTime stores timestamps as RFC 3339 strings.
	TextTime bool
	// ReadOptions opens the transaction that reloads every table, which must
	// see one consistent state.
	ReadOptions *sql.TxOptions
}

var (
	// SQLite is the dialect of modernc.org/sqlite.
	SQLite = Dialect{Name: "sqlite", Schema: sqliteSchema, TextTime: true}
	// Postgres is the dialect of the pgx stdlib driver.
	Postgres = Dialect{
		Name:        "postgres",
		Schema:      postgresSchema,
		Numbered:    true,
		ReadOptions: &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
	}
)

// Statements returns the dialect's DDL split into executable statements.
func (d Dialect) Statements() []string {
	return SplitStatements(d.Schema)
}

// Rebind rewrites ? placeholders for dialects that number them.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) timeArg(t time.Time) any {
	if d.TextTime {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}

// Execer is the subset of *sql.DB and *sql.Tx used to run statements.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Querier is the subset of *sql.DB and *sql.Tx used to read rows.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ApplySchema executes the dialect's DDL statement by statement.
func ApplySchema(ctx context.Context, db Execer, d Dialect) error {
	for _, stmt := range d.Statements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// SplitStatements splits a semicolon-terminated DDL script into executable statements.
// It drops blank lines and single-line comments that start with "--".
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()
	return stmts
}

// Queries used to load the normalized tables, in load order.
const (
	selectBuildings     = `SELECT id, address, latitude, longitude, created_at, updated_at FROM buildings ORDER BY id`
	selectActivities    = `SELECT id, name, parent_id, created_at, updated_at FROM activities ORDER BY id`
	selectOrganizations = `SELECT id, name, building_id, created_at, updated_at FROM organizations ORDER BY id`
	selectPhones        = `SELECT id, organization_id, number FROM phones ORDER BY id`
	selectLinks         = `SELECT organization_id, activity_id FROM organization_activities ORDER BY organization_id, activity_id`
	selectSequences     = `SELECT name, value FROM sequences`
)

// Delete order is child tables first.
var deleteStatements = []string{
	`DELETE FROM organization_activities`,
	`DELETE FROM phones`,
	`DELETE FROM organizations`,
	`DELETE FROM activities`,
	`DELETE FROM buildings`,
	`DELETE FROM sequences`,
}

const (
	insertBuilding     = `INSERT INTO buildings (id, address, latitude, longitude, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	insertActivity     = `INSERT INTO activities (id, name, parent_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	insertOrganization = `INSERT INTO organizations (id, name, building_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	insertPhone        = `INSERT INTO phones (id, organization_id, number) VALUES (?, ?, ?)`
	insertLink         = `INSERT INTO organization_activities (organization_id, activity_id) VALUES (?, ?)`
	insertSequence     = `INSERT INTO sequences (name, value) VALUES (?, ?)`
)

// Sequence names as stored in the sequences table.
const (
	seqBuilding     = "building"
	seqActivity     = "activity"
	seqOrganization = "organization"
	seqPhone        = "phone"
)

// Load reads every table into a snapshot suitable for memory.Store.ImportState.
func Load(ctx context.Context, db Querier) (memory.Snapshot, error) {
	var snap memory.Snapshot
	err := queryRows(ctx, db, selectBuildings, func(rows *sql.Rows) error {
		var b domain.Building
		if err := rows.Scan(&b.ID, &b.Address, &b.Latitude, &b.Longitude, timeScanner{&b.CreatedAt}, timeScanner{&b.UpdatedAt}); err != nil {
			return err
		}
		snap.Buildings = append(snap.Buildings, b)
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("load buildings: %w", err)
	}
	err = queryRows(ctx, db, selectActivities, func(rows *sql.Rows) error {
		var a domain.Activity
		var parent sql.NullInt64
		if err := rows.Scan(&a.ID, &a.Name, &parent, timeScanner{&a.CreatedAt}, timeScanner{&a.UpdatedAt}); err != nil {
			return err
		}
		if parent.Valid {
			a.ParentID = domain.Int64Ptr(parent.Int64)
		}
		snap.Activities = append(snap.Activities, a)
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("load activities: %w", err)
	}
	err = queryRows(ctx, db, selectOrganizations, func(rows *sql.Rows) error {
		var o domain.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.BuildingID, timeScanner{&o.CreatedAt}, timeScanner{&o.UpdatedAt}); err != nil {
			return err
		}
		snap.Organizations = append(snap.Organizations, o)
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("load organizations: %w", err)
	}
	err = queryRows(ctx, db, selectPhones, func(rows *sql.Rows) error {
		var p domain.Phone
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.Number); err != nil {
			return err
		}
		snap.Phones = append(snap.Phones, p)
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("load phones: %w", err)
	}
	err = queryRows(ctx, db, selectLinks, func(rows *sql.Rows) error {
		var l memory.OrganizationActivity
		if err := rows.Scan(&l.OrganizationID, &l.ActivityID); err != nil {
			return err
		}
		snap.Links = append(snap.Links, l)
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("load organization activities: %w", err)
	}
	err = queryRows(ctx, db, selectSequences, func(rows *sql.Rows) error {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return err
		}
		switch name {
		case seqBuilding:
			snap.Sequences.Building = value
		case seqActivity:
			snap.Sequences.Activity = value
		case seqOrganization:
			snap.Sequences.Organization = value
		case seqPhone:
			snap.Sequences.Phone = value
		}
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("load sequences: %w", err)
	}
	return snap, nil
}

func queryRows(ctx context.Context, db Querier, query string, scan func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// writeSnapshot replaces every table with the rows of snap. The caller owns
// the transaction, so either the whole snapshot lands or nothing changes.
func writeSnapshot(ctx context.Context, tx Execer, d Dialect, snap memory.Snapshot) error {
	for _, stmt := range deleteStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear table: %w", err)
		}
	}
	exec := func(table, query string, args ...any) error {
		if _, err := tx.ExecContext(ctx, d.Rebind(query), args...); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
		return nil
	}
	for _, b := range snap.Buildings {
		if err := exec("buildings", insertBuilding, b.ID, b.Address, b.Latitude, b.Longitude, d.timeArg(b.CreatedAt), d.timeArg(b.UpdatedAt)); err != nil {
			return err
		}
	}
	for _, a := range snap.Activities {
		var parent sql.NullInt64
		if a.ParentID != nil {
			parent = sql.NullInt64{Int64: *a.ParentID, Valid: true}
		}
		if err := exec("activities", insertActivity, a.ID, a.Name, parent, d.timeArg(a.CreatedAt), d.timeArg(a.UpdatedAt)); err != nil {
			return err
		}
	}
	for _, o := range snap.Organizations {
		if err := exec("organizations", insertOrganization, o.ID, o.Name, o.BuildingID, d.timeArg(o.CreatedAt), d.timeArg(o.UpdatedAt)); err != nil {
			return err
		}
	}
	for _, p := range snap.Phones {
		if err := exec("phones", insertPhone, p.ID, p.OrganizationID, p.Number); err != nil {
			return err
		}
	}
	for _, l := range snap.Links {
		if err := exec("organization_activities", insertLink, l.OrganizationID, l.ActivityID); err != nil {
			return err
		}
	}
	seqs := []struct {
		name  string
		value int64
	}{
		{seqBuilding, snap.Sequences.Building},
		{seqActivity, snap.Sequences.Activity},
		{seqOrganization, snap.Sequences.Organization},
		{seqPhone, snap.Sequences.Phone},
	}
	for _, s := range seqs {
		if err := exec("sequences", insertSequence, s.name, s.value); err != nil {
			return err
		}
	}
	return nil
}

// timeScanner accepts timestamps as native time values or RFC 3339 text.
type timeScanner struct{ t *time.Time }

func (s timeScanner) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*s.t = v.UTC()
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	case nil:
		*s.t = time.Time{}
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
	return nil
}

func (s timeScanner) parse(v string) error {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	*s.t = t.UTC()
	return nil
}

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action is the kind of charge command.
type Action string

// Charge command actions.
const (
	// ActionStart starts a charge-now session at a rate for a duration.
	ActionStart Action = "start"

	// ActionCancel ends the charge-now session.
	ActionCancel Action = "cancel"
)

// Command is one recorded charge command.
type Command struct {
	ID        string        `json:"id"`
	Source    string        `json:"source"`
	Action    Action        `json:"action"`
	Amps      int           `json:"amps,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	TimeEnd   time.Time     `json:"time_end,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Release is a module released because its configuration disabled it.
type Release struct {
	Namespace  string    `json:"namespace"`
	Name       string    `json:"name"`
	ReleasedAt time.Time `json:"released_at"`
}

// Filter controls which commands List returns.
type Filter struct {
	Source string // optional
	Action Action // optional
	Limit  int    // default 50, max 200
	Offset int
}

// ListResult is a page of commands, most recent first.
type ListResult struct {
	Commands []Command `json:"commands"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

// Repository stores charge commands and module releases.
type Repository interface {
	Create(ctx context.Context, cmd *Command) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	RecordRelease(ctx context.Context, namespace, name string) error
	Releases(ctx context.Context) ([]Release, error)
}

const (
	// timeFormat is fixed width so TEXT ordering matches time ordering.
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

	defaultListLimit = 50
	maxListLimit     = 200
)

// SQLiteRepository is the Repository backed by SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Create inserts cmd. ID and CreatedAt are generated when empty.
func (r *SQLiteRepository) Create(ctx context.Context, cmd *Command) error {
	if cmd.ID == "" {
		cmd.ID = "cmd-" + uuid.NewString()
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = r.now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO charge_commands (id, source, action, amps, duration_s, time_end, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cmd.ID, cmd.Source, string(cmd.Action),
		nullableInt(cmd.Amps, cmd.Action == ActionStart),
		nullableInt(int(cmd.Duration/time.Second), cmd.Duration > 0),
		nullableTime(cmd.TimeEnd),
		cmd.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting charge command: %w", err)
	}
	return nil
}

func nullableInt(v int, valid bool) any {
	if !valid {
		return nil
	}
	return v
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

// List returns commands matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, string(filter.Action))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM charge_commands " + where //nolint:gosec // WHERE built from fixed conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting charge commands: %w", err)
	}

	query := "SELECT id, source, action, amps, duration_s, time_end, created_at FROM charge_commands " + //nolint:gosec // WHERE built from fixed conditions
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying charge commands: %w", err)
	}
	defer rows.Close()

	commands := []Command{}
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating charge commands: %w", err)
	}

	return &ListResult{
		Commands: commands,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}

func scanCommand(rows *sql.Rows) (Command, error) {
	var cmd Command
	var action, createdAt string
	var amps, durationS sql.NullInt64
	var timeEnd sql.NullString

	if err := rows.Scan(&cmd.ID, &cmd.Source, &action, &amps, &durationS, &timeEnd, &createdAt); err != nil {
		return Command{}, fmt.Errorf("scanning charge command: %w", err)
	}

	cmd.Action = Action(action)
	cmd.Amps = int(amps.Int64)
	cmd.Duration = time.Duration(durationS.Int64) * time.Second

	var err error
	if cmd.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return Command{}, fmt.Errorf("parsing charge command timestamp %q: %w", createdAt, err)
	}
	if timeEnd.Valid {
		if cmd.TimeEnd, err = time.Parse(timeFormat, timeEnd.String); err != nil {
			return Command{}, fmt.Errorf("parsing charge command end time %q: %w", timeEnd.String, err)
		}
	}
	return cmd, nil
}

// RecordRelease stores a module release. Releasing the same module again
// updates its timestamp.
func (r *SQLiteRepository) RecordRelease(ctx context.Context, namespace, name string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO module_releases (namespace, name, released_at) VALUES (?, ?, ?)
		 ON CONFLICT (namespace, name) DO UPDATE SET released_at = excluded.released_at`,
		namespace, name, r.now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("recording module release: %w", err)
	}
	return nil
}

// Releases returns every released module ordered by namespace and name.
func (r *SQLiteRepository) Releases(ctx context.Context) ([]Release, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT namespace, name, released_at FROM module_releases ORDER BY namespace, name")
	if err != nil {
		return nil, fmt.Errorf("querying module releases: %w", err)
	}
	defer rows.Close()

	var releases []Release
	for rows.Next() {
		var rel Release
		var releasedAt string
		if err := rows.Scan(&rel.Namespace, &rel.Name, &releasedAt); err != nil {
			return nil, fmt.Errorf("scanning module release: %w", err)
		}
		rel.ReleasedAt, _ = time.Parse(timeFormat, releasedAt) //nolint:errcheck // Written by RecordRelease
		releases = append(releases, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating module releases: %w", err)
	}
	return releases, nil
}

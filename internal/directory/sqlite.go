package directory

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "creatorbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Config configures the SQLite-backed directory.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the directory database, creating the schema when needed.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("directory path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) List(ctx context.Context, scope Scope) ([]int64, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	q := `SELECT user_id FROM users WHERE is_blocked = 0 ORDER BY user_id`
	if scope == ScopeSubscribed {
		q = `SELECT user_id FROM users WHERE is_subscribed = 1 AND is_blocked = 0 ORDER BY user_id`
	}
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqliteStore) Save(ctx context.Context, id int64, p Profile) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, username, first_name, last_name, language_code, updated_at)
		 VALUES (?,?,?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   username = excluded.username,
		   first_name = excluded.first_name,
		   last_name = excluded.last_name,
		   language_code = excluded.language_code,
		   updated_at = excluded.updated_at`,
		id, nullStr(p.Username), nullStr(p.FirstName), nullStr(p.LastName), nullStr(p.LanguageCode), now(),
	)
	if err == nil {
		s.log.Debug("recipient saved", logx.Int64("user_id", id))
	}
	return err
}

func (s *sqliteStore) SaveContact(ctx context.Context, id int64, c Contact) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	// The row normally exists already (Save runs on first contact), but an
	// upsert keeps the operation safe on its own.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, phone, first_name, last_name, updated_at)
		 VALUES (?,?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   phone = excluded.phone,
		   first_name = COALESCE(excluded.first_name, users.first_name),
		   last_name = COALESCE(excluded.last_name, users.last_name),
		   updated_at = excluded.updated_at`,
		id, nullStr(c.PhoneNumber), nullStr(c.FirstName), nullStr(c.LastName), now(),
	)
	if err == nil {
		s.log.Debug("contact saved", logx.Int64("user_id", id))
	}
	return err
}

func (s *sqliteStore) SetBlocked(ctx context.Context, id int64, blocked bool) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_blocked = ?, updated_at = ? WHERE user_id = ?`,
		boolInt(blocked), now(), id,
	)
	if err == nil {
		s.log.Debug("blocked flag updated", logx.Int64("user_id", id), logx.Bool("blocked", blocked))
	}
	return err
}

func (s *sqliteStore) SetSubscribed(ctx context.Context, id int64, subscribed bool) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users
		 SET is_subscribed = ?, updated_at = ?, interaction_count = interaction_count + 1
		 WHERE user_id = ?`,
		boolInt(subscribed), now(), id,
	)
	if err == nil {
		s.log.Debug("subscription flag updated", logx.Int64("user_id", id), logx.Bool("subscribed", subscribed))
	}
	return err
}

func (s *sqliteStore) Get(ctx context.Context, id int64) (Recipient, bool, error) {
	if s == nil || s.db == nil {
		return Recipient{}, false, ErrClosed
	}
	var (
		r                            Recipient
		username, first, last, phone sql.NullString
		createdAt, updatedAt         sql.NullString
		subscribedInt, blockedInt    int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, first_name, last_name, phone, created_at, updated_at, is_subscribed, is_blocked
		 FROM users WHERE user_id = ?`, id,
	).Scan(&r.ID, &username, &first, &last, &phone, &createdAt, &updatedAt, &subscribedInt, &blockedInt)
	if errors.Is(err, sql.ErrNoRows) {
		return Recipient{}, false, nil
	}
	if err != nil {
		return Recipient{}, false, err
	}
	r.Username = username.String
	r.FirstName = first.String
	r.LastName = last.String
	r.Phone = phone.String
	r.Subscribed = subscribedInt != 0
	r.Blocked = blockedInt != 0
	r.CreatedAt = parseTime(createdAt.String)
	r.UpdatedAt = parseTime(updatedAt.String)
	return r, true, nil
}

func (s *sqliteStore) Stats(ctx context.Context) (Stats, error) {
	if s == nil || s.db == nil {
		return Stats{}, ErrClosed
	}
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN is_subscribed = 1 AND is_blocked = 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN is_blocked = 1 THEN 1 ELSE 0 END), 0)
		 FROM users`,
	).Scan(&st.Total, &st.Subscribed, &st.Blocked)
	return st, err
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

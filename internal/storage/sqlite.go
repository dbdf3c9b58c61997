package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"casguard/internal/model"
	"casguard/migrations"
)

// SQLite implements Storage backed by a SQLite database.
// Timestamps are stored as unix seconds.
type SQLite struct {
	db *sql.DB
}

var _ Storage = (*SQLite)(nil)

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite has a single writer; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// GetPolicy returns the chat policy, or the default policy if none was stored.
func (s *SQLite) GetPolicy(ctx context.Context, chatID int64) (model.ChatPolicy, error) {
	p := model.ChatPolicy{ChatID: chatID, Mode: model.DefaultMode}
	var mode string
	var silent int
	err := s.db.QueryRowContext(ctx,
		`SELECT mode, silent FROM chat_settings WHERE chat_id = ?`, chatID,
	).Scan(&mode, &silent)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("get policy: %w", err)
	}
	if m, ok := model.ParseMode(mode); ok {
		p.Mode = m
	}
	p.Silent = silent == 1
	return p, nil
}

// SetMode stores the moderation mode of a chat, keeping its silent flag.
func (s *SQLite) SetMode(ctx context.Context, chatID int64, mode model.Mode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_settings (chat_id, mode) VALUES (?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET mode = excluded.mode`,
		chatID, string(mode),
	)
	if err != nil {
		return fmt.Errorf("set mode: %w", err)
	}
	return nil
}

// SetSilent stores the silent flag of a chat. A chat without settings gets the default mode.
func (s *SQLite) SetSilent(ctx context.Context, chatID int64, silent bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_settings (chat_id, mode, silent) VALUES (?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET silent = excluded.silent`,
		chatID, string(model.DefaultMode), boolToInt(silent),
	)
	if err != nil {
		return fmt.Errorf("set silent: %w", err)
	}
	return nil
}

// IsWhitelisted reports whether an account is exempt from moderation in a chat.
func (s *SQLite) IsWhitelisted(ctx context.Context, chatID, accountID int64) (bool, error) {
	ok, err := s.exists(ctx, `SELECT 1 FROM whitelist WHERE chat_id = ? AND account_id = ?`, chatID, accountID)
	if err != nil {
		return false, fmt.Errorf("check whitelist: %w", err)
	}
	return ok, nil
}

// AddWhitelist exempts an account from moderation in a chat.
func (s *SQLite) AddWhitelist(ctx context.Context, chatID, accountID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO whitelist (chat_id, account_id) VALUES (?, ?)`,
		chatID, accountID,
	)
	if err != nil {
		return fmt.Errorf("add whitelist: %w", err)
	}
	return nil
}

// RemoveWhitelist removes a whitelist entry.
func (s *SQLite) RemoveWhitelist(ctx context.Context, chatID, accountID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM whitelist WHERE chat_id = ? AND account_id = ?`,
		chatID, accountID,
	)
	if err != nil {
		return fmt.Errorf("remove whitelist: %w", err)
	}
	return nil
}

// TouchSeen creates or refreshes the seen record of a pair.
func (s *SQLite) TouchSeen(ctx context.Context, chatID, accountID int64, at time.Time) error {
	ts := at.Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO seen_accounts (chat_id, account_id, first_seen_ts, last_seen_ts) VALUES (?, ?, ?, ?)
		 ON CONFLICT(chat_id, account_id) DO UPDATE SET last_seen_ts = excluded.last_seen_ts`,
		chatID, accountID, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("touch seen: %w", err)
	}
	return nil
}

// ListSeen returns every seen record active at or after since.
func (s *SQLite) ListSeen(ctx context.Context, since time.Time) ([]model.SeenRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, account_id, first_seen_ts, last_seen_ts
		 FROM seen_accounts WHERE last_seen_ts >= ? ORDER BY chat_id, account_id`,
		since.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query seen: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.SeenRecord
	for rows.Next() {
		var r model.SeenRecord
		var first, last int64
		if err := rows.Scan(&r.ChatID, &r.AccountID, &first, &last); err != nil {
			return nil, fmt.Errorf("scan seen: %w", err)
		}
		r.FirstSeen = time.Unix(first, 0).UTC()
		r.LastSeen = time.Unix(last, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes seen, acted and reputation cache rows older than before.
func (s *SQLite) Prune(ctx context.Context, before time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := before.Unix()
	stmts := []struct {
		name  string
		query string
	}{
		{"seen_accounts", `DELETE FROM seen_accounts WHERE last_seen_ts < ?`},
		{"acted_accounts", `DELETE FROM acted_accounts WHERE action_ts < ?`},
		{"cas_cache", `DELETE FROM cas_cache WHERE last_check_ts < ?`},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.query, ts); err != nil {
			return fmt.Errorf("prune %s: %w", st.name, err)
		}
	}
	return tx.Commit()
}

// AddMessage caches a message id for later deletion, keeping at most limit ids per pair.
func (s *SQLite) AddMessage(ctx context.Context, chatID, accountID, messageID int64, at time.Time, limit int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO msg_cache (chat_id, account_id, message_id, ts) VALUES (?, ?, ?, ?)`,
		chatID, accountID, messageID, at.Unix(),
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM msg_cache WHERE rowid IN (
		   SELECT rowid FROM msg_cache
		   WHERE chat_id = ? AND account_id = ?
		   ORDER BY ts DESC, rowid DESC
		   LIMIT -1 OFFSET ?
		 )`,
		chatID, accountID, limit,
	); err != nil {
		return fmt.Errorf("trim messages: %w", err)
	}
	return tx.Commit()
}

// ListMessages returns the cached message ids of a pair, newest first.
func (s *SQLite) ListMessages(ctx context.Context, chatID, accountID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id FROM msg_cache WHERE chat_id = ? AND account_id = ? ORDER BY ts DESC, rowid DESC`,
		chatID, accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClearMessages drops every cached message id of a pair.
func (s *SQLite) ClearMessages(ctx context.Context, chatID, accountID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM msg_cache WHERE chat_id = ? AND account_id = ?`, chatID, accountID)
	if err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

// IsActed reports whether an action was already taken for a pair.
// The answer may be stale by the time it is used; TryMarkActed is authoritative.
func (s *SQLite) IsActed(ctx context.Context, chatID, accountID int64) (bool, error) {
	ok, err := s.exists(ctx, `SELECT 1 FROM acted_accounts WHERE chat_id = ? AND account_id = ?`, chatID, accountID)
	if err != nil {
		return false, fmt.Errorf("check acted: %w", err)
	}
	return ok, nil
}

// TryMarkActed inserts the acted record of a pair if absent.
// It returns true only for the caller whose insert created the row.
func (s *SQLite) TryMarkActed(ctx context.Context, chatID, accountID int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO acted_accounts (chat_id, account_id, action_ts) VALUES (?, ?, ?)`,
		chatID, accountID, at.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("mark acted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// AddActionLog appends an action log entry.
func (s *SQLite) AddActionLog(ctx context.Context, e model.ActionLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO action_log (chat_id, account_id, action, mode, reason, source, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ChatID, e.AccountID, string(e.Action), string(e.Mode), e.Reason, string(e.Source), e.At.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert action log: %w", err)
	}
	return nil
}

// ListActionLog returns the latest action log entries of a chat, newest first.
func (s *SQLite) ListActionLog(ctx context.Context, chatID int64, limit int) ([]model.ActionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, account_id, action, mode, reason, source, ts
		 FROM action_log WHERE chat_id = ? ORDER BY ts DESC, id DESC LIMIT ?`,
		chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query action log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ActionLogEntry
	for rows.Next() {
		var e model.ActionLogEntry
		var action, mode, source string
		var ts int64
		if err := rows.Scan(&e.ChatID, &e.AccountID, &action, &mode, &e.Reason, &source, &ts); err != nil {
			return nil, fmt.Errorf("scan action log: %w", err)
		}
		e.Action = model.ActionKind(action)
		e.Mode = model.Mode(mode)
		e.Source = model.Provenance(source)
		e.At = time.Unix(ts, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// ActionStats aggregates the action log of a chat since the given time.
func (s *SQLite) ActionStats(ctx context.Context, chatID int64, since time.Time) (model.ActionStats, error) {
	var st model.ActionStats
	err := s.db.QueryRowContext(ctx,
		`SELECT
		   COUNT(*),
		   COALESCE(SUM(CASE WHEN action = 'notify' THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN action = 'quickban' THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN source = 'local' THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN source = 'cas' THEN 1 ELSE 0 END), 0),
		   COUNT(DISTINCT account_id)
		 FROM action_log WHERE chat_id = ? AND ts >= ?`,
		chatID, since.Unix(),
	).Scan(&st.Total, &st.Notify, &st.Quickban, &st.Local, &st.Remote, &st.UniqueAccounts)
	if err != nil {
		return st, fmt.Errorf("action stats: %w", err)
	}
	return st, nil
}

// LookupReputation returns the cached remote verdict of a pair.
func (s *SQLite) LookupReputation(ctx context.Context, chatID, accountID int64) (model.ReputationEntry, bool, error) {
	var ts int64
	var banned int
	err := s.db.QueryRowContext(ctx,
		`SELECT last_check_ts, is_banned FROM cas_cache WHERE chat_id = ? AND account_id = ?`,
		chatID, accountID,
	).Scan(&ts, &banned)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ReputationEntry{}, false, nil
	}
	if err != nil {
		return model.ReputationEntry{}, false, fmt.Errorf("lookup reputation: %w", err)
	}
	return model.ReputationEntry{CheckedAt: time.Unix(ts, 0).UTC(), Banned: banned == 1}, true, nil
}

// StoreReputation overwrites the cached remote verdict of a pair.
func (s *SQLite) StoreReputation(ctx context.Context, chatID, accountID int64, banned bool, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cas_cache (chat_id, account_id, last_check_ts, is_banned) VALUES (?, ?, ?, ?)
		 ON CONFLICT(chat_id, account_id) DO UPDATE
		 SET last_check_ts = excluded.last_check_ts, is_banned = excluded.is_banned`,
		chatID, accountID, at.Unix(), boolToInt(banned),
	)
	if err != nil {
		return fmt.Errorf("store reputation: %w", err)
	}
	return nil
}

// UpsertSourceUpdate records the result of a denylist feed refresh.
func (s *SQLite) UpsertSourceUpdate(ctx context.Context, u model.SourceUpdate) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_updates (name, last_ts, count) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET last_ts = excluded.last_ts, count = excluded.count`,
		u.Name, u.At.Unix(), u.Count,
	)
	if err != nil {
		return fmt.Errorf("upsert source update: %w", err)
	}
	return nil
}

// ListSourceUpdates returns the refresh metadata of every feed, ordered by name.
func (s *SQLite) ListSourceUpdates(ctx context.Context) ([]model.SourceUpdate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, count, last_ts FROM source_updates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query source updates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.SourceUpdate
	for rows.Next() {
		var u model.SourceUpdate
		var ts int64
		if err := rows.Scan(&u.Name, &u.Count, &ts); err != nil {
			return nil, fmt.Errorf("scan source update: %w", err)
		}
		u.At = time.Unix(ts, 0).UTC()
		out = append(out, u)
	}
	return out, rows.Err()
}

// AddErrorLog records a non-fatal failure.
func (s *SQLite) AddErrorLog(ctx context.Context, e model.ErrorLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO error_log (source, chat_id, account_id, message, ts) VALUES (?, ?, ?, ?, ?)`,
		e.Source, nullableID(e.ChatID), nullableID(e.AccountID), e.Message, e.At.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert error log: %w", err)
	}
	return nil
}

// ListErrorLog returns the latest error log entries, newest first.
func (s *SQLite) ListErrorLog(ctx context.Context, limit int) ([]model.ErrorLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, chat_id, account_id, message, ts FROM error_log ORDER BY ts DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query error log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ErrorLogEntry
	for rows.Next() {
		var e model.ErrorLogEntry
		var chatID, accountID sql.NullInt64
		var ts int64
		if err := rows.Scan(&e.ID, &e.Source, &chatID, &accountID, &e.Message, &ts); err != nil {
			return nil, fmt.Errorf("scan error log: %w", err)
		}
		e.ChatID = chatID.Int64
		e.AccountID = accountID.Int64
		e.At = time.Unix(ts, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLite) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

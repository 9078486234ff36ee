package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Key is a hierarchical key, e.g. Key{"features", "css.grid"}.
type Key []string

// String renders the key with "/" separators for logs and errors.
func (k Key) String() string {
	return strings.Join(k, "/")
}

// encode returns the stored form of the key: its JSON array encoding,
// without HTML escaping so encoded keys sort like their parts.
// Parts must be valid UTF-8; json would otherwise fold distinct invalid
// bytes into U+FFFD.
func (k Key) encode() (string, error) {
	if len(k) == 0 {
		return "", ErrInvalidKey
	}
	for i, part := range k {
		if !utf8.ValidString(part) {
			return "", fmt.Errorf("%w: part %d is not valid UTF-8", ErrInvalidKey, i)
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]string(k)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// prefixRange returns the half-open range [lo, hi) of encoded keys that
// start with prefix. An empty prefix covers every key.
//
// The encoded prefix is the JSON array without its closing bracket plus a
// comma (`["features",`). Because parts are JSON strings, a part containing
// `",` is escaped and cannot masquerade as a boundary.
func (k Key) prefixRange() (lo, hi string, err error) {
	if len(k) == 0 {
		lo = "["
	} else {
		enc, encErr := k.encode()
		if encErr != nil {
			return "", "", encErr
		}
		lo = enc[:len(enc)-1] + ","
	}
	last := lo[len(lo)-1]
	hi = lo[:len(lo)-1] + string(rune(last+1))
	return lo, hi, nil
}

func decodeKey(enc string) (Key, error) {
	var parts []string
	if err := json.Unmarshal([]byte(enc), &parts); err != nil {
		return nil, fmt.Errorf("decode key %q: %w", enc, err)
	}
	return Key(parts), nil
}

// Entry is one key-value pair returned by List.
type Entry struct {
	Key   Key
	Value string
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) conn() (*sql.DB, error) {
	if s.db == nil {
		return nil, errClosed
	}
	return s.db, nil
}

// Get returns the value stored at key. ok is false if the key was never set.
func (s *Store) Get(ctx context.Context, key Key) (value string, ok bool, err error) {
	db, err := s.conn()
	if err != nil {
		return "", false, storageErr("get", key, err)
	}
	return get(ctx, db, key)
}

func get(ctx context.Context, q execer, key Key) (string, bool, error) {
	enc, err := key.encode()
	if err != nil {
		return "", false, fmt.Errorf("get: %w", err)
	}

	var value string
	err = q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, enc).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageErr("get", key, err)
	}
	return value, true, nil
}

// Set stores value at key, overwriting any previous value.
func (s *Store) Set(ctx context.Context, key Key, value string) error {
	db, err := s.conn()
	if err != nil {
		return storageErr("set", key, err)
	}
	return set(ctx, db, key, value)
}

func set(ctx context.Context, q execer, key Key, value string) error {
	enc, err := key.encode()
	if err != nil {
		return fmt.Errorf("set: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, enc, value)
	if err != nil {
		return storageErr("set", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key Key) error {
	db, err := s.conn()
	if err != nil {
		return storageErr("delete", key, err)
	}
	return del(ctx, db, key)
}

func del(ctx context.Context, q execer, key Key) error {
	enc, err := key.encode()
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, enc); err != nil {
		return storageErr("delete", key, err)
	}
	return nil
}

// List returns every entry strictly below prefix, ordered by encoded key.
// List(ctx, Key{"features"}) returns all feature entries but not the
// ["features"] key itself.
func (s *Store) List(ctx context.Context, prefix Key) ([]Entry, error) {
	db, err := s.conn()
	if err != nil {
		return nil, storageErr("list", prefix, err)
	}

	lo, hi, err := prefix.prefixRange()
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT key, value FROM kv
		WHERE key >= ? AND key < ?
		ORDER BY key ASC
	`, lo, hi)
	if err != nil {
		return nil, storageErr("list", prefix, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var enc, value string
		if err := rows.Scan(&enc, &value); err != nil {
			return nil, storageErr("list", prefix, err)
		}
		key, err := decodeKey(enc)
		if err != nil {
			return nil, storageErr("list", prefix, err)
		}
		entries = append(entries, Entry{Key: key, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", prefix, err)
	}
	return entries, nil
}

// DeletePrefix removes every entry strictly below prefix and returns how
// many were removed. Keys outside the prefix are untouched.
func (s *Store) DeletePrefix(ctx context.Context, prefix Key) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, storageErr("delete prefix", prefix, err)
	}
	return deletePrefix(ctx, db, prefix)
}

func deletePrefix(ctx context.Context, q execer, prefix Key) (int64, error) {
	lo, hi, err := prefix.prefixRange()
	if err != nil {
		return 0, fmt.Errorf("delete prefix: %w", err)
	}

	res, err := q.ExecContext(ctx, `DELETE FROM kv WHERE key >= ? AND key < ?`, lo, hi)
	if err != nil {
		return 0, storageErr("delete prefix", prefix, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("delete prefix", prefix, err)
	}
	return n, nil
}

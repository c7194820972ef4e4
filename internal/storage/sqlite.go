package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/liangyou/bvm/pkg/models"
)

// SQLiteRegistry 使用 SQLite 持久化登记表，多行写入在事务中完成。
type SQLiteRegistry struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteRegistry 在 path 打开（必要时创建）数据库并建表。
func NewSQLiteRegistry(path string) (*SQLiteRegistry, error) {
	if path == "" {
		return nil, errors.New("storage: registry path is not configured")
	}
	logger := slog.Default().With("component", "registry")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("storage: opening database: %w", err)
	}

	r := &SQLiteRegistry{db: db, logger: logger}
	if err := r.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: creating schema: %w", err)
	}

	logger.Debug("sqlite registry initialized", "path", path)
	return r, nil
}

// sqliteDSN 把文件路径编码为 SQLite URI，路径中的 ? # % 等字符不会截断文件名。
// pragma 写在 DSN 中，连接池里的每个连接都会生效。
func sqliteDSN(path string) string {
	p := filepath.ToSlash(path)
	if filepath.VolumeName(path) != "" {
		p = "/" + p
	}
	u := url.URL{
		Scheme:   "file",
		Path:     p,
		RawQuery: "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
	}
	return u.String()
}

func (r *SQLiteRegistry) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS installations (
			path        TEXT PRIMARY KEY,
			version     TEXT NOT NULL DEFAULT '',
			big_version TEXT NOT NULL DEFAULT '',
			build_hash  TEXT NOT NULL DEFAULT '',
			build_date  TEXT NOT NULL DEFAULT '',
			is_valid    INTEGER NOT NULL DEFAULT 0,
			is_active   INTEGER NOT NULL DEFAULT 0,
			added_at    TEXT NOT NULL,
			verified_at TEXT NOT NULL DEFAULT '',
			seq         INTEGER NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_installations_single_active
			ON installations(is_active) WHERE is_active = 1;
	`
	_, err := r.db.Exec(schema)
	return err
}

// Close 关闭数据库连接。
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

// Add 登记新的安装，路径重复时返回 ErrDuplicate。
func (r *SQLiteRegistry) Add(ctx context.Context, item models.Installation) error {
	return r.inTx(ctx, "add installation", func(tx *sql.Tx) error {
		if item.IsActive {
			if _, err := tx.ExecContext(ctx, `UPDATE installations SET is_active = 0 WHERE path != ?`, item.Path); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO installations
				(path, version, big_version, build_hash, build_date, is_valid, is_active, added_at, verified_at, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM installations))
		`,
			item.Path, item.Version, item.BigVersion, item.BuildHash, item.BuildDate,
			boolToInt(item.IsValid), boolToInt(item.IsActive),
			formatTime(item.AddedAt), formatTime(item.VerifiedAt),
		)
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return err
	})
}

// List 按登记顺序返回所有记录。
func (r *SQLiteRegistry) List(ctx context.Context) ([]models.Installation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT path, version, big_version, build_hash, build_date, is_valid, is_active, added_at, verified_at
		FROM installations
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("storage: querying installations: %w", err)
	}
	defer rows.Close()

	items := []models.Installation{}
	for rows.Next() {
		item, err := scanInstallation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterating installations: %w", err)
	}
	return items, nil
}

// Get 返回指定路径的记录。
func (r *SQLiteRegistry) Get(ctx context.Context, path string) (models.Installation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT path, version, big_version, build_hash, build_date, is_valid, is_active, added_at, verified_at
		FROM installations
		WHERE path = ?
	`, path)
	item, err := scanInstallation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Installation{}, ErrNotFound
	}
	return item, err
}

// Update 覆盖指定路径的记录；激活的记录会在同一事务中取消其他记录的激活状态。
func (r *SQLiteRegistry) Update(ctx context.Context, item models.Installation) error {
	return r.inTx(ctx, "update installation", func(tx *sql.Tx) error {
		if item.IsActive {
			if _, err := tx.ExecContext(ctx, `UPDATE installations SET is_active = 0 WHERE path != ?`, item.Path); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE installations
			SET version = ?, big_version = ?, build_hash = ?, build_date = ?,
				is_valid = ?, is_active = ?, verified_at = ?
			WHERE path = ?
		`,
			item.Version, item.BigVersion, item.BuildHash, item.BuildDate,
			boolToInt(item.IsValid), boolToInt(item.IsActive), formatTime(item.VerifiedAt),
			item.Path,
		)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

// Remove 删除指定路径的记录，不存在时不报错。
func (r *SQLiteRegistry) Remove(ctx context.Context, path string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM installations WHERE path = ?`, path); err != nil {
		return persistErr("remove installation", err)
	}
	return nil
}

// ExistsByPath 判断路径是否已登记。
func (r *SQLiteRegistry) ExistsByPath(ctx context.Context, path string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM installations WHERE path = ?`, path).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("storage: checking installation: %w", err)
	}
	return n > 0, nil
}

// DeactivateOthers 取消除 path 之外所有记录的激活状态。
func (r *SQLiteRegistry) DeactivateOthers(ctx context.Context, path string) error {
	return r.inTx(ctx, "deactivate installations", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE installations SET is_active = 0 WHERE path != ? AND is_active = 1`, path)
		return err
	})
}

// SetActive 让且仅让 path 处于激活状态，path 为空时全部取消。
func (r *SQLiteRegistry) SetActive(ctx context.Context, path string) error {
	return r.inTx(ctx, "set active installation", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE installations SET is_active = 0 WHERE is_active = 1`); err != nil {
			return err
		}
		if path == "" {
			return nil
		}
		res, err := tx.ExecContext(ctx, `UPDATE installations SET is_active = 1 WHERE path = ?`, path)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

// inTx 在事务中执行 fn，ErrNotFound 与 ErrDuplicate 原样返回，其余错误包装为 ErrPersistence。
func (r *SQLiteRegistry) inTx(ctx context.Context, action string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr(action, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) {
			return err
		}
		return persistErr(action, err)
	}
	if err := tx.Commit(); err != nil {
		return persistErr(action, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstallation(row rowScanner) (models.Installation, error) {
	var item models.Installation
	var valid, active int
	var addedAt, verifiedAt string
	err := row.Scan(
		&item.Path, &item.Version, &item.BigVersion, &item.BuildHash, &item.BuildDate,
		&valid, &active, &addedAt, &verifiedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return item, err
		}
		return item, fmt.Errorf("storage: scanning installation: %w", err)
	}
	item.IsValid = valid != 0
	item.IsActive = active != 0
	item.AddedAt = parseTime(addedAt)
	item.VerifiedAt = parseTime(verifiedAt)
	return item, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

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

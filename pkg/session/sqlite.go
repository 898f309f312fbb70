package session

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nao1215/petadmin/pkg/migration"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// 永続化に使う2つの論理キー。
const (
	keyToken = "userToken"
	keyName  = "userName"
)

// SQLiteStore はSQLiteファイルにセッションを永続化するStore。
// 同じファイルを開き直すと直前のセッションが復元される。
type SQLiteStore struct {
	broadcaster

	// mu は変更とその通知の組を直列化する。
	// 購読者は状態の変化と同じ順序で通知を受け取る。
	mu sync.Mutex
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite は指定パスのSQLiteファイルを開き、スキーマを適用する。
// 親ディレクトリが無ければ作成する。
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("セッションディレクトリの作成に失敗: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := migration.Run(ctx, db, migrations, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Initialize はトークンと表示名を1つのトランザクションで保存する。
func (s *SQLiteStore) Initialize(ctx context.Context, token, displayName string) error {
	next, err := normalize(token, displayName)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(ctx, next); err != nil {
		return err
	}
	return s.publishInitialized(next)
}

func (s *SQLiteStore) write(ctx context.Context, next Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const upsert = `
		INSERT INTO session_kv (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, upsert, keyToken, next.Token); err != nil {
		return fmt.Errorf("トークンの保存に失敗: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, keyName, next.DisplayName); err != nil {
		return fmt.Errorf("表示名の保存に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("セッションの保存に失敗: %w", err)
	}
	return nil
}

// Current は保存されているセッションを返す。
// トークンが無い場合は表示名が残っていても不在として扱う。
func (s *SQLiteStore) Current(ctx context.Context) (Session, bool, error) {
	cur, err := s.read(ctx)
	if err != nil {
		return Session{}, false, err
	}
	return cur, cur.Present(), nil
}

func (s *SQLiteStore) read(ctx context.Context) (Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM session_kv WHERE key IN (?, ?)`, keyToken, keyName)
	if err != nil {
		return Session{}, fmt.Errorf("セッションの読み込みに失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cur Session
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Session{}, fmt.Errorf("セッションの読み込みに失敗: %w", err)
		}
		switch key {
		case keyToken:
			cur.Token = value
		case keyName:
			cur.DisplayName = value
		}
	}
	if err := rows.Err(); err != nil {
		return Session{}, fmt.Errorf("セッションの読み込みに失敗: %w", err)
	}
	if !cur.Present() {
		return Session{}, nil
	}
	return cur, nil
}

// Clear は両方のキーを1つのトランザクションで削除する。
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.remove(ctx)
	if err != nil {
		return err
	}
	if !prev.Present() {
		return nil
	}
	return s.publishCleared(prev)
}

// remove は削除前のセッションを返す。
func (s *SQLiteStore) remove(ctx context.Context) (Session, error) {
	prev, err := s.read(ctx)
	if err != nil {
		return Session{}, err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM session_kv WHERE key IN (?, ?)`, keyToken, keyName); err != nil {
		return Session{}, fmt.Errorf("セッションの削除に失敗: %w", err)
	}
	return prev, nil
}

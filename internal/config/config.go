// Package config は環境変数と.envファイルから設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はコンソールと開発用APIの設定。
type Config struct {
	// LogLevel はログの出力レベル（debug, info, warn, error）。
	LogLevel string

	Console Console
	DevAPI  DevAPI
}

// Console は管理コンソールの設定。
type Console struct {
	// Port はコンソールのリッスンポート。
	Port string
	// APIBaseURL はリモートAPIのベースURL。
	APIBaseURL string
	// SessionDBPath はセッションを保存するSQLiteファイルのパス。
	SessionDBPath string
}

// DevAPI は開発用APIの設定。
type DevAPI struct {
	Port   string
	DBPath string
	// JWTSecret はトークン署名用の秘密鍵。
	JWTSecret string
	// TokenTTL は発行するトークンの有効期間。
	TokenTTL time.Duration
	// AllowedOrigins はCORSを許可するオリジン。
	AllowedOrigins []string

	// Admin* が揃っている場合、起動時に管理者を登録する。
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

// Load は.envファイル（存在すれば）と環境変数から設定を読み込む。
// 環境変数が設定されていない項目にはデフォルト値を使う。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".envファイルの読み込みに失敗: %w", err)
	}

	ttl, err := time.ParseDuration(getEnvOr("DEVAPI_TOKEN_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("DEVAPI_TOKEN_TTLの解析に失敗: %w", err)
	}

	cfg := &Config{
		LogLevel: getEnvOr("LOG_LEVEL", "info"),
		Console: Console{
			Port:          getEnvOr("CONSOLE_PORT", "8081"),
			APIBaseURL:    getEnvOr("API_BASE_URL", "http://localhost:3000"),
			SessionDBPath: getEnvOr("SESSION_DB_PATH", defaultSessionDBPath()),
		},
		DevAPI: DevAPI{
			Port:           getEnvOr("DEVAPI_PORT", "3000"),
			DBPath:         getEnvOr("DEVAPI_DB_PATH", "petadmin-devapi.db"),
			JWTSecret:      getEnvOr("JWT_SECRET", "dev-secret-key"),
			TokenTTL:       ttl,
			AllowedOrigins: splitList(getEnvOr("DEVAPI_ALLOWED_ORIGINS", "http://localhost:5173")),
			AdminEmail:     os.Getenv("DEVAPI_ADMIN_EMAIL"),
			AdminPassword:  os.Getenv("DEVAPI_ADMIN_PASSWORD"),
			AdminName:      getEnvOr("DEVAPI_ADMIN_NAME", "Administrador"),
		},
	}
	return cfg, nil
}

// Validate はコンソールの設定を検証する。
func (c *Console) Validate() error {
	if err := validatePort("CONSOLE_PORT", c.Port); err != nil {
		return err
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_BASE_URLが不正です: %q", c.APIBaseURL)
	}
	if strings.TrimSpace(c.SessionDBPath) == "" {
		return errors.New("SESSION_DB_PATHが設定されていません")
	}
	return nil
}

// Validate は開発用APIの設定を検証する。
func (d *DevAPI) Validate() error {
	if err := validatePort("DEVAPI_PORT", d.Port); err != nil {
		return err
	}
	if strings.TrimSpace(d.DBPath) == "" {
		return errors.New("DEVAPI_DB_PATHが設定されていません")
	}
	if d.JWTSecret == "" {
		return errors.New("JWT_SECRETが設定されていません")
	}
	if d.TokenTTL <= 0 {
		return fmt.Errorf("DEVAPI_TOKEN_TTLは正の値である必要があります: %s", d.TokenTTL)
	}
	if (d.AdminEmail == "") != (d.AdminPassword == "") {
		return errors.New("DEVAPI_ADMIN_EMAILとDEVAPI_ADMIN_PASSWORDは両方設定する必要があります")
	}
	return nil
}

// SeedAdmin は起動時に管理者を登録するかどうかを返す。
func (d *DevAPI) SeedAdmin() bool {
	return d.AdminEmail != "" && d.AdminPassword != ""
}

func validatePort(key, port string) error {
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%sが不正です: %q", key, port)
	}
	return nil
}

// defaultSessionDBPath はホームディレクトリ配下の既定パスを返す。
func defaultSessionDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".petadmin", "session.db")
	}
	return filepath.Join(home, ".petadmin", "session.db")
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/petadmin/pkg/session"
)

// brokenReader は常に読み取りに失敗するセッションReader。
type brokenReader struct{}

func (brokenReader) Current(context.Context) (session.Session, bool, error) {
	return session.Session{}, false, errors.New("disk I/O error")
}

// TestRouteGuardEvaluate はEvaluateの判定を検証する。
func TestRouteGuardEvaluate(t *testing.T) {
	t.Parallel()

	t.Run("セッションが無い場合はログインページへ遷移すること", func(t *testing.T) {
		t.Parallel()

		g := NewRouteGuard(session.NewMemoryStore(), "/login")
		got := g.Evaluate(context.Background())
		if got != DenyRedirect("/login") {
			t.Errorf("Evaluate() = %+v, want %+v", got, DenyRedirect("/login"))
		}
	})

	t.Run("トークンがある場合は許可されること", func(t *testing.T) {
		t.Parallel()

		store := session.NewMemoryStore()
		if err := store.Initialize(context.Background(), "abc", ""); err != nil {
			t.Fatalf("Initialize()でエラーが発生: %v", err)
		}
		got := NewRouteGuard(store, "/login").Evaluate(context.Background())
		if !got.Allowed {
			t.Errorf("Evaluate() = %+v, want Allow", got)
		}
		if got.DisplayName != session.DefaultDisplayName {
			t.Errorf("DisplayName = %q, want %q", got.DisplayName, session.DefaultDisplayName)
		}
	})

	t.Run("判定がキャッシュされずログアウト後は拒否されること", func(t *testing.T) {
		t.Parallel()

		store := session.NewMemoryStore()
		g := NewRouteGuard(store, "/login")
		if err := store.Initialize(context.Background(), "abc", "Ana"); err != nil {
			t.Fatalf("Initialize()でエラーが発生: %v", err)
		}
		if !g.Evaluate(context.Background()).Allowed {
			t.Fatal("ログイン中に拒否された")
		}
		if err := store.Clear(context.Background()); err != nil {
			t.Fatalf("Clear()でエラーが発生: %v", err)
		}
		if g.Evaluate(context.Background()).Allowed {
			t.Error("ログアウト後に許可された")
		}
	})

	t.Run("セッションの読み取りに失敗した場合は拒否されること", func(t *testing.T) {
		t.Parallel()

		got := NewRouteGuard(brokenReader{}, "/login").Evaluate(context.Background())
		if got != DenyRedirect("/login") {
			t.Errorf("Evaluate() = %+v, want %+v", got, DenyRedirect("/login"))
		}
	})
}

// TestRouteGuardMiddleware はGinミドルウェアとしての動作を検証する。
func TestRouteGuardMiddleware(t *testing.T) {
	t.Parallel()

	newRouter := func(store session.Reader, gotName *string) *gin.Engine {
		router := gin.New()
		protected := router.Group("/")
		protected.Use(NewRouteGuard(store, "/login").Middleware())
		protected.GET("/usuario", func(c *gin.Context) {
			*gotName = GetDisplayName(c)
			c.String(http.StatusOK, "lista")
		})
		return router
	}

	t.Run("未ログインでは303でログインページへリダイレクトされること", func(t *testing.T) {
		t.Parallel()

		var name string
		w := httptest.NewRecorder()
		newRouter(session.NewMemoryStore(), &name).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/usuario", nil))

		if w.Code != http.StatusSeeOther {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusSeeOther)
		}
		if got := w.Header().Get("Location"); got != "/login" {
			t.Errorf("Location = %q, want %q", got, "/login")
		}
		if name != "" {
			t.Error("保護ページのハンドラーが呼ばれた")
		}
	})

	t.Run("ログイン中は表示名付きでハンドラーが呼ばれること", func(t *testing.T) {
		t.Parallel()

		store := session.NewMemoryStore()
		if err := store.Initialize(context.Background(), "abc", "Ana"); err != nil {
			t.Fatalf("Initialize()でエラーが発生: %v", err)
		}

		var name string
		w := httptest.NewRecorder()
		newRouter(store, &name).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/usuario", nil))

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if name != "Ana" {
			t.Errorf("GetDisplayName() = %q, want %q", name, "Ana")
		}
	})
}

package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/petadmin/pkg/logger"
	"github.com/nao1215/petadmin/pkg/session"
)

// contextKeyDisplayName はガードを通過したリクエストに表示名を格納するキー。
const contextKeyDisplayName = "display_name"

// Decision はルートガードの判定結果。
type Decision struct {
	// Allowed が真なら保護ページを表示してよい。
	Allowed bool
	// RedirectTo は拒否時の遷移先。
	RedirectTo string
	// DisplayName は許可時のセッションの表示名。
	DisplayName string
}

// Allow は許可の判定を返す。
func Allow(displayName string) Decision {
	return Decision{Allowed: true, DisplayName: displayName}
}

// DenyRedirect は拒否してtoへ遷移させる判定を返す。
func DenyRedirect(to string) Decision {
	return Decision{RedirectTo: to}
}

// RouteGuard は保護ページへの遷移をセッションの有無で判定する。
// 判定は遷移ごとに行い、結果をキャッシュしない。ネットワークにはアクセスしない。
type RouteGuard struct {
	sessions  session.Reader
	loginPath string
}

// NewRouteGuard は新しいRouteGuardを生成する。
func NewRouteGuard(sessions session.Reader, loginPath string) *RouteGuard {
	return &RouteGuard{sessions: sessions, loginPath: loginPath}
}

// Evaluate はセッションにトークンがあれば許可し、無ければログインページへの遷移を返す。
// セッションの読み取りに失敗した場合も拒否する。
func (g *RouteGuard) Evaluate(ctx context.Context) Decision {
	cur, ok, err := g.sessions.Current(ctx)
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).Msg("route guard could not read session")
		return DenyRedirect(g.loginPath)
	}
	if !ok {
		return DenyRedirect(g.loginPath)
	}
	return Allow(cur.DisplayName)
}

// Middleware はEvaluateをGinミドルウェアとして適用する。
// 拒否時は303でログインページへリダイレクトし、許可時は表示名をコンテキストに設定する。
func (g *RouteGuard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		d := g.Evaluate(c.Request.Context())
		if !d.Allowed {
			c.Redirect(http.StatusSeeOther, d.RedirectTo)
			c.Abort()
			return
		}
		c.Set(contextKeyDisplayName, d.DisplayName)
		c.Next()
	}
}

// GetDisplayName はガードが設定した表示名を取得する。
// RouteGuardのミドルウェアが事前に適用されている必要がある。
func GetDisplayName(c *gin.Context) string {
	if v, ok := c.Get(contextKeyDisplayName); ok {
		if name, ok := v.(string); ok {
			return name
		}
	}
	return ""
}

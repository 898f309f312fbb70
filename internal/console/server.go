package console

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/petadmin/pkg/httpclient"
	"github.com/nao1215/petadmin/pkg/logger"
	"github.com/nao1215/petadmin/pkg/middleware"
	"github.com/nao1215/petadmin/pkg/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server は管理コンソールのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// api はリモートAPIのゲートウェイクライアント。
	api   *httpclient.Client
	auth  *Auth
	guard *middleware.RouteGuard
}

// NewServer は新しいコンソールサーバーを生成する。
// gathererがnilでなければ/metricsでメトリクスを公開する。
func NewServer(api *httpclient.Client, sessions session.Store, gatherer prometheus.Gatherer) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("テンプレートの読み込みに失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Logging())
	router.Use(middleware.Recovery())
	router.SetHTMLTemplate(tmpl)

	s := &Server{
		router: router,
		api:    api,
		auth:   NewAuth(api, sessions),
		guard:  middleware.NewRouteGuard(sessions, LoginPath),
	}
	s.setupRoutes(gatherer)

	return s, nil
}

// Handler はHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes はルーティングを設定する。
func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	// 認証不要
	s.router.GET(LoginPath, s.handleLoginPage())
	s.router.POST(LoginPath, s.handleLogin())
	s.router.POST("/logout", s.handleLogout())

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "console"})
	})
	if gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// ログインが必要なページ
	protected := s.router.Group("/")
	protected.Use(s.guard.Middleware())
	{
		protected.GET("/", s.handleHome())
		for _, r := range resources {
			protected.GET(r.ListPath(), s.handleList(r))
			protected.GET(r.NewPath(), s.handleNewForm(r))
			protected.POST(r.NewPath(), s.handleCreate(r))
			protected.GET(r.EditPath(":id"), s.handleEditForm(r))
			protected.POST(r.EditPath(":id"), s.handleUpdate(r))
			protected.POST(r.DeletePath(":id"), s.handleDelete(r))
		}
	}
}

// redirectNavigator はNavigatorを303リダイレクトとして実装する。
type redirectNavigator struct {
	c *gin.Context
}

func (n redirectNavigator) Navigate(path string) {
	n.c.Redirect(http.StatusSeeOther, path)
}

// loginPage はログインページの表示内容。
type loginPage struct {
	DisplayName string
	Email       string
	Error       string
}

// listPage は一覧ページの表示内容。
type listPage struct {
	DisplayName string
	Resource    *resource
	Rows        []row
	Notice      string
	Error       string
}

// formPage は登録・編集フォームの表示内容。
type formPage struct {
	DisplayName string
	Resource    *resource
	Mode        formMode
	Fields      []field
	Error       string
}

// homePage はトップページの表示内容。
type homePage struct {
	DisplayName string
	Resources   []*resource
}

func (s *Server) handleLoginPage() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "login.html", loginPage{})
	}
}

func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := requestContext(c)
		cred := Credentials{
			Email: strings.TrimSpace(c.PostForm("email")),
			Senha: c.PostForm("senha"),
		}

		err := s.auth.Login(ctx, cred, redirectNavigator{c})
		if err == nil {
			return
		}

		var loginErr *LoginError
		if errors.As(err, &loginErr) {
			logger.FromContext(ctx).Info().Err(loginErr.Err).Msg("login rejected")
			c.HTML(http.StatusUnauthorized, "login.html", loginPage{Email: cred.Email, Error: loginErr.Message})
			return
		}
		logger.FromContext(ctx).Error().Err(err).Msg("login failed")
		c.HTML(http.StatusInternalServerError, "login.html", loginPage{Email: cred.Email, Error: "ERRO AO SALVAR A SESSÃO"})
	}
}

func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.auth.Logout(requestContext(c), redirectNavigator{c})
	}
}

func (s *Server) handleHome() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "home.html", homePage{
			DisplayName: middleware.GetDisplayName(c),
			Resources:   resources,
		})
	}
}

// handleList は一覧ページを表示するハンドラを返す。
func (s *Server) handleList(r *resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := requestContext(c)
		notice, failure := takeFlash(c)
		page := listPage{
			DisplayName: middleware.GetDisplayName(c),
			Resource:    r,
			Notice:      notice,
			Error:       failure,
		}

		records, err := s.fetchList(ctx, r.ListPath())
		if err != nil {
			if s.auth.HandleAuthFailure(ctx, err, redirectNavigator{c}) {
				return
			}
			logger.FromContext(ctx).Error().Err(err).Str("resource", r.Name).Msg("failed to fetch list")
			page.Error = r.ListFailed
			c.HTML(failureStatus(err), "list.html", page)
			return
		}

		page.Rows = buildRows(r, records)
		c.HTML(http.StatusOK, "list.html", page)
	}
}

// handleDelete は1件削除して一覧ページへ戻るハンドラを返す。
func (s *Server) handleDelete(r *resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := requestContext(c)
		id := c.Param("id")

		_, err := s.api.Delete(ctx, r.ItemPath(url.PathEscape(id)))
		if err != nil {
			if s.auth.HandleAuthFailure(ctx, err, redirectNavigator{c}) {
				return
			}
			logger.FromContext(ctx).Warn().Err(err).Str("resource", r.Name).Str("id", id).Msg("delete failed")
			redirectWithFlash(c, r.ListPath(), flashError, messageOr(err, r.DeleteFailed))
			return
		}
		redirectWithFlash(c, r.ListPath(), flashNotice, r.Deleted)
	}
}

// handleNewForm は登録フォームを表示するハンドラを返す。
func (s *Server) handleNewForm(r *resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := requestContext(c)
		page := formPage{DisplayName: middleware.GetDisplayName(c), Resource: r, Mode: r.createMode()}

		fields, err := s.formFields(ctx, r, page.Mode)
		if err != nil {
			if s.auth.HandleAuthFailure(ctx, err, redirectNavigator{c}) {
				return
			}
			logger.FromContext(ctx).Error().Err(err).Str("resource", r.Name).Msg("failed to prepare form")
			page.Error = r.CreateFailed
			c.HTML(failureStatus(err), "form.html", page)
			return
		}
		page.Fields = fields
		c.HTML(http.StatusOK, "form.html", page)
	}
}

// handleCreate はフォームの内容をリモートAPIに登録するハンドラを返す。
func (s *Server) handleCreate(r *resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := requestContext(c)

		mode := r.createMode()

		payload, invalid := r.payload(c)
		if invalid != "" {
			s.renderFormError(c, r, mode, http.StatusUnprocessableEntity, invalid)
			return
		}

		resp, err := s.api.Post(ctx, r.ListPath(), payload)
		if err != nil {
			if s.auth.HandleAuthFailure(ctx, err, redirectNavigator{c}) {
				return
			}
			logger.FromContext(ctx).Warn().Err(err).Str("resource", r.Name).Msg("create failed")
			s.renderFormError(c, r, mode, failureStatus(err), messageOr(err, r.CreateFailed))
			return
		}
		redirectWithFlash(c, r.ListPath(), flashNotice, successMessage(resp, r.Created))
	}
}

// handleEditForm は既存の値を入力済みにした編集フォームを表示するハンドラを返す。
func (s *Server) handleEditForm(r *resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := requestContext(c)
		id := c.Param("id")
		page := formPage{DisplayName: middleware.GetDisplayName(c), Resource: r, Mode: r.editMode(id)}

		fields, err := s.formFields(ctx, r, page.Mode)
		if err == nil {
			var rec map[string]any
			if rec, err = s.fetchItem(ctx, r, url.PathEscape(id)); err == nil {
				prefill(fields, rec)
			}
		}
		if err != nil {
			if s.auth.HandleAuthFailure(ctx, err, redirectNavigator{c}) {
				return
			}
			logger.FromContext(ctx).Error().Err(err).Str("resource", r.Name).Str("id", id).Msg("failed to load record")
			page.Error = r.LoadFailed
			c.HTML(failureStatus(err), "form.html", page)
			return
		}
		page.Fields = fields
		c.HTML(http.StatusOK, "form.html", page)
	}
}

// handleUpdate はフォームの内容でリモートAPIの1件を更新するハンドラを返す。
func (s *Server) handleUpdate(r *resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := requestContext(c)
		id := c.Param("id")
		mode := r.editMode(id)

		payload, invalid := r.payload(c)
		if invalid != "" {
			s.renderFormError(c, r, mode, http.StatusUnprocessableEntity, invalid)
			return
		}

		resp, err := s.api.Put(ctx, r.ItemPath(url.PathEscape(id)), payload)
		if err != nil {
			if s.auth.HandleAuthFailure(ctx, err, redirectNavigator{c}) {
				return
			}
			logger.FromContext(ctx).Warn().Err(err).Str("resource", r.Name).Str("id", id).Msg("update failed")
			s.renderFormError(c, r, mode, failureStatus(err), messageOr(err, r.UpdateFailed))
			return
		}
		redirectWithFlash(c, r.ListPath(), flashNotice, successMessage(resp, r.Updated))
	}
}

// formFields はフォームの入力項目を返す。編集時のパスワードは任意入力にする。
func (s *Server) formFields(ctx context.Context, r *resource, mode formMode) ([]field, error) {
	fields, err := r.fields(ctx, s)
	if err != nil {
		return nil, err
	}
	if mode.keepPassword {
		for i := range fields {
			if fields[i].Type == "password" {
				fields[i].Required = false
			}
		}
	}
	return fields, nil
}

// renderFormError は入力値を残したままフォームをエラー付きで再表示する。
func (s *Server) renderFormError(c *gin.Context, r *resource, mode formMode, status int, msg string) {
	fields, err := s.formFields(requestContext(c), r, mode)
	if err != nil {
		fields = nil
	}
	for i := range fields {
		if fields[i].Type != "password" {
			fields[i].Value = c.PostForm(fields[i].Name)
		}
	}
	c.HTML(status, "form.html", formPage{
		DisplayName: middleware.GetDisplayName(c),
		Resource:    r,
		Mode:        mode,
		Fields:      fields,
		Error:       msg,
	})
}

// successMessage はレスポンスのmensagemが文字列であればそれを、無ければfallbackを返す。
func successMessage(resp *httpclient.Response, fallback string) string {
	var body struct {
		Mensagem any `json:"mensagem"`
	}
	if resp.DecodeJSON(&body) == nil {
		if msg, ok := body.Mensagem.(string); ok && msg != "" {
			return msg
		}
	}
	return fallback
}

// messageOr はサーバーのメッセージがあればそれを、無ければfallbackを返す。
func messageOr(err error, fallback string) string {
	if msg, ok := httpclient.ServerMessage(err); ok {
		return msg
	}
	return fallback
}

// failureStatus はリモートAPIの失敗をコンソールのステータスに変換する。
func failureStatus(err error) int {
	var reqErr *httpclient.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode < http.StatusInternalServerError {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

// 一覧ページに1度だけ表示する通知の種類。
const (
	flashCookie = "petadmin_flash"
	flashNotice = "aviso"
	flashError  = "erro"
)

// redirectWithFlash は通知をクッキーに載せてpathへリダイレクトする。
func redirectWithFlash(c *gin.Context, path, kind, msg string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookie, url.Values{kind: {msg}}.Encode(), 0, "/", "", false, true)
	c.Redirect(http.StatusSeeOther, path)
}

// takeFlash はクッキーの通知を取り出して削除する。
func takeFlash(c *gin.Context) (notice, failure string) {
	raw, err := c.Cookie(flashCookie)
	if err != nil {
		return "", ""
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookie, "", -1, "/", "", false, true)

	v, err := url.ParseQuery(raw)
	if err != nil {
		return "", ""
	}
	return v.Get(flashNotice), v.Get(flashError)
}

// requestContext はリモートAPIの呼び出しに使うコンテキストを返す。
// ブラウザが遷移して接続が切れても、送信済みのリクエストは取り消さない。
func requestContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

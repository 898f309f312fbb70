package devapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/petadmin/pkg/middleware"
)

// Server は開発用APIのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	store  *Store
	// jwtSecret はJWT署名用の秘密鍵。
	jwtSecret string
	tokenTTL  time.Duration
	// bcryptCost はパスワードハッシュのコスト。
	bcryptCost int
}

// Options はServerの設定。
type Options struct {
	JWTSecret      string
	TokenTTL       time.Duration
	AllowedOrigins []string
	// BcryptCost が0の場合はbcrypt.DefaultCostを使う。
	BcryptCost int
}

// NewServer は新しい開発用APIサーバーを生成する。
func NewServer(store *Store, opts Options) *Server {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}

	router := gin.New()
	router.Use(middleware.Logging())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS(opts.AllowedOrigins))

	s := &Server{
		router:     router,
		store:      store,
		jwtSecret:  opts.JWTSecret,
		tokenTTL:   opts.TokenTTL,
		bcryptCost: opts.BcryptCost,
	}
	s.setupRoutes()

	return s
}

// Handler はHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 認証不要
	s.router.POST("/login", s.handleLogin())
	s.router.POST("/usuario", s.handleCreateUsuario())

	// 認証必須
	api := s.router.Group("/")
	api.Use(middleware.JWTAuth(s.jwtSecret))
	{
		api.GET("/usuario", s.handleListUsuarios())
		api.GET("/usuario/:id", s.handleGetUsuario())
		api.PUT("/usuario/:id", s.handleUpdateUsuario())
		api.DELETE("/usuario/:id", s.handleDeleteUsuario())

		api.POST("/animal", s.handleCreateAnimal())
		api.GET("/animal", s.handleListAnimals())
		api.GET("/animal/:id", s.handleGetAnimal())
		api.PUT("/animal/:id", s.handleUpdateAnimal())
		api.DELETE("/animal/:id", s.handleDeleteAnimal())

		api.POST("/historico_adocao", s.handleCreateHistorico())
		api.GET("/historico_adocao", s.handleListHistoricos())
		api.GET("/historico_adocao/:id", s.handleGetHistorico())
		api.PUT("/historico_adocao/:id", s.handleUpdateHistorico())
		api.DELETE("/historico_adocao/:id", s.handleDeleteHistorico())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "devapi"})
	})
}

// SeedAdmin は指定メールアドレスの利用者が居なければ登録する。
// 登録した場合はtrueを返す。
func (s *Server) SeedAdmin(ctx context.Context, email, password, name string) (bool, error) {
	_, err := s.store.GetCredential(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return false, fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}
	if _, err := s.store.CreateUsuario(ctx, UsuarioParams{
		Nome:      name,
		Email:     email,
		SenhaHash: string(hash),
	}); err != nil {
		return false, fmt.Errorf("管理者の登録に失敗: %w", err)
	}
	return true, nil
}

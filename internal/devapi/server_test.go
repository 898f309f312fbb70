package devapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testJWTSecret はテスト用のJWT署名秘密鍵。
const testJWTSecret = "test-secret-key"

// newTestServer はテスト用の開発用APIサーバーを生成する。
// 管理者admin@example.com / segredoを登録済みにする。
func newTestServer(t *testing.T) *Server {
	t.Helper()

	s := NewServer(newTestStore(t), Options{
		JWTSecret:      testJWTSecret,
		TokenTTL:       time.Hour,
		AllowedOrigins: []string{"http://localhost:5173"},
		BcryptCost:     bcrypt.MinCost,
	})
	created, err := s.SeedAdmin(context.Background(), "admin@example.com", "segredo", "Administrador")
	require.NoError(t, err)
	require.True(t, created)
	return s
}

// call はJSONボディ付きのリクエストを処理してレスポンスを返す。
func call(t *testing.T, s *Server, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	}
	return w, decoded
}

// loginAsAdmin は管理者でログインしてトークンを返す。
func loginAsAdmin(t *testing.T, s *Server) string {
	t.Helper()

	w, body := call(t, s, http.MethodPost, "/login", "", map[string]string{"email": "admin@example.com", "senha": "segredo"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestLogin(t *testing.T) {
	t.Parallel()

	t.Run("正しい資格情報でトークンと利用者名が返ること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w, body := call(t, s, http.MethodPost, "/login", "", map[string]string{"email": "admin@example.com", "senha": "segredo"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, body["token"])
		usuario, _ := body["usuario"].(map[string]any)
		assert.Equal(t, "Administrador", usuario["nome"])
	})

	tests := []struct {
		name  string
		email string
		senha string
	}{
		{name: "パスワード誤り", email: "admin@example.com", senha: "errada"},
		{name: "未登録のメールアドレス", email: "nobody@example.com", senha: "segredo"},
	}
	for _, tt := range tests {
		t.Run(tt.name+"は401とmensagemが返ること", func(t *testing.T) {
			t.Parallel()

			s := newTestServer(t)
			w, body := call(t, s, http.MethodPost, "/login", "", map[string]string{"email": tt.email, "senha": tt.senha})
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, msgInvalidCredentials, body["mensagem"])
		})
	}

	t.Run("空のリクエストは400になること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w, _ := call(t, s, http.MethodPost, "/login", "", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("管理者の再登録は行われないこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		created, err := s.SeedAdmin(context.Background(), "admin@example.com", "outra", "Outro")
		require.NoError(t, err)
		assert.False(t, created)
	})
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"/usuario", "/animal", "/historico_adocao", "/usuario/1"} {
		t.Run(path+"はトークン無しで401になること", func(t *testing.T) {
			t.Parallel()

			s := newTestServer(t)
			w, body := call(t, s, http.MethodGet, path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "Token não informado", body["mensagem"])
		})
	}

	t.Run("利用者登録はトークン無しで行えること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w, body := call(t, s, http.MethodPost, "/usuario", "", map[string]string{
			"nome": "Bia", "email": "bia@example.com", "senha": "1234", "cpf": "000.000.000-00",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, "Usuário cadastrado com sucesso!", body["mensagem"])

		w, _ = call(t, s, http.MethodPost, "/login", "", map[string]string{"email": "bia@example.com", "senha": "1234"})
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestUsuarioEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("一覧はmensagemの配列で返りハッシュを含まないこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		token := loginAsAdmin(t, s)
		w, body := call(t, s, http.MethodGet, "/usuario", token, nil)
		require.Equal(t, http.StatusOK, w.Code)

		list, ok := body["mensagem"].([]any)
		require.True(t, ok)
		require.Len(t, list, 1)
		assert.NotContains(t, w.Body.String(), "senha")
	})

	t.Run("重複したメールアドレスは409になること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w, body := call(t, s, http.MethodPost, "/usuario", "", map[string]string{
			"nome": "Outro", "email": "admin@example.com", "senha": "x",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "Email já cadastrado", body["mensagem"])
	})

	t.Run("パスワード無しの登録は400になること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w, _ := call(t, s, http.MethodPost, "/usuario", "", map[string]string{"nome": "Bia", "email": "bia@example.com"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("取得と更新ができること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		token := loginAsAdmin(t, s)

		w, body := call(t, s, http.MethodGet, "/usuario/1", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		usuario, _ := body["usuario"].(map[string]any)
		assert.Equal(t, "admin@example.com", usuario["email"])

		w, body = call(t, s, http.MethodPut, "/usuario/1", token, map[string]string{"nome": "Admin", "email": "admin@example.com"})
		require.Equal(t, http.StatusOK, w.Code)
		usuario, _ = body["usuario"].(map[string]any)
		assert.Equal(t, "Admin", usuario["nome"])

		// パスワードは変わっていない
		loginAsAdmin(t, s)
	})

	t.Run("不正なIDは400で存在しないIDは404になること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		token := loginAsAdmin(t, s)

		w, _ := call(t, s, http.MethodGet, "/usuario/abc", token, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w, _ = call(t, s, http.MethodDelete, "/usuario/99", token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAdoptionFlow(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	token := loginAsAdmin(t, s)

	w, body := call(t, s, http.MethodPost, "/animal", token, map[string]string{
		"nome": "Rex", "especie": "Cão", "sexo": "MACHO", "nascimento": "2021-01-01",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	animal, _ := body["animal"].(map[string]any)
	animalID := animal["id"]

	w, _ = call(t, s, http.MethodPost, "/animal", token, map[string]string{"nome": "Mimi", "especie": "Gato", "nascimento": "01/01/2021"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = call(t, s, http.MethodPost, "/historico_adocao", token, map[string]any{
		"id_animal": animalID, "id_usuario": 1, "data_adocao": "2025-02-01", "observacao": "primeira adoção",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	historico, _ := body["historico"].(map[string]any)
	assert.Equal(t, "Rex", historico["animal_nome"])
	assert.Equal(t, "Administrador", historico["adotante_nome"])

	w, body = call(t, s, http.MethodGet, "/historico_adocao", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list, _ := body["mensagem"].([]any)
	assert.Len(t, list, 1)

	t.Run("参照されている動物と利用者の削除は409になること", func(t *testing.T) {
		w, body := call(t, s, http.MethodDelete, "/animal/1", token, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.NotEmpty(t, body["mensagem"])

		w, _ = call(t, s, http.MethodDelete, "/usuario/1", token, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("存在しない動物への記録は400になること", func(t *testing.T) {
		w, _ := call(t, s, http.MethodPost, "/historico_adocao", token, map[string]any{
			"id_animal": 77, "id_usuario": 1, "data_adocao": "2025-02-01",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("履歴を削除すると動物を削除できること", func(t *testing.T) {
		w, _ := call(t, s, http.MethodDelete, "/historico_adocao/1", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		w, _ = call(t, s, http.MethodDelete, "/animal/1", token, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/usuario", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAudit(t *testing.T) {
	t.Parallel()

	// newAuditContext はbufへ書き出すロガーを持つGinコンテキストを生成する。
	newAuditContext := func(buf *bytes.Buffer) *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		req := httptest.NewRequest(http.MethodDelete, "/animal/3", nil)
		l := zerolog.New(buf)
		c.Request = req.WithContext(l.WithContext(req.Context()))
		return c
	}

	t.Run("認証済みの利用者IDを記録すること", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		c := newAuditContext(&buf)
		c.Set("user_id", int64(7))

		audit(c, "delete", "animal", 3)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "delete", entry["action"])
		assert.Equal(t, "animal", entry["resource"])
		assert.Equal(t, float64(3), entry["id"])
		assert.Equal(t, float64(7), entry["user_id"])
	})

	t.Run("公開エンドポイントからの登録では利用者IDを含めないこと", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		c := newAuditContext(&buf)

		audit(c, "create", "usuario", 5)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "create", entry["action"])
		assert.NotContains(t, entry, "user_id")
	})
}

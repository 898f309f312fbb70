package devapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/petadmin/pkg/logger"
	"github.com/nao1215/petadmin/pkg/middleware"
)

// 利用者向けメッセージ。
const (
	msgInvalidCredentials = "CREDENCIAIS INVÁLIDAS"
	msgInternal           = "Erro interno do servidor"
	msgInvalidID          = "ID inválido"
	msgInvalidDate        = "Data inválida (use AAAA-MM-DD)"
)

// respond はmensagemだけのJSONを返す。
func respond(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"mensagem": msg})
}

// internalError はエラーをログに残して500を返す。
func internalError(c *gin.Context, err error) {
	logger.FromContext(c.Request.Context()).Error().Err(err).
		Str("path", c.FullPath()).Msg("request failed")
	respond(c, http.StatusInternalServerError, msgInternal)
}

// audit は変更操作を実行した利用者とともにログに残す。
// 公開エンドポイントからの登録では利用者IDを持たない。
func audit(c *gin.Context, action, resource string, id int64) {
	ev := logger.FromContext(c.Request.Context()).Info().
		Str("action", action).
		Str("resource", resource).
		Int64("id", id)
	if uid := middleware.GetUserID(c); uid != 0 {
		ev = ev.Int64("user_id", uid)
	}
	ev.Msg("resource changed")
}

// parseID はパスパラメータのidを取り出す。不正な場合は400を返してfalseを返す。
func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respond(c, http.StatusBadRequest, msgInvalidID)
		return 0, false
	}
	return id, true
}

// validDate はYYYY-MM-DD形式か空であることを確認する。
func validDate(s string) bool {
	if s == "" {
		return true
	}
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}

// loginRequest はPOST /loginのリクエスト。
type loginRequest struct {
	Email string `json:"email" binding:"required"`
	Senha string `json:"senha" binding:"required"`
}

// handleLogin はメールアドレスとパスワードを検証してJWTを発行するハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond(c, http.StatusBadRequest, "Email e senha são obrigatórios")
			return
		}

		cred, err := s.store.GetCredential(c.Request.Context(), strings.TrimSpace(req.Email))
		if errors.Is(err, ErrNotFound) {
			respond(c, http.StatusUnauthorized, msgInvalidCredentials)
			return
		}
		if err != nil {
			internalError(c, err)
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(cred.SenhaHash), []byte(req.Senha)) != nil {
			respond(c, http.StatusUnauthorized, msgInvalidCredentials)
			return
		}

		token, err := middleware.GenerateJWT(s.jwtSecret, cred.ID, cred.Email, s.tokenTTL)
		if err != nil {
			internalError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token": token,
			"usuario": gin.H{
				"id":    cred.ID,
				"nome":  cred.Nome,
				"email": cred.Email,
			},
		})
	}
}

// usuarioRequest は利用者の登録・更新リクエスト。
type usuarioRequest struct {
	Nome  string `json:"nome" binding:"required"`
	CPF   string `json:"cpf"`
	Fone  string `json:"fone"`
	Email string `json:"email" binding:"required,email"`
	Senha string `json:"senha"`
}

// params はリクエストを保存内容に変換する。パスワードがあればハッシュ化する。
func (s *Server) usuarioParams(req usuarioRequest) (UsuarioParams, error) {
	p := UsuarioParams{
		Nome:  strings.TrimSpace(req.Nome),
		CPF:   strings.TrimSpace(req.CPF),
		Fone:  strings.TrimSpace(req.Fone),
		Email: strings.TrimSpace(req.Email),
	}
	if req.Senha != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Senha), s.bcryptCost)
		if err != nil {
			return UsuarioParams{}, err
		}
		p.SenhaHash = string(hash)
	}
	return p, nil
}

func (s *Server) handleCreateUsuario() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req usuarioRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond(c, http.StatusBadRequest, "Nome e email válido são obrigatórios")
			return
		}
		if req.Senha == "" {
			respond(c, http.StatusBadRequest, "Senha é obrigatória")
			return
		}

		p, err := s.usuarioParams(req)
		if err != nil {
			internalError(c, err)
			return
		}
		u, err := s.store.CreateUsuario(c.Request.Context(), p)
		if errors.Is(err, ErrEmailTaken) {
			respond(c, http.StatusConflict, "Email já cadastrado")
			return
		}
		if err != nil {
			internalError(c, err)
			return
		}
		audit(c, "create", "usuario", u.ID)
		c.JSON(http.StatusCreated, gin.H{"mensagem": "Usuário cadastrado com sucesso!", "usuario": u})
	}
}

func (s *Server) handleListUsuarios() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := s.store.ListUsuarios(c.Request.Context())
		if err != nil {
			internalError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"mensagem": list})
	}
}

func (s *Server) handleGetUsuario() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		u, err := s.store.GetUsuario(c.Request.Context(), id)
		if errors.Is(err, ErrNotFound) {
			respond(c, http.StatusNotFound, "Usuário não encontrado")
			return
		}
		if err != nil {
			internalError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"usuario": u})
	}
}

func (s *Server) handleUpdateUsuario() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req usuarioRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond(c, http.StatusBadRequest, "Nome e email válido são obrigatórios")
			return
		}

		p, err := s.usuarioParams(req)
		if err != nil {
			internalError(c, err)
			return
		}
		u, err := s.store.UpdateUsuario(c.Request.Context(), id, p)
		switch {
		case errors.Is(err, ErrNotFound):
			respond(c, http.StatusNotFound, "Usuário não encontrado")
		case errors.Is(err, ErrEmailTaken):
			respond(c, http.StatusConflict, "Email já cadastrado")
		case err != nil:
			internalError(c, err)
		default:
			audit(c, "update", "usuario", id)
			c.JSON(http.StatusOK, gin.H{"mensagem": "USUÁRIO ATUALIZADO!", "usuario": u})
		}
	}
}

func (s *Server) handleDeleteUsuario() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		err := s.store.DeleteUsuario(c.Request.Context(), id)
		switch {
		case errors.Is(err, ErrNotFound):
			respond(c, http.StatusNotFound, "Usuário não encontrado")
		case errors.Is(err, ErrInUse):
			respond(c, http.StatusConflict, "Usuário possui adoções registradas e não pode ser excluído")
		case err != nil:
			internalError(c, err)
		default:
			audit(c, "delete", "usuario", id)
			respond(c, http.StatusOK, "Usuário excluído com sucesso")
		}
	}
}

// animalRequest は動物の登録・更新リクエスト。
type animalRequest struct {
	Nome        string `json:"nome" binding:"required"`
	Especie     string `json:"especie" binding:"required"`
	Raca        string `json:"raca"`
	Sexo        string `json:"sexo"`
	Porte       string `json:"porte"`
	Status      string `json:"status"`
	Nascimento  string `json:"nascimento"`
	DataResgate string `json:"data_resgate"`
	Saude       string `json:"saude"`
}

// bindAnimal はリクエストを検証して保存内容に変換する。不正な場合は400を返してfalseを返す。
func bindAnimal(c *gin.Context) (AnimalParams, bool) {
	var req animalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "Nome e espécie são obrigatórios")
		return AnimalParams{}, false
	}
	p := AnimalParams{
		Nome:        strings.TrimSpace(req.Nome),
		Especie:     strings.TrimSpace(req.Especie),
		Raca:        strings.TrimSpace(req.Raca),
		Sexo:        req.Sexo,
		Porte:       req.Porte,
		Status:      req.Status,
		Nascimento:  strings.TrimSpace(req.Nascimento),
		DataResgate: strings.TrimSpace(req.DataResgate),
		Saude:       strings.TrimSpace(req.Saude),
	}
	if !validDate(p.Nascimento) || !validDate(p.DataResgate) {
		respond(c, http.StatusBadRequest, msgInvalidDate)
		return AnimalParams{}, false
	}
	return p, true
}

func (s *Server) handleCreateAnimal() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := bindAnimal(c)
		if !ok {
			return
		}
		a, err := s.store.CreateAnimal(c.Request.Context(), p)
		if err != nil {
			internalError(c, err)
			return
		}
		audit(c, "create", "animal", a.ID)
		c.JSON(http.StatusCreated, gin.H{"mensagem": "Animal cadastrado com sucesso!", "animal": a})
	}
}

func (s *Server) handleListAnimals() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := s.store.ListAnimals(c.Request.Context())
		if err != nil {
			internalError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"mensagem": list})
	}
}

func (s *Server) handleGetAnimal() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		a, err := s.store.GetAnimal(c.Request.Context(), id)
		if errors.Is(err, ErrNotFound) {
			respond(c, http.StatusNotFound, "Animal não encontrado")
			return
		}
		if err != nil {
			internalError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"animal": a})
	}
}

func (s *Server) handleUpdateAnimal() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		p, ok := bindAnimal(c)
		if !ok {
			return
		}
		a, err := s.store.UpdateAnimal(c.Request.Context(), id, p)
		switch {
		case errors.Is(err, ErrNotFound):
			respond(c, http.StatusNotFound, "Animal não encontrado")
		case err != nil:
			internalError(c, err)
		default:
			audit(c, "update", "animal", id)
			c.JSON(http.StatusOK, gin.H{"mensagem": "ANIMAL ATUALIZADO!", "animal": a})
		}
	}
}

func (s *Server) handleDeleteAnimal() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		err := s.store.DeleteAnimal(c.Request.Context(), id)
		switch {
		case errors.Is(err, ErrNotFound):
			respond(c, http.StatusNotFound, "Animal não encontrado")
		case errors.Is(err, ErrInUse):
			respond(c, http.StatusConflict, "Animal possui adoções registradas e não pode ser excluído")
		case err != nil:
			internalError(c, err)
		default:
			audit(c, "delete", "animal", id)
			respond(c, http.StatusOK, "Animal excluído com sucesso")
		}
	}
}

// historicoRequest は養子縁組記録の登録・更新リクエスト。
type historicoRequest struct {
	IDAnimal   int64  `json:"id_animal" binding:"required"`
	IDUsuario  int64  `json:"id_usuario" binding:"required"`
	DataAdocao string `json:"data_adocao" binding:"required"`
	Observacao string `json:"observacao"`
}

// bindHistorico はリクエストを検証して保存内容に変換する。不正な場合は400を返してfalseを返す。
func bindHistorico(c *gin.Context) (HistoricoParams, bool) {
	var req historicoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "Animal, adotante e data da adoção são obrigatórios")
		return HistoricoParams{}, false
	}
	p := HistoricoParams{
		IDAnimal:   req.IDAnimal,
		IDUsuario:  req.IDUsuario,
		DataAdocao: strings.TrimSpace(req.DataAdocao),
		Observacao: strings.TrimSpace(req.Observacao),
	}
	if !validDate(p.DataAdocao) {
		respond(c, http.StatusBadRequest, msgInvalidDate)
		return HistoricoParams{}, false
	}
	return p, true
}

func (s *Server) handleCreateHistorico() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := bindHistorico(c)
		if !ok {
			return
		}
		h, err := s.store.CreateHistorico(c.Request.Context(), p)
		switch {
		case errors.Is(err, ErrUnknownReference):
			respond(c, http.StatusBadRequest, "Animal ou adotante não encontrado")
		case err != nil:
			internalError(c, err)
		default:
			audit(c, "create", "historico_adocao", h.ID)
			c.JSON(http.StatusCreated, gin.H{"mensagem": "Adoção registrada com sucesso!", "historico": h})
		}
	}
}

func (s *Server) handleListHistoricos() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := s.store.ListHistoricos(c.Request.Context())
		if err != nil {
			internalError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"mensagem": list})
	}
}

func (s *Server) handleGetHistorico() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		h, err := s.store.GetHistorico(c.Request.Context(), id)
		if errors.Is(err, ErrNotFound) {
			respond(c, http.StatusNotFound, "Histórico não encontrado")
			return
		}
		if err != nil {
			internalError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"historico": h})
	}
}

func (s *Server) handleUpdateHistorico() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		p, ok := bindHistorico(c)
		if !ok {
			return
		}
		h, err := s.store.UpdateHistorico(c.Request.Context(), id, p)
		switch {
		case errors.Is(err, ErrNotFound):
			respond(c, http.StatusNotFound, "Histórico não encontrado")
		case errors.Is(err, ErrUnknownReference):
			respond(c, http.StatusBadRequest, "Animal ou adotante não encontrado")
		case err != nil:
			internalError(c, err)
		default:
			audit(c, "update", "historico_adocao", id)
			c.JSON(http.StatusOK, gin.H{"mensagem": "HISTÓRICO ATUALIZADO!", "historico": h})
		}
	}
}

func (s *Server) handleDeleteHistorico() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		err := s.store.DeleteHistorico(c.Request.Context(), id)
		switch {
		case errors.Is(err, ErrNotFound):
			respond(c, http.StatusNotFound, "Histórico não encontrado")
		case err != nil:
			internalError(c, err)
		default:
			audit(c, "delete", "historico_adocao", id)
			respond(c, http.StatusOK, "Histórico excluído com sucesso")
		}
	}
}

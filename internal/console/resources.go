package console

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// column は一覧表の列。
type column struct {
	Key   string
	Label string
	// Date は日付として書式化する列。
	Date bool
	// WithTime は日付に時刻も含める。
	WithTime bool
}

// option は選択肢。
type option struct {
	Value string
	Label string
}

// field は登録フォームの入力項目。
type field struct {
	Name     string
	Label    string
	Type     string
	Required bool
	Options  []option
	Value    string
}

// resource はリモートAPIの1種類のリソースの一覧・登録・編集・削除の画面定義。
type resource struct {
	// Name はリモートAPIのパスかつコンソールのパス。
	Name string
	// Entity は1件取得APIのレスポンスでレコードを包むキー。
	Entity  string
	Title   string
	Columns []column
	// IDFallback はidが無い行の識別子に使うキー。
	IDFallback string

	Empty        string
	ListFailed   string
	Deleted      string
	DeleteFailed string

	CreateTitle  string
	Created      string
	CreateFailed string

	EditTitle    string
	Updated      string
	UpdateFailed string
	LoadFailed   string

	// fields はフォームの入力項目を返す。選択肢の取得でリモートAPIを呼ぶことがある。
	fields func(ctx context.Context, s *Server) ([]field, error)
	// payload はフォームの値から送信するJSONを組み立てる。
	// 入力に不備がある場合は第2戻り値に利用者向けメッセージを返す。
	payload func(c *gin.Context) (any, string)
}

// ListPath は一覧ページのパス。
func (r *resource) ListPath() string { return "/" + r.Name }

// NewPath は登録フォームのパス。
func (r *resource) NewPath() string { return "/" + r.Name + "/novo" }

// DeletePath は削除アクションのパス。
func (r *resource) DeletePath(id string) string { return "/" + r.Name + "/excluir/" + id }

// EditPath は編集フォームのパス。
func (r *resource) EditPath(id string) string { return "/" + r.Name + "/editar/" + id }

// ItemPath はリモートAPIの1件を指すパス。
func (r *resource) ItemPath(id string) string { return "/" + r.Name + "/" + id }

// formMode は登録フォームと編集フォームの違い。
type formMode struct {
	Title  string
	Action string
	Submit string
	// keepPassword は空のパスワードを変更なしとして扱う。
	keepPassword bool
}

func (r *resource) createMode() formMode {
	return formMode{Title: r.CreateTitle, Action: r.NewPath(), Submit: "CADASTRAR"}
}

func (r *resource) editMode(id string) formMode {
	return formMode{Title: r.EditTitle, Action: r.EditPath(id), Submit: "SALVAR", keepPassword: true}
}

// staticFields は呼び出しごとに複製した入力項目を返す。
func staticFields(fs ...field) func(context.Context, *Server) ([]field, error) {
	return func(context.Context, *Server) ([]field, error) { return slices.Clone(fs), nil }
}

// formPayload は指定した名前のフォーム値をそのまま送信する。
func formPayload(names ...string) func(c *gin.Context) (any, string) {
	return func(c *gin.Context) (any, string) {
		body := make(map[string]string, len(names))
		for _, n := range names {
			body[n] = strings.TrimSpace(c.PostForm(n))
		}
		return body, ""
	}
}

var usuarioResource = &resource{
	Name:   "usuario",
	Entity: "usuario",
	Title:  "LISTA DE USUÁRIOS",
	Columns: []column{
		{Key: "nome", Label: "NOME"},
		{Key: "cpf", Label: "CPF"},
		{Key: "email", Label: "EMAIL"},
		{Key: "data_cadastro", Label: "DATA CADASTRO", Date: true, WithTime: true},
		{Key: "updatedAt", Label: "ÚLTIMA ATUALIZAÇÃO", Date: true, WithTime: true},
	},
	IDFallback:   "email",
	Empty:        "NENHUM USUÁRIO ENCONTRADO OU ERRO DE CONEXÃO (LOGAR NOVAMENTE)",
	ListFailed:   "NENHUM USUÁRIO ENCONTRADO OU ERRO DE CONEXÃO (LOGAR NOVAMENTE)",
	Deleted:      "Usuário excluído com sucesso.",
	DeleteFailed: "Usuário não pôde ser excluído (provávelmente já adotou)",
	CreateTitle:  "CADASTRAR USUÁRIO",
	Created:      "USUÁRIO CADASTRADO",
	CreateFailed: "ERRO AO CADASTRAR USUÁRIO (RECONECTAR)",
	EditTitle:    "EDITAR USUÁRIO",
	Updated:      "USUÁRIO ATUALIZADO!",
	UpdateFailed: "ERRO AO ATUALIZAR USUÁRIO (RECONECTAR)",
	LoadFailed:   "ERRO AO CARREGAR USUÁRIO (RECONECTAR)",
	fields: staticFields(
		field{Name: "nome", Label: "NOME COMPLETO", Type: "text", Required: true},
		field{Name: "cpf", Label: "CPF", Type: "text", Required: true},
		field{Name: "fone", Label: "FONE", Type: "text", Required: true},
		field{Name: "email", Label: "EMAIL", Type: "email", Required: true},
		field{Name: "senha", Label: "SENHA", Type: "password", Required: true},
	),
	payload: formPayload("nome", "cpf", "fone", "email", "senha"),
}

var animalResource = &resource{
	Name:   "animal",
	Entity: "animal",
	Title:  "LISTA DE ANIMAIS",
	Columns: []column{
		{Key: "nome", Label: "NOME"},
		{Key: "especie", Label: "ESPÉCIE"},
		{Key: "raca", Label: "RAÇA"},
		{Key: "porte", Label: "PORTE"},
		{Key: "sexo", Label: "SEXO"},
		{Key: "idade", Label: "IDADE"},
		{Key: "status", Label: "STATUS"},
		{Key: "data_cadastro", Label: "DATA CADASTRO", Date: true},
		{Key: "updatedAt", Label: "ÚLTIMA ATUALIZAÇÃO", Date: true},
	},
	Empty:        "NENHUM ANIMAL ENCONTRADO",
	ListFailed:   "Falha ao buscar a lista de animais. Verifique sua autenticação.",
	Deleted:      "ANIMAL EXCLUÍDO!",
	DeleteFailed: "ANIMAL NÃO PÔDE SER EXCLUÍDO (PROVAVELMENTE JÁ ADOTADO)",
	CreateTitle:  "CADASTRAR ANIMAL",
	Created:      "Animal cadastrado com sucesso!",
	CreateFailed: "Erro ao cadastrar. Verifique a conexão com a API e os dados.",
	EditTitle:    "EDITAR ANIMAL",
	Updated:      "ANIMAL ATUALIZADO!",
	UpdateFailed: "ERRO AO ATUALIZAR ANIMAL (RECONECTAR)",
	LoadFailed:   "ERRO AO CARREGAR DADOS DO ANIMAL (RECONECTAR)",
	fields: staticFields(
		field{Name: "nome", Label: "NOME", Type: "text", Required: true},
		field{Name: "especie", Label: "ESPÉCIE", Type: "text", Required: true},
		field{Name: "raca", Label: "RAÇA", Type: "text"},
		field{Name: "sexo", Label: "SEXO", Type: "select", Required: true, Options: []option{
			{Value: "MACHO", Label: "MACHO"}, {Value: "FÊMEA", Label: "FÊMEA"},
		}},
		field{Name: "porte", Label: "PORTE", Type: "select", Required: true, Options: []option{
			{Value: "PEQUENO", Label: "PEQUENO"}, {Value: "MÉDIO", Label: "MÉDIO"}, {Value: "GRANDE", Label: "GRANDE"},
		}},
		field{Name: "status", Label: "STATUS", Type: "select", Required: true, Options: []option{
			{Value: "DISPONÍVEL", Label: "DISPONÍVEL"}, {Value: "RESGATADO", Label: "RESGATADO"}, {Value: "TRATAMENTO", Label: "TRATAMENTO"},
		}},
		field{Name: "nascimento", Label: "NASCIMENTO", Type: "date"},
		field{Name: "data_resgate", Label: "DATA DO RESGATE", Type: "date"},
		field{Name: "saude", Label: "SAÚDE", Type: "text"},
	),
	payload: formPayload("nome", "especie", "raca", "sexo", "porte", "status", "nascimento", "data_resgate", "saude"),
}

var historicoResource = &resource{
	Name:   "historico_adocao",
	Entity: "historico",
	Title:  "HISTÓRICO DE ADOÇÕES",
	Columns: []column{
		{Key: "animal_nome", Label: "ANIMAL"},
		{Key: "adotante_nome", Label: "ADOTANTE"},
		{Key: "data_adocao", Label: "DATA ADOÇÃO", Date: true},
		{Key: "observacao", Label: "OBSERVAÇÃO"},
	},
	Empty:        "NENHUM HISTÓRICO DE ADOÇÃO ENCONTRADO",
	ListFailed:   "ERRO AO BUSCAR HISTÓRICO DE ADOÇÃO (RECONECTAR)",
	Deleted:      "HISTÓRICO EXCLUÍDO!",
	DeleteFailed: "HISTÓRICO NÃO PÔDE SER EXCLUÍDO (RECONECTAR)",
	CreateTitle:  "CADASTRAR HISTÓRICO DE ADOÇÃO",
	Created:      "HISTÓRICO DE ADOÇÃO CADASTRADO!",
	CreateFailed: "ERRO AO CADASTRAR HISTÓRICO DE ADOÇÃO (RECONECTAR)",
	EditTitle:    "EDITAR HISTÓRICO DE ADOÇÃO",
	Updated:      "HISTÓRICO ATUALIZADO!",
	UpdateFailed: "ERRO AO ATUALIZAR (RECONECTAR).",
	LoadFailed:   "ERRO AO CARREGAR OS DADOS DE HISTÓRICO. (RECONECTAR)",
	fields:       adoptionFields,
	payload:      adoptionPayload,
}

// resources はコンソールが扱う全リソース。
var resources = []*resource{usuarioResource, animalResource, historicoResource}

// adoptionFields は動物と利用者の一覧を選択肢にしたフォームを返す。
func adoptionFields(ctx context.Context, s *Server) ([]field, error) {
	animals, err := s.fetchOptions(ctx, animalResource.ListPath())
	if err != nil {
		return nil, err
	}
	adopters, err := s.fetchOptions(ctx, usuarioResource.ListPath())
	if err != nil {
		return nil, err
	}
	return []field{
		{Name: "id_animal", Label: "ANIMAL", Type: "select", Required: true, Options: animals},
		{Name: "id_usuario", Label: "ADOTANTE", Type: "select", Required: true, Options: adopters},
		{Name: "data_adocao", Label: "DATA DA ADOÇÃO", Type: "date", Required: true},
		{Name: "observacao", Label: "OBSERVAÇÃO", Type: "text"},
	}, nil
}

// adoptionPayload は動物と利用者のIDを数値として送信する。
func adoptionPayload(c *gin.Context) (any, string) {
	animalID, err1 := strconv.ParseInt(c.PostForm("id_animal"), 10, 64)
	userID, err2 := strconv.ParseInt(c.PostForm("id_usuario"), 10, 64)
	if err1 != nil || err2 != nil {
		return nil, "SELECIONE O ANIMAL E O ADOTANTE"
	}
	return map[string]any{
		"id_animal":   animalID,
		"id_usuario":  userID,
		"data_adocao": strings.TrimSpace(c.PostForm("data_adocao")),
		"observacao":  strings.TrimSpace(c.PostForm("observacao")),
	}, ""
}

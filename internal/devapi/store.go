package devapi

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/nao1215/petadmin/pkg/migration"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	// ErrNotFound は対象のレコードが存在しないことを表す。
	ErrNotFound = errors.New("レコードが見つかりません")
	// ErrEmailTaken はメールアドレスが既に登録されていることを表す。
	ErrEmailTaken = errors.New("メールアドレスは登録済みです")
	// ErrInUse は養子縁組履歴から参照されているため削除できないことを表す。
	ErrInUse = errors.New("養子縁組履歴から参照されています")
	// ErrUnknownReference は履歴が存在しない動物または利用者を参照していることを表す。
	ErrUnknownReference = errors.New("動物または利用者が存在しません")
)

// Store は開発用APIのSQLiteストア。
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// OpenStore は指定パスのSQLiteファイルを開き、スキーマを適用する。
func OpenStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := migration.Run(ctx, db, migrations, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// Usuario は登録済みの利用者（管理者・養親）。パスワードハッシュは含まない。
type Usuario struct {
	ID           int64  `json:"id"`
	Nome         string `json:"nome"`
	CPF          string `json:"cpf"`
	Fone         string `json:"fone"`
	Email        string `json:"email"`
	DataCadastro string `json:"data_cadastro"`
	UpdatedAt    string `json:"updatedAt"`
}

// UsuarioParams は利用者の登録・更新内容。
type UsuarioParams struct {
	Nome  string
	CPF   string
	Fone  string
	Email string
	// SenhaHash が空の場合、更新時はパスワードを変更しない。
	SenhaHash string
}

// Credential はログイン判定に使う利用者情報。
type Credential struct {
	ID        int64
	Nome      string
	Email     string
	SenhaHash string
}

const usuarioColumns = `id, nome, cpf, fone, email, data_cadastro, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUsuario(row scanner) (Usuario, error) {
	var u Usuario
	err := row.Scan(&u.ID, &u.Nome, &u.CPF, &u.Fone, &u.Email, &u.DataCadastro, &u.UpdatedAt)
	return u, err
}

// CreateUsuario は利用者を登録する。
func (s *Store) CreateUsuario(ctx context.Context, p UsuarioParams) (Usuario, error) {
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO usuario (nome, cpf, fone, email, senha_hash, data_cadastro, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.Nome, p.CPF, p.Fone, p.Email, p.SenhaHash, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return Usuario{}, ErrEmailTaken
		}
		return Usuario{}, fmt.Errorf("利用者の登録に失敗: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Usuario{}, fmt.Errorf("利用者IDの取得に失敗: %w", err)
	}
	return s.GetUsuario(ctx, id)
}

// ListUsuarios は全利用者を名前順に返す。
func (s *Store) ListUsuarios(ctx context.Context) ([]Usuario, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+usuarioColumns+` FROM usuario ORDER BY nome, id`)
	if err != nil {
		return nil, fmt.Errorf("利用者一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	list := []Usuario{}
	for rows.Next() {
		u, err := scanUsuario(rows)
		if err != nil {
			return nil, fmt.Errorf("利用者の読み込みに失敗: %w", err)
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

// GetUsuario はIDで利用者を取得する。
func (s *Store) GetUsuario(ctx context.Context, id int64) (Usuario, error) {
	u, err := scanUsuario(s.db.QueryRowContext(ctx,
		`SELECT `+usuarioColumns+` FROM usuario WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Usuario{}, ErrNotFound
	}
	if err != nil {
		return Usuario{}, fmt.Errorf("利用者の取得に失敗: %w", err)
	}
	return u, nil
}

// GetCredential はメールアドレスでログイン判定用の情報を取得する。
func (s *Store) GetCredential(ctx context.Context, email string) (Credential, error) {
	var c Credential
	err := s.db.QueryRowContext(ctx,
		`SELECT id, nome, email, senha_hash FROM usuario WHERE email = ?`, email,
	).Scan(&c.ID, &c.Nome, &c.Email, &c.SenhaHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("利用者の取得に失敗: %w", err)
	}
	return c, nil
}

// UpdateUsuario は利用者を更新する。
func (s *Store) UpdateUsuario(ctx context.Context, id int64, p UsuarioParams) (Usuario, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE usuario SET
			nome = ?, cpf = ?, fone = ?, email = ?,
			senha_hash = CASE WHEN ? = '' THEN senha_hash ELSE ? END,
			updated_at = ?
		WHERE id = ?
	`, p.Nome, p.CPF, p.Fone, p.Email, p.SenhaHash, p.SenhaHash, s.timestamp(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return Usuario{}, ErrEmailTaken
		}
		return Usuario{}, fmt.Errorf("利用者の更新に失敗: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return Usuario{}, err
	}
	return s.GetUsuario(ctx, id)
}

// DeleteUsuario は利用者を削除する。養子縁組履歴から参照されている場合はErrInUseを返す。
func (s *Store) DeleteUsuario(ctx context.Context, id int64) error {
	return s.deleteUnreferenced(ctx, "usuario", "id_usuario", id)
}

// Animal は保護動物。
type Animal struct {
	ID          int64   `json:"id"`
	Nome        string  `json:"nome"`
	Especie     string  `json:"especie"`
	Raca        string  `json:"raca"`
	Sexo        string  `json:"sexo"`
	Porte       string  `json:"porte"`
	Status      string  `json:"status"`
	Nascimento  *string `json:"nascimento"`
	DataResgate *string `json:"data_resgate"`
	Saude       string  `json:"saude"`
	// Idade は生年月日から算出した満年齢。生年月日が無ければnull。
	Idade        *int   `json:"idade"`
	DataCadastro string `json:"data_cadastro"`
	UpdatedAt    string `json:"updatedAt"`
}

// AnimalParams は動物の登録・更新内容。日付はYYYY-MM-DD形式で、空ならnull。
type AnimalParams struct {
	Nome        string
	Especie     string
	Raca        string
	Sexo        string
	Porte       string
	Status      string
	Nascimento  string
	DataResgate string
	Saude       string
}

const animalColumns = `id, nome, especie, raca, sexo, porte, status, nascimento, data_resgate, saude, data_cadastro, updated_at`

func (s *Store) scanAnimal(row scanner) (Animal, error) {
	var (
		a                       Animal
		nascimento, dataResgate sql.NullString
	)
	err := row.Scan(&a.ID, &a.Nome, &a.Especie, &a.Raca, &a.Sexo, &a.Porte, &a.Status,
		&nascimento, &dataResgate, &a.Saude, &a.DataCadastro, &a.UpdatedAt)
	if err != nil {
		return Animal{}, err
	}
	if nascimento.Valid {
		a.Nascimento = &nascimento.String
		a.Idade = ageOn(nascimento.String, s.now())
	}
	if dataResgate.Valid {
		a.DataResgate = &dataResgate.String
	}
	return a, nil
}

// CreateAnimal は動物を登録する。
func (s *Store) CreateAnimal(ctx context.Context, p AnimalParams) (Animal, error) {
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO animal (nome, especie, raca, sexo, porte, status, nascimento, data_resgate, saude, data_cadastro, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Nome, p.Especie, p.Raca, p.Sexo, p.Porte, p.Status,
		nullable(p.Nascimento), nullable(p.DataResgate), p.Saude, now, now)
	if err != nil {
		return Animal{}, fmt.Errorf("動物の登録に失敗: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Animal{}, fmt.Errorf("動物IDの取得に失敗: %w", err)
	}
	return s.GetAnimal(ctx, id)
}

// ListAnimals は全動物を名前順に返す。
func (s *Store) ListAnimals(ctx context.Context) ([]Animal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+animalColumns+` FROM animal ORDER BY nome, id`)
	if err != nil {
		return nil, fmt.Errorf("動物一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	list := []Animal{}
	for rows.Next() {
		a, err := s.scanAnimal(rows)
		if err != nil {
			return nil, fmt.Errorf("動物の読み込みに失敗: %w", err)
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// GetAnimal はIDで動物を取得する。
func (s *Store) GetAnimal(ctx context.Context, id int64) (Animal, error) {
	a, err := s.scanAnimal(s.db.QueryRowContext(ctx,
		`SELECT `+animalColumns+` FROM animal WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Animal{}, ErrNotFound
	}
	if err != nil {
		return Animal{}, fmt.Errorf("動物の取得に失敗: %w", err)
	}
	return a, nil
}

// UpdateAnimal は動物を更新する。
func (s *Store) UpdateAnimal(ctx context.Context, id int64, p AnimalParams) (Animal, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE animal SET
			nome = ?, especie = ?, raca = ?, sexo = ?, porte = ?, status = ?,
			nascimento = ?, data_resgate = ?, saude = ?, updated_at = ?
		WHERE id = ?
	`, p.Nome, p.Especie, p.Raca, p.Sexo, p.Porte, p.Status,
		nullable(p.Nascimento), nullable(p.DataResgate), p.Saude, s.timestamp(), id)
	if err != nil {
		return Animal{}, fmt.Errorf("動物の更新に失敗: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return Animal{}, err
	}
	return s.GetAnimal(ctx, id)
}

// DeleteAnimal は動物を削除する。養子縁組履歴から参照されている場合はErrInUseを返す。
func (s *Store) DeleteAnimal(ctx context.Context, id int64) error {
	return s.deleteUnreferenced(ctx, "animal", "id_animal", id)
}

// HistoricoAdocao は養子縁組の記録。動物名と養親名を結合して返す。
type HistoricoAdocao struct {
	ID           int64  `json:"id"`
	IDAnimal     int64  `json:"id_animal"`
	IDUsuario    int64  `json:"id_usuario"`
	AnimalNome   string `json:"animal_nome"`
	AdotanteNome string `json:"adotante_nome"`
	DataAdocao   string `json:"data_adocao"`
	Observacao   string `json:"observacao"`
	DataCadastro string `json:"data_cadastro"`
	UpdatedAt    string `json:"updatedAt"`
}

// HistoricoParams は養子縁組記録の登録・更新内容。
type HistoricoParams struct {
	IDAnimal   int64
	IDUsuario  int64
	DataAdocao string
	Observacao string
}

const historicoQuery = `
	SELECT h.id, h.id_animal, h.id_usuario, a.nome, u.nome, h.data_adocao, h.observacao, h.data_cadastro, h.updated_at
	FROM historico_adocao h
	JOIN animal a ON a.id = h.id_animal
	JOIN usuario u ON u.id = h.id_usuario
`

func scanHistorico(row scanner) (HistoricoAdocao, error) {
	var h HistoricoAdocao
	err := row.Scan(&h.ID, &h.IDAnimal, &h.IDUsuario, &h.AnimalNome, &h.AdotanteNome,
		&h.DataAdocao, &h.Observacao, &h.DataCadastro, &h.UpdatedAt)
	return h, err
}

// CreateHistorico は養子縁組を記録する。
func (s *Store) CreateHistorico(ctx context.Context, p HistoricoParams) (HistoricoAdocao, error) {
	if err := s.checkReferences(ctx, p); err != nil {
		return HistoricoAdocao{}, err
	}
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO historico_adocao (id_animal, id_usuario, data_adocao, observacao, data_cadastro, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.IDAnimal, p.IDUsuario, p.DataAdocao, p.Observacao, now, now)
	if err != nil {
		return HistoricoAdocao{}, fmt.Errorf("養子縁組の記録に失敗: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return HistoricoAdocao{}, fmt.Errorf("履歴IDの取得に失敗: %w", err)
	}
	return s.GetHistorico(ctx, id)
}

// ListHistoricos は全記録を養子縁組日の新しい順に返す。
func (s *Store) ListHistoricos(ctx context.Context) ([]HistoricoAdocao, error) {
	rows, err := s.db.QueryContext(ctx, historicoQuery+` ORDER BY h.data_adocao DESC, h.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("履歴一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	list := []HistoricoAdocao{}
	for rows.Next() {
		h, err := scanHistorico(rows)
		if err != nil {
			return nil, fmt.Errorf("履歴の読み込みに失敗: %w", err)
		}
		list = append(list, h)
	}
	return list, rows.Err()
}

// GetHistorico はIDで記録を取得する。
func (s *Store) GetHistorico(ctx context.Context, id int64) (HistoricoAdocao, error) {
	h, err := scanHistorico(s.db.QueryRowContext(ctx, historicoQuery+` WHERE h.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return HistoricoAdocao{}, ErrNotFound
	}
	if err != nil {
		return HistoricoAdocao{}, fmt.Errorf("履歴の取得に失敗: %w", err)
	}
	return h, nil
}

// UpdateHistorico は記録を更新する。
func (s *Store) UpdateHistorico(ctx context.Context, id int64, p HistoricoParams) (HistoricoAdocao, error) {
	if err := s.checkReferences(ctx, p); err != nil {
		return HistoricoAdocao{}, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE historico_adocao SET
			id_animal = ?, id_usuario = ?, data_adocao = ?, observacao = ?, updated_at = ?
		WHERE id = ?
	`, p.IDAnimal, p.IDUsuario, p.DataAdocao, p.Observacao, s.timestamp(), id)
	if err != nil {
		return HistoricoAdocao{}, fmt.Errorf("履歴の更新に失敗: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return HistoricoAdocao{}, err
	}
	return s.GetHistorico(ctx, id)
}

// DeleteHistorico は記録を削除する。
func (s *Store) DeleteHistorico(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM historico_adocao WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("履歴の削除に失敗: %w", err)
	}
	return expectAffected(res)
}

// checkReferences は記録が参照する動物と利用者の存在を確認する。
func (s *Store) checkReferences(ctx context.Context, p HistoricoParams) error {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM animal WHERE id = ?) + (SELECT COUNT(*) FROM usuario WHERE id = ?)
	`, p.IDAnimal, p.IDUsuario).Scan(&n)
	if err != nil {
		return fmt.Errorf("参照先の確認に失敗: %w", err)
	}
	if n != 2 {
		return ErrUnknownReference
	}
	return nil
}

// deleteUnreferenced は養子縁組履歴から参照されていない行を1つのトランザクションで削除する。
// table・columnは呼び出し側の定数のみを渡す。
func (s *Store) deleteUnreferenced(ctx context.Context, table, column string, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var refs int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM historico_adocao WHERE `+column+` = ?`, id).Scan(&refs); err != nil {
		return fmt.Errorf("参照の確認に失敗: %w", err)
	}
	if refs > 0 {
		return ErrInUse
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%sの削除に失敗: %w", table, err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%sの削除に失敗: %w", table, err)
	}
	return nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ageOn はYYYY-MM-DD形式の生年月日からnow時点の満年齢を返す。解析できなければnil。
func ageOn(birth string, now time.Time) *int {
	b, err := time.Parse(time.DateOnly, birth)
	if err != nil {
		return nil
	}
	years := now.Year() - b.Year()
	if now.Month() < b.Month() || (now.Month() == b.Month() && now.Day() < b.Day()) {
		years--
	}
	if years < 0 {
		years = 0
	}
	return &years
}

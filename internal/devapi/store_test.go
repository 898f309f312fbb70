package devapi

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore は一時ディレクトリにSQLiteファイルを作成してStoreを開く。
func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := OpenStore(context.Background(), filepath.Join(t.TempDir(), "devapi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	store.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return store
}

func seedUsuario(t *testing.T, s *Store, nome, email string) Usuario {
	t.Helper()
	u, err := s.CreateUsuario(context.Background(), UsuarioParams{Nome: nome, Email: email, SenhaHash: "hash"})
	require.NoError(t, err)
	return u
}

func seedAnimal(t *testing.T, s *Store, nome string) Animal {
	t.Helper()
	a, err := s.CreateAnimal(context.Background(), AnimalParams{Nome: nome, Especie: "Cão", Nascimento: "2020-07-01"})
	require.NoError(t, err)
	return a
}

func TestStoreUsuario(t *testing.T) {
	t.Parallel()

	t.Run("登録した利用者を取得できること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		u := seedUsuario(t, s, "Ana", "ana@example.com")
		assert.NotZero(t, u.ID)
		assert.Equal(t, "2025-06-15T12:00:00Z", u.DataCadastro)

		got, err := s.GetUsuario(context.Background(), u.ID)
		require.NoError(t, err)
		assert.Equal(t, u, got)

		cred, err := s.GetCredential(context.Background(), "ana@example.com")
		require.NoError(t, err)
		assert.Equal(t, "hash", cred.SenhaHash)
	})

	t.Run("メールアドレスの重複はErrEmailTakenになること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		seedUsuario(t, s, "Ana", "ana@example.com")
		_, err := s.CreateUsuario(context.Background(), UsuarioParams{Nome: "Outra", Email: "ana@example.com", SenhaHash: "h"})
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("パスワード未指定の更新ではハッシュを保つこと", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		u := seedUsuario(t, s, "Ana", "ana@example.com")

		updated, err := s.UpdateUsuario(context.Background(), u.ID, UsuarioParams{Nome: "Ana Maria", Email: "ana@example.com"})
		require.NoError(t, err)
		assert.Equal(t, "Ana Maria", updated.Nome)

		cred, err := s.GetCredential(context.Background(), "ana@example.com")
		require.NoError(t, err)
		assert.Equal(t, "hash", cred.SenhaHash)
	})

	t.Run("存在しないIDはErrNotFoundになること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		_, err := s.GetUsuario(context.Background(), 999)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.UpdateUsuario(context.Background(), 999, UsuarioParams{Nome: "x", Email: "x@example.com"})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteUsuario(context.Background(), 999), ErrNotFound)
		_, err = s.GetCredential(context.Background(), "none@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("一覧は名前順で空の場合も空配列であること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		list, err := s.ListUsuarios(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)

		seedUsuario(t, s, "Bia", "bia@example.com")
		seedUsuario(t, s, "Ana", "ana@example.com")
		list, err = s.ListUsuarios(context.Background())
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "Ana", list[0].Nome)
	})
}

func TestStoreAnimal(t *testing.T) {
	t.Parallel()

	t.Run("生年月日から年齢を算出すること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		a := seedAnimal(t, s, "Rex")
		require.NotNil(t, a.Idade)
		assert.Equal(t, 4, *a.Idade)
		assert.Nil(t, a.DataResgate)
	})

	t.Run("生年月日が無ければ年齢はnilであること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		a, err := s.CreateAnimal(context.Background(), AnimalParams{Nome: "Mimi", Especie: "Gato"})
		require.NoError(t, err)
		assert.Nil(t, a.Nascimento)
		assert.Nil(t, a.Idade)
	})

	t.Run("更新できること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		a := seedAnimal(t, s, "Rex")
		updated, err := s.UpdateAnimal(context.Background(), a.ID, AnimalParams{Nome: "Rex", Especie: "Cão", Status: "ADOTADO", DataResgate: "2024-01-10"})
		require.NoError(t, err)
		assert.Equal(t, "ADOTADO", updated.Status)
		require.NotNil(t, updated.DataResgate)
		assert.Equal(t, "2024-01-10", *updated.DataResgate)
	})
}

func TestStoreHistorico(t *testing.T) {
	t.Parallel()

	t.Run("動物名と養親名を結合して返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		u := seedUsuario(t, s, "Ana", "ana@example.com")
		a := seedAnimal(t, s, "Rex")

		h, err := s.CreateHistorico(context.Background(), HistoricoParams{IDAnimal: a.ID, IDUsuario: u.ID, DataAdocao: "2025-01-20", Observacao: "ok"})
		require.NoError(t, err)
		assert.Equal(t, "Rex", h.AnimalNome)
		assert.Equal(t, "Ana", h.AdotanteNome)

		list, err := s.ListHistoricos(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []HistoricoAdocao{h}, list)
	})

	t.Run("存在しない参照はErrUnknownReferenceになること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		u := seedUsuario(t, s, "Ana", "ana@example.com")
		_, err := s.CreateHistorico(context.Background(), HistoricoParams{IDAnimal: 42, IDUsuario: u.ID, DataAdocao: "2025-01-20"})
		assert.ErrorIs(t, err, ErrUnknownReference)
	})

	t.Run("参照されている動物と利用者は削除できないこと", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		u := seedUsuario(t, s, "Ana", "ana@example.com")
		a := seedAnimal(t, s, "Rex")
		h, err := s.CreateHistorico(context.Background(), HistoricoParams{IDAnimal: a.ID, IDUsuario: u.ID, DataAdocao: "2025-01-20"})
		require.NoError(t, err)

		assert.ErrorIs(t, s.DeleteAnimal(context.Background(), a.ID), ErrInUse)
		assert.ErrorIs(t, s.DeleteUsuario(context.Background(), u.ID), ErrInUse)

		require.NoError(t, s.DeleteHistorico(context.Background(), h.ID))
		assert.NoError(t, s.DeleteAnimal(context.Background(), a.ID))
		assert.NoError(t, s.DeleteUsuario(context.Background(), u.ID))
	})
}

func TestAgeOn(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		birth string
		want  *int
	}{
		{name: "誕生日前", birth: "2020-03-11", want: intPtr(4)},
		{name: "誕生日当日", birth: "2020-03-10", want: intPtr(5)},
		{name: "未来の日付は0", birth: "2026-01-01", want: intPtr(0)},
		{name: "不正な形式", birth: "10/03/2020", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ageOn(tt.birth, now))
		})
	}
}

func intPtr(v int) *int { return &v }

package session

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/petadmin/pkg/event"
)

// storeFactory はテスト対象のStore実装を生成する。
type storeFactory struct {
	name string
	open func(t *testing.T) Store
}

func factories() []storeFactory {
	return []storeFactory{
		{
			name: "MemoryStore",
			open: func(_ *testing.T) Store { return NewMemoryStore() },
		},
		{
			name: "SQLiteStore",
			open: func(t *testing.T) Store {
				t.Helper()
				s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "session.db"))
				require.NoError(t, err)
				t.Cleanup(func() { s.Close() })
				return s
			},
		},
	}
}

// TestStoreContract は両実装が同じ契約を満たすことを検証する。
func TestStoreContract(t *testing.T) {
	t.Parallel()

	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			t.Parallel()

			t.Run("初期状態ではセッションが無いこと", func(t *testing.T) {
				t.Parallel()

				s := f.open(t)
				cur, ok, err := s.Current(context.Background())
				require.NoError(t, err)
				assert.False(t, ok)
				assert.Equal(t, Session{}, cur)
			})

			t.Run("Initialize後に両方の値が読めること", func(t *testing.T) {
				t.Parallel()

				s := f.open(t)
				require.NoError(t, s.Initialize(context.Background(), "T1", "Ana"))

				cur, ok, err := s.Current(context.Background())
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, Session{Token: "T1", DisplayName: "Ana"}, cur)
			})

			t.Run("表示名が空の場合は既定の表示名になること", func(t *testing.T) {
				t.Parallel()

				s := f.open(t)
				require.NoError(t, s.Initialize(context.Background(), "T1", ""))

				cur, _, err := s.Current(context.Background())
				require.NoError(t, err)
				assert.Equal(t, DefaultDisplayName, cur.DisplayName)
			})

			t.Run("空のトークンでは初期化できず状態も変わらないこと", func(t *testing.T) {
				t.Parallel()

				s := f.open(t)
				require.NoError(t, s.Initialize(context.Background(), "T1", "Ana"))
				err := s.Initialize(context.Background(), "", "Bia")
				require.ErrorIs(t, err, ErrEmptyToken)

				cur, _, err := s.Current(context.Background())
				require.NoError(t, err)
				assert.Equal(t, Session{Token: "T1", DisplayName: "Ana"}, cur)
			})

			t.Run("再初期化で以前のセッションが丸ごと置き換わること", func(t *testing.T) {
				t.Parallel()

				s := f.open(t)
				require.NoError(t, s.Initialize(context.Background(), "T1", "Ana"))
				require.NoError(t, s.Initialize(context.Background(), "T2", ""))

				cur, _, err := s.Current(context.Background())
				require.NoError(t, err)
				assert.Equal(t, Session{Token: "T2", DisplayName: DefaultDisplayName}, cur)
			})

			t.Run("Clearを2回呼んでも1回と同じ状態になること", func(t *testing.T) {
				t.Parallel()

				s := f.open(t)
				require.NoError(t, s.Initialize(context.Background(), "T1", "Ana"))
				require.NoError(t, s.Clear(context.Background()))
				require.NoError(t, s.Clear(context.Background()))

				cur, ok, err := s.Current(context.Background())
				require.NoError(t, err)
				assert.False(t, ok)
				assert.Equal(t, Session{}, cur)
			})

			t.Run("操作列の最後の操作だけが反映されること", func(t *testing.T) {
				t.Parallel()

				type op struct {
					token, name string
					clear       bool
				}
				ops := []op{
					{token: "a", name: "A"},
					{clear: true},
					{token: "b", name: "B"},
					{token: "c"},
					{clear: true},
					{clear: true},
					{token: "d", name: "D"},
				}

				s := f.open(t)
				for i, o := range ops {
					if o.clear {
						require.NoError(t, s.Clear(context.Background()))
					} else {
						require.NoError(t, s.Initialize(context.Background(), o.token, o.name))
					}

					cur, ok, err := s.Current(context.Background())
					require.NoError(t, err)
					if o.clear {
						assert.False(t, ok, "step %d", i)
						assert.Equal(t, Session{}, cur, "step %d", i)
						continue
					}
					want := Session{Token: o.token, DisplayName: o.name}
					if want.DisplayName == "" {
						want.DisplayName = DefaultDisplayName
					}
					assert.True(t, ok, "step %d", i)
					assert.Equal(t, want, cur, "step %d", i)
				}
			})

			t.Run("状態が変わったときだけ通知されること", func(t *testing.T) {
				t.Parallel()

				s := f.open(t)
				var mu sync.Mutex
				var got []*event.Event
				unsubscribe := s.Subscribe(func(ev *event.Event) {
					mu.Lock()
					defer mu.Unlock()
					got = append(got, ev)
				})

				require.NoError(t, s.Clear(context.Background()))
				require.NoError(t, s.Initialize(context.Background(), "T1", "Ana"))
				require.NoError(t, s.Clear(context.Background()))
				require.NoError(t, s.Clear(context.Background()))

				unsubscribe()
				unsubscribe()
				require.NoError(t, s.Initialize(context.Background(), "T2", "Bia"))

				mu.Lock()
				defer mu.Unlock()
				require.Len(t, got, 2)
				assert.Equal(t, event.TypeSessionInitialized, got[0].EventType)
				assert.Equal(t, event.TypeSessionCleared, got[1].EventType)

				data, err := event.DecodeData[event.SessionClearedData](got[1])
				require.NoError(t, err)
				assert.Equal(t, "Ana", data.PreviousDisplayName)
			})
		})
	}
}

// TestSQLiteStorePersistence はファイルを開き直してもセッションが残ることを検証する。
func TestSQLiteStorePersistence(t *testing.T) {
	t.Parallel()

	t.Run("開き直したストアでセッションが復元されること", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "nested", "session.db")
		first, err := OpenSQLite(context.Background(), path)
		require.NoError(t, err)
		require.NoError(t, first.Initialize(context.Background(), "T1", "Ana"))
		require.NoError(t, first.Close())

		second, err := OpenSQLite(context.Background(), path)
		require.NoError(t, err)
		t.Cleanup(func() { second.Close() })

		cur, ok, err := second.Current(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, Session{Token: "T1", DisplayName: "Ana"}, cur)
	})

	t.Run("Clear後に開き直すとセッションが無いこと", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "session.db")
		first, err := OpenSQLite(context.Background(), path)
		require.NoError(t, err)
		require.NoError(t, first.Initialize(context.Background(), "T1", "Ana"))
		require.NoError(t, first.Clear(context.Background()))
		require.NoError(t, first.Close())

		second, err := OpenSQLite(context.Background(), path)
		require.NoError(t, err)
		t.Cleanup(func() { second.Close() })

		_, ok, err := second.Current(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("表示名だけが残っていてもセッションは不在とみなすこと", func(t *testing.T) {
		t.Parallel()

		s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "session.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })

		_, err = s.db.Exec(`INSERT INTO session_kv (key, value) VALUES (?, ?)`, keyName, "stale")
		require.NoError(t, err)

		cur, ok, err := s.Current(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, Session{}, cur)
	})
}

// TestConcurrentAccess は並行操作で片側だけが見える状態にならないことを検証する。
func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			t.Parallel()

			s := f.open(t)
			pairs := map[string]string{"t1": "n1", "t2": "n2", "t3": "n3"}

			var wg sync.WaitGroup
			for token, name := range pairs {
				wg.Add(2)
				go func() {
					defer wg.Done()
					for range 20 {
						assert.NoError(t, s.Initialize(context.Background(), token, name))
					}
				}()
				go func() {
					defer wg.Done()
					for range 20 {
						cur, ok, err := s.Current(context.Background())
						assert.NoError(t, err)
						if ok {
							assert.Equal(t, pairs[cur.Token], cur.DisplayName)
						}
					}
				}()
			}
			wg.Wait()
		})
	}
}

// TestNotificationOrder は並行する初期化と破棄の後、最後に届いた通知が
// 保存されている状態と一致することを検証する。
func TestNotificationOrder(t *testing.T) {
	t.Parallel()

	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			t.Parallel()

			s := f.open(t)

			var (
				mu   sync.Mutex
				last event.Type
			)
			unsubscribe := s.Subscribe(func(ev *event.Event) {
				mu.Lock()
				last = ev.EventType
				mu.Unlock()
			})
			defer unsubscribe()

			var wg sync.WaitGroup
			for i := range 4 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range 25 {
						if i%2 == 0 {
							assert.NoError(t, s.Initialize(context.Background(), "tok", "Ana"))
						} else {
							assert.NoError(t, s.Clear(context.Background()))
						}
					}
				}()
			}
			wg.Wait()

			_, ok, err := s.Current(context.Background())
			require.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			if ok {
				assert.Equal(t, event.TypeSessionInitialized, last)
			} else {
				assert.Equal(t, event.TypeSessionCleared, last)
			}
		})
	}
}

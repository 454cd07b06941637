package config

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSection is a test implementation of the Section interface
type mockSection struct {
	id          string
	data        map[string]any
	validateErr error
}

func (m *mockSection) ID() string                        { return m.id }
func (m *mockSection) Title() string                     { return m.id }
func (m *mockSection) Description() string               { return "" }
func (m *mockSection) Data() map[string]any              { return m.data }
func (m *mockSection) SetData(data map[string]any) error { m.data = data; return nil }
func (m *mockSection) Validate() error                   { return m.validateErr }
func (m *mockSection) Reset()                            { m.data = map[string]any{} }

// mockStore is a test implementation of the Store interface
type mockStore struct {
	sections map[string]map[string]any
	loadErr  error
	saveErr  error
	saved    int
}

func newMockStore() *mockStore {
	return &mockStore{sections: make(map[string]map[string]any)}
}

func (m *mockStore) Load() error { return m.loadErr }

func (m *mockStore) Save() error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved++
	return nil
}

func (m *mockStore) GetSection(id string) (map[string]any, error) {
	if data, ok := m.sections[id]; ok {
		return data, nil
	}
	return map[string]any{}, nil
}

func (m *mockStore) SetSection(id string, data map[string]any) error {
	m.sections[id] = data
	return nil
}

func (m *mockStore) GetAll() (map[string]map[string]any, error) { return m.sections, nil }

func (m *mockStore) SetAll(data map[string]map[string]any) error {
	m.sections = data
	return nil
}

func TestManager_RegisterSection(t *testing.T) {
	manager := NewManager(newMockStore())

	require.NoError(t, manager.RegisterSection(&mockSection{id: "first"}))
	require.NoError(t, manager.RegisterSection(&mockSection{id: "second"}))
	assert.Error(t, manager.RegisterSection(&mockSection{id: "first"}), "duplicate ids are rejected")

	sections := manager.GetSections()
	require.Len(t, sections, 2)
	assert.Equal(t, "first", sections[0].ID())
	assert.Equal(t, "second", sections[1].ID())

	_, ok := manager.GetSection("missing")
	assert.False(t, ok)
}

func TestManager_LoadAll(t *testing.T) {
	t.Run("applies stored data", func(t *testing.T) {
		store := newMockStore()
		store.sections["test"] = map[string]any{"key": "value"}
		manager := NewManager(store)
		section := &mockSection{id: "test", data: map[string]any{}}
		require.NoError(t, manager.RegisterSection(section))

		require.NoError(t, manager.LoadAll())
		assert.Equal(t, "value", section.data["key"])
	})

	t.Run("store error", func(t *testing.T) {
		store := newMockStore()
		store.loadErr = errors.New("disk gone")

		err := NewManager(store).LoadAll()
		assert.ErrorIs(t, err, store.loadErr)
	})

	t.Run("invalid loaded data", func(t *testing.T) {
		store := newMockStore()
		store.sections["test"] = map[string]any{"key": "value"}
		manager := NewManager(store)
		require.NoError(t, manager.RegisterSection(&mockSection{id: "test", validateErr: errors.New("bad")}))

		assert.Error(t, manager.LoadAll())
	})
}

func TestManager_SaveAll(t *testing.T) {
	t.Run("persists every section", func(t *testing.T) {
		store := newMockStore()
		manager := NewManager(store)
		require.NoError(t, manager.RegisterSection(&mockSection{id: "a", data: map[string]any{"k": 1}}))
		require.NoError(t, manager.RegisterSection(&mockSection{id: "b", data: map[string]any{"k": 2}}))

		require.NoError(t, manager.SaveAll())
		assert.Equal(t, 1, store.sections["a"]["k"])
		assert.Equal(t, 2, store.sections["b"]["k"])
		assert.Equal(t, 1, store.saved)
	})

	t.Run("validation blocks save", func(t *testing.T) {
		store := newMockStore()
		manager := NewManager(store)
		require.NoError(t, manager.RegisterSection(&mockSection{id: "a", validateErr: errors.New("bad")}))

		assert.Error(t, manager.SaveAll())
		assert.Equal(t, 0, store.saved)
	})

	t.Run("store error", func(t *testing.T) {
		store := newMockStore()
		store.saveErr = errors.New("read-only filesystem")
		manager := NewManager(store)

		assert.ErrorIs(t, manager.SaveAll(), store.saveErr)
	})
}

func TestManager_ResetAll(t *testing.T) {
	manager := NewManager(newMockStore())
	section := &mockSection{id: "a", data: map[string]any{"k": 1}}
	require.NoError(t, manager.RegisterSection(section))

	manager.ResetAll()
	assert.Empty(t, section.data)
}

func TestManager_ConcurrentRegistration(t *testing.T) {
	manager := NewManager(newMockStore())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = manager.RegisterSection(&mockSection{id: fmt.Sprintf("section%d", i)})
			manager.GetSections()
		}(i)
	}
	wg.Wait()

	assert.Len(t, manager.GetSections(), 10)
}

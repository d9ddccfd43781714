package registry_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/contentflow/pkg/contentflow/registry"
)

func TestRegistry_RegisterGet(t *testing.T) {
	r := registry.New[int]("producer")
	assert.Equal(t, "producer", r.Kind())

	require.NoError(t, r.Register("one", 1))
	require.NoError(t, r.Register("two", 2))

	v, err := r.Get("one")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.True(t, r.Has("two"))
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_Duplicate(t *testing.T) {
	r := registry.New[int]("merger")
	require.NoError(t, r.Register("sum", 1))

	err := r.Register("sum", 2)
	assert.ErrorIs(t, err, registry.ErrDuplicate)
	assert.Contains(t, err.Error(), `merger "sum"`)

	v, _ := r.Get("sum")
	assert.Equal(t, 1, v, "first registration kept")
}

func TestRegistry_NotFound(t *testing.T) {
	r := registry.New[string]("renderer")

	v, err := r.Get("stdout")
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.Empty(t, v)
}

func TestRegistry_EmptyName(t *testing.T) {
	r := registry.New[int]("activator")
	assert.Error(t, r.Register("", 1))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_MustRegisterPanicsOnDuplicate(t *testing.T) {
	r := registry.New[int]("producer")
	r.MustRegister("a", 1)
	assert.Panics(t, func() { r.MustRegister("a", 2) })
}

func TestRegistry_DeleteAndNames(t *testing.T) {
	r := registry.New[int]("producer")
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, r.Register(name, 0))
	}
	assert.Equal(t, []string{"a", "b", "c"}, r.Names())

	r.Delete("b")
	r.Delete("missing")
	assert.Equal(t, []string{"a", "c"}, r.Names())
	assert.False(t, r.Has("b"))
}

func TestRegistry_Concurrent(t *testing.T) {
	r := registry.New[int]("producer")

	const n = 100
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.Register(fmt.Sprintf("p%d", i), i)
		}()
		go func() {
			defer wg.Done()
			_ = r.Names()
			_, _ = r.Get(fmt.Sprintf("p%d", i))
		}()
	}
	wg.Wait()

	assert.Equal(t, n, r.Len())
}

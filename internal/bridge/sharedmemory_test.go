package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedMemoryCreateMapDestroy(t *testing.T) {
	p := NewSharedMemoryPool(1024)

	require.NoError(t, p.Create("h1", 256))
	assert.EqualValues(t, 256, p.Used())

	buf, err := p.Map("h1")
	require.NoError(t, err)
	assert.Len(t, buf, 256)

	require.NoError(t, p.Destroy("h1"))
	assert.EqualValues(t, 0, p.Used())

	_, err = p.Map("h1")
	assert.Error(t, err)
}

func TestSharedMemoryCreateRejectsOverCapacity(t *testing.T) {
	p := NewSharedMemoryPool(128)
	require.NoError(t, p.Create("h1", 100))
	err := p.Create("h2", 100)
	assert.Error(t, err)
}

func TestSharedMemoryCreateDuplicateHandleFails(t *testing.T) {
	p := NewSharedMemoryPool(1024)
	require.NoError(t, p.Create("h1", 10))
	err := p.Create("h1", 10)
	assert.Error(t, err)
}

func TestSharedMemoryAcquireReturnsIntegerIndexedHandle(t *testing.T) {
	p := NewSharedMemoryPool(1024)

	h1, err := p.Acquire(64)
	require.NoError(t, err)
	assert.Equal(t, 0, h1.Index)

	h2, err := p.Acquire(64)
	require.NoError(t, err)
	assert.Equal(t, 1, h2.Index)
	assert.NotEqual(t, h1.Name, h2.Name)

	buf, err := p.Map(h1.Name)
	require.NoError(t, err)
	assert.Len(t, buf, 64)
}

func TestSharedMemoryReleaseReusesFreedSlotIndex(t *testing.T) {
	p := NewSharedMemoryPool(1024)

	h1, err := p.Acquire(32)
	require.NoError(t, err)
	require.NoError(t, p.Release(h1))
	assert.EqualValues(t, 0, p.Used())

	h2, err := p.Acquire(32)
	require.NoError(t, err)
	assert.Equal(t, h1.Index, h2.Index)
}

func TestSharedMemoryAcquireRejectsOverCapacity(t *testing.T) {
	p := NewSharedMemoryPool(64)
	_, err := p.Acquire(128)
	assert.Error(t, err)
	assert.EqualValues(t, 0, p.Used())
}

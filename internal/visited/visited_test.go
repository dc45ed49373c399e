package visited

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := New(100)

	assert.True(t, s.Visit(5))
	assert.False(t, s.Visit(5))
	assert.True(t, s.Visit(99))
	assert.True(t, s.Visited(5))
	assert.False(t, s.Visited(6))
	assert.Equal(t, 2, s.Len())

	s.Reset()
	assert.False(t, s.Visited(5))
	assert.False(t, s.Visited(99))
	assert.Zero(t, s.Len())
}

func TestSet_GrowsPastCapacity(t *testing.T) {
	s := New(8)
	assert.True(t, s.Visit(1000))
	assert.True(t, s.Visited(1000))
	assert.False(t, s.Visited(5000))
}

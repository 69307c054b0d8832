package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashCache_RememberAndGet(t *testing.T) {
	c := NewHashCache()

	_, ok := c.Get("docs/a.md")
	assert.False(t, ok)

	c.Remember("docs/a.md", "hash-1")
	got, ok := c.Get("docs/a.md")
	assert.True(t, ok)
	assert.Equal(t, "hash-1", got)

	// Keys are normalized, so separator style does not matter.
	got, ok = c.Get(`docs\a.md`)
	assert.True(t, ok)
	assert.Equal(t, "hash-1", got)
}

func TestHashCache_Forget(t *testing.T) {
	c := NewHashCache()

	c.Remember("a.md", "h")
	c.Forget("a.md")

	_, ok := c.Get("a.md")
	assert.False(t, ok)
}

func TestHashCache_ForgetPrefix(t *testing.T) {
	c := NewHashCache()

	c.Remember("docs", "h0")
	c.Remember("docs/a.md", "h1")
	c.Remember("docs/sub/b.md", "h2")
	c.Remember("docs2/c.md", "h3")

	c.ForgetPrefix("docs")

	for _, rel := range []string{"docs", "docs/a.md", "docs/sub/b.md"} {
		_, ok := c.Get(rel)
		assert.False(t, ok, "%q should be forgotten", rel)
	}

	// Folders sharing the name as a string prefix survive.
	got, ok := c.Get("docs2/c.md")
	assert.True(t, ok)
	assert.Equal(t, "h3", got)
	assert.Equal(t, 1, c.Len())
}

package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTrip(t *testing.T) {
	tok, err := Encode(Cursor{LastID: 42})
	require.NoError(t, err)

	c, err := Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), c.LastID)
}

func TestDecode_EmptyAndInvalid(t *testing.T) {
	c, err := Decode("")
	require.NoError(t, err)
	assert.Zero(t, c.LastID)

	_, err = Decode("%%%")
	assert.Error(t, err)
}

func TestLimit(t *testing.T) {
	assert.Equal(t, 20, Limit(0, 20, 100))
	assert.Equal(t, 100, Limit(500, 20, 100))
	assert.Equal(t, 5, Limit(5, 20, 100))
}

func TestPage(t *testing.T) {
	p, offset := NewPage(0, 10)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 0, offset)

	p, offset = NewPage(3, 10)
	assert.Equal(t, 20, offset)
	p = p.WithTotal(21)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, int64(21), p.TotalCount)
}

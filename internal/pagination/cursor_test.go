package pagination

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	at time.Time
	id string
}

func itemKey(i item) (time.Time, string) { return i.at, i.id }

func items(n int) []item {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]item, n)
	for i := range out {
		out[i] = item{at: base.Add(time.Duration(i) * time.Second), id: fmt.Sprintf("m%d", i)}
	}
	return out
}

func ids(page []item) []string {
	out := make([]string, len(page))
	for i, it := range page {
		out[i] = it.id
	}
	return out
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC)
	cur, err := Decode(Encode(at, "msg-1"))
	require.NoError(t, err)
	assert.True(t, at.Equal(cur.At))
	assert.Equal(t, "msg-1", cur.ID)
}

func TestDecode(t *testing.T) {
	cur, err := Decode("")
	require.NoError(t, err)
	assert.Nil(t, cur)

	for _, bad := range []string{"!!!", "bm9waXBl", "YWJjfGlk", "MTIzfA"} {
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrInvalidCursor, bad)
	}
}

func TestParseLimit(t *testing.T) {
	n, err := ParseLimit("")
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, n)

	n, err = ParseLimit("10")
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	n, err = ParseLimit("100000")
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, n)

	for _, bad := range []string{"0", "-1", "ten"} {
		_, err := ParseLimit(bad)
		assert.Error(t, err, bad)
	}
}

func TestBefore_WalksBackwards(t *testing.T) {
	all := items(5)

	page, next, more := Before(all, nil, 2, itemKey)
	assert.Equal(t, []string{"m3", "m4"}, ids(page))
	require.True(t, more)

	cur, err := Decode(next)
	require.NoError(t, err)
	page, next, more = Before(all, cur, 2, itemKey)
	assert.Equal(t, []string{"m1", "m2"}, ids(page))
	require.True(t, more)

	cur, _ = Decode(next)
	page, next, more = Before(all, cur, 2, itemKey)
	assert.Equal(t, []string{"m0"}, ids(page))
	assert.False(t, more)
	assert.Empty(t, next)
}

func TestBefore_ExactLimit(t *testing.T) {
	page, next, more := Before(items(3), nil, 3, itemKey)
	assert.Len(t, page, 3)
	assert.False(t, more)
	assert.Empty(t, next)
}

func TestBefore_TrimmedCursorResumesByTime(t *testing.T) {
	all := items(6)
	cur := &Cursor{At: all[2].at, ID: "gone"}

	page, _, _ := Before(all[1:], cur, 10, itemKey)
	assert.Equal(t, []string{"m1"}, ids(page))
}

func TestBefore_Empty(t *testing.T) {
	page, next, more := Before([]item{}, nil, 10, itemKey)
	assert.Empty(t, page)
	assert.Empty(t, next)
	assert.False(t, more)
}

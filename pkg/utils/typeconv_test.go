package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertReleaseDate(t *testing.T) {
	got := ConvertReleaseDate("01-Jan-1995")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(1995, time.January, 1, 0, 0, 0, 0, time.UTC), *got)

	got = ConvertReleaseDate(" 22-Mar-1996 ")
	require.NotNil(t, got)
	assert.Equal(t, time.March, got.Month())

	for _, bad := range []string{"", "   ", "1995-01-01", "32-Jan-1995", "01-Foo-1995"} {
		assert.Nil(t, ConvertReleaseDate(bad), bad)
	}
}

func TestConvertUnixTime(t *testing.T) {
	got := ConvertUnixTime(881250949)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, "1997-12-04T15:55:49Z", got.Format(time.RFC3339))
	assert.Equal(t, time.Unix(0, 0).UTC(), ConvertUnixTime(0))
}

func TestConvertFlag(t *testing.T) {
	v, err := ConvertFlag("1")
	require.NoError(t, err)
	assert.True(t, v)

	v, err = ConvertFlag("0")
	require.NoError(t, err)
	assert.False(t, v)

	for _, bad := range []string{"", "2", "true", "01"} {
		_, err := ConvertFlag(bad)
		assert.Error(t, err, bad)
	}
}

func TestConvertToInt(t *testing.T) {
	n, err := ConvertToInt(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = ConvertToInt("4x")
	assert.Error(t, err)

	ts, err := ConvertToInt64("881250949")
	require.NoError(t, err)
	assert.Equal(t, int64(881250949), ts)
}

func TestNullableString(t *testing.T) {
	assert.Nil(t, NullableString(""))
	s := NullableString("http://us.imdb.com")
	require.NotNil(t, s)
	assert.Equal(t, "http://us.imdb.com", *s)
}

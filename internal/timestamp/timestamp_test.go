package timestamp

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAbsentTokens(t *testing.T) {
	n := New(time.UTC)
	for _, token := range []any{nil, "", "   ", (*string)(nil)} {
		_, present, err := n.Normalize(token)
		require.NoError(t, err)
		assert.False(t, present, "token %#v", token)
	}
}

func TestNormalizeEpochBoundary(t *testing.T) {
	n := New(time.UTC)

	got, present, err := n.Normalize(int64(9_999_999_999))
	require.NoError(t, err)
	require.True(t, present)
	assert.Equal(t, int64(9_999_999_999), got.Unix())

	got, present, err = n.Normalize(int64(10_000_000_000))
	require.NoError(t, err)
	require.True(t, present)
	assert.Equal(t, int64(10_000_000), got.Unix())
}

func TestNormalizeMillisecondsMatchesSeconds(t *testing.T) {
	n := New(time.UTC)
	ms, _, err := n.Normalize(json.Number("1717000000000"))
	require.NoError(t, err)
	secs, _, err := n.Normalize("1717000000")
	require.NoError(t, err)
	assert.True(t, ms.Equal(secs))

	truncated, _, err := n.Normalize(float64(1717000000999))
	require.NoError(t, err)
	assert.True(t, truncated.Equal(secs))
}

func TestNormalizeCalendarStringUsesStoreZone(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	n := New(jakarta)

	got, present, err := n.Normalize("2024-05-10 08:00:00")
	require.NoError(t, err)
	require.True(t, present)
	assert.Equal(t, "2024-05-10T01:00:00Z", got.UTC().Format(time.RFC3339))

	withOffset, _, err := n.Normalize("2024-05-10T08:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-10T08:00:00Z", withOffset.UTC().Format(time.RFC3339))

	dateOnly, _, err := n.Normalize("2024-05-10")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-10T00:00:00+07:00", n.Format(dateOnly))
}

func TestNormalizeRelativeExpression(t *testing.T) {
	n := New(time.UTC)
	n.now = func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) }

	got, present, err := n.Normalize("yesterday")
	require.NoError(t, err)
	require.True(t, present)
	assert.Equal(t, "2024-05-09", n.FormatDate(got))
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	n := New(time.UTC)
	for _, token := range []any{"not-a-date", "2024-13-45", "12ab", true} {
		_, _, err := n.Normalize(token)
		if !errors.Is(err, ErrInvalidTimestamp) {
			t.Fatalf("expected ErrInvalidTimestamp for %#v, got %v", token, err)
		}
	}
}

func TestNormalizeRejectsOutOfRangeNumbers(t *testing.T) {
	n := New(time.UTC)
	for _, token := range []any{"99999999999999999999999", "-99999999999999999999999", 1e300, json.Number("123456789012345678901234.5")} {
		_, _, err := n.Normalize(token)
		require.ErrorIs(t, err, ErrInvalidTimestamp, "token %#v", token)
	}
}

func TestFormatUsesExplicitOffset(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	n := New(loc)
	instant := time.Date(2024, 5, 10, 1, 2, 3, 999, time.UTC)
	assert.Equal(t, "2024-05-10T08:02:03+07:00", n.Format(instant))
	assert.Equal(t, "2024-05-10", n.FormatDate(instant))

	utc := New(nil)
	assert.Equal(t, "2024-05-10T01:02:03+00:00", utc.Format(instant))
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = LoadLocation("Mars/Olympus")
	require.Error(t, err)
}

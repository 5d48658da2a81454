package sequence

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newSequenceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.Exec(`CREATE TABLE sequence_counters (
		prefix TEXT NOT NULL,
		year INTEGER NOT NULL,
		value INTEGER NOT NULL,
		updated_at DATETIME,
		PRIMARY KEY (prefix, year)
	);`).Error)
	return conn
}

func TestNextIsStrictlyIncreasingPerYear(t *testing.T) {
	conn := newSequenceDB(t)
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	var prev int64
	for i := 0; i < 12; i++ {
		number, err := Next(conn, PrefixPayout, at)
		require.NoError(t, err)
		prefix, year, value, err := Parse(number)
		require.NoError(t, err)
		assert.Equal(t, PrefixPayout, prefix)
		assert.Equal(t, 2026, year)
		assert.Greater(t, value, prev)
		prev = value
	}
	assert.Equal(t, int64(12), prev)
}

func TestNextFormatsAndResetsPerYearAndPrefix(t *testing.T) {
	conn := newSequenceDB(t)
	y2026 := time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC)
	y2027 := time.Date(2027, 1, 1, 1, 0, 0, 0, time.UTC)

	first, err := Next(conn, PrefixOrder, y2026)
	require.NoError(t, err)
	assert.Equal(t, "ORD-2026-0001", first)

	second, err := Next(conn, PrefixOrder, y2026)
	require.NoError(t, err)
	assert.Equal(t, "ORD-2026-0002", second)

	nextYear, err := Next(conn, PrefixOrder, y2027)
	require.NoError(t, err)
	assert.Equal(t, "ORD-2027-0001", nextYear)

	invoice, err := Next(conn, PrefixInvoice, y2026)
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-0001", invoice)
}

func TestFormatAndParse(t *testing.T) {
	assert.Equal(t, "PAY-OUT-2026-0042", Format(PrefixPayout, 2026, 42))
	assert.Equal(t, "DSP-2026-12345", Format(PrefixDispute, 2026, 12345))

	prefix, year, value, err := Parse("PAY-OUT-2026-0042")
	require.NoError(t, err)
	assert.Equal(t, PrefixPayout, prefix)
	assert.Equal(t, 2026, year)
	assert.Equal(t, int64(42), value)

	for _, bad := range []string{"", "ORD", "ORD-26-0001", "ORD-2026-x", "ORD-2026-0000"} {
		_, _, _, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/electro-checkout/internal/domain/coupon"
)

const header = "code,description,discount_type,discount_value,min_order_amount,max_discount_amount,valid_from,valid_to,usage_limit,usage_limit_per_user,is_active\n"

func row(code, typ, value string) string {
	return code + ",," + typ + "," + value + ",,,2024-01-01T00:00:00Z,2025-01-01T00:00:00Z,,,\n"
}

func writeGz(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func writePlain(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type memorySink struct {
	mu    sync.Mutex
	codes map[string]*coupon.Coupon
	err   error
}

func newMemorySink() *memorySink {
	return &memorySink{codes: make(map[string]*coupon.Coupon)}
}

func (s *memorySink) Upsert(_ context.Context, c *coupon.Coupon) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.codes[c.Code] = c
	return "id-" + c.Code, nil
}

func newTestImporter(t *testing.T, sink Sink) *Importer {
	return NewImporter(sink, zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel)), Options{
		ExpectedCodes: 1000,
		Writers:       2,
	})
}

func TestImporter_Run(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.csv.gz", header+
			row("save10", "percentage", "10")+
			row("SHARED", "fixed", "5")+
			row("TWICE", "fixed", "1")+
			row("twice", "fixed", "2")+
			row("BROKEN", "bogus", "10")),
		writeGz(t, dir, "b.csv.gz", header+
			row("FLAT50", "fixed", "50")+
			row(" shared ", "percentage", "20")),
		writePlain(t, dir, "c.csv", header+
			row("LATE", "percentage", "5")+
			"NEGATIVE,,fixed,-1,,,2024-01-01T00:00:00Z,2025-01-01T00:00:00Z,,,\n"),
	}

	sink := newMemorySink()
	rep, err := newTestImporter(t, sink).Run(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Files)
	assert.Equal(t, 9, rep.Rows)
	assert.Equal(t, 3, rep.Imported)
	assert.Equal(t, []string{"SHARED", "TWICE"}, rep.Duplicates)
	require.Len(t, rep.Invalid, 2)
	for _, e := range rep.Invalid {
		assert.ErrorIs(t, e, coupon.ErrInvalidCoupon)
	}
	assert.Equal(t, 6, rep.Invalid[0].Line, "BROKEN is on line 6 of a.csv.gz")

	assert.Len(t, sink.codes, 3)
	for _, code := range []string{"SAVE10", "FLAT50", "LATE"} {
		assert.Contains(t, sink.codes, code)
	}
	assert.True(t, sink.codes["FLAT50"].IsActive)
	assert.Equal(t, coupon.DiscountFixed, sink.codes["FLAT50"].DiscountType)
}

func TestImporter_SinkError(t *testing.T) {
	dir := t.TempDir()
	files := []string{writePlain(t, dir, "a.csv", header+row("A1", "fixed", "1")+row("A2", "fixed", "2"))}

	sink := newMemorySink()
	sink.err = errors.New("db down")
	_, err := newTestImporter(t, sink).Run(context.Background(), files)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestImporter_BadInput(t *testing.T) {
	dir := t.TempDir()
	im := newTestImporter(t, newMemorySink())

	_, err := im.Run(context.Background(), nil)
	require.Error(t, err)

	_, err = im.Run(context.Background(), []string{filepath.Join(dir, "missing.csv")})
	require.Error(t, err)

	noCode := writePlain(t, dir, "nocode.csv", "description,discount_type\nx,fixed\n")
	_, err = im.Run(context.Background(), []string{noCode})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing column "code"`)
}

func TestParseRow(t *testing.T) {
	cols := map[string]int{}
	for i, name := range strings.Split(strings.TrimSpace(header), ",") {
		cols[name] = i
	}
	parse := func(line string) (*coupon.Coupon, error) {
		return parseRow(cols, strings.Split(line, ","))
	}

	c, err := parse("welcome,Welcome offer,Percentage,15,100,40,2024-01-01T00:00:00Z,2024-12-31T23:59:59Z,1000,1,false")
	require.NoError(t, err)
	assert.Equal(t, "WELCOME", c.Code)
	assert.Equal(t, "Welcome offer", c.Description)
	assert.Equal(t, coupon.DiscountPercentage, c.DiscountType)
	assert.Equal(t, "15", c.DiscountValue.String())
	require.NotNil(t, c.MinOrderAmount)
	assert.Equal(t, "100", c.MinOrderAmount.String())
	require.NotNil(t, c.MaxDiscountAmount)
	assert.Equal(t, "40", c.MaxDiscountAmount.String())
	require.NotNil(t, c.UsageLimit)
	assert.Equal(t, 1000, *c.UsageLimit)
	require.NotNil(t, c.UsageLimitPerUser)
	assert.Equal(t, 1, *c.UsageLimitPerUser)
	assert.False(t, c.IsActive)

	for _, tt := range []struct {
		name, line, want string
	}{
		{"BadValue", "X,,fixed,ten,,,2024-01-01T00:00:00Z,2025-01-01T00:00:00Z,,,", "discount_value"},
		{"BadDate", "X,,fixed,1,,,yesterday,2025-01-01T00:00:00Z,,,", "valid_from"},
		{"WindowReversed", "X,,fixed,1,,,2025-01-01T00:00:00Z,2024-01-01T00:00:00Z,,,", "valid_from must be before valid_to"},
		{"NegativeLimit", "X,,fixed,1,,,2024-01-01T00:00:00Z,2025-01-01T00:00:00Z,-1,,", "usage_limit"},
		{"NegativeMinimum", "X,,fixed,1,-5,,2024-01-01T00:00:00Z,2025-01-01T00:00:00Z,,,", "min_order_amount"},
		{"BadActive", "X,,fixed,1,,,2024-01-01T00:00:00Z,2025-01-01T00:00:00Z,,,maybe", "is_active"},
		{"EmptyCode", " ,,fixed,1,,,2024-01-01T00:00:00Z,2025-01-01T00:00:00Z,,,", "empty code"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(tt.line)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasage-io/datasage/internal/dataset"
	"github.com/datasage-io/datasage/internal/errs"
	"github.com/datasage-io/datasage/internal/profile"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := New("df", nil)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	table := &dataset.Table{
		Columns: []dataset.Column{
			{Name: "region", Original: "Region"},
			{Name: "sales", Original: "Sales"},
			{Name: "units", Original: "Units"},
		},
		Rows: [][]string{
			{"East", "100.5", "3"},
			{"West", "250.25", "7"},
			{"East", "75.25", ""},
		},
	}
	schema := profile.Profile(table, profile.DefaultConfig())
	require.NoError(t, eng.Register(context.Background(), table, schema))
	return eng
}

func TestEngine_Execute(t *testing.T) {
	eng := newTestEngine(t)

	res, err := eng.Execute(context.Background(), `SELECT "region", SUM("sales") AS "sum_sales" FROM df GROUP BY "region" ORDER BY "sum_sales" DESC LIMIT 50`)
	require.NoError(t, err)

	assert.Equal(t, []string{"region", "sum_sales"}, res.Columns)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "West", res.Rows[0]["region"])
	assert.InDelta(t, 250.25, res.Rows[0]["sum_sales"].(float64), 1e-9)
	assert.Equal(t, "East", res.Rows[1]["region"])
	assert.InDelta(t, 175.75, res.Rows[1]["sum_sales"].(float64), 1e-9)
	assert.Positive(t, res.Duration)
}

func TestEngine_NullsSurviveAsNil(t *testing.T) {
	eng := newTestEngine(t)

	res, err := eng.Execute(context.Background(), `SELECT "units" FROM df ORDER BY "region", "sales" LIMIT 50`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)

	// East rows sort first (75.25 then 100.5); the 75.25 row has no units.
	assert.Nil(t, res.Rows[0]["units"])
	assert.Equal(t, int64(3), res.Rows[1]["units"])
	assert.Equal(t, int64(7), res.Rows[2]["units"])
}

func TestEngine_EmptyResult(t *testing.T) {
	eng := newTestEngine(t)

	res, err := eng.Execute(context.Background(), `SELECT * FROM df WHERE "region" = 'Nowhere' LIMIT 50`)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Equal(t, []string{"region", "sales", "units"}, res.Columns)
}

func TestEngine_ErrorMapping(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Execute(ctx, `SELECT nope FROM df LIMIT 1`)
	require.Error(t, err)
	assert.True(t, errs.IsBinder(err), "got %v", err)

	_, err = eng.Execute(ctx, `SELECT no_such_fn("region") FROM df LIMIT 1`)
	require.Error(t, err)
	assert.True(t, errs.IsBinder(err), "got %v", err)

	_, err = eng.Execute(ctx, `SELECT * FROM other LIMIT 1`)
	require.Error(t, err)
	assert.True(t, errs.IsCatalog(err), "got %v", err)
}

func TestEngine_ReRegisterReplaces(t *testing.T) {
	eng := newTestEngine(t)

	table := &dataset.Table{
		Columns: []dataset.Column{{Name: "color", Original: "Color"}},
		Rows:    [][]string{{"red"}, {"blue"}},
	}
	schema := profile.Profile(table, profile.DefaultConfig())
	require.NoError(t, eng.Register(context.Background(), table, schema))

	res, err := eng.Execute(context.Background(), `SELECT * FROM df LIMIT 50`)
	require.NoError(t, err)
	assert.Equal(t, []string{"color"}, res.Columns)
	assert.Len(t, res.Rows, 2)
}

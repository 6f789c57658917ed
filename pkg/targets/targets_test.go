package targets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"weibocrawl/pkg/config"
	errs "weibocrawl/pkg/errors"
)

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uids.txt")
	require.NoError(t, os.WriteFile(path, []byte("# seed list\n42\n\n  7  \n42\n1001\n"), 0644))

	ids, err := File{Path: path}.Targets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"42", "7", "1001"}, ids)
}

func TestFileSourceMissing(t *testing.T) {
	_, err := File{Path: filepath.Join(t.TempDir(), "nope")}.Targets(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeSource, errs.TypeOf(err))
}

func TestRangeSource(t *testing.T) {
	ids, err := Range{Start: 10, End: 14}.Targets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "11", "12", "13", "14"}, ids)

	ids, err = Range{Start: 10, End: 1000, Limit: 2}.Targets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "11"}, ids)

	_, err = Range{Start: 5, End: 1}.Targets(context.Background())
	assert.Error(t, err)
}

func TestStaticDedupes(t *testing.T) {
	ids, err := Static{"1", " 2", "1", ""}.Targets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids)
}

func TestFromConfigPrecedence(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TargetsConfig
		ids  []string
		want interface{}
	}{
		{name: "explicit ids", cfg: config.TargetsConfig{File: "x"}, ids: []string{"1"}, want: Static{}},
		{name: "file", cfg: config.TargetsConfig{File: "x", PostgresDSN: "postgres://"}, want: File{}},
		{name: "postgres", cfg: config.TargetsConfig{PostgresDSN: "postgres://", RangeEnd: 9}, want: &Postgres{}},
		{name: "range", cfg: config.TargetsConfig{RangeStart: 1, RangeEnd: 9}, want: Range{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := FromConfig(tt.cfg, tt.ids)
			require.NoError(t, err)
			assert.IsType(t, tt.want, src)
		})
	}

	_, err := FromConfig(config.TargetsConfig{}, nil)
	assert.Equal(t, errs.ErrorTypeConfig, errs.TypeOf(err))
}

func TestPostgresQuery(t *testing.T) {
	p := &Postgres{Start: 100, End: 199}
	assert.Equal(t, `SELECT uid FROM "weibo_phone" WHERE uid BETWEEN $1 AND $2 LIMIT $3`, p.query())
	assert.EqualValues(t, 100, p.limit())

	p = &Postgres{Table: `users"; drop`, Limit: 5}
	assert.Equal(t, `SELECT uid FROM "users""; drop" WHERE uid BETWEEN $1 AND $2 LIMIT $3`, p.query())
	assert.EqualValues(t, 5, p.limit())
}

func TestPostgresInvalidDSN(t *testing.T) {
	_, err := (&Postgres{DSN: "::not a dsn::", End: 1}).Targets(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeConfig, errs.TypeOf(err))
}

func TestPostgresLive(t *testing.T) {
	dsn := os.Getenv("WEIBOCRAWL_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("WEIBOCRAWL_TEST_PG_DSN not set")
	}
	ids, err := (&Postgres{DSN: dsn, Start: 0, End: 1 << 40, Limit: 10}).Targets(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, len(ids), 10)
}

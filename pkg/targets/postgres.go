package targets

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	errs "weibocrawl/pkg/errors"
)

const defaultTable = "weibo_phone"

// Postgres selects uids in [Start, End] from Table
type Postgres struct {
	DSN   string
	Table string
	Start int64
	End   int64
	Limit int
	// ViaBouncer switches to the simple protocol for pgbouncer
	ViaBouncer bool
}

func (p *Postgres) query() string {
	table := p.Table
	if table == "" {
		table = defaultTable
	}
	return fmt.Sprintf("SELECT uid FROM %s WHERE uid BETWEEN $1 AND $2 LIMIT $3",
		pgx.Identifier{table}.Sanitize())
}

func (p *Postgres) limit() int64 {
	if p.Limit > 0 {
		return int64(p.Limit)
	}
	return int64(p.End - p.Start + 1)
}

func (p *Postgres) Targets(ctx context.Context) ([]string, error) {
	if p.End < p.Start {
		return nil, errs.New(errs.ErrorTypeSource, "uid range end precedes start")
	}

	cfg, err := pgxpool.ParseConfig(p.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, err, "invalid postgres dsn")
	}
	cfg.MaxConns = 2
	if p.ViaBouncer {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeSource, err, "postgres connect")
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, p.query(), p.Start, p.End, p.limit())
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeSource, err, "uid query")
	}
	uids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeSource, err, "uid scan")
	}

	ids := make([]string, len(uids))
	for i, uid := range uids {
		ids[i] = strconv.FormatInt(uid, 10)
	}
	return dedupe(ids), nil
}

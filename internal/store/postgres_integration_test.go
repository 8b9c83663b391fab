//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/suite"

	"github.com/JonMunkholm/shortages/internal/core"
	"github.com/JonMunkholm/shortages/internal/store"
	"github.com/JonMunkholm/shortages/internal/testutil/pgtest"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *pgtest.Container
	store *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = pgtest.Start(s.T())

	st, err := store.Open(context.Background(), store.Config{URL: s.pg.URL, MaxConns: 4})
	s.Require().NoError(err)
	s.store = st
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.pg.TruncateTables(context.Background(), "current_manufacturer_risk", "raw_ndc")
	s.Require().NoError(err)
}

func riskRows(names ...string) [][]any {
	rows := make([][]any, len(names))
	for i, name := range names {
		rows[i] = []any{name, int32(i + 1), int32(1)}
	}
	return rows
}

var riskColumns = []string{"company_name", "current_affected_packages", "current_affected_products"}

func (s *PostgresStoreSuite) TestPing() {
	s.Require().NoError(s.store.Ping(context.Background()))
}

func (s *PostgresStoreSuite) TestReplaceTable_IdempotentReload() {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n, err := s.store.ReplaceTable(ctx, "current_manufacturer_risk", riskColumns, riskRows("Acme", "Beta"))
		s.Require().NoError(err)
		s.Equal(int64(2), n)
	}

	count, err := s.store.CountRows(ctx, "current_manufacturer_risk")
	s.Require().NoError(err)
	s.Equal(int64(2), count)
}

func (s *PostgresStoreSuite) TestReplaceTable_FailureKeepsPreviousSnapshot() {
	ctx := context.Background()

	_, err := s.store.ReplaceTable(ctx, "current_manufacturer_risk", riskColumns, riskRows("Acme"))
	s.Require().NoError(err)

	// Duplicate primary key aborts the copy after the delete ran.
	_, err = s.store.ReplaceTable(ctx, "current_manufacturer_risk", riskColumns, riskRows("Beta", "Beta"))
	s.Require().Error(err)
	s.Equal("DB002", core.MapError(err).Code)

	var name string
	err = s.pg.Pool.QueryRow(ctx, "SELECT company_name FROM current_manufacturer_risk").Scan(&name)
	s.Require().NoError(err)
	s.Equal("Acme", name)
}

func (s *PostgresStoreSuite) TestReplaceTable_Nulls() {
	ctx := context.Background()
	cols := []string{"package_ndc", "product_ndc", "raw_product_ndc", "generic_name", "brand_name", "route", "product_type", "package_description"}
	rows := [][]any{{"214331", "21433", "0002-1433", pgtype.Text{}, core.ToPgText("Zorvex"), pgtype.Text{}, pgtype.Text{}, pgtype.Text{}}}

	n, err := s.store.ReplaceTable(ctx, "raw_ndc", cols, rows)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	var generic pgtype.Text
	err = s.pg.Pool.QueryRow(ctx, "SELECT generic_name FROM raw_ndc").Scan(&generic)
	s.Require().NoError(err)
	s.False(generic.Valid)
}

func (s *PostgresStoreSuite) TestReplaceTable_MissingTable() {
	_, err := s.store.ReplaceTable(context.Background(), "no_such_table", []string{"a"}, [][]any{{1}})
	s.Require().Error(err)
	s.Equal("DB008", core.MapError(err).Code)
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"plus-ev-alerts/internal/odds"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	tableEvaluatedLines = "evaluated_lines"
	tablePlusEV         = "plus_ev_bets"

	opportunityColumns = `id, sport, start_time, home_team, away_team, outcome, sportsbook,
        decimal_odds, avg_odds, best_odds_update_time, avg_odds_update_time,
        mean_implied_probability, best_implied_probability, predicted_probability,
        thresh, expected_value, kelly, half_kelly`

	opportunitySelect = `id, sport, start_time, home_team, away_team, outcome, sportsbook,
        decimal_odds::text, avg_odds::text, best_odds_update_time, avg_odds_update_time,
        mean_implied_probability, best_implied_probability, predicted_probability,
        thresh, expected_value, kelly, half_kelly`

	opportunityValues = `$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18`

	deleteQuotesForSportsSQL = `DELETE FROM quotes WHERE sport = ANY($1);`

	insertQuoteSQL = `INSERT INTO quotes (
        id, sport, home_team, away_team, start_time, sportsbook, outcome, decimal_odds, update_time
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`

	listQuotesSQL = `SELECT
        id::text, sport, home_team, away_team, start_time, sportsbook, outcome, decimal_odds::text, update_time
    FROM quotes
    ORDER BY start_time, sport, home_team, away_team, outcome, sportsbook;`

	listConsensusSQL = `SELECT
        id, sport, home_team, away_team, start_time, outcome, decimal_odds::text, update_time
    FROM consensus_quotes
    ORDER BY start_time, sport, home_team, away_team, outcome;`

	listConsensusSportsSQL = `SELECT DISTINCT sport FROM consensus_quotes ORDER BY sport;`

	listTeamNamesSQL = `SELECT sport, team_name FROM team_names ORDER BY sport, position;`

	upsertTeamNameSQL = `INSERT INTO team_names (sport, team_name) VALUES ($1, $2)
    ON CONFLICT (sport, team_name) DO NOTHING;`

	insertArchiveSQL = `INSERT INTO recommended_bets_archive (` + opportunityColumns + `, recommended_at)
    VALUES (` + opportunityValues + `, $19)
    ON CONFLICT (id) DO NOTHING;`

	loadArchiveSQL = `SELECT ` + opportunitySelect + `, recommended_at
    FROM recommended_bets_archive
    ORDER BY recommended_at, id;`

	listRecentArchiveSQL = `SELECT ` + opportunitySelect + `, recommended_at
    FROM recommended_bets_archive
    ORDER BY recommended_at DESC, id
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// QuoteStore persists the sportsbook feed.
type QuoteStore interface {
	ReplaceQuotes(ctx context.Context, sports []string, quotes []odds.Quote) error
	ListQuotes(ctx context.Context) ([]odds.Quote, error)
}

// ConsensusStore reads the consensus feed written by the external scraper.
type ConsensusStore interface {
	ListConsensus(ctx context.Context) ([]odds.ConsensusQuote, error)
	ListConsensusSports(ctx context.Context) ([]string, error)
}

// TeamStore reads and seeds canonical team names.
type TeamStore interface {
	ListTeamNames(ctx context.Context) ([]odds.TeamName, error)
	UpsertTeamNames(ctx context.Context, teams []odds.TeamName) (int, error)
}

// OutputStore holds the per-run output tables.
type OutputStore interface {
	ReplaceOutputs(ctx context.Context, lines, plusEV []odds.Opportunity) error
	ListEvaluatedLines(ctx context.Context) ([]odds.Opportunity, error)
	ListPlusEV(ctx context.Context) ([]odds.Opportunity, error)
}

// ArchiveStore remembers every opportunity ever recommended. Saves insert
// only ids not yet present and never update or delete rows.
type ArchiveStore interface {
	LoadArchive(ctx context.Context) ([]odds.Opportunity, error)
	SaveArchive(ctx context.Context, rows []odds.Opportunity, at time.Time) (int, error)
	ListRecentArchive(ctx context.Context, limit int) ([]RecommendedBet, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the PostgreSQL implementation of every store interface.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// the lock dies with the session; drop the connection so it is not reused
			_ = conn.Conn().Close(ctxUnlock)
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// ReplaceQuotes swaps the stored quotes of the given sports for quotes in one transaction.
func (s *Store) ReplaceQuotes(ctx context.Context, sports []string, quotes []odds.Quote) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, deleteQuotesForSportsSQL, sports); err != nil {
			return fmt.Errorf("delete quotes: %w", err)
		}
		batch := &pgx.Batch{}
		for _, q := range quotes {
			if q.ID == "" {
				q.ID = uuid.NewString()
			}
			batch.Queue(insertQuoteSQL,
				q.ID,
				q.Sport,
				q.HomeTeam,
				q.AwayTeam,
				q.StartTime,
				q.Sportsbook,
				q.Outcome,
				encodeOdds(q.DecimalOdds),
				q.UpdateTime,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert quotes: %w", err)
		}
		return nil
	})
}

// ListQuotes returns every stored sportsbook quote.
func (s *Store) ListQuotes(ctx context.Context) ([]odds.Quote, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listQuotesSQL)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	quotes := make([]odds.Quote, 0)
	for rows.Next() {
		var q odds.Quote
		var price string
		if err := rows.Scan(&q.ID, &q.Sport, &q.HomeTeam, &q.AwayTeam, &q.StartTime, &q.Sportsbook, &q.Outcome, &price, &q.UpdateTime); err != nil {
			return nil, err
		}
		if q.DecimalOdds, err = decodeOdds("decimal_odds", price); err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return quotes, nil
}

// ListConsensus returns every consensus quote.
func (s *Store) ListConsensus(ctx context.Context) ([]odds.ConsensusQuote, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listConsensusSQL)
	if err != nil {
		return nil, fmt.Errorf("list consensus: %w", err)
	}
	defer rows.Close()

	out := make([]odds.ConsensusQuote, 0)
	for rows.Next() {
		var c odds.ConsensusQuote
		var price string
		if err := rows.Scan(&c.ID, &c.Sport, &c.HomeTeam, &c.AwayTeam, &c.StartTime, &c.Outcome, &price, &c.UpdateTime); err != nil {
			return nil, err
		}
		if c.DecimalOdds, err = decodeOdds("decimal_odds", price); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ListConsensusSports returns the distinct sports present in the consensus feed.
func (s *Store) ListConsensusSports(ctx context.Context) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listConsensusSportsSQL)
	if err != nil {
		return nil, fmt.Errorf("list consensus sports: %w", err)
	}
	sports, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list consensus sports: %w", err)
	}
	return sports, nil
}

// ListTeamNames returns canonical names grouped by sport in insertion order.
func (s *Store) ListTeamNames(ctx context.Context) ([]odds.TeamName, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listTeamNamesSQL)
	if err != nil {
		return nil, fmt.Errorf("list team names: %w", err)
	}
	defer rows.Close()

	teams := make([]odds.TeamName, 0)
	for rows.Next() {
		var t odds.TeamName
		if err := rows.Scan(&t.Sport, &t.Name); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return teams, nil
}

// UpsertTeamNames adds canonical names not yet stored and reports how many were new.
func (s *Store) UpsertTeamNames(ctx context.Context, teams []odds.TeamName) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	inserted := 0
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, t := range teams {
			batch.Queue(upsertTeamNameSQL, t.Sport, t.Name)
		}
		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for range teams {
			tag, err := results.Exec()
			if err != nil {
				return fmt.Errorf("upsert team name: %w", err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	return inserted, err
}

// ReplaceOutputs rewrites the evaluated lines and plus-EV tables in one transaction.
func (s *Store) ReplaceOutputs(ctx context.Context, lines, plusEV []odds.Opportunity) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, table := range []string{tableEvaluatedLines, tablePlusEV} {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table+";"); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}

		batch := &pgx.Batch{}
		queueOpportunities(batch, insertOpportunitySQL(tableEvaluatedLines), lines)
		queueOpportunities(batch, insertOpportunitySQL(tablePlusEV), plusEV)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert outputs: %w", err)
		}
		return nil
	})
}

// ListEvaluatedLines returns the last run's evaluated lines.
func (s *Store) ListEvaluatedLines(ctx context.Context) ([]odds.Opportunity, error) {
	return s.listOpportunities(ctx, tableEvaluatedLines)
}

// ListPlusEV returns the last run's positive expected value lines.
func (s *Store) ListPlusEV(ctx context.Context) ([]odds.Opportunity, error) {
	return s.listOpportunities(ctx, tablePlusEV)
}

// LoadArchive returns every archived opportunity in first-recommended order.
func (s *Store) LoadArchive(ctx context.Context) ([]odds.Opportunity, error) {
	bets, err := s.queryArchive(ctx, loadArchiveSQL)
	if err != nil {
		return nil, err
	}
	out := make([]odds.Opportunity, len(bets))
	for i, b := range bets {
		out[i] = b.Opportunity
	}
	return out, nil
}

// SaveArchive inserts rows whose id is not yet archived and reports how many were new.
func (s *Store) SaveArchive(ctx context.Context, rows []odds.Opportunity, at time.Time) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	inserted := 0
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, o := range rows {
			batch.Queue(insertArchiveSQL, append(opportunityArgs(o), at)...)
		}
		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for range rows {
			tag, err := results.Exec()
			if err != nil {
				return fmt.Errorf("insert archive row: %w", err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	return inserted, err
}

// ListRecentArchive returns the most recently recommended bets.
func (s *Store) ListRecentArchive(ctx context.Context, limit int) ([]RecommendedBet, error) {
	return s.queryArchive(ctx, listRecentArchiveSQL, limit)
}

func (s *Store) queryArchive(ctx context.Context, query string, args ...any) ([]RecommendedBet, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	bets := make([]RecommendedBet, 0)
	for rows.Next() {
		var b RecommendedBet
		if err := scanOpportunity(rows, &b.Opportunity, &b.RecommendedAt); err != nil {
			return nil, err
		}
		bets = append(bets, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return bets, nil
}

func (s *Store) listOpportunities(ctx context.Context, table string) ([]odds.Opportunity, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, "SELECT "+opportunitySelect+" FROM "+table+" ORDER BY start_time, id;")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	out := make([]odds.Opportunity, 0)
	for rows.Next() {
		var o odds.Opportunity
		if err := scanOpportunity(rows, &o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func insertOpportunitySQL(table string) string {
	return "INSERT INTO " + table + " (" + opportunityColumns + ") VALUES (" + opportunityValues + ");"
}

func queueOpportunities(batch *pgx.Batch, query string, opps []odds.Opportunity) {
	for _, o := range opps {
		batch.Queue(query, opportunityArgs(o)...)
	}
}

func opportunityArgs(o odds.Opportunity) []any {
	return []any{
		o.ID,
		o.Sport,
		o.StartTime,
		o.HomeTeam,
		o.AwayTeam,
		o.Outcome,
		o.Sportsbook,
		encodeOdds(o.DecimalOdds),
		encodeOdds(o.AvgOdds),
		nullableTime(o.BestOddsUpdateTime),
		nullableTime(o.AvgOddsUpdateTime),
		o.MeanImpliedProbability,
		o.BestImpliedProbability,
		o.PredictedProbability,
		o.Thresh,
		o.ExpectedValue,
		o.Kelly,
		o.HalfKelly,
	}
}

func scanOpportunity(rows pgx.Rows, o *odds.Opportunity, extra ...any) error {
	var (
		price, avg  string
		bestUpdated *time.Time
		avgUpdated  *time.Time
	)
	dest := []any{
		&o.ID,
		&o.Sport,
		&o.StartTime,
		&o.HomeTeam,
		&o.AwayTeam,
		&o.Outcome,
		&o.Sportsbook,
		&price,
		&avg,
		&bestUpdated,
		&avgUpdated,
		&o.MeanImpliedProbability,
		&o.BestImpliedProbability,
		&o.PredictedProbability,
		&o.Thresh,
		&o.ExpectedValue,
		&o.Kelly,
		&o.HalfKelly,
	}
	if err := rows.Scan(append(dest, extra...)...); err != nil {
		return err
	}

	var err error
	if o.DecimalOdds, err = decodeOdds("decimal_odds", price); err != nil {
		return err
	}
	if o.AvgOdds, err = decodeOdds("avg_odds", avg); err != nil {
		return err
	}
	if bestUpdated != nil {
		o.BestOddsUpdateTime = *bestUpdated
	}
	if avgUpdated != nil {
		o.AvgOddsUpdateTime = *avgUpdated
	}
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

var (
	_ QuoteStore     = (*Store)(nil)
	_ ConsensusStore = (*Store)(nil)
	_ TeamStore      = (*Store)(nil)
	_ OutputStore    = (*Store)(nil)
	_ ArchiveStore   = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/grants-cli/internal/db"
	"github.com/sells-group/grants-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. The caller keeps ownership of it.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migrate(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Tx(ctx context.Context, fn func(w Writer) error) error {
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgWriter{q: tx})
	})
}

func (s *PostgresStore) CountOpportunities(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM opportunities`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count opportunities")
	}
	return n, nil
}

func (s *PostgresStore) RecentChanges(ctx context.Context, since time.Time, limit int) ([]model.RecentChange, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.change_type, c.change_date, c.source, o.title, o.agency_name
		FROM opportunity_changes c
		JOIN opportunities o ON o.id = c.opportunity_id
		WHERE c.change_date >= $1
		ORDER BY c.change_date DESC
		LIMIT $2`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent changes")
	}
	defer rows.Close()

	var out []model.RecentChange
	for rows.Next() {
		var rc model.RecentChange
		var changeType string
		if err := rows.Scan(&changeType, &rc.ChangeDate, &rc.Source, &rc.Title, &rc.AgencyName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan recent change")
		}
		rc.ChangeType = model.ChangeType(changeType)
		out = append(out, rc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate recent changes")
}

func (s *PostgresStore) ListOpportunities(ctx context.Context, filter ListFilter) ([]model.Opportunity, int, error) {
	where, args := listWhere(filter, postgresDialect)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM opportunities`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count filtered opportunities")
	}

	limit, pageArgs := limitClause(filter, postgresDialect, args)
	rows, err := s.pool.Query(ctx, `SELECT `+opportunityColumns+` FROM opportunities`+where+listOrder+limit, pageArgs...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list opportunities")
	}
	defer rows.Close()

	opps := []model.Opportunity{}
	for rows.Next() {
		opp, err := scanPgOpportunity(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "postgres: scan opportunity")
		}
		opps = append(opps, *opp)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: iterate opportunities")
	}
	return opps, total, nil
}

func (s *PostgresStore) GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error) {
	opp, err := scanPgOpportunity(s.pool.QueryRow(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get opportunity %s", id)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, opportunity_id, contact_name, contact_email, contact_phone, contact_text, additional_info_url, created_at
		FROM opportunity_contacts WHERE opportunity_id = $1 ORDER BY created_at`,
		id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get contacts %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var c model.OpportunityContact
		if err := rows.Scan(&c.ID, &c.OpportunityID, &c.Name, &c.Email, &c.Phone, &c.Text, &c.URL, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		opp.Contacts = append(opp.Contacts, c)
	}
	return opp, eris.Wrap(rows.Err(), "postgres: iterate contacts")
}

// pgWriter runs Writer operations on a pgx transaction.
type pgWriter struct {
	q db.Querier
}

func (w *pgWriter) FindByOpportunityID(ctx context.Context, opportunityID string) (*model.Opportunity, error) {
	opp, err := scanPgOpportunity(w.q.QueryRow(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities WHERE opportunity_id = $1`, opportunityID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find opportunity %s", opportunityID)
	}
	return opp, nil
}

func (w *pgWriter) InsertOpportunity(ctx context.Context, opp *model.Opportunity) error {
	prepareInsert(opp)
	_, err := w.q.Exec(ctx,
		`INSERT INTO opportunities (`+opportunityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`,
		opp.ID, opp.OpportunityID, opp.OpportunityNumber, opp.Title, opp.Description, opp.AgencyCode, opp.AgencyName,
		opp.PostDate, opp.CloseDate, opp.ArchiveDate, opp.LastUpdatedDate,
		opp.EstimatedTotalFunding, opp.AwardCeiling, opp.AwardFloor, opp.ExpectedNumberOfAwards, opp.CostSharingRequired,
		opp.OpportunityCategory, opp.FundingInstrumentType, opp.CategoryOfFundingActivity, cfdaOrEmpty(opp.CFDANumbers),
		opp.EligibleApplicants, opp.AdditionalEligibilityInfo, opp.Version, string(opp.Status), opp.CreatedAt, opp.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert opportunity %s", opp.OpportunityID)
}

func (w *pgWriter) UpdateOpportunity(ctx context.Context, opp *model.Opportunity) error {
	opp.UpdatedAt = time.Now().UTC()
	if opp.Status == "" {
		opp.Status = model.StatusActive
	}
	tag, err := w.q.Exec(ctx,
		`UPDATE opportunities SET
			opportunity_number = $2, title = $3, description = $4, agency_code = $5, agency_name = $6,
			post_date = $7, close_date = $8, archive_date = $9, last_updated_date = $10,
			estimated_total_funding = $11, award_ceiling = $12, award_floor = $13,
			expected_number_of_awards = $14, cost_sharing_required = $15,
			opportunity_category = $16, funding_instrument_type = $17, category_of_funding_activity = $18,
			cfda_numbers = $19, eligible_applicants = $20, additional_eligibility_info = $21,
			version = $22, status = $23, updated_at = $24
		WHERE id = $1`,
		opp.ID, opp.OpportunityNumber, opp.Title, opp.Description, opp.AgencyCode, opp.AgencyName,
		opp.PostDate, opp.CloseDate, opp.ArchiveDate, opp.LastUpdatedDate,
		opp.EstimatedTotalFunding, opp.AwardCeiling, opp.AwardFloor,
		opp.ExpectedNumberOfAwards, opp.CostSharingRequired,
		opp.OpportunityCategory, opp.FundingInstrumentType, opp.CategoryOfFundingActivity,
		cfdaOrEmpty(opp.CFDANumbers), opp.EligibleApplicants, opp.AdditionalEligibilityInfo,
		opp.Version, string(opp.Status), opp.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update opportunity %s", opp.OpportunityID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("opportunity not found: %s", opp.ID)
	}
	return nil
}

func (w *pgWriter) DeleteContacts(ctx context.Context, opportunityID string) error {
	_, err := w.q.Exec(ctx, `DELETE FROM opportunity_contacts WHERE opportunity_id = $1`, opportunityID)
	return eris.Wrapf(err, "postgres: delete contacts %s", opportunityID)
}

func (w *pgWriter) InsertContact(ctx context.Context, c *model.OpportunityContact) error {
	prepareContact(c)
	_, err := w.q.Exec(ctx,
		`INSERT INTO opportunity_contacts (id, opportunity_id, contact_name, contact_email, contact_phone, contact_text, additional_info_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.OpportunityID, c.Name, c.Email, c.Phone, c.Text, c.URL, c.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert contact %s", c.OpportunityID)
}

func (w *pgWriter) InsertChange(ctx context.Context, c *model.OpportunityChange) error {
	prepareChange(c)
	_, err := w.q.Exec(ctx,
		`INSERT INTO opportunity_changes (id, opportunity_id, change_type, change_date, source, details)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.OpportunityID, string(c.ChangeType), c.ChangeDate, c.Source, c.Details,
	)
	return eris.Wrapf(err, "postgres: insert change %s", c.OpportunityID)
}

func scanPgOpportunity(row pgx.Row) (*model.Opportunity, error) {
	var o model.Opportunity
	var status string
	err := row.Scan(
		&o.ID, &o.OpportunityID, &o.OpportunityNumber, &o.Title, &o.Description, &o.AgencyCode, &o.AgencyName,
		&o.PostDate, &o.CloseDate, &o.ArchiveDate, &o.LastUpdatedDate,
		&o.EstimatedTotalFunding, &o.AwardCeiling, &o.AwardFloor, &o.ExpectedNumberOfAwards, &o.CostSharingRequired,
		&o.OpportunityCategory, &o.FundingInstrumentType, &o.CategoryOfFundingActivity, &o.CFDANumbers,
		&o.EligibleApplicants, &o.AdditionalEligibilityInfo, &o.Version, &status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = model.OpportunityStatus(status)
	return &o, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/grants-cli/internal/model"
)

// sqliteTimeLayout is fixed-width UTC so text comparison orders correctly.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// Write transactions take the database lock up front so that concurrent
// writers wait on busy_timeout instead of failing mid-transaction.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	inMemory := dsn == "" || strings.Contains(dsn, ":memory:")
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", withSQLiteParams(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if inMemory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// withSQLiteParams adds the per-connection pragmas to the DSN.
func withSQLiteParams(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS opportunities (
	id                           TEXT PRIMARY KEY,
	opportunity_id               TEXT NOT NULL UNIQUE,
	opportunity_number           TEXT,
	title                        TEXT NOT NULL,
	description                  TEXT,
	agency_code                  TEXT,
	agency_name                  TEXT,
	post_date                    TEXT,
	close_date                   TEXT,
	archive_date                 TEXT,
	last_updated_date            TEXT,
	estimated_total_funding      INTEGER,
	award_ceiling                INTEGER,
	award_floor                  INTEGER,
	expected_number_of_awards    INTEGER,
	cost_sharing_required        INTEGER,
	opportunity_category         TEXT,
	funding_instrument_type      TEXT,
	category_of_funding_activity TEXT,
	cfda_numbers                 TEXT NOT NULL DEFAULT '[]',
	eligible_applicants          TEXT,
	additional_eligibility_info  TEXT,
	version                      TEXT,
	status                       TEXT NOT NULL DEFAULT 'active',
	created_at                   TEXT NOT NULL,
	updated_at                   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS opportunity_contacts (
	id                  TEXT PRIMARY KEY,
	opportunity_id      TEXT NOT NULL REFERENCES opportunities(id) ON DELETE CASCADE,
	contact_name        TEXT,
	contact_email       TEXT,
	contact_phone       TEXT,
	contact_text        TEXT,
	additional_info_url TEXT,
	created_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS opportunity_changes (
	id             TEXT PRIMARY KEY,
	opportunity_id TEXT NOT NULL REFERENCES opportunities(id) ON DELETE CASCADE,
	change_type    TEXT NOT NULL,
	change_date    TEXT NOT NULL,
	source         TEXT NOT NULL,
	details        TEXT
);

CREATE INDEX IF NOT EXISTS idx_opportunities_agency_code ON opportunities(agency_code);
CREATE INDEX IF NOT EXISTS idx_opportunities_close_date ON opportunities(close_date);
CREATE INDEX IF NOT EXISTS idx_opportunities_status ON opportunities(status);
CREATE INDEX IF NOT EXISTS idx_opportunity_contacts_opportunity_id ON opportunity_contacts(opportunity_id);
CREATE INDEX IF NOT EXISTS idx_opportunity_changes_opportunity_id ON opportunity_changes(opportunity_id);
CREATE INDEX IF NOT EXISTS idx_opportunity_changes_change_date ON opportunity_changes(change_date);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Tx(ctx context.Context, fn func(w Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			zap.L().Warn("sqlite: rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(&sqliteWriter{tx: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

func (s *SQLiteStore) CountOpportunities(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM opportunities`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count opportunities")
	}
	return n, nil
}

func (s *SQLiteStore) RecentChanges(ctx context.Context, since time.Time, limit int) ([]model.RecentChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.change_type, c.change_date, c.source, o.title, o.agency_name
		FROM opportunity_changes c
		JOIN opportunities o ON o.id = c.opportunity_id
		WHERE c.change_date >= ?
		ORDER BY c.change_date DESC
		LIMIT ?`,
		formatSQLiteTime(since), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent changes")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RecentChange
	for rows.Next() {
		var rc model.RecentChange
		var changeType, changeDate string
		var agency sql.NullString
		if err := rows.Scan(&changeType, &changeDate, &rc.Source, &rc.Title, &agency); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan recent change")
		}
		rc.ChangeType = model.ChangeType(changeType)
		if rc.ChangeDate, err = parseSQLiteTime(changeDate); err != nil {
			return nil, err
		}
		rc.AgencyName = nullString(agency)
		out = append(out, rc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate recent changes")
}

func (s *SQLiteStore) ListOpportunities(ctx context.Context, filter ListFilter) ([]model.Opportunity, int, error) {
	where, args := listWhere(filter, sqliteDialect)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM opportunities`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count filtered opportunities")
	}

	limit, pageArgs := limitClause(filter, sqliteDialect, args)
	rows, err := s.db.QueryContext(ctx, `SELECT `+opportunityColumns+` FROM opportunities`+where+listOrder+limit, pageArgs...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list opportunities")
	}
	defer rows.Close() //nolint:errcheck

	opps := []model.Opportunity{}
	for rows.Next() {
		opp, err := scanSQLiteOpportunity(rows)
		if err != nil {
			return nil, 0, err
		}
		opps = append(opps, *opp)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: iterate opportunities")
	}
	return opps, total, nil
}

func (s *SQLiteStore) GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error) {
	opp, err := scanSQLiteOpportunity(s.db.QueryRowContext(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get opportunity %s", id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, opportunity_id, contact_name, contact_email, contact_phone, contact_text, additional_info_url, created_at
		FROM opportunity_contacts WHERE opportunity_id = ? ORDER BY created_at`,
		id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get contacts %s", id)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var c model.OpportunityContact
		var name, email, phone, text, url sql.NullString
		var created string
		if err := rows.Scan(&c.ID, &c.OpportunityID, &name, &email, &phone, &text, &url, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact")
		}
		c.Name, c.Email, c.Phone, c.Text, c.URL = nullString(name), nullString(email), nullString(phone), nullString(text), nullString(url)
		if c.CreatedAt, err = parseSQLiteTime(created); err != nil {
			return nil, err
		}
		opp.Contacts = append(opp.Contacts, c)
	}
	return opp, eris.Wrap(rows.Err(), "sqlite: iterate contacts")
}

// sqliteWriter runs Writer operations on a database/sql transaction.
type sqliteWriter struct {
	tx *sql.Tx
}

func (w *sqliteWriter) FindByOpportunityID(ctx context.Context, opportunityID string) (*model.Opportunity, error) {
	opp, err := scanSQLiteOpportunity(w.tx.QueryRowContext(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities WHERE opportunity_id = ?`, opportunityID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find opportunity %s", opportunityID)
	}
	return opp, nil
}

func (w *sqliteWriter) InsertOpportunity(ctx context.Context, opp *model.Opportunity) error {
	prepareInsert(opp)
	cfda, err := json.Marshal(cfdaOrEmpty(opp.CFDANumbers))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cfda numbers")
	}
	_, err = w.tx.ExecContext(ctx,
		`INSERT INTO opportunities (`+opportunityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		opp.ID, opp.OpportunityID, opp.OpportunityNumber, opp.Title, opp.Description, opp.AgencyCode, opp.AgencyName,
		timeArg(opp.PostDate), timeArg(opp.CloseDate), timeArg(opp.ArchiveDate), timeArg(opp.LastUpdatedDate),
		opp.EstimatedTotalFunding, opp.AwardCeiling, opp.AwardFloor, opp.ExpectedNumberOfAwards, opp.CostSharingRequired,
		opp.OpportunityCategory, opp.FundingInstrumentType, opp.CategoryOfFundingActivity, string(cfda),
		opp.EligibleApplicants, opp.AdditionalEligibilityInfo, opp.Version, string(opp.Status),
		formatSQLiteTime(opp.CreatedAt), formatSQLiteTime(opp.UpdatedAt),
	)
	return eris.Wrapf(err, "sqlite: insert opportunity %s", opp.OpportunityID)
}

func (w *sqliteWriter) UpdateOpportunity(ctx context.Context, opp *model.Opportunity) error {
	opp.UpdatedAt = time.Now().UTC()
	if opp.Status == "" {
		opp.Status = model.StatusActive
	}
	cfda, err := json.Marshal(cfdaOrEmpty(opp.CFDANumbers))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cfda numbers")
	}
	res, err := w.tx.ExecContext(ctx,
		`UPDATE opportunities SET
			opportunity_number = ?, title = ?, description = ?, agency_code = ?, agency_name = ?,
			post_date = ?, close_date = ?, archive_date = ?, last_updated_date = ?,
			estimated_total_funding = ?, award_ceiling = ?, award_floor = ?,
			expected_number_of_awards = ?, cost_sharing_required = ?,
			opportunity_category = ?, funding_instrument_type = ?, category_of_funding_activity = ?,
			cfda_numbers = ?, eligible_applicants = ?, additional_eligibility_info = ?,
			version = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		opp.OpportunityNumber, opp.Title, opp.Description, opp.AgencyCode, opp.AgencyName,
		timeArg(opp.PostDate), timeArg(opp.CloseDate), timeArg(opp.ArchiveDate), timeArg(opp.LastUpdatedDate),
		opp.EstimatedTotalFunding, opp.AwardCeiling, opp.AwardFloor,
		opp.ExpectedNumberOfAwards, opp.CostSharingRequired,
		opp.OpportunityCategory, opp.FundingInstrumentType, opp.CategoryOfFundingActivity,
		string(cfda), opp.EligibleApplicants, opp.AdditionalEligibilityInfo,
		opp.Version, string(opp.Status), formatSQLiteTime(opp.UpdatedAt),
		opp.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update opportunity %s", opp.OpportunityID)
	}
	return checkRowsAffected(res, "opportunity", opp.ID)
}

func (w *sqliteWriter) DeleteContacts(ctx context.Context, opportunityID string) error {
	_, err := w.tx.ExecContext(ctx, `DELETE FROM opportunity_contacts WHERE opportunity_id = ?`, opportunityID)
	return eris.Wrapf(err, "sqlite: delete contacts %s", opportunityID)
}

func (w *sqliteWriter) InsertContact(ctx context.Context, c *model.OpportunityContact) error {
	prepareContact(c)
	_, err := w.tx.ExecContext(ctx,
		`INSERT INTO opportunity_contacts (id, opportunity_id, contact_name, contact_email, contact_phone, contact_text, additional_info_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OpportunityID, c.Name, c.Email, c.Phone, c.Text, c.URL, formatSQLiteTime(c.CreatedAt),
	)
	return eris.Wrapf(err, "sqlite: insert contact %s", c.OpportunityID)
}

func (w *sqliteWriter) InsertChange(ctx context.Context, c *model.OpportunityChange) error {
	prepareChange(c)
	_, err := w.tx.ExecContext(ctx,
		`INSERT INTO opportunity_changes (id, opportunity_id, change_type, change_date, source, details)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.OpportunityID, string(c.ChangeType), formatSQLiteTime(c.ChangeDate), c.Source, c.Details,
	)
	return eris.Wrapf(err, "sqlite: insert change %s", c.OpportunityID)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteOpportunity(row scannable) (*model.Opportunity, error) {
	var (
		o                                         model.Opportunity
		number, desc, agencyCode, agencyName      sql.NullString
		postDate, closeDate, archiveDate, lastUpd sql.NullString
		estimated, ceiling, floor, awards         sql.NullInt64
		costSharing                               sql.NullBool
		category, instrument, activity            sql.NullString
		cfda                                      string
		eligible, additional, version             sql.NullString
		status, created, updated                  string
	)
	err := row.Scan(
		&o.ID, &o.OpportunityID, &number, &o.Title, &desc, &agencyCode, &agencyName,
		&postDate, &closeDate, &archiveDate, &lastUpd,
		&estimated, &ceiling, &floor, &awards, &costSharing,
		&category, &instrument, &activity, &cfda,
		&eligible, &additional, &version, &status, &created, &updated,
	)
	if err != nil {
		return nil, err
	}

	o.OpportunityNumber = nullString(number)
	o.Description = nullString(desc)
	o.AgencyCode = nullString(agencyCode)
	o.AgencyName = nullString(agencyName)
	o.OpportunityCategory = nullString(category)
	o.FundingInstrumentType = nullString(instrument)
	o.CategoryOfFundingActivity = nullString(activity)
	o.EligibleApplicants = nullString(eligible)
	o.AdditionalEligibilityInfo = nullString(additional)
	o.Version = nullString(version)
	o.Status = model.OpportunityStatus(status)

	o.EstimatedTotalFunding = nullInt64(estimated)
	o.AwardCeiling = nullInt64(ceiling)
	o.AwardFloor = nullInt64(floor)
	if awards.Valid {
		n := int(awards.Int64)
		o.ExpectedNumberOfAwards = &n
	}
	if costSharing.Valid {
		b := costSharing.Bool
		o.CostSharingRequired = &b
	}

	for _, f := range []struct {
		src sql.NullString
		dst **time.Time
	}{
		{postDate, &o.PostDate},
		{closeDate, &o.CloseDate},
		{archiveDate, &o.ArchiveDate},
		{lastUpd, &o.LastUpdatedDate},
	} {
		if !f.src.Valid {
			continue
		}
		t, err := parseSQLiteTime(f.src.String)
		if err != nil {
			return nil, err
		}
		*f.dst = &t
	}

	if err := json.Unmarshal([]byte(cfda), &o.CFDANumbers); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cfda numbers")
	}
	if len(o.CFDANumbers) == 0 {
		o.CFDANumbers = nil
	}
	if o.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = parseSQLiteTime(updated); err != nil {
		return nil, err
	}
	return &o, nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t.UTC(), nil
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatSQLiteTime(*t)
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

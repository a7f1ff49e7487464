package series

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/aouyang1/go-moodarima/timedataset"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite" // pure Go sqlite driver
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"

	DefaultTable = "mood_observations"
)

var tableRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLProvider reads patient series from a table with patient_id, ts, mood and next_mood columns
type SQLProvider struct {
	DB    *sql.DB
	Table string
}

// OpenSQL opens a sqlite or mysql database. MySQL DSNs are parsed and forced to parse DATETIME
// columns into time values.
func OpenSQL(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverSQLite:
	case DriverMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("unable to parse mysql dsn, %w", err)
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		dsn = cfg.FormatDSN()
	default:
		return nil, fmt.Errorf("%q, %w", driver, ErrUnknownDriver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s database, %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite serializes writers and an in memory database lives on a single connection
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping %s database, %w", driver, err)
	}
	return db, nil
}

// NewSQLProvider validates the table name and returns a provider reading from it
func NewSQLProvider(db *sql.DB, table string) (*SQLProvider, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableRe.MatchString(table) {
		return nil, fmt.Errorf("%q, %w", table, ErrInvalidTable)
	}
	return &SQLProvider{DB: db, Table: table}, nil
}

// CreateSchema creates the observation table if it does not exist
func (p *SQLProvider) CreateSchema(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			patient_id INTEGER NOT NULL,
			ts         TIMESTAMP NOT NULL,
			mood       DOUBLE PRECISION,
			next_mood  DOUBLE PRECISION,
			PRIMARY KEY (patient_id, ts)
		)`, p.Table),
	)
	if err != nil {
		return fmt.Errorf("unable to create table %s, %w", p.Table, err)
	}
	return nil
}

// Insert writes a patient series in a single transaction. Missing values are stored as NULL.
func (p *SQLProvider) Insert(ctx context.Context, patient int, ds *timedataset.MoodDataset) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to begin transaction, %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (patient_id, ts, mood, next_mood) VALUES (?, ?, ?, ?)`, p.Table,
	))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("unable to prepare insert, %w", err)
	}
	defer stmt.Close()

	for i := 0; i < ds.Len(); i++ {
		if _, err := stmt.ExecContext(ctx, patient, ds.T[i].UTC(), nullable(ds.Mood[i]), nullable(ds.NextMood[i])); err != nil {
			tx.Rollback()
			return fmt.Errorf("unable to insert patient %s row %d, %w", PatientID(patient), i, err)
		}
	}
	return tx.Commit()
}

// Load implements Provider. A patient without rows is ErrDataUnavailable; query failures are
// returned as is since they are not specific to the patient.
func (p *SQLProvider) Load(ctx context.Context, patient int) (*timedataset.MoodDataset, error) {
	rows, err := p.DB.QueryContext(ctx, fmt.Sprintf(
		`SELECT ts, mood, next_mood FROM %s WHERE patient_id = ? ORDER BY ts`, p.Table,
	), patient)
	if err != nil {
		return nil, fmt.Errorf("unable to query patient %s, %w", PatientID(patient), err)
	}
	defer rows.Close()

	var (
		t        []time.Time
		mood     []float64
		nextMood []float64
	)
	for rows.Next() {
		var (
			ts   any
			m, n sql.NullFloat64
		)
		if err := rows.Scan(&ts, &m, &n); err != nil {
			return nil, fmt.Errorf("unable to scan patient %s, %w", PatientID(patient), err)
		}
		tv, err := timeValue(ts)
		if err != nil {
			return nil, unavailable(patient, err)
		}
		t = append(t, tv)
		mood = append(mood, nullFloat(m))
		nextMood = append(nextMood, nullFloat(n))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to read patient %s, %w", PatientID(patient), err)
	}
	if len(t) == 0 {
		return nil, unavailable(patient, sql.ErrNoRows)
	}

	ds, err := timedataset.NewMoodDataset(t, mood, nextMood)
	if err != nil {
		return nil, unavailable(patient, err)
	}
	return ds, nil
}

// Patients lists the distinct patient ids stored in the table in ascending order
func (p *SQLProvider) Patients(ctx context.Context) ([]int, error) {
	rows, err := p.DB.QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT patient_id FROM %s ORDER BY patient_id`, p.Table))
	if err != nil {
		return nil, fmt.Errorf("unable to list patients, %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("unable to scan patient id, %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func timeValue(v any) (time.Time, error) {
	switch tv := v.(type) {
	case time.Time:
		return tv.UTC(), nil
	case string:
		return parseTime(tv)
	case []byte:
		return parseTime(string(tv))
	case int64:
		return time.Unix(tv, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%T, %w", v, ErrInvalidTime)
	}
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nullFloat(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/biosync/biosync/internal/errors"
	"github.com/biosync/biosync/internal/logging"
	"github.com/biosync/biosync/internal/models"
	_ "modernc.org/sqlite"
)

// DefaultBatchSize bounds how many rows a single upsert statement carries.
const DefaultBatchSize = 50

// SQLiteStore persists the resource tables and the credential settings in a
// single SQLite database with WAL mode. It is safe for concurrent use.
type SQLiteStore struct {
	mu       sync.Mutex
	db       *sql.DB
	logger   *logging.Logger
	settings SettingsStore

	batchSize int

	// Retention cleanup for intraday sample tables
	cleanupTicker *time.Ticker
	cleanupDone   chan struct{}
	retentionDays int
}

// NewSQLiteStore creates a store with the default batch size and a 365 day
// retention window for intraday samples.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithOptions(dbPath, DefaultBatchSize, 365)
}

// NewSQLiteStoreWithOptions creates a store with explicit batch size and
// retention. retentionDays <= 0 disables cleanup.
func NewSQLiteStoreWithOptions(dbPath string, batchSize, retentionDays int) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &errors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	settingsStore, err := NewSQLiteSettingsStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	store := &SQLiteStore{
		db:            db,
		logger:        logging.NewLogger(),
		settings:      settingsStore,
		batchSize:     batchSize,
		cleanupDone:   make(chan struct{}),
		retentionDays: retentionDays,
	}

	if retentionDays > 0 {
		store.startCleanup()
	}

	return store, nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create migrations table", Err: err}
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "get current migration version", Err: err}
	}

	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS heart_rate_samples (
					ts INTEGER PRIMARY KEY,
					bpm INTEGER NOT NULL
				);

				CREATE TABLE IF NOT EXISTS stress_samples (
					ts INTEGER PRIMARY KEY,
					level INTEGER NOT NULL
				);

				CREATE TABLE IF NOT EXISTS body_battery_samples (
					ts INTEGER PRIMARY KEY,
					level INTEGER NOT NULL,
					charged INTEGER NOT NULL DEFAULT 0,
					drained INTEGER NOT NULL DEFAULT 0
				);

				CREATE TABLE IF NOT EXISTS spo2_samples (
					ts INTEGER PRIMARY KEY,
					percent REAL NOT NULL
				);

				CREATE TABLE IF NOT EXISTS respiration_samples (
					ts INTEGER PRIMARY KEY,
					breaths_per_minute REAL NOT NULL
				);

				CREATE TABLE IF NOT EXISTS sleep_sessions (
					date TEXT PRIMARY KEY,
					start_time INTEGER NOT NULL,
					end_time INTEGER NOT NULL,
					deep_minutes INTEGER NOT NULL DEFAULT 0,
					light_minutes INTEGER NOT NULL DEFAULT 0,
					rem_minutes INTEGER NOT NULL DEFAULT 0,
					awake_minutes INTEGER NOT NULL DEFAULT 0,
					score INTEGER NOT NULL DEFAULT 0
				);

				CREATE TABLE IF NOT EXISTS hrv_summaries (
					date TEXT PRIMARY KEY,
					weekly_avg REAL NOT NULL DEFAULT 0,
					last_night_avg REAL NOT NULL DEFAULT 0,
					last_night_5min_high REAL NOT NULL DEFAULT 0,
					status TEXT NOT NULL DEFAULT ''
				);

				CREATE TABLE IF NOT EXISTS cycle_days (
					date TEXT PRIMARY KEY,
					cycle_day INTEGER NOT NULL DEFAULT 0,
					phase TEXT NOT NULL DEFAULT ''
				);

				CREATE TABLE IF NOT EXISTS daily_summaries (
					date TEXT PRIMARY KEY,
					resting_heart_rate INTEGER NOT NULL DEFAULT 0,
					avg_heart_rate INTEGER NOT NULL DEFAULT 0,
					max_heart_rate INTEGER NOT NULL DEFAULT 0,
					min_heart_rate INTEGER NOT NULL DEFAULT 0,
					avg_stress INTEGER NOT NULL DEFAULT 0,
					max_stress INTEGER NOT NULL DEFAULT 0,
					battery_charged INTEGER NOT NULL DEFAULT 0,
					battery_drained INTEGER NOT NULL DEFAULT 0,
					sleep_score INTEGER NOT NULL DEFAULT 0,
					sleep_minutes INTEGER NOT NULL DEFAULT 0,
					avg_spo2 REAL NOT NULL DEFAULT 0,
					avg_respiration REAL NOT NULL DEFAULT 0,
					cycle_day INTEGER NOT NULL DEFAULT 0,
					cycle_phase TEXT NOT NULL DEFAULT ''
				);
			`,
		},
		{
			version: 2,
			up: `
				CREATE INDEX IF NOT EXISTS idx_sleep_sessions_start ON sleep_sessions(start_time);
				CREATE INDEX IF NOT EXISTS idx_daily_summaries_score ON daily_summaries(sleep_score);
			`,
		},
	}

	tx, err := db.Begin()
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, m := range migrations {
		if m.version > currentVersion {
			if _, err := tx.Exec(m.up); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "commit migrations", Err: err}
	}

	return nil
}

func (s *SQLiteStore) startCleanup() {
	s.cleanupTicker = time.NewTicker(time.Hour)
	go func() {
		for {
			select {
			case <-s.cleanupTicker.C:
				s.cleanupOldSamples()
			case <-s.cleanupDone:
				return
			}
		}
	}()
}

func (s *SQLiteStore) cleanupOldSamples() {
	if s.retentionDays <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays).Unix()

	for _, table := range []string{"heart_rate_samples", "stress_samples", "body_battery_samples", "spo2_samples", "respiration_samples"} {
		if _, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE ts < ?", table), cutoff); err != nil {
			s.logger.Error("retention cleanup failed", "table", table, "error", err.Error())
		}
	}
}

// Close gracefully shuts down the store
func (s *SQLiteStore) Close() error {
	if s.cleanupTicker != nil {
		s.cleanupTicker.Stop()
		close(s.cleanupDone)
	}

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Settings returns the key/value settings store.
func (s *SQLiteStore) Settings() SettingsStore {
	return s.settings
}

// Sample upserts. Each call chunks its rows so no single statement exceeds
// the batch size.

// UpsertHeartRateSamples writes heart rate samples keyed by timestamp.
func (s *SQLiteStore) UpsertHeartRateSamples(samples []models.HeartRateSample) (int, error) {
	rows := make([][]interface{}, 0, len(samples))
	for _, sample := range samples {
		rows = append(rows, []interface{}{sample.Timestamp.Unix(), sample.BPM})
	}
	return s.upsertBatched("heart_rate_samples", []string{"ts", "bpm"}, rows)
}

// UpsertStressSamples writes stress samples keyed by timestamp.
func (s *SQLiteStore) UpsertStressSamples(samples []models.StressSample) (int, error) {
	rows := make([][]interface{}, 0, len(samples))
	for _, sample := range samples {
		rows = append(rows, []interface{}{sample.Timestamp.Unix(), sample.Level})
	}
	return s.upsertBatched("stress_samples", []string{"ts", "level"}, rows)
}

// UpsertBodyBatterySamples writes energy level samples keyed by timestamp.
func (s *SQLiteStore) UpsertBodyBatterySamples(samples []models.BodyBatterySample) (int, error) {
	rows := make([][]interface{}, 0, len(samples))
	for _, sample := range samples {
		rows = append(rows, []interface{}{sample.Timestamp.Unix(), sample.Level, sample.Charged, sample.Drained})
	}
	return s.upsertBatched("body_battery_samples", []string{"ts", "level", "charged", "drained"}, rows)
}

// UpsertSpO2Samples writes pulse-ox samples keyed by timestamp.
func (s *SQLiteStore) UpsertSpO2Samples(samples []models.SpO2Sample) (int, error) {
	rows := make([][]interface{}, 0, len(samples))
	for _, sample := range samples {
		rows = append(rows, []interface{}{sample.Timestamp.Unix(), sample.Percent})
	}
	return s.upsertBatched("spo2_samples", []string{"ts", "percent"}, rows)
}

// UpsertRespirationSamples writes respiration samples keyed by timestamp.
func (s *SQLiteStore) UpsertRespirationSamples(samples []models.RespirationSample) (int, error) {
	rows := make([][]interface{}, 0, len(samples))
	for _, sample := range samples {
		rows = append(rows, []interface{}{sample.Timestamp.Unix(), sample.BreathsPerMinute})
	}
	return s.upsertBatched("respiration_samples", []string{"ts", "breaths_per_minute"}, rows)
}

// upsertBatched executes chunked multi-row INSERT ... ON CONFLICT DO UPDATE
// statements. The first column is the unique key.
func (s *SQLiteStore) upsertBatched(table string, columns []string, rows [][]interface{}) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updates := make([]string, 0, len(columns)-1)
	for _, col := range columns[1:] {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"

	written := 0
	for start := 0; start < len(rows); start += s.batchSize {
		end := start + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		placeholders := make([]string, len(chunk))
		args := make([]interface{}, 0, len(chunk)*len(columns))
		for i, row := range chunk {
			placeholders[i] = placeholder
			args = append(args, row...)
		}

		query := fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES %s ON CONFLICT(%s) DO UPDATE SET %s",
			table,
			strings.Join(columns, ", "),
			strings.Join(placeholders, ", "),
			columns[0],
			strings.Join(updates, ", "),
		)

		if _, err := s.db.Exec(query, args...); err != nil {
			return written, &errors.ErrDatabaseQuery{Operation: "upsert " + table, Err: err}
		}
		written += len(chunk)
	}

	return written, nil
}

// Daily upserts, one row per calendar date.

// UpsertSleepSession writes the nightly sleep record for a date.
func (s *SQLiteStore) UpsertSleepSession(session *models.SleepSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO sleep_sessions (date, start_time, end_time, deep_minutes, light_minutes, rem_minutes, awake_minutes, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			deep_minutes = excluded.deep_minutes,
			light_minutes = excluded.light_minutes,
			rem_minutes = excluded.rem_minutes,
			awake_minutes = excluded.awake_minutes,
			score = excluded.score
	`, session.Date, session.StartTime.Unix(), session.EndTime.Unix(),
		session.DeepMinutes, session.LightMinutes, session.REMMinutes, session.AwakeMinutes, session.Score)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "upsert sleep_sessions", Err: err}
	}
	return nil
}

// UpsertHRVSummary writes the nightly HRV summary for a date.
func (s *SQLiteStore) UpsertHRVSummary(summary *models.HRVSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO hrv_summaries (date, weekly_avg, last_night_avg, last_night_5min_high, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			weekly_avg = excluded.weekly_avg,
			last_night_avg = excluded.last_night_avg,
			last_night_5min_high = excluded.last_night_5min_high,
			status = excluded.status
	`, summary.Date, summary.WeeklyAvg, summary.LastNightAvg, summary.LastNight5Min, summary.Status)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "upsert hrv_summaries", Err: err}
	}
	return nil
}

// UpsertCycleDay writes the cycle phase record for a date.
func (s *SQLiteStore) UpsertCycleDay(day *models.CycleDay) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO cycle_days (date, cycle_day, phase)
		VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			cycle_day = excluded.cycle_day,
			phase = excluded.phase
	`, day.Date, day.CycleDay, day.Phase)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "upsert cycle_days", Err: err}
	}
	return nil
}

// UpsertDailySummary writes the derived aggregate row for a date.
func (s *SQLiteStore) UpsertDailySummary(summary *models.DailySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO daily_summaries (
			date, resting_heart_rate, avg_heart_rate, max_heart_rate, min_heart_rate,
			avg_stress, max_stress, battery_charged, battery_drained,
			sleep_score, sleep_minutes, avg_spo2, avg_respiration, cycle_day, cycle_phase
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			resting_heart_rate = excluded.resting_heart_rate,
			avg_heart_rate = excluded.avg_heart_rate,
			max_heart_rate = excluded.max_heart_rate,
			min_heart_rate = excluded.min_heart_rate,
			avg_stress = excluded.avg_stress,
			max_stress = excluded.max_stress,
			battery_charged = excluded.battery_charged,
			battery_drained = excluded.battery_drained,
			sleep_score = excluded.sleep_score,
			sleep_minutes = excluded.sleep_minutes,
			avg_spo2 = excluded.avg_spo2,
			avg_respiration = excluded.avg_respiration,
			cycle_day = excluded.cycle_day,
			cycle_phase = excluded.cycle_phase
	`, summary.Date, summary.RestingHeartRate, summary.AvgHeartRate, summary.MaxHeartRate, summary.MinHeartRate,
		summary.AvgStress, summary.MaxStress, summary.BatteryCharged, summary.BatteryDrained,
		summary.SleepScore, summary.SleepMinutes, summary.AvgSpO2, summary.AvgRespiration,
		summary.CycleDay, summary.CyclePhase)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "upsert daily_summaries", Err: err}
	}
	return nil
}

var intradayTables = map[models.Resource]string{
	models.ResourceHeartRate:   "heart_rate_samples",
	models.ResourceStress:      "stress_samples",
	models.ResourceBodyBattery: "body_battery_samples",
	models.ResourceSpO2:        "spo2_samples",
	models.ResourceRespiration: "respiration_samples",
}

var dailyTables = map[models.Resource]string{
	models.ResourceSleep:   "sleep_sessions",
	models.ResourceHRV:     "hrv_summaries",
	models.ResourceCycle:   "cycle_days",
	models.ResourceSummary: "daily_summaries",
}

// CountForDate reports how many rows a resource holds for a UTC calendar date.
func (s *SQLiteStore) CountForDate(resource models.Resource, date string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if table, ok := intradayTables[resource]; ok {
		day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
		if err != nil {
			return 0, &errors.ErrDatabaseQuery{Operation: "count " + table, Err: err}
		}
		start := day.Unix()
		end := day.AddDate(0, 0, 1).Unix()
		err = s.db.QueryRow(
			fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE ts >= ? AND ts < ?", table),
			start, end,
		).Scan(&count)
		if err != nil {
			return 0, &errors.ErrDatabaseQuery{Operation: "count " + table, Err: err}
		}
		return count, nil
	}

	table, ok := dailyTables[resource]
	if !ok {
		return 0, &errors.ErrDatabaseQuery{Operation: "count", Err: fmt.Errorf("unknown resource %q", resource)}
	}
	err := s.db.QueryRow(
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE date = ?", table), date,
	).Scan(&count)
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "count " + table, Err: err}
	}
	return count, nil
}

// Ensure SQLiteStore implements the Store interface
var _ Store = (*SQLiteStore)(nil)

package store

import "github.com/biosync/biosync/internal/models"

// Store is the relational store the resource syncers write into. Every write
// is an insert-or-replace keyed by timestamp (intraday resources) or date
// (daily resources), so re-ingesting a date is a no-op in effect.
type Store interface {
	Settings() SettingsStore

	UpsertHeartRateSamples(samples []models.HeartRateSample) (int, error)
	UpsertStressSamples(samples []models.StressSample) (int, error)
	UpsertBodyBatterySamples(samples []models.BodyBatterySample) (int, error)
	UpsertSpO2Samples(samples []models.SpO2Sample) (int, error)
	UpsertRespirationSamples(samples []models.RespirationSample) (int, error)

	UpsertSleepSession(session *models.SleepSession) error
	UpsertHRVSummary(summary *models.HRVSummary) error
	UpsertCycleDay(day *models.CycleDay) error
	UpsertDailySummary(summary *models.DailySummary) error

	// CountForDate reports how many rows a resource holds for a calendar
	// date (UTC). Used by the status surface and tests.
	CountForDate(resource models.Resource, date string) (int, error)

	Close() error
}

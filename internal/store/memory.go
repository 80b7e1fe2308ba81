package store

import (
	"sync"
	"time"

	"github.com/biosync/biosync/internal/models"
)

// MemoryStore is an in-memory Store for tests. Same keying semantics as the
// SQLite implementation: intraday rows by unix timestamp, daily rows by date.
type MemoryStore struct {
	mu sync.Mutex

	settings *MemorySettingsStore

	heartRate   map[int64]models.HeartRateSample
	stress      map[int64]models.StressSample
	bodyBattery map[int64]models.BodyBatterySample
	spo2        map[int64]models.SpO2Sample
	respiration map[int64]models.RespirationSample

	sleep   map[string]models.SleepSession
	hrv     map[string]models.HRVSummary
	cycle   map[string]models.CycleDay
	summary map[string]models.DailySummary
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settings:    NewMemorySettingsStore(),
		heartRate:   make(map[int64]models.HeartRateSample),
		stress:      make(map[int64]models.StressSample),
		bodyBattery: make(map[int64]models.BodyBatterySample),
		spo2:        make(map[int64]models.SpO2Sample),
		respiration: make(map[int64]models.RespirationSample),
		sleep:       make(map[string]models.SleepSession),
		hrv:         make(map[string]models.HRVSummary),
		cycle:       make(map[string]models.CycleDay),
		summary:     make(map[string]models.DailySummary),
	}
}

func (m *MemoryStore) Settings() SettingsStore {
	return m.settings
}

func (m *MemoryStore) UpsertHeartRateSamples(samples []models.HeartRateSample) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range samples {
		m.heartRate[s.Timestamp.Unix()] = s
	}
	return len(samples), nil
}

func (m *MemoryStore) UpsertStressSamples(samples []models.StressSample) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range samples {
		m.stress[s.Timestamp.Unix()] = s
	}
	return len(samples), nil
}

func (m *MemoryStore) UpsertBodyBatterySamples(samples []models.BodyBatterySample) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range samples {
		m.bodyBattery[s.Timestamp.Unix()] = s
	}
	return len(samples), nil
}

func (m *MemoryStore) UpsertSpO2Samples(samples []models.SpO2Sample) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range samples {
		m.spo2[s.Timestamp.Unix()] = s
	}
	return len(samples), nil
}

func (m *MemoryStore) UpsertRespirationSamples(samples []models.RespirationSample) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range samples {
		m.respiration[s.Timestamp.Unix()] = s
	}
	return len(samples), nil
}

func (m *MemoryStore) UpsertSleepSession(session *models.SleepSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sleep[session.Date] = *session
	return nil
}

func (m *MemoryStore) UpsertHRVSummary(summary *models.HRVSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hrv[summary.Date] = *summary
	return nil
}

func (m *MemoryStore) UpsertCycleDay(day *models.CycleDay) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycle[day.Date] = *day
	return nil
}

func (m *MemoryStore) UpsertDailySummary(summary *models.DailySummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary[summary.Date] = *summary
	return nil
}

// DailySummaryForDate returns the stored summary row, for test assertions.
func (m *MemoryStore) DailySummaryForDate(date string) (models.DailySummary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summary[date]
	return s, ok
}

// SleepSessionForDate returns the stored sleep row, for test assertions.
func (m *MemoryStore) SleepSessionForDate(date string) (models.SleepSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sleep[date]
	return s, ok
}

func (m *MemoryStore) CountForDate(resource models.Resource, date string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return 0, err
	}
	start := day.Unix()
	end := day.AddDate(0, 0, 1).Unix()

	inRange := func(ts int64) bool { return ts >= start && ts < end }

	count := 0
	switch resource {
	case models.ResourceHeartRate:
		for ts := range m.heartRate {
			if inRange(ts) {
				count++
			}
		}
	case models.ResourceStress:
		for ts := range m.stress {
			if inRange(ts) {
				count++
			}
		}
	case models.ResourceBodyBattery:
		for ts := range m.bodyBattery {
			if inRange(ts) {
				count++
			}
		}
	case models.ResourceSpO2:
		for ts := range m.spo2 {
			if inRange(ts) {
				count++
			}
		}
	case models.ResourceRespiration:
		for ts := range m.respiration {
			if inRange(ts) {
				count++
			}
		}
	case models.ResourceSleep:
		if _, ok := m.sleep[date]; ok {
			count = 1
		}
	case models.ResourceHRV:
		if _, ok := m.hrv[date]; ok {
			count = 1
		}
	case models.ResourceCycle:
		if _, ok := m.cycle[date]; ok {
			count = 1
		}
	case models.ResourceSummary:
		if _, ok := m.summary[date]; ok {
			count = 1
		}
	}
	return count, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// MemorySettingsStore is an in-memory SettingsStore for tests.
type MemorySettingsStore struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemorySettingsStore creates an empty in-memory settings store.
func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{data: make(map[string]string)}
}

func (m *MemorySettingsStore) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *MemorySettingsStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemorySettingsStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

var (
	_ Store         = (*MemoryStore)(nil)
	_ SettingsStore = (*MemorySettingsStore)(nil)
)

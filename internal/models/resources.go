package models

import "time"

// Resource identifies one of the synced biometric resource types.
type Resource string

const (
	ResourceHeartRate   Resource = "heart_rate"
	ResourceStress      Resource = "stress"
	ResourceBodyBattery Resource = "body_battery"
	ResourceSleep       Resource = "sleep"
	ResourceHRV         Resource = "hrv"
	ResourceSpO2        Resource = "spo2"
	ResourceRespiration Resource = "respiration"
	ResourceCycle       Resource = "cycle"
	ResourceSummary     Resource = "daily_summary"
)

// Resources lists the eight independently synced resource types, excluding
// the derived daily summary.
func Resources() []Resource {
	return []Resource{
		ResourceHeartRate,
		ResourceStress,
		ResourceBodyBattery,
		ResourceSleep,
		ResourceHRV,
		ResourceSpO2,
		ResourceRespiration,
		ResourceCycle,
	}
}

// HeartRateSample is one continuous heart rate reading.
// Keyed by Timestamp; re-ingesting the same instant overwrites.
type HeartRateSample struct {
	Timestamp time.Time `json:"timestamp"`
	BPM       int       `json:"bpm"`
}

// StressSample is one stress level reading (provider scale 1-100; negative
// values are provider sentinels for "no measurement").
type StressSample struct {
	Timestamp time.Time `json:"timestamp"`
	Level     int       `json:"level"`
}

// BodyBatterySample is one energy level reading with the instantaneous
// charged/drained deltas the provider reports alongside it.
type BodyBatterySample struct {
	Timestamp time.Time `json:"timestamp"`
	Level     int       `json:"level"`
	Charged   int       `json:"charged"`
	Drained   int       `json:"drained"`
}

// SpO2Sample is one pulse-ox reading in percent.
type SpO2Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Percent   float64   `json:"percent"`
}

// RespirationSample is one respiration rate reading in breaths per minute.
type RespirationSample struct {
	Timestamp        time.Time `json:"timestamp"`
	BreathsPerMinute float64   `json:"breaths_per_minute"`
}

// SleepSession is the nightly sleep record for a calendar date.
type SleepSession struct {
	Date         string    `json:"date"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	DeepMinutes  int       `json:"deep_minutes"`
	LightMinutes int       `json:"light_minutes"`
	REMMinutes   int       `json:"rem_minutes"`
	AwakeMinutes int       `json:"awake_minutes"`
	Score        int       `json:"score"`
}

// TotalMinutes returns asleep minutes, excluding awake time.
func (s *SleepSession) TotalMinutes() int {
	return s.DeepMinutes + s.LightMinutes + s.REMMinutes
}

// HRVSummary is the nightly heart-rate-variability summary for a date.
type HRVSummary struct {
	Date          string  `json:"date"`
	WeeklyAvg     float64 `json:"weekly_avg"`
	LastNightAvg  float64 `json:"last_night_avg"`
	LastNight5Min float64 `json:"last_night_5min_high"`
	Status        string  `json:"status"`
}

// CycleDay is the menstrual cycle phase record for a date.
type CycleDay struct {
	Date     string `json:"date"`
	CycleDay int    `json:"cycle_day"`
	Phase    string `json:"phase"`
}

// DailySummary is the aggregate row derived from the other resources after a
// date's sync completes. It is the only row not fetched directly from the
// provider.
type DailySummary struct {
	Date             string  `json:"date"`
	RestingHeartRate int     `json:"resting_heart_rate"`
	AvgHeartRate     int     `json:"avg_heart_rate"`
	MaxHeartRate     int     `json:"max_heart_rate"`
	MinHeartRate     int     `json:"min_heart_rate"`
	AvgStress        int     `json:"avg_stress"`
	MaxStress        int     `json:"max_stress"`
	BatteryCharged   int     `json:"battery_charged"`
	BatteryDrained   int     `json:"battery_drained"`
	SleepScore       int     `json:"sleep_score"`
	SleepMinutes     int     `json:"sleep_minutes"`
	AvgSpO2          float64 `json:"avg_spo2"`
	AvgRespiration   float64 `json:"avg_respiration"`
	CycleDay         int     `json:"cycle_day"`
	CyclePhase       string  `json:"cycle_phase"`
}

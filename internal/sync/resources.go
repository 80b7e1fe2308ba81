package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/biosync/biosync/internal/models"
)

// providerAPI is the slice of the provider client the syncers use.
type providerAPI interface {
	Get(ctx context.Context, path, accessToken string) ([]byte, error)
	SocialProfile(ctx context.Context, accessToken string) (string, error)
}

// summaryPart folds one resource's contribution into the in-progress daily
// summary. Syncers return nil when their payload had nothing to contribute.
type summaryPart func(*models.DailySummary)

// resourceSyncer pairs a resource type with its sync function. All eight have
// the identical shape: fetch, parse, filter sentinels, upsert, report the
// row count plus the fields this resource contributes to the daily summary.
type resourceSyncer struct {
	resource models.Resource
	run      func(ctx context.Context, accessToken, displayName, date string) (int, summaryPart, error)
}

func (o *Orchestrator) resourceSyncers() []resourceSyncer {
	return []resourceSyncer{
		{models.ResourceHeartRate, o.syncHeartRate},
		{models.ResourceStress, o.syncStress},
		{models.ResourceBodyBattery, o.syncBodyBattery},
		{models.ResourceSleep, o.syncSleep},
		{models.ResourceHRV, o.syncHRV},
		{models.ResourceSpO2, o.syncSpO2},
		{models.ResourceRespiration, o.syncRespiration},
		{models.ResourceCycle, o.syncCycle},
	}
}

// samplePair is the provider's [millis, value] array form. The value slot is
// null when the device recorded nothing in that window.
type samplePair [2]*float64

// sample returns the decoded timestamp and value; ok is false for null slots.
func (p samplePair) sample() (time.Time, float64, bool) {
	if p[0] == nil || p[1] == nil {
		return time.Time{}, 0, false
	}
	return time.UnixMilli(int64(*p[0])).UTC(), *p[1], true
}

func (o *Orchestrator) fetch(ctx context.Context, resource models.Resource, path, accessToken string, out interface{}) (bool, error) {
	start := time.Now()
	body, err := o.client.Get(ctx, path, accessToken)
	o.metrics.RecordProviderRequest(string(resource), time.Since(start).Seconds())
	if err != nil {
		return false, err
	}
	if body == nil {
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("malformed %s payload: %w", resource, err)
	}
	return true, nil
}

type heartRatePayload struct {
	RestingHeartRate int          `json:"restingHeartRate"`
	MaxHeartRate     int          `json:"maxHeartRate"`
	MinHeartRate     int          `json:"minHeartRate"`
	HeartRateValues  []samplePair `json:"heartRateValues"`
}

func (o *Orchestrator) syncHeartRate(ctx context.Context, accessToken, displayName, date string) (int, summaryPart, error) {
	path := fmt.Sprintf("/wellness-service/wellness/dailyHeartRate/%s?date=%s", displayName, date)

	var payload heartRatePayload
	found, err := o.fetch(ctx, models.ResourceHeartRate, path, accessToken, &payload)
	if err != nil || !found {
		return 0, nil, err
	}

	samples := make([]models.HeartRateSample, 0, len(payload.HeartRateValues))
	sum := 0
	for _, pair := range payload.HeartRateValues {
		at, value, ok := pair.sample()
		if !ok || value <= 0 {
			continue
		}
		samples = append(samples, models.HeartRateSample{Timestamp: at, BPM: int(value)})
		sum += int(value)
	}
	if len(samples) == 0 {
		return 0, nil, nil
	}

	written, err := o.store.UpsertHeartRateSamples(samples)
	if err != nil {
		return 0, nil, err
	}

	avg := sum / len(samples)
	part := func(s *models.DailySummary) {
		s.RestingHeartRate = payload.RestingHeartRate
		s.MaxHeartRate = payload.MaxHeartRate
		s.MinHeartRate = payload.MinHeartRate
		s.AvgHeartRate = avg
	}
	return written, part, nil
}

type stressPayload struct {
	AvgStressLevel    int          `json:"avgStressLevel"`
	MaxStressLevel    int          `json:"maxStressLevel"`
	StressValuesArray []samplePair `json:"stressValuesArray"`
}

func (o *Orchestrator) syncStress(ctx context.Context, accessToken, displayName, date string) (int, summaryPart, error) {
	path := "/wellness-service/wellness/dailyStress/" + date

	var payload stressPayload
	found, err := o.fetch(ctx, models.ResourceStress, path, accessToken, &payload)
	if err != nil || !found {
		return 0, nil, err
	}

	// Negative levels are provider sentinels: -1 off-wrist, -2 too active.
	samples := make([]models.StressSample, 0, len(payload.StressValuesArray))
	for _, pair := range payload.StressValuesArray {
		at, value, ok := pair.sample()
		if !ok || value <= 0 {
			continue
		}
		samples = append(samples, models.StressSample{Timestamp: at, Level: int(value)})
	}
	if len(samples) == 0 {
		return 0, nil, nil
	}

	written, err := o.store.UpsertStressSamples(samples)
	if err != nil {
		return 0, nil, err
	}

	part := func(s *models.DailySummary) {
		s.AvgStress = payload.AvgStressLevel
		s.MaxStress = payload.MaxStressLevel
	}
	return written, part, nil
}

// batteryTuple is [millis, level, charged, drained]; the trailing deltas may
// be absent.
type batteryTuple [4]*float64

type bodyBatteryDay struct {
	Date                   string         `json:"date"`
	Charged                int            `json:"charged"`
	Drained                int            `json:"drained"`
	BodyBatteryValuesArray []batteryTuple `json:"bodyBatteryValuesArray"`
}

func (o *Orchestrator) syncBodyBattery(ctx context.Context, accessToken, displayName, date string) (int, summaryPart, error) {
	path := fmt.Sprintf("/wellness-service/wellness/bodyBattery/reports/daily?startDate=%s&endDate=%s", date, date)

	var days []bodyBatteryDay
	found, err := o.fetch(ctx, models.ResourceBodyBattery, path, accessToken, &days)
	if err != nil || !found || len(days) == 0 {
		return 0, nil, err
	}
	day := days[0]

	samples := make([]models.BodyBatterySample, 0, len(day.BodyBatteryValuesArray))
	for _, tuple := range day.BodyBatteryValuesArray {
		if tuple[0] == nil || tuple[1] == nil || *tuple[1] < 0 {
			continue
		}
		sample := models.BodyBatterySample{
			Timestamp: time.UnixMilli(int64(*tuple[0])).UTC(),
			Level:     int(*tuple[1]),
		}
		if tuple[2] != nil {
			sample.Charged = int(*tuple[2])
		}
		if tuple[3] != nil {
			sample.Drained = int(*tuple[3])
		}
		samples = append(samples, sample)
	}
	if len(samples) == 0 {
		return 0, nil, nil
	}

	written, err := o.store.UpsertBodyBatterySamples(samples)
	if err != nil {
		return 0, nil, err
	}

	part := func(s *models.DailySummary) {
		s.BatteryCharged = day.Charged
		s.BatteryDrained = day.Drained
	}
	return written, part, nil
}

type sleepPayload struct {
	DailySleepDTO *struct {
		CalendarDate           string `json:"calendarDate"`
		SleepStartTimestampGMT int64  `json:"sleepStartTimestampGMT"`
		SleepEndTimestampGMT   int64  `json:"sleepEndTimestampGMT"`
		DeepSleepSeconds       int    `json:"deepSleepSeconds"`
		LightSleepSeconds      int    `json:"lightSleepSeconds"`
		RemSleepSeconds        int    `json:"remSleepSeconds"`
		AwakeSleepSeconds      int    `json:"awakeSleepSeconds"`
		SleepScores            *struct {
			Overall *struct {
				Value int `json:"value"`
			} `json:"overall"`
		} `json:"sleepScores"`
	} `json:"dailySleepDTO"`
}

func (o *Orchestrator) syncSleep(ctx context.Context, accessToken, displayName, date string) (int, summaryPart, error) {
	path := fmt.Sprintf("/wellness-service/wellness/dailySleepData/%s?date=%s&nonSleepBufferMinutes=60", displayName, date)

	var payload sleepPayload
	found, err := o.fetch(ctx, models.ResourceSleep, path, accessToken, &payload)
	if err != nil || !found {
		return 0, nil, err
	}

	dto := payload.DailySleepDTO
	// A rest day with the device off has no sleep record; not an error.
	if dto == nil || dto.SleepStartTimestampGMT == 0 {
		return 0, nil, nil
	}

	session := &models.SleepSession{
		Date:         date,
		StartTime:    time.UnixMilli(dto.SleepStartTimestampGMT).UTC(),
		EndTime:      time.UnixMilli(dto.SleepEndTimestampGMT).UTC(),
		DeepMinutes:  dto.DeepSleepSeconds / 60,
		LightMinutes: dto.LightSleepSeconds / 60,
		REMMinutes:   dto.RemSleepSeconds / 60,
		AwakeMinutes: dto.AwakeSleepSeconds / 60,
	}
	if dto.SleepScores != nil && dto.SleepScores.Overall != nil {
		session.Score = dto.SleepScores.Overall.Value
	}

	if err := o.store.UpsertSleepSession(session); err != nil {
		return 0, nil, err
	}

	part := func(s *models.DailySummary) {
		s.SleepScore = session.Score
		s.SleepMinutes = session.TotalMinutes()
	}
	return 1, part, nil
}

type hrvPayload struct {
	HRVSummary *struct {
		WeeklyAvg         float64 `json:"weeklyAvg"`
		LastNightAvg      float64 `json:"lastNightAvg"`
		LastNight5MinHigh float64 `json:"lastNight5MinHigh"`
		Status            string  `json:"status"`
	} `json:"hrvSummary"`
}

func (o *Orchestrator) syncHRV(ctx context.Context, accessToken, displayName, date string) (int, summaryPart, error) {
	path := "/hrv-service/hrv/" + date

	var payload hrvPayload
	found, err := o.fetch(ctx, models.ResourceHRV, path, accessToken, &payload)
	if err != nil || !found {
		return 0, nil, err
	}
	if payload.HRVSummary == nil {
		return 0, nil, nil
	}

	summary := &models.HRVSummary{
		Date:          date,
		WeeklyAvg:     payload.HRVSummary.WeeklyAvg,
		LastNightAvg:  payload.HRVSummary.LastNightAvg,
		LastNight5Min: payload.HRVSummary.LastNight5MinHigh,
		Status:        payload.HRVSummary.Status,
	}
	if err := o.store.UpsertHRVSummary(summary); err != nil {
		return 0, nil, err
	}
	return 1, nil, nil
}

type spo2Payload struct {
	AverageSpO2     float64      `json:"averageSpO2"`
	SpO2ValuesArray []samplePair `json:"spO2ValuesArray"`
}

func (o *Orchestrator) syncSpO2(ctx context.Context, accessToken, displayName, date string) (int, summaryPart, error) {
	path := "/wellness-service/wellness/daily/spo2/" + date

	var payload spo2Payload
	found, err := o.fetch(ctx, models.ResourceSpO2, path, accessToken, &payload)
	if err != nil || !found {
		return 0, nil, err
	}

	samples := make([]models.SpO2Sample, 0, len(payload.SpO2ValuesArray))
	for _, pair := range payload.SpO2ValuesArray {
		at, value, ok := pair.sample()
		if !ok || value <= 0 {
			continue
		}
		samples = append(samples, models.SpO2Sample{Timestamp: at, Percent: value})
	}
	if len(samples) == 0 {
		return 0, nil, nil
	}

	written, err := o.store.UpsertSpO2Samples(samples)
	if err != nil {
		return 0, nil, err
	}

	part := func(s *models.DailySummary) {
		s.AvgSpO2 = payload.AverageSpO2
	}
	return written, part, nil
}

type respirationPayload struct {
	AvgRespirationValue    float64      `json:"avgRespirationValue"`
	RespirationValuesArray []samplePair `json:"respirationValuesArray"`
}

func (o *Orchestrator) syncRespiration(ctx context.Context, accessToken, displayName, date string) (int, summaryPart, error) {
	path := "/wellness-service/wellness/daily/respiration/" + date

	var payload respirationPayload
	found, err := o.fetch(ctx, models.ResourceRespiration, path, accessToken, &payload)
	if err != nil || !found {
		return 0, nil, err
	}

	samples := make([]models.RespirationSample, 0, len(payload.RespirationValuesArray))
	for _, pair := range payload.RespirationValuesArray {
		at, value, ok := pair.sample()
		if !ok || value <= 0 {
			continue
		}
		samples = append(samples, models.RespirationSample{Timestamp: at, BreathsPerMinute: value})
	}
	if len(samples) == 0 {
		return 0, nil, nil
	}

	written, err := o.store.UpsertRespirationSamples(samples)
	if err != nil {
		return 0, nil, err
	}

	part := func(s *models.DailySummary) {
		s.AvgRespiration = payload.AvgRespirationValue
	}
	return written, part, nil
}

type cyclePayload struct {
	DayInCycle int    `json:"dayInCycle"`
	PhaseType  string `json:"phaseType"`
}

func (o *Orchestrator) syncCycle(ctx context.Context, accessToken, displayName, date string) (int, summaryPart, error) {
	path := "/periodichealth-service/menstrualcycle/dayview/" + date

	var payload cyclePayload
	found, err := o.fetch(ctx, models.ResourceCycle, path, accessToken, &payload)
	if err != nil || !found {
		return 0, nil, err
	}
	if payload.DayInCycle <= 0 {
		return 0, nil, nil
	}

	day := &models.CycleDay{
		Date:     date,
		CycleDay: payload.DayInCycle,
		Phase:    payload.PhaseType,
	}
	if err := o.store.UpsertCycleDay(day); err != nil {
		return 0, nil, err
	}

	part := func(s *models.DailySummary) {
		s.CycleDay = day.CycleDay
		s.CyclePhase = day.Phase
	}
	return 1, part, nil
}

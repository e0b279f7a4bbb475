package service

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/oshitechglobal/creatordeck/internal/models"
)

// DefaultCompletionThreshold is the number of distinct platforms that must
// have an entry before a day counts as complete. Overridable via
// progress.completion_threshold.
const DefaultCompletionThreshold = 3

type PlatformSummary struct {
	Entries    int                    `json:"entries"`
	Latest     map[string]interface{} `json:"latest"`
	LatestDate string                 `json:"latest_date"`
}

type ProgressStats struct {
	TotalDays      int                        `json:"total_days"`
	CompleteDays   int                        `json:"complete_days"`
	CurrentStreak  int                        `json:"current_streak"`
	LongestStreak  int                        `json:"longest_streak"`
	CompletionRate float64                    `json:"completion_rate"`
	Platforms      map[string]PlatformSummary `json:"platforms"`
}

// GrowthPoint is one charting row: audience size per platform on one day.
type GrowthPoint struct {
	Date                  string `json:"date"`
	YouTubeSubscribers    int    `json:"youtube_subscribers"`
	InstagramFollowers    int    `json:"instagram_followers"`
	TikTokFollowers       int    `json:"tiktok_followers"`
	LinkedInFollowers     int    `json:"linkedin_followers"`
	XFollowers            int    `json:"x_followers"`
	NewsletterSubscribers int    `json:"newsletter_subscribers"`
}

// dayNumber collapses a timestamp to a calendar day ordinal in loc, so
// day-over-day adjacency is a difference of exactly 1.
func dayNumber(t time.Time, loc *time.Location) int {
	y, m, d := t.In(loc).Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// EntriesForDate returns all entries on the same calendar day as date.
func EntriesForDate(entries []models.DailyProgress, date time.Time, loc *time.Location) []models.DailyProgress {
	want := dayNumber(date, loc)
	var matched []models.DailyProgress
	for _, e := range entries {
		if dayNumber(e.Date, loc) == want {
			matched = append(matched, e)
		}
	}
	return matched
}

// EntryForDateAndPlatform returns the single entry for (date, platform), or
// nil. Used to decide upsert vs insert before a save.
func EntryForDateAndPlatform(entries []models.DailyProgress, date time.Time, platform string, loc *time.Location) *models.DailyProgress {
	want := dayNumber(date, loc)
	for i := range entries {
		if entries[i].Platform == platform && dayNumber(entries[i].Date, loc) == want {
			return &entries[i]
		}
	}
	return nil
}

// ComputeStats aggregates a flat entry list into summary statistics. A day
// is complete once at least threshold distinct platforms have an entry.
// The current streak is the consecutive run of complete days ending at the
// most recent complete day, counted only while that run is still live
// (its most recent day is today or yesterday).
func ComputeStats(entries []models.DailyProgress, now time.Time, threshold int) ProgressStats {
	if threshold <= 0 {
		threshold = DefaultCompletionThreshold
	}

	stats := ProgressStats{
		Platforms: make(map[string]PlatformSummary),
	}
	if len(entries) == 0 {
		return stats
	}

	loc := now.Location()
	platformsByDay := make(map[int]map[string]struct{})
	for _, e := range entries {
		day := dayNumber(e.Date, loc)
		if platformsByDay[day] == nil {
			platformsByDay[day] = make(map[string]struct{})
		}
		platformsByDay[day][e.Platform] = struct{}{}

		summary := stats.Platforms[e.Platform]
		summary.Entries++
		if summary.LatestDate == "" || e.Date.In(loc).Format("2006-01-02") > summary.LatestDate {
			summary.Latest = e.Metrics
			summary.LatestDate = e.Date.In(loc).Format("2006-01-02")
		}
		stats.Platforms[e.Platform] = summary
	}

	stats.TotalDays = len(platformsByDay)

	var completeDays []int
	for day, platforms := range platformsByDay {
		if len(platforms) >= threshold {
			completeDays = append(completeDays, day)
		}
	}
	stats.CompleteDays = len(completeDays)
	if stats.TotalDays > 0 {
		stats.CompletionRate = float64(stats.CompleteDays) / float64(stats.TotalDays) * 100
	}

	if len(completeDays) == 0 {
		return stats
	}

	// Walk complete days newest-first; a run continues while each day is
	// exactly one calendar day before the previous one.
	sort.Sort(sort.Reverse(sort.IntSlice(completeDays)))

	run := 0
	for i, day := range completeDays {
		if i == 0 || completeDays[i-1]-day == 1 {
			run++
		} else {
			run = 1
		}
		if run > stats.LongestStreak {
			stats.LongestStreak = run
		}
	}

	today := dayNumber(now, loc)
	if completeDays[0] == today || completeDays[0] == today-1 {
		streak := 0
		for i := range completeDays {
			if i > 0 && completeDays[i-1]-completeDays[i] != 1 {
				break
			}
			streak++
		}
		stats.CurrentStreak = streak
	}

	return stats
}

// ComputeGrowthSeries produces exactly days rows covering the trailing
// window ending today, one audience number per platform per day, zero
// where no entry exists. The series is dense regardless of how sparse the
// entries are.
func ComputeGrowthSeries(entries []models.DailyProgress, days int, now time.Time) []GrowthPoint {
	if days <= 0 {
		return []GrowthPoint{}
	}

	loc := now.Location()
	byDay := make(map[int]map[string]map[string]interface{})
	for _, e := range entries {
		day := dayNumber(e.Date, loc)
		if byDay[day] == nil {
			byDay[day] = make(map[string]map[string]interface{})
		}
		byDay[day][e.Platform] = e.Metrics
	}

	today := dayNumber(now, loc)
	y, m, d := now.In(loc).Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)

	series := make([]GrowthPoint, 0, days)
	for offset := days - 1; offset >= 0; offset-- {
		day := today - offset
		metrics := byDay[day]
		point := GrowthPoint{
			Date:                  midnight.AddDate(0, 0, -offset).Format("2006-01-02"),
			YouTubeSubscribers:    metricInt(metrics[models.PlatformYouTube], models.GrowthMetricKey[models.PlatformYouTube]),
			InstagramFollowers:    metricInt(metrics[models.PlatformInstagram], models.GrowthMetricKey[models.PlatformInstagram]),
			TikTokFollowers:       metricInt(metrics[models.PlatformTikTok], models.GrowthMetricKey[models.PlatformTikTok]),
			LinkedInFollowers:     metricInt(metrics[models.PlatformLinkedIn], models.GrowthMetricKey[models.PlatformLinkedIn]),
			XFollowers:            metricInt(metrics[models.PlatformX], models.GrowthMetricKey[models.PlatformX]),
			NewsletterSubscribers: metricInt(metrics[models.PlatformNewsletter], models.GrowthMetricKey[models.PlatformNewsletter]),
		}
		series = append(series, point)
	}

	return series
}

// metricInt pulls a non-negative counter out of a metrics bag. JSON
// round-trips hand back float64; rows written in-process may hold ints.
func metricInt(metrics map[string]interface{}, key string) int {
	if metrics == nil {
		return 0
	}
	switch v := metrics[key].(type) {
	case float64:
		if v < 0 {
			return 0
		}
		return int(v)
	case int:
		if v < 0 {
			return 0
		}
		return v
	case int64:
		if v < 0 {
			return 0
		}
		return int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil || n < 0 {
			return 0
		}
		return int(n)
	default:
		return 0
	}
}

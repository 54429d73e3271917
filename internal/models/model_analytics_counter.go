package models

import "time"

// AnalyticsCounter is a denormalized aggregate bucket. One row per
// (period, counter, label); increments are applied with an upsert so
// concurrent webhook invocations do not lose counts.
type AnalyticsCounter struct {
	ID string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	// PeriodKey is "2006-01-02" for daily buckets, "2006-01" for monthly.
	PeriodKey string `gorm:"column:period_key;type:varchar(10);not null;uniqueIndex:uniq_counter_bucket,priority:1" json:"period_key"`
	Counter   string `gorm:"column:counter;type:varchar(64);not null;uniqueIndex:uniq_counter_bucket,priority:2" json:"counter"`
	// Label partitions a counter further, e.g. currency for revenue.
	Label     string    `gorm:"column:label;type:varchar(32);not null;default:'';uniqueIndex:uniq_counter_bucket,priority:3" json:"label"`
	Value     int64     `gorm:"column:value;type:bigint;not null" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AnalyticsCounter) TableName() string { return "analytics_counter" }

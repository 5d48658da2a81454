package models

import "time"

// SequenceCounter holds the last issued number per prefix and year.
type SequenceCounter struct {
	Prefix    string    `gorm:"column:prefix;primaryKey" json:"prefix"`
	Year      int       `gorm:"column:year;primaryKey" json:"year"`
	Value     int64     `gorm:"column:value;not null" json:"value"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

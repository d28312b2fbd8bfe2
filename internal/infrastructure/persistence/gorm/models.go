package gorm

import (
	"time"
)

// TaskModel is the persisted task record
type TaskModel struct {
	TaskID        string    `gorm:"primaryKey;size:64"`
	URL           string    `gorm:"not null"`
	Target        string    `gorm:"not null"`
	FileName      string    `gorm:"size:512"`
	ContentType   string    `gorm:"size:255"`
	ContentLength int64     `gorm:"not null"`
	AcceptRanges  string    `gorm:"size:32"`
	ETag          string    `gorm:"column:etag;size:255"`
	LastModified  string    `gorm:"size:64"`
	Status        int32     `gorm:"not null;index"`
	Progress      int       `gorm:"not null;default:0"`
	Headers       string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName specifies the table name
func (TaskModel) TableName() string {
	return "download_tasks"
}

// SegmentModel is the persisted segment record, keyed by (task id, number)
type SegmentModel struct {
	TaskID      string    `gorm:"primaryKey;size:64"`
	Number      int       `gorm:"primaryKey;autoIncrement:false"`
	URL         string    `gorm:"not null"`
	Target      string    `gorm:"not null"`
	Path        string    `gorm:"not null"`
	TotalLength int64     `gorm:"not null"`
	Offset      int64     `gorm:"not null"`
	Length      int64     `gorm:"not null"`
	Status      int       `gorm:"not null"`
	ContentHash string    `gorm:"size:128"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName specifies the table name
func (SegmentModel) TableName() string {
	return "download_segments"
}

// EventModel is one lifecycle event in the local event log
type EventModel struct {
	ID            string    `gorm:"primaryKey;size:36"`
	AggregateID   string    `gorm:"size:64;not null;index"`
	AggregateType string    `gorm:"not null"`
	EventType     string    `gorm:"not null;index"`
	Version       int       `gorm:"not null;default:1"`
	Data          []byte    `gorm:"not null"`
	Metadata      []byte    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null;index"`
}

// TableName specifies the table name
func (EventModel) TableName() string {
	return "download_events"
}

// allModels lists every model managed by AutoMigrate
func allModels() []interface{} {
	return []interface{}{
		&TaskModel{},
		&SegmentModel{},
		&EventModel{},
	}
}

package gorm

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/narwhalmedia/segload/internal/domain/download"
)

// DownloadRepository implements download.Repository using GORM
type DownloadRepository struct {
	db *gorm.DB
}

// NewDownloadRepository creates a new download repository
func NewDownloadRepository(db *gorm.DB) *DownloadRepository {
	return &DownloadRepository{db: db}
}

// SaveTask inserts or replaces a task record
func (r *DownloadRepository) SaveTask(ctx context.Context, record *download.TaskRecord) error {
	model, err := toTaskModel(record)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "task_id"}},
			DoUpdates: clause.AssignmentColumns(taskUpsertColumns),
		}).
		Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to save task: %w", result.Error)
	}
	return nil
}

var taskUpsertColumns = []string{
	"url", "target", "file_name", "content_type", "content_length", "accept_ranges",
	"etag", "last_modified", "status", "progress", "headers", "updated_at",
}

// FindTask returns the record for taskID, or nil if none exists
func (r *DownloadRepository) FindTask(ctx context.Context, taskID string) (*download.TaskRecord, error) {
	var model TaskModel

	result := r.db.WithContext(ctx).Where("task_id = ?", taskID).Limit(1).Find(&model)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	return toTaskRecord(&model)
}

// ListTasks returns every task record, most recently updated first
func (r *DownloadRepository) ListTasks(ctx context.Context) ([]*download.TaskRecord, error) {
	var models []TaskModel

	result := r.db.WithContext(ctx).Order("updated_at DESC").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", result.Error)
	}

	records := make([]*download.TaskRecord, 0, len(models))
	for i := range models {
		record, err := toTaskRecord(&models[i])
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// UpdateTaskStatus sets the status of an existing record. Missing records are ignored.
func (r *DownloadRepository) UpdateTaskStatus(ctx context.Context, taskID string, status download.Status) error {
	result := r.db.WithContext(ctx).
		Model(&TaskModel{}).
		Where("task_id = ?", taskID).
		Update("status", int32(status))
	if result.Error != nil {
		return fmt.Errorf("failed to update task status: %w", result.Error)
	}
	return nil
}

// UpdateTaskProgress sets the progress percent of an existing record. Missing records are ignored.
func (r *DownloadRepository) UpdateTaskProgress(ctx context.Context, taskID string, percent int) error {
	result := r.db.WithContext(ctx).
		Model(&TaskModel{}).
		Where("task_id = ?", taskID).
		Update("progress", percent)
	if result.Error != nil {
		return fmt.Errorf("failed to update task progress: %w", result.Error)
	}
	return nil
}

// DeleteTask removes the task record
func (r *DownloadRepository) DeleteTask(ctx context.Context, taskID string) error {
	result := r.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&TaskModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete task: %w", result.Error)
	}
	return nil
}

// SaveSegment inserts or replaces a segment record
func (r *DownloadRepository) SaveSegment(ctx context.Context, segment *download.DownloadSegment) error {
	model := toSegmentModel(segment)

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "task_id"}, {Name: "number"}},
			DoUpdates: clause.AssignmentColumns(segmentUpsertColumns),
		}).
		Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to save segment: %w", result.Error)
	}
	return nil
}

var segmentUpsertColumns = []string{
	"url", "target", "path", "total_length", "offset", "length", "status", "content_hash", "updated_at",
}

// FindSegment returns the record for (taskID, number), or nil if none exists
func (r *DownloadRepository) FindSegment(ctx context.Context, taskID string, number int) (*download.DownloadSegment, error) {
	var model SegmentModel

	result := r.db.WithContext(ctx).
		Where("task_id = ? AND number = ?", taskID, number).
		Limit(1).
		Find(&model)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find segment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	return toDownloadSegment(&model), nil
}

// ListSegments returns the segment records of taskID ordered by number
func (r *DownloadRepository) ListSegments(ctx context.Context, taskID string) ([]*download.DownloadSegment, error) {
	var models []SegmentModel

	result := r.db.WithContext(ctx).Where("task_id = ?", taskID).Order("number ASC").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list segments: %w", result.Error)
	}

	segments := make([]*download.DownloadSegment, 0, len(models))
	for i := range models {
		segments = append(segments, toDownloadSegment(&models[i]))
	}
	return segments, nil
}

// UpdateSegmentStatus sets the status of an existing segment record. Missing records are ignored.
func (r *DownloadRepository) UpdateSegmentStatus(ctx context.Context, taskID string, number int, status download.SegmentStatus) error {
	result := r.db.WithContext(ctx).
		Model(&SegmentModel{}).
		Where("task_id = ? AND number = ?", taskID, number).
		Update("status", int(status))
	if result.Error != nil {
		return fmt.Errorf("failed to update segment status: %w", result.Error)
	}
	return nil
}

// DeleteSegments removes every segment record of taskID
func (r *DownloadRepository) DeleteSegments(ctx context.Context, taskID string) error {
	result := r.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&SegmentModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete segments: %w", result.Error)
	}
	return nil
}

// toTaskModel converts a domain record to its database model
func toTaskModel(record *download.TaskRecord) (*TaskModel, error) {
	headers := "{}"
	if len(record.Headers) > 0 {
		data, err := json.Marshal(record.Headers)
		if err != nil {
			return nil, fmt.Errorf("failed to encode headers: %w", err)
		}
		headers = string(data)
	}

	return &TaskModel{
		TaskID:        record.TaskID,
		URL:           record.URL,
		Target:        record.Target,
		FileName:      record.FileName,
		ContentType:   record.ContentType,
		ContentLength: record.ContentLength,
		AcceptRanges:  record.AcceptRanges,
		ETag:          record.ETag,
		LastModified:  record.LastModified,
		Status:        int32(record.Status),
		Progress:      record.Progress,
		Headers:       headers,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}, nil
}

// toTaskRecord converts a database model to a domain record
func toTaskRecord(model *TaskModel) (*download.TaskRecord, error) {
	var headers map[string]string
	if model.Headers != "" {
		if err := json.Unmarshal([]byte(model.Headers), &headers); err != nil {
			return nil, fmt.Errorf("failed to decode headers of task %s: %w", model.TaskID, err)
		}
	}

	return &download.TaskRecord{
		TaskID:        model.TaskID,
		URL:           model.URL,
		Target:        model.Target,
		FileName:      model.FileName,
		ContentType:   model.ContentType,
		ContentLength: model.ContentLength,
		AcceptRanges:  model.AcceptRanges,
		ETag:          model.ETag,
		LastModified:  model.LastModified,
		Status:        download.Status(model.Status),
		Progress:      model.Progress,
		Headers:       headers,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}, nil
}

func toSegmentModel(seg *download.DownloadSegment) *SegmentModel {
	return &SegmentModel{
		TaskID:      seg.TaskID,
		Number:      seg.Number,
		URL:         seg.URL,
		Target:      seg.Target,
		Path:        seg.Path,
		TotalLength: seg.TotalLength,
		Offset:      seg.Offset,
		Length:      seg.Length,
		Status:      int(seg.Status),
		ContentHash: seg.ContentHash,
	}
}

func toDownloadSegment(model *SegmentModel) *download.DownloadSegment {
	return &download.DownloadSegment{
		Segment: download.Segment{
			Number:      model.Number,
			TotalLength: model.TotalLength,
			Offset:      model.Offset,
			Length:      model.Length,
			Status:      download.SegmentStatus(model.Status),
			ContentHash: model.ContentHash,
		},
		TaskID: model.TaskID,
		URL:    model.URL,
		Target: model.Target,
		Path:   model.Path,
	}
}

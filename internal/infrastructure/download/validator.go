package download

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/narwhalmedia/segload/internal/domain/download"
	"github.com/narwhalmedia/segload/pkg/errors"
)

// FileValidator verifies segment and merged file lengths and assembles segments
type FileValidator struct {
	logger *zap.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *zap.Logger) *FileValidator {
	return &FileValidator{
		logger: logger.Named("file-validator"),
	}
}

// ValidateSegments checks that every segment file holds exactly its planned length
func (v *FileValidator) ValidateSegments(segments []*download.DownloadSegment) error {
	for _, seg := range segments {
		size, err := fileSize(seg.Path)
		if err != nil {
			return errors.Wrap(errors.ErrorTypeMergeVerification,
				fmt.Sprintf("segment %d file unreadable", seg.Number), err)
		}
		if size != seg.Length {
			return errors.MergeVerification(
				fmt.Sprintf("segment %d has %d bytes, planned %d", seg.Number, size, seg.Length))
		}
	}
	return nil
}

// ValidateLength checks that path holds exactly expected bytes
func (v *FileValidator) ValidateLength(path string, expected int64) error {
	size, err := fileSize(path)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeMergeVerification, "merged file unreadable", err)
	}
	if size != expected {
		return errors.MergeVerification(
			fmt.Sprintf("merged file has %d bytes, expected %d", size, expected))
	}

	v.logger.Debug("length validation passed",
		zap.String("file", path),
		zap.Int64("size", size),
	)
	return nil
}

// Merge concatenates segment files in ascending number order into target.
// Each segment file is removed once appended; target is replaced atomically.
func (v *FileValidator) Merge(target string, segments []*download.DownloadSegment) error {
	ordered := make([]*download.DownloadSegment, len(segments))
	copy(ordered, segments)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	partial := target + ".merge"
	out, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create merge file: %w", err)
	}

	for _, seg := range ordered {
		if err := appendFile(out, seg.Path); err != nil {
			out.Close()
			os.Remove(partial)
			return fmt.Errorf("failed to append segment %d: %w", seg.Number, err)
		}
	}

	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(partial)
		return fmt.Errorf("failed to sync merge file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(partial)
		return fmt.Errorf("failed to close merge file: %w", err)
	}
	if err := os.Rename(partial, target); err != nil {
		os.Remove(partial)
		return fmt.Errorf("failed to move merged file into place: %w", err)
	}

	for _, seg := range ordered {
		if err := os.Remove(seg.Path); err != nil && !os.IsNotExist(err) {
			v.logger.Warn("failed to remove segment file", zap.String("path", seg.Path), zap.Error(err))
		}
	}

	v.logger.Info("segments merged",
		zap.String("target", target),
		zap.Int("segments", len(ordered)),
	)
	return nil
}

func appendFile(dst io.Writer, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	_, err = io.Copy(dst, in)
	return err
}

// fileSize returns the size of path, or an error if it cannot be stat'ed
func fileSize(path string) (int64, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if stat.IsDir() {
		return 0, fmt.Errorf("%s is a directory", path)
	}
	return stat.Size(), nil
}

// localSize returns the size of path, or 0 if it does not exist
func localSize(path string) int64 {
	size, err := fileSize(path)
	if err != nil {
		return 0
	}
	return size
}

// fileExists reports whether path is an existing regular file
func fileExists(path string) bool {
	_, err := fileSize(path)
	return err == nil
}

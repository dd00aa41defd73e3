package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"appideas.app/engine/common"
	"appideas.app/engine/internal/model"
)

const (
	// MaxReportSize is the maximum allowed report size in bytes.
	MaxReportSize = 512 * 1024

	reportFilename = "report.md"
)

var (
	ErrReportNotFound      = errors.New("report not found")
	ErrReportTooLarge      = errors.New("report exceeds maximum size")
	ErrInvalidReportPath   = errors.New("invalid report path")
	ErrReportPathTraversal = errors.New("path traversal not allowed")
)

// ReportStore keeps rendered analysis reports.
type ReportStore interface {
	Read(ctx context.Context, ref model.ReportRef) (string, error)
	Write(ctx context.Context, analysis *model.Analysis, content string) (model.ReportRef, error)
	Exists(ctx context.Context, ref model.ReportRef) (bool, error)
}

// LocalReportStore implements ReportStore on the local filesystem.
type LocalReportStore struct {
	rootDir string
}

func NewLocalReportStore(rootDir string) (*LocalReportStore, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("report root directory is required")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report root directory: %w", err)
	}
	return &LocalReportStore{rootDir: rootDir}, nil
}

func (s *LocalReportStore) Read(ctx context.Context, ref model.ReportRef) (string, error) {
	if err := validateReportPath(ref.Path); err != nil {
		return "", err
	}

	content, err := os.ReadFile(filepath.Join(s.rootDir, ref.Path))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrReportNotFound
		}
		return "", fmt.Errorf("reading report: %w", err)
	}

	if ref.SHA256 != "" {
		if actual := sha256Hash(content); actual != ref.SHA256 {
			return "", fmt.Errorf("report hash mismatch: expected %s, got %s", ref.SHA256, actual)
		}
	}
	return string(content), nil
}

// Write stores the report under <kind>_<subject>_<share slug>/report.md.
func (s *LocalReportStore) Write(ctx context.Context, analysis *model.Analysis, content string) (model.ReportRef, error) {
	if len(content) > MaxReportSize {
		return model.ReportRef{}, ErrReportTooLarge
	}
	if len(content) == 0 {
		return model.ReportRef{}, fmt.Errorf("report content cannot be empty")
	}

	subject, err := common.Slugify(analysis.SubjectID, "subject")
	if err != nil {
		return model.ReportRef{}, fmt.Errorf("naming report: %w", err)
	}
	slug, err := common.Slugify(analysis.ShareSlug, fmt.Sprintf("%d", analysis.ID))
	if err != nil {
		return model.ReportRef{}, fmt.Errorf("naming report: %w", err)
	}

	dirName := fmt.Sprintf("%s_%s_%s", analysis.SubjectKind, subject, slug)
	relPath := filepath.Join(dirName, reportFilename)
	if err := validateReportPath(relPath); err != nil {
		return model.ReportRef{}, err
	}

	fullDir := filepath.Join(s.rootDir, dirName)
	fullPath := filepath.Join(s.rootDir, relPath)
	if err := os.MkdirAll(fullDir, 0o755); err != nil {
		return model.ReportRef{}, fmt.Errorf("creating report directory: %w", err)
	}

	// Atomic write: write to temp file, then rename
	tmpPath := fullPath + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0o644); err != nil {
		return model.ReportRef{}, fmt.Errorf("writing temp report: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return model.ReportRef{}, fmt.Errorf("renaming report: %w", err)
	}

	return model.ReportRef{
		Backend:   "local",
		Path:      relPath,
		Format:    "markdown",
		SHA256:    sha256Hash([]byte(content)),
		UpdatedAt: time.Now().UTC(),
	}, nil
}

func (s *LocalReportStore) Exists(ctx context.Context, ref model.ReportRef) (bool, error) {
	if err := validateReportPath(ref.Path); err != nil {
		return false, err
	}

	if _, err := os.Stat(filepath.Join(s.rootDir, ref.Path)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking report existence: %w", err)
	}
	return true, nil
}

// validateReportPath rejects paths that could escape the root directory.
func validateReportPath(path string) error {
	if path == "" {
		return ErrInvalidReportPath
	}
	if strings.Contains(path, "..") || filepath.IsAbs(path) {
		return ErrReportPathTraversal
	}
	if strings.HasPrefix(filepath.Clean(path), "..") {
		return ErrReportPathTraversal
	}
	return nil
}

func sha256Hash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

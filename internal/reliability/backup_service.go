// Package reliability snapshots the decision log, model registry and model
// artifacts and ships them offsite.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/adaptivetrader/internal/database"
	"github.com/rs/zerolog"
)

const (
	archivePrefix   = "adaptivetrader-backup-"
	archiveSuffix   = ".tar.gz"
	timestampLayout = "2006-01-02-150405"
	metadataFile    = "backup-metadata.json"

	// MinBackupsToKeep survive rotation regardless of age
	MinBackupsToKeep = 3
)

// LogSnapshotter copies the decision log consistently
type LogSnapshotter interface {
	Snapshot(dst string) (int64, error)
}

// Sources are the artifacts included in every backup. Empty paths are skipped.
type Sources struct {
	Symbol       string
	Log          LogSnapshotter
	RegistryDB   *database.DB
	ModelsDir    string
	PolicyPath   string
	StagingRoot  string // parent of the temporary staging directory
	FormatPrefix string // defaults to adaptivetrader-backup-
}

// BackupMetadata is written into every archive
type BackupMetadata struct {
	Timestamp time.Time      `json:"timestamp"`
	Symbol    string         `json:"symbol"`
	Files     []FileMetadata `json:"files"`
}

// FileMetadata describes one file in the archive
type FileMetadata struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo describes a stored backup
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupService builds archives and manages them in an ObjectStore
type BackupService struct {
	store   ObjectStore
	sources Sources
	prefix  string
	log     zerolog.Logger
	now     func() time.Time
}

// NewBackupService creates a new backup service
func NewBackupService(store ObjectStore, sources Sources, log zerolog.Logger) *BackupService {
	prefix := sources.FormatPrefix
	if prefix == "" {
		prefix = archivePrefix
	}
	return &BackupService{
		store:   store,
		sources: sources,
		prefix:  prefix,
		log:     log.With().Str("service", "backup").Logger(),
		now:     time.Now,
	}
}

// CreateAndUpload snapshots every source into a tar.gz and uploads it
func (s *BackupService) CreateAndUpload(ctx context.Context) (*BackupInfo, error) {
	s.log.Info().Msg("Starting backup")
	startTime := time.Now()

	stagingDir, err := os.MkdirTemp(s.sources.StagingRoot, "backup-staging-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	files, err := s.stage(ctx, stagingDir)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	metadata := BackupMetadata{Timestamp: now, Symbol: s.sources.Symbol}
	for _, name := range files {
		path := filepath.Join(stagingDir, name)
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", name, err)
		}
		checksum, err := calculateChecksum(path)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate checksum for %s: %w", name, err)
		}
		metadata.Files = append(metadata.Files, FileMetadata{Name: name, SizeBytes: info.Size(), Checksum: checksum})
	}

	if err := writeMetadata(filepath.Join(stagingDir, metadataFile), metadata); err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}
	files = append(files, metadataFile)

	archiveName := s.prefix + now.Format(timestampLayout) + archiveSuffix
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, stagingDir, files); err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := s.store.Upload(ctx, archiveName, archiveFile, archiveInfo.Size()); err != nil {
		return nil, fmt.Errorf("failed to upload backup: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("archive", archiveName).
		Int("files", len(files)).
		Int64("size_bytes", archiveInfo.Size()).
		Msg("Backup completed")

	return &BackupInfo{Filename: archiveName, Timestamp: now, SizeBytes: archiveInfo.Size()}, nil
}

// stage copies every source into dir and returns the archive-relative names
func (s *BackupService) stage(ctx context.Context, dir string) ([]string, error) {
	var files []string

	if s.sources.Log != nil {
		name := fmt.Sprintf("experience_log_%s.jsonl", s.sources.Symbol)
		if _, err := s.sources.Log.Snapshot(filepath.Join(dir, name)); err != nil {
			return nil, fmt.Errorf("failed to snapshot decision log: %w", err)
		}
		files = append(files, name)
	}

	if s.sources.RegistryDB != nil {
		// VACUUM INTO yields a consistent, compacted copy without blocking writers
		if err := s.sources.RegistryDB.VacuumInto(ctx, filepath.Join(dir, "registry.db")); err != nil {
			return nil, fmt.Errorf("failed to snapshot registry: %w", err)
		}
		files = append(files, "registry.db")
	}

	if s.sources.PolicyPath != "" {
		name := filepath.Base(s.sources.PolicyPath)
		ok, err := copyIfExists(s.sources.PolicyPath, filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to copy policy snapshot: %w", err)
		}
		if ok {
			files = append(files, name)
		}
	}

	if s.sources.ModelsDir != "" {
		err := filepath.WalkDir(s.sources.ModelsDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return filepath.SkipDir
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(s.sources.ModelsDir, path)
			if err != nil {
				return err
			}
			name := filepath.ToSlash(filepath.Join("models", rel))
			if _, err := copyIfExists(path, filepath.Join(dir, name)); err != nil {
				return err
			}
			files = append(files, name)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to copy model artifacts: %w", err)
		}
	}

	return files, nil
}

// ListBackups lists stored backups, newest first
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(objects))
	now := s.now()
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, s.prefix) || !strings.HasSuffix(obj.Key, archiveSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(obj.Key, s.prefix), archiveSuffix)
		ts, err := time.Parse(timestampLayout, stamp)
		if err != nil {
			s.log.Warn().Str("filename", obj.Key).Msg("Failed to parse timestamp from filename")
			continue
		}
		backups = append(backups, BackupInfo{
			Filename:  obj.Key,
			Timestamp: ts,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes backups older than retentionDays, always keeping
// the newest MinBackupsToKeep. retentionDays <= 0 keeps everything.
func (s *BackupService) RotateOldBackups(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= MinBackupsToKeep {
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, b := range backups[MinBackupsToKeep:] {
		if !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, b.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", b.Filename).Msg("Failed to delete old backup")
			continue
		}
		s.log.Info().Str("filename", b.Filename).Time("timestamp", b.Timestamp).Msg("Deleted old backup")
		deleted++
	}

	s.log.Info().Int("deleted", deleted).Int("remaining", len(backups)-deleted).Msg("Backup rotation completed")
	return deleted, nil
}

func copyIfExists(src, dst string) (bool, error) {
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return false, err
	}
	out, err := os.Create(dst)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return false, err
	}
	return true, out.Close()
}

// calculateChecksum calculates the SHA256 checksum of a file
func calculateChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

// createArchive writes names (relative to sourceDir) into a tar.gz
func createArchive(archivePath, sourceDir string, names []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, name := range names {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}
	if err := gzipWriter.Close(); err != nil {
		return err
	}
	return archiveFile.Sync()
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode().Perm()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tarWriter, file)
	return err
}

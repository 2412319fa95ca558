// Package store manages converted media files on disk.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Sentinel errors for common store conditions.
var (
	// ErrNotFound indicates the requested media file does not exist.
	ErrNotFound = errors.New("store: not found")
)

// idRegex matches the identifiers the platforms hand out: letters,
// digits, underscore, dash. Anything else (path separators and dots in
// particular) never names a stored file.
var idRegex = regexp.MustCompile(`^[\w-]+$`)

// ValidID reports whether id is safe to use as a media file name.
// Callers must check this before passing request-supplied IDs to any
// path helper.
func ValidID(id string) bool {
	return idRegex.MatchString(id)
}

// StoreError wraps media store errors with operation and file context.
// Use errors.As() to extract this error type and get operation details.
type StoreError struct {
	// Op is the operation that failed ("write", "remove", "list", "sweep").
	Op string
	// Kind is the media kind ("audio" or "video").
	Kind string
	// ID is the video ID if applicable.
	ID string
	// Err is the underlying error that occurred.
	Err error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("store: %s %s %s: %v", e.Op, e.Kind, e.ID, e.Err)
	}
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// FileInfo describes a stored media file.
type FileInfo struct {
	ID      string
	Size    int64
	ModTime time.Time
}

// tempSuffix marks in-progress downloads and conversions. Files carrying
// it are never served and are swept on startup.
const tempSuffix = ".temp"

// Store keeps converted audio files and intermediate video downloads in
// two sibling directories under a data root.
type Store struct {
	audioDir string
	videoDir string

	now func() time.Time
}

// New creates the audio and video directories under root if needed.
func New(root string) (*Store, error) {
	s := &Store{
		audioDir: filepath.Join(root, "audio"),
		videoDir: filepath.Join(root, "video"),
		now:      time.Now,
	}
	for _, dir := range []string{s.audioDir, s.videoDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &StoreError{Op: "create", Kind: "directory", ID: dir, Err: err}
		}
	}
	return s, nil
}

// AudioPath returns the on-disk path for a converted audio file.
func (s *Store) AudioPath(id string) string {
	return filepath.Join(s.audioDir, id+".mp3")
}

// VideoPath returns the on-disk path for a downloaded video file.
func (s *Store) VideoPath(id string) string {
	return filepath.Join(s.videoDir, id+".mp4")
}

// TempPath returns the in-progress path for a final path.
func TempPath(path string) string {
	return path + tempSuffix
}

// HasAudio reports whether a completed audio file exists for id.
func (s *Store) HasAudio(id string) bool {
	info, err := os.Stat(s.AudioPath(id))
	return err == nil && !info.IsDir()
}

// AudioInfo returns size and modification time for a completed audio file.
func (s *Store) AudioInfo(id string) (FileInfo, error) {
	info, err := os.Stat(s.AudioPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, &StoreError{Op: "stat", Kind: "audio", ID: id, Err: ErrNotFound}
		}
		return FileInfo{}, &StoreError{Op: "stat", Kind: "audio", ID: id, Err: err}
	}
	return FileInfo{ID: id, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Promote atomically moves a temp file to its final path. The temp file
// is removed on failure.
func Promote(tempPath, finalPath string) error {
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath) // Best effort cleanup
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// RemoveAudio deletes a converted audio file. Missing files are not an
// error.
func (s *Store) RemoveAudio(id string) error {
	return s.remove(s.AudioPath(id), "audio", id)
}

// RemoveVideo deletes a downloaded video file. Missing files are not an
// error.
func (s *Store) RemoveVideo(id string) error {
	return s.remove(s.VideoPath(id), "video", id)
}

func (s *Store) remove(path, kind, id string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &StoreError{Op: "remove", Kind: kind, ID: id, Err: err}
	}
	return nil
}

// ListAudio returns completed audio files sorted oldest first.
func (s *Store) ListAudio() ([]FileInfo, error) {
	return s.list(s.audioDir, "audio", ".mp3")
}

// ListVideo returns completed video files sorted oldest first.
func (s *Store) ListVideo() ([]FileInfo, error) {
	return s.list(s.videoDir, "video", ".mp4")
}

func (s *Store) list(dir, kind, ext string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &StoreError{Op: "list", Kind: kind, Err: err}
	}

	var files []FileInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			ID:      strings.TrimSuffix(name, ext),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.Before(files[j].ModTime)
	})
	return files, nil
}

// ClearAudio removes all completed audio files and returns the count.
func (s *Store) ClearAudio() (int, error) {
	return s.clear(s.audioDir, "audio", ".mp3")
}

// ClearVideo removes all completed video files and returns the count.
func (s *Store) ClearVideo() (int, error) {
	return s.clear(s.videoDir, "video", ".mp4")
}

func (s *Store) clear(dir, kind, ext string) (int, error) {
	files, err := s.list(dir, kind, ext)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files {
		if err := os.Remove(filepath.Join(dir, f.ID+ext)); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, &StoreError{Op: "remove", Kind: kind, ID: f.ID, Err: err}
		}
		removed++
	}
	return removed, nil
}

// TotalAudioBytes sums the sizes of all completed audio files.
func (s *Store) TotalAudioBytes() (int64, error) {
	files, err := s.ListAudio()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total, nil
}

// RemoveTempFiles deletes leftover in-progress files from an earlier
// run. Call it once at startup before serving.
func (s *Store) RemoveTempFiles() (int, error) {
	removed := 0
	for _, dir := range []string{s.audioDir, s.videoDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return removed, &StoreError{Op: "sweep", Kind: "temp", Err: err}
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), tempSuffix) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !os.IsNotExist(err) {
				return removed, &StoreError{Op: "sweep", Kind: "temp", ID: entry.Name(), Err: err}
			}
			removed++
		}
	}
	return removed, nil
}

// SweepExpired removes media files older than ttl. Files are visited
// oldest first and the sweep stops at the first fresh file, so a single
// pass never touches files still inside the retention window.
func (s *Store) SweepExpired(ttl time.Duration) (int, error) {
	cutoff := s.now().Add(-ttl)
	removed := 0
	for _, dir := range []struct {
		path string
		kind string
		ext  string
	}{
		{s.audioDir, "audio", ".mp3"},
		{s.videoDir, "video", ".mp4"},
	} {
		files, err := s.list(dir.path, dir.kind, dir.ext)
		if err != nil {
			return removed, err
		}
		for _, f := range files {
			if !f.ModTime.Before(cutoff) {
				break
			}
			if err := os.Remove(filepath.Join(dir.path, f.ID+dir.ext)); err != nil && !os.IsNotExist(err) {
				return removed, &StoreError{Op: "sweep", Kind: dir.kind, ID: f.ID, Err: err}
			}
			removed++
		}
	}
	return removed, nil
}

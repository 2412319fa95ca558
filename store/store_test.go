package store

import (
	"errors"
	"os"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func writeAudio(t *testing.T, s *Store, id string, mtime time.Time) {
	t.Helper()
	path := s.AudioPath(id)
	if err := os.WriteFile(path, []byte("mp3 data "+id), 0644); err != nil {
		t.Fatal(err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
}

func TestValidID(t *testing.T) {
	for _, id := range []string{"dQw4w9WgXcQ", "abc_DEF-123", "v1"} {
		if !ValidID(id) {
			t.Errorf("ValidID(%q) = false, want true", id)
		}
	}
	for _, id := range []string{"", ".", "..", "../x", "a/b", `a\b`, "a.mp3", "a b", "a%2Fb"} {
		if ValidID(id) {
			t.Errorf("ValidID(%q) = true, want false", id)
		}
	}
}

func TestStore_PathsAndHasAudio(t *testing.T) {
	s := newTestStore(t)

	if s.HasAudio("abc") {
		t.Error("HasAudio() = true before write")
	}
	writeAudio(t, s, "abc", time.Time{})
	if !s.HasAudio("abc") {
		t.Error("HasAudio() = false after write")
	}

	info, err := s.AudioInfo("abc")
	if err != nil {
		t.Fatalf("AudioInfo() error = %v", err)
	}
	if info.ID != "abc" || info.Size == 0 {
		t.Errorf("AudioInfo() = %+v", info)
	}
}

func TestStore_AudioInfoNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AudioInfo("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("AudioInfo() error = %v, want ErrNotFound", err)
	}
	var serr *StoreError
	if !errors.As(err, &serr) || serr.Op != "stat" || serr.Kind != "audio" {
		t.Errorf("error = %v, want *StoreError with stat/audio", err)
	}
}

func TestStore_PromoteTempFile(t *testing.T) {
	s := newTestStore(t)

	final := s.AudioPath("vid1")
	temp := TempPath(final)
	if err := os.WriteFile(temp, []byte("partial"), 0644); err != nil {
		t.Fatal(err)
	}
	if s.HasAudio("vid1") {
		t.Error("temp file must not count as a completed audio file")
	}
	if err := Promote(temp, final); err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if !s.HasAudio("vid1") {
		t.Error("HasAudio() = false after Promote")
	}
	if _, err := os.Stat(temp); !os.IsNotExist(err) {
		t.Error("temp file still present after Promote")
	}
}

func TestStore_ListAudioOldestFirst(t *testing.T) {
	s := newTestStore(t)

	now := time.Now()
	writeAudio(t, s, "newest", now)
	writeAudio(t, s, "oldest", now.Add(-2*time.Hour))
	writeAudio(t, s, "middle", now.Add(-time.Hour))

	// temp files are excluded from listings
	if err := os.WriteFile(TempPath(s.AudioPath("partial")), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	files, err := s.ListAudio()
	if err != nil {
		t.Fatalf("ListAudio() error = %v", err)
	}
	var ids []string
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	want := []string{"oldest", "middle", "newest"}
	if len(ids) != len(want) {
		t.Fatalf("ListAudio() ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ListAudio()[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestStore_RemoveTempFiles(t *testing.T) {
	s := newTestStore(t)

	writeAudio(t, s, "keep", time.Time{})
	for _, path := range []string{
		TempPath(s.AudioPath("a")),
		TempPath(s.VideoPath("b")),
	} {
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := s.RemoveTempFiles()
	if err != nil {
		t.Fatalf("RemoveTempFiles() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("RemoveTempFiles() = %d, want 2", removed)
	}
	if !s.HasAudio("keep") {
		t.Error("completed file removed by temp sweep")
	}
}

func TestStore_SweepExpired(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	writeAudio(t, s, "expired1", now.Add(-5*time.Hour))
	writeAudio(t, s, "expired2", now.Add(-4*time.Hour))
	writeAudio(t, s, "fresh", now.Add(-time.Hour))

	videoPath := s.VideoPath("oldvid")
	if err := os.WriteFile(videoPath, []byte("mp4"), 0644); err != nil {
		t.Fatal(err)
	}
	old := now.Add(-6 * time.Hour)
	if err := os.Chtimes(videoPath, old, old); err != nil {
		t.Fatal(err)
	}

	removed, err := s.SweepExpired(3 * time.Hour)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("SweepExpired() = %d, want 3", removed)
	}
	if !s.HasAudio("fresh") {
		t.Error("fresh file removed by sweep")
	}
	if s.HasAudio("expired1") || s.HasAudio("expired2") {
		t.Error("expired files survived sweep")
	}
}

func TestStore_ClearAndTotals(t *testing.T) {
	s := newTestStore(t)

	writeAudio(t, s, "a", time.Time{})
	writeAudio(t, s, "b", time.Time{})

	total, err := s.TotalAudioBytes()
	if err != nil {
		t.Fatalf("TotalAudioBytes() error = %v", err)
	}
	if total == 0 {
		t.Error("TotalAudioBytes() = 0, want > 0")
	}

	removed, err := s.ClearAudio()
	if err != nil {
		t.Fatalf("ClearAudio() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("ClearAudio() = %d, want 2", removed)
	}
	files, err := s.ListAudio()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("ListAudio() after clear = %d files, want 0", len(files))
	}
}

func TestStore_RemoveMissingIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.RemoveAudio("nope"); err != nil {
		t.Errorf("RemoveAudio(missing) error = %v", err)
	}
	if err := s.RemoveVideo("nope"); err != nil {
		t.Errorf("RemoveVideo(missing) error = %v", err)
	}
}

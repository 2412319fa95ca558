package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

type adminResponse struct {
	Version string                      `json:"version"`
	Classes map[string][]cacheEntryView `json:"classes"`
	Cleared map[string]int              `json:"cleared"`
}

func decodeAdmin(t *testing.T, body []byte) adminResponse {
	t.Helper()
	var resp adminResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode admin response: %v", err)
	}
	return resp
}

func TestCacheAdmin_Listing(t *testing.T) {
	env := newTestEnv(t, nil)
	env.get(t, "/youtube/channel/UCstub", nil)
	writeAudioFile(t, env.store, "vid1", "mp3")

	rec := env.get(t, "/youtube/cache", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeAdmin(t, rec.Body.Bytes())

	feeds := resp.Classes["CHANNEL_FEED"]
	// The fetch cached the feed under its ref and its canonical ref.
	if len(feeds) != 2 {
		t.Fatalf("CHANNEL_FEED entries = %d, want 2", len(feeds))
	}
	if feeds[0].Label != "Stub Channel" {
		t.Errorf("feed label = %q", feeds[0].Label)
	}

	audio := resp.Classes["AUDIO_FILES"]
	if len(audio) != 1 || audio[0].Key != "vid1" {
		t.Errorf("AUDIO_FILES = %+v", audio)
	}
}

func TestCacheAdmin_ClearAll(t *testing.T) {
	env := newTestEnv(t, nil)
	env.get(t, "/youtube/channel/UCstub", nil)

	rec := env.get(t, "/youtube/cache?CHANNEL_FEED=ALL", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeAdmin(t, rec.Body.Bytes())
	if resp.Cleared["CHANNEL_FEED"] != 2 {
		t.Errorf("cleared = %v, want CHANNEL_FEED: 2", resp.Cleared)
	}

	// Next feed request must resolve again.
	env.get(t, "/youtube/channel/UCstub", nil)
	if env.resolver.callCount() != 2 {
		t.Errorf("resolver calls = %d, want 2 after clear", env.resolver.callCount())
	}
}

func TestCacheAdmin_ClearSingleKey(t *testing.T) {
	env := newTestEnv(t, nil)
	writeAudioFile(t, env.store, "vid1", "mp3")
	writeAudioFile(t, env.store, "vid2", "mp3")

	rec := env.get(t, "/youtube/cache?AUDIO_FILES=vid1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeAdmin(t, rec.Body.Bytes())
	if resp.Cleared["AUDIO_FILES"] != 1 {
		t.Errorf("cleared = %v", resp.Cleared)
	}
	if env.store.HasAudio("vid1") {
		t.Error("vid1 still present after targeted clear")
	}
	if !env.store.HasAudio("vid2") {
		t.Error("vid2 removed by targeted clear")
	}
}

func TestCacheAdmin_RejectsTraversalKeys(t *testing.T) {
	env := newTestEnv(t, nil)
	root := filepath.Dir(filepath.Dir(env.store.AudioPath("x")))
	outside := filepath.Join(root, "secret.mp3")
	if err := os.WriteFile(outside, []byte("outside the store"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := env.get(t, "/youtube/cache?AUDIO_FILES=..%2Fsecret", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeAdmin(t, rec.Body.Bytes())
	if resp.Cleared != nil {
		t.Errorf("cleared = %v, want listing response for rejected key", resp.Cleared)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Error("file outside the store was removed")
	}
}

func TestCacheAdmin_NoneIsListing(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get(t, "/youtube/cache?CHANNEL_FEED=NONE", nil)
	resp := decodeAdmin(t, rec.Body.Bytes())
	if resp.Cleared != nil {
		t.Errorf("cleared = %v, want listing response", resp.Cleared)
	}
	if resp.Version == "" {
		t.Error("listing response missing version")
	}
}

func TestMaintenanceSweep(t *testing.T) {
	env := newTestEnv(t, nil)
	env.get(t, "/youtube/channel/UCstub", nil)

	env.server.sweep()
	// Fresh entries survive the sweep.
	if env.server.channelFeeds.Len() != 2 {
		t.Errorf("channel feeds after sweep = %d, want 2", env.server.channelFeeds.Len())
	}
}

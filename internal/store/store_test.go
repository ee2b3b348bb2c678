package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenPath(filepath.Join(t.TempDir(), "clipd.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCacheEntryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := CacheEntry{
		Key:        "abc123",
		OutputPath: "/tmp/out/abc123.mp4",
		SizeBytes:  4096,
		Operation:  "clip",
	}
	if err := s.UpsertCacheEntry(ctx, entry); err != nil {
		t.Fatalf("UpsertCacheEntry: %v", err)
	}

	got, err := s.GetCacheEntry(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetCacheEntry: %v", err)
	}
	if got == nil {
		t.Fatal("expected entry, got nil")
	}
	if got.OutputPath != entry.OutputPath || got.SizeBytes != entry.SizeBytes {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.AccessCount != 1 {
		t.Fatalf("expected access count 1 after first lookup, got %d", got.AccessCount)
	}

	got, err = s.GetCacheEntry(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetCacheEntry second lookup: %v", err)
	}
	if got.AccessCount != 2 {
		t.Fatalf("expected access count 2, got %d", got.AccessCount)
	}
}

func TestGetCacheEntryMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetCacheEntry(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetCacheEntry: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil entry, got %+v", got)
	}
}

func TestDeleteCacheEntriesBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	old := CacheEntry{Key: "old", OutputPath: "/tmp/old.mp4", CreatedAt: now.Add(-8 * 24 * time.Hour)}
	fresh := CacheEntry{Key: "fresh", OutputPath: "/tmp/fresh.mp4", CreatedAt: now}
	for _, entry := range []CacheEntry{old, fresh} {
		if err := s.UpsertCacheEntry(ctx, entry); err != nil {
			t.Fatalf("UpsertCacheEntry(%s): %v", entry.Key, err)
		}
	}

	paths, err := s.DeleteCacheEntriesBefore(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteCacheEntriesBefore: %v", err)
	}
	if len(paths) != 1 || paths[0] != "/tmp/old.mp4" {
		t.Fatalf("unexpected deleted paths: %v", paths)
	}

	entries, err := s.ListCacheEntries(ctx)
	if err != nil {
		t.Fatalf("ListCacheEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "fresh" {
		t.Fatalf("unexpected surviving entries: %+v", entries)
	}
}

func TestCacheTotals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, entry := range []CacheEntry{
		{Key: "a", OutputPath: "/tmp/a.mp4", SizeBytes: 100},
		{Key: "b", OutputPath: "/tmp/b.mp4", SizeBytes: 250},
	} {
		if err := s.UpsertCacheEntry(ctx, entry); err != nil {
			t.Fatalf("UpsertCacheEntry(%s): %v", entry.Key, err)
		}
	}

	count, bytes, err := s.CacheTotals(ctx)
	if err != nil {
		t.Fatalf("CacheTotals: %v", err)
	}
	if count != 2 || bytes != 350 {
		t.Fatalf("unexpected totals: count=%d bytes=%d", count, bytes)
	}
}

func TestAdmissionRequestWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, offset := range []time.Duration{-90 * time.Second, -30 * time.Second, -5 * time.Second} {
		if err := s.RecordRequest(ctx, 42, now.Add(offset)); err != nil {
			t.Fatalf("RecordRequest: %v", err)
		}
	}
	if err := s.RecordRequest(ctx, 7, now); err != nil {
		t.Fatalf("RecordRequest other owner: %v", err)
	}

	count, err := s.CountRequestsSince(ctx, 42, now.Add(-60*time.Second))
	if err != nil {
		t.Fatalf("CountRequestsSince: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 requests in window, got %d", count)
	}

	if err := s.PruneRequestsBefore(ctx, now.Add(-60*time.Second)); err != nil {
		t.Fatalf("PruneRequestsBefore: %v", err)
	}
	count, err = s.CountRequestsSince(ctx, 42, now.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("CountRequestsSince after prune: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 requests after prune, got %d", count)
	}
}

func TestOwnerLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertOwner(ctx, 42, "alice", "reencode"); err != nil {
		t.Fatalf("UpsertOwner: %v", err)
	}

	owner, err := s.GetOwner(ctx, 42)
	if err != nil {
		t.Fatalf("GetOwner: %v", err)
	}
	if owner == nil {
		t.Fatal("expected owner, got nil")
	}
	if owner.Username != "alice" || owner.Capabilities != "reencode" {
		t.Fatalf("unexpected owner: %+v", owner)
	}
	if owner.StartPadding() != 2*time.Second || owner.EndPadding() != 2*time.Second {
		t.Fatalf("expected default padding, got %v/%v", owner.StartPadding(), owner.EndPadding())
	}

	if err := s.SetPadding(ctx, 42, 500*time.Millisecond, 3*time.Second); err != nil {
		t.Fatalf("SetPadding: %v", err)
	}
	if err := s.UpsertOwner(ctx, 42, "alice2", ""); err != nil {
		t.Fatalf("UpsertOwner update: %v", err)
	}

	owner, err = s.GetOwner(ctx, 42)
	if err != nil {
		t.Fatalf("GetOwner after update: %v", err)
	}
	if owner.Username != "alice2" {
		t.Fatalf("expected updated username, got %q", owner.Username)
	}
	if owner.StartPadding() != 500*time.Millisecond || owner.EndPadding() != 3*time.Second {
		t.Fatalf("padding lost on update: %v/%v", owner.StartPadding(), owner.EndPadding())
	}

	missing, err := s.GetOwner(ctx, 99)
	if err != nil {
		t.Fatalf("GetOwner missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown owner, got %+v", missing)
	}

	if err := s.SetPadding(ctx, 99, time.Second, time.Second); err == nil {
		t.Fatal("expected error setting padding for unknown owner")
	}
}

func TestHistoryOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for i, name := range []string{"first.mp4", "second.mp4", "third.mp4"} {
		entry := HistoryEntry{
			OwnerID:    42,
			SourceName: name,
			Operation:  "clip",
			ClipCount:  i + 1,
			CreatedAt:  now.Add(time.Duration(i) * time.Minute),
		}
		if err := s.AppendHistory(ctx, entry); err != nil {
			t.Fatalf("AppendHistory(%s): %v", name, err)
		}
	}

	entries, err := s.ListHistory(ctx, 42, 2)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].SourceName != "third.mp4" || entries[1].SourceName != "second.mp4" {
		t.Fatalf("unexpected ordering: %q, %q", entries[0].SourceName, entries[1].SourceName)
	}
}

func TestTemplateLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveTemplate(ctx, 42, "hq", `{"crf":"18"}`); err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}
	if err := s.SaveTemplate(ctx, 42, "hq", `{"crf":"16"}`); err != nil {
		t.Fatalf("SaveTemplate replace: %v", err)
	}
	if err := s.SaveTemplate(ctx, 42, "fast", `{"preset":"ultrafast"}`); err != nil {
		t.Fatalf("SaveTemplate second: %v", err)
	}

	tmpl, err := s.GetTemplate(ctx, 42, "hq")
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if tmpl == nil || tmpl.ParamsJSON != `{"crf":"16"}` {
		t.Fatalf("unexpected template: %+v", tmpl)
	}

	templates, err := s.ListTemplates(ctx, 42)
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(templates) != 2 || templates[0].Name != "fast" || templates[1].Name != "hq" {
		t.Fatalf("unexpected templates: %+v", templates)
	}

	if err := s.DeleteTemplate(ctx, 42, "hq"); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	if err := s.DeleteTemplate(ctx, 42, "hq"); err == nil {
		t.Fatal("expected error deleting missing template")
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clipd.db")

	s, err := OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if err := s.UpsertCacheEntry(context.Background(), CacheEntry{Key: "k", OutputPath: "/tmp/k.mp4"}); err != nil {
		t.Fatalf("UpsertCacheEntry: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath reopen: %v", err)
	}
	defer reopened.Close()

	entry, err := reopened.GetCacheEntry(context.Background(), "k")
	if err != nil {
		t.Fatalf("GetCacheEntry after reopen: %v", err)
	}
	if entry == nil {
		t.Fatal("expected entry to survive reopen")
	}
}

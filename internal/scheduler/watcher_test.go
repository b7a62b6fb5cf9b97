package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_MarksSchedulerDirty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "fields.yaml")
	contents := `
- name: solo
  position: "10.0 +89.5"
  exptime: 60
  min_nexp: 10
  exp_set_size: 10
  priority: 50
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := New(Options{Site: polarSite, FieldsFile: path})
	if err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(s)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	updated := contents + `
- name: newcomer
  position: "10.0 +89.5"
  exptime: 60
  min_nexp: 10
  exp_set_size: 10
  priority: 200
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s.dirty.Load() {
			// The next selection re-reads and sees the newcomer.
			obs, err := s.GetObservation(time.Now(), false)
			if err != nil {
				t.Fatal(err)
			}
			if obs.Name() != "newcomer" {
				t.Errorf("selected %q after re-read, want newcomer", obs.Name())
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("watcher never marked the scheduler dirty")
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "fields.yaml")
	if err := os.WriteFile(path, []byte("[]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := New(Options{Site: polarSite, FieldsFile: path})
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(s)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	sibling := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(sibling, []byte("unrelated"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(400 * time.Millisecond)
	if s.dirty.Load() {
		t.Error("sibling file change marked the scheduler dirty")
	}
}

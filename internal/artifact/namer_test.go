package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNextPath_StartsAtOne(t *testing.T) {
	dir := t.TempDir()

	got, err := NextPath(dir, "20250114_093045", ".jpg")
	if err != nil {
		t.Fatalf("NextPath() error = %v", err)
	}
	want := filepath.Join(dir, "20250114_093045_001.jpg")
	if got != want {
		t.Errorf("NextPath() = %s, want %s", got, want)
	}
}

func TestNextPath_SkipsExisting(t *testing.T) {
	dir := t.TempDir()

	for i := 1; i <= 3; i++ {
		name := filepath.Join(dir, fmt.Sprintf("20250114_093045_%03d.jpg", i))
		if err := os.WriteFile(name, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := NextPath(dir, "20250114_093045", ".jpg")
	if err != nil {
		t.Fatalf("NextPath() error = %v", err)
	}
	want := filepath.Join(dir, "20250114_093045_004.jpg")
	if got != want {
		t.Errorf("NextPath() = %s, want %s", got, want)
	}
}

func TestNextPath_DifferentStemIndependent(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "20250114_093045_001.jpg"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := NextPath(dir, "20250114_093046", ".jpg")
	if err != nil {
		t.Fatalf("NextPath() error = %v", err)
	}
	want := filepath.Join(dir, "20250114_093046_001.jpg")
	if got != want {
		t.Errorf("NextPath() = %s, want %s", got, want)
	}
}

func TestNextPath_Exhausted(t *testing.T) {
	dir := t.TempDir()

	for i := 1; i <= 999; i++ {
		name := filepath.Join(dir, fmt.Sprintf("s_%03d.jpg", i))
		if err := os.WriteFile(name, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := NextPath(dir, "s", ".jpg"); !errors.Is(err, ErrSequenceExhausted) {
		t.Errorf("NextPath() error = %v, want ErrSequenceExhausted", err)
	}
}

func TestDateDirAndStem(t *testing.T) {
	now := time.Date(2025, 1, 14, 9, 30, 45, 0, time.Local)

	if got := DateDir("/pics/auto-daily-report", now); got != filepath.Join("/pics/auto-daily-report", "2025-01-14") {
		t.Errorf("DateDir() = %s", got)
	}
	if got := Stem(now); got != "20250114_093045" {
		t.Errorf("Stem() = %s, want 20250114_093045", got)
	}
}

package filewatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kbukum/eventkit/errors"
)

func TestChange_Has(t *testing.T) {
	tests := []struct {
		op   string
		has  fsnotify.Op
		want bool
	}{
		{"CREATE", fsnotify.Create, true},
		{"CREATE|WRITE", fsnotify.Write, true},
		{"WRITE", fsnotify.Remove, false},
		{"", fsnotify.Create, false},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			if got := (Change{Op: tt.op}).Has(tt.has); got != tt.want {
				t.Errorf("Has(%s) = %v, want %v", tt.has, got, tt.want)
			}
		})
	}
}

func TestSource_DeliversCreate(t *testing.T) {
	dir := t.TempDir()
	src := New("config", []string{dir}, WithOps(fsnotify.Create))

	changes := make(chan Change, 8)
	if err := src.Subscribe(func(ctx context.Context, payload any) ([]any, error) {
		changes <- payload.(Change)
		return nil, nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer src.Stop(context.Background())

	path := filepath.Join(dir, "app.yaml")
	if err := os.WriteFile(path, []byte("a: 1"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case c := <-changes:
		if c.Path != path || !c.Has(fsnotify.Create) {
			t.Errorf("unexpected change %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
	}
}

func TestSource_StartMissingPath(t *testing.T) {
	src := New("missing", []string{filepath.Join(t.TempDir(), "nope")})
	if err := src.Start(context.Background()); err == nil {
		t.Error("expected error for missing path")
	}
	if h := src.Health(context.Background()); h.Status != "degraded" {
		t.Errorf("expected degraded, got %s", h.Status)
	}
}

func TestSource_StopIdempotent(t *testing.T) {
	src := New("w", []string{t.TempDir()})
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if h := src.Health(context.Background()); h.Status != "healthy" {
		t.Errorf("expected healthy, got %s", h.Status)
	}
	if err := src.Stop(context.Background()); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := src.Stop(context.Background()); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestParseOps(t *testing.T) {
	ops, err := ParseOps([]string{"create", "WRITE"})
	if err != nil {
		t.Fatalf("ParseOps: %v", err)
	}
	if len(ops) != 2 || ops[0] != fsnotify.Create || ops[1] != fsnotify.Write {
		t.Errorf("unexpected ops %v", ops)
	}
	if _, err := ParseOps([]string{"touch"}); !errors.IsCode(err, errors.ErrCodeValidation) {
		t.Errorf("expected VALIDATION_FAILED, got %v", err)
	}
}

func TestSource_SlowDeliveryDoesNotHoldNext(t *testing.T) {
	dir := t.TempDir()
	src := New("config", []string{dir}, WithOps(fsnotify.Create))

	release := make(chan struct{})
	changes := make(chan string, 8)
	src.Subscribe(func(ctx context.Context, payload any) ([]any, error) {
		c := payload.(Change)
		changes <- filepath.Base(c.Path)
		if filepath.Base(c.Path) == "slow" {
			<-release
		}
		return nil, nil
	})
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer src.Stop(context.Background())
	defer close(release)

	for _, name := range []string{"slow", "fast"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		select {
		case got := <-changes:
			if got != name {
				t.Errorf("expected %s, got %s", name, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", name)
		}
	}
}

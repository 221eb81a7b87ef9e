package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/olivier-w/zinc/internal/services"
)

type stubEngine struct {
	id        string
	available bool
	models    []ModelInfo
}

func (s *stubEngine) ID() string          { return s.id }
func (s *stubEngine) Name() string        { return "Stub " + s.id }
func (s *stubEngine) Description() string { return "stub engine" }
func (s *stubEngine) GPURequired() bool   { return false }
func (s *stubEngine) GPUAvailable(context.Context) bool {
	return false
}
func (s *stubEngine) Available() (bool, error) { return s.available, nil }
func (s *stubEngine) Models() []ModelInfo      { return s.models }
func (s *stubEngine) SpeedMultiplier(string) (float64, float64) {
	return 1, 1
}
func (s *stubEngine) Languages() []string { return []string{"en"} }
func (s *stubEngine) Install(context.Context, ProgressFunc) error {
	return nil
}
func (s *stubEngine) DownloadModel(context.Context, string, ProgressFunc) error {
	return nil
}
func (s *stubEngine) Transcribe(context.Context, TranscribeRequest) (string, error) {
	return "", nil
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry(&stubEngine{id: "alpha"}, &stubEngine{id: "beta"})
	e, err := r.Resolve("beta")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if e.ID() != "beta" {
		t.Fatalf("resolved wrong engine: %s", e.ID())
	}
	if _, err := r.Resolve("missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found marker, got %v", err)
	}
}

func TestRegistryListPreservesOrder(t *testing.T) {
	r := NewRegistry(&stubEngine{id: "c"}, &stubEngine{id: "a"}, &stubEngine{id: "b"})
	got := r.List()
	want := []string{"c", "a", "b"}
	for i, e := range got {
		if e.ID() != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestRegistryDescribe(t *testing.T) {
	r := NewRegistry(&stubEngine{
		id:     "alpha",
		models: []ModelInfo{{ID: "base", Installed: true}},
	})
	descs := r.Describe(context.Background())
	if len(descs) != 1 {
		t.Fatalf("expected 1 descriptor, got %d", len(descs))
	}
	d := descs[0]
	if d.ID != "alpha" || len(d.Models) != 1 || !d.Models[0].Installed {
		t.Fatalf("unexpected descriptor: %+v", d)
	}
}

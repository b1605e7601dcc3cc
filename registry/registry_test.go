package registry

import (
	"errors"
	"testing"
)

func TestRegisterAndResolve(t *testing.T) {
	r := New()
	r.Register(Model{ID: "m1", Provider: "fake", Caps: CapTools})

	m, err := r.Resolve("m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Provider != "fake" {
		t.Errorf("expected provider 'fake', got %q", m.Provider)
	}
}

func TestResolveUnknown(t *testing.T) {
	r := New()

	_, err := r.Resolve("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := New()
	r.Register(Model{ID: "m1", Provider: "fake"})
	r.Register(Model{ID: "m1", Provider: "fake", ContextWindow: 1000})

	if r.Len() != 1 {
		t.Errorf("expected 1 model after re-registration, got %d", r.Len())
	}
	m, _ := r.Resolve("m1")
	if m.ContextWindow != 1000 {
		t.Errorf("re-registration must overwrite, got window %d", m.ContextWindow)
	}
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	r := New()
	r.Register(Model{ID: "b", Provider: "x"})
	r.Register(Model{ID: "a", Provider: "x"})
	r.Register(Model{ID: "c", Provider: "y"})

	all := r.List("")
	if len(all) != 3 || all[0].ID != "b" || all[1].ID != "a" || all[2].ID != "c" {
		t.Errorf("unexpected order: %v", all)
	}

	xOnly := r.List("x")
	if len(xOnly) != 2 {
		t.Errorf("expected 2 models for provider x, got %d", len(xOnly))
	}
}

func TestSupports(t *testing.T) {
	m := Model{Caps: CapTools | CapVision}

	if !m.Supports(CapTools) {
		t.Error("expected tools support")
	}
	if !m.Supports(CapTools | CapVision) {
		t.Error("expected combined capability check to pass")
	}
	if m.Supports(CapThinking) {
		t.Error("did not expect thinking support")
	}
}

func TestBuiltinCatalog(t *testing.T) {
	r := Builtin()
	if r.Len() == 0 {
		t.Fatal("expected built-in models")
	}

	m, err := r.Resolve(ModelClaudeOpus45)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.Supports(CapTools | CapVision) {
		t.Error("expected flagship model to support tools and vision")
	}
}

func TestParseCatalog(t *testing.T) {
	data := []byte(`
models:
  - id: local-llama
    name: Local Llama
    provider: openai
    capabilities: [tools]
    context_window: 32000
    max_output_tokens: 4096
`)
	r := New()
	if err := ParseCatalog(r, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m, err := r.Resolve("local-llama")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.DisplayName != "Local Llama" || m.ContextWindow != 32000 {
		t.Errorf("unexpected model: %+v", m)
	}
	if !m.Supports(CapTools) || m.Supports(CapVision) {
		t.Errorf("unexpected capabilities: %v", m.Caps)
	}
}

func TestParseCatalogRejectsMissingID(t *testing.T) {
	data := []byte(`
models:
  - provider: openai
`)
	if err := ParseCatalog(New(), data); err == nil {
		t.Error("expected error for missing id")
	}
}

func TestParseCatalogRejectsUnknownCapability(t *testing.T) {
	data := []byte(`
models:
  - id: m
    provider: openai
    capabilities: [telepathy]
`)
	if err := ParseCatalog(New(), data); err == nil {
		t.Error("expected error for unknown capability")
	}
}

func TestParseCatalogRejectsInvalidYAML(t *testing.T) {
	if err := ParseCatalog(New(), []byte("models: [")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

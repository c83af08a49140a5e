package backend

import (
	"context"
	"strings"
	"testing"

	"github.com/clearlane/claimflow/pkg/models"
)

type stubBackend struct{}

func (stubBackend) RunStep(context.Context, models.AgentSpec, *Conversation) (StepResult, error) {
	return StepResult{}, nil
}

func TestFactoryRegisterAndLookup(t *testing.T) {
	f := NewFactory()
	f.Register("anthropic", stubBackend{})

	b, err := f.Backend("anthropic")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if b == nil {
		t.Fatal("expected backend, got nil")
	}
}

func TestFactoryUnregisteredProvider(t *testing.T) {
	f := NewFactory()
	_, err := f.Backend("openai")
	if err == nil {
		t.Fatal("expected error for unregistered provider")
	}
	if !strings.Contains(err.Error(), "openai") {
		t.Errorf("error should name the provider: %v", err)
	}
}

func TestFactoryIgnoresInvalidRegistration(t *testing.T) {
	f := NewFactory()
	f.Register("", stubBackend{})
	f.Register("nil-backend", nil)

	if got := len(f.Providers()); got != 0 {
		t.Errorf("expected no providers registered, got %d", got)
	}
}

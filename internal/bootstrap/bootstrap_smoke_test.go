package bootstrap

import (
	"context"
	"errors"
	"testing"

	platformerrors "solarlab-server-go/internal/platform/errors"
)

func TestInitGraphOrder(t *testing.T) {
	steps := InitGraph()
	want := []string{
		"config:load",
		"logging:init-provider",
		"metrics:init-collector",
		"fetch:init-pool",
		"pipeline:init-orchestrator",
		"flare:init-monitor",
	}
	if len(steps) != len(want) {
		t.Fatalf("unexpected step count: got %d want %d", len(steps), len(want))
	}
	for i, step := range steps {
		if step.ID != want[i] {
			t.Fatalf("step %d mismatch: got %s want %s", i, step.ID, want[i])
		}
	}
}

func TestExecuteInitStepsRunsInOrder(t *testing.T) {
	var order []string
	steps := []initStep{
		{
			ID: "a",
			Execute: func(_ context.Context, _ *appState) error {
				order = append(order, "a")
				return nil
			},
		},
		{
			ID:        "b",
			DependsOn: []string{"a"},
			Execute: func(_ context.Context, _ *appState) error {
				order = append(order, "b")
				return nil
			},
		},
	}

	if err := executeInitSteps(context.Background(), steps, &appState{}); err != nil {
		t.Fatalf("executeInitSteps failed: %v", err)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("unexpected execution order: %v", order)
	}
}

func TestExecuteInitStepsEnforcesDependencies(t *testing.T) {
	steps := []initStep{
		{
			ID:        "late",
			DependsOn: []string{"missing"},
			Execute:   func(_ context.Context, _ *appState) error { return nil },
		},
	}

	err := executeInitSteps(context.Background(), steps, &appState{})
	if err == nil {
		t.Fatal("expected dependency error")
	}
	if !platformerrors.IsKind(err, platformerrors.KindBootstrap) {
		t.Fatalf("expected bootstrap kind, got %v", err)
	}
}

func TestExecuteInitStepsWrapsUntypedErrors(t *testing.T) {
	boom := errors.New("boom")
	steps := []initStep{
		{
			ID:      "fails",
			Kind:    platformerrors.KindConfig,
			Execute: func(_ context.Context, _ *appState) error { return boom },
		},
	}

	err := executeInitSteps(context.Background(), steps, &appState{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !platformerrors.IsKind(err, platformerrors.KindConfig) {
		t.Fatalf("expected the step kind to be applied, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected the cause to be preserved, got %v", err)
	}
}

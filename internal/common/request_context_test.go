package common

import (
	"errors"
	"testing"
)

func TestEndStepAccumulatesTokens(t *testing.T) {
	rc := NewWorkerContext("test")

	rc.StartStep("first_extraction")
	rc.EndStep("success", &TokenUsage{InputTokens: 120, OutputTokens: 80, TotalTokens: 200, CostUSD: 0.02}, nil)

	if rc.TotalTokens.TotalTokens != 200 {
		t.Fatalf("total tokens = %d, want 200", rc.TotalTokens.TotalTokens)
	}
}

func TestEndStepAccumulatesTokensOnFailure(t *testing.T) {
	rc := NewWorkerContext("test")

	rc.StartStep("verification_pass")
	rc.EndStep("failed", &TokenUsage{InputTokens: 80, OutputTokens: 20, TotalTokens: 100, CostUSD: 0.01}, errors.New("unparseable response"))

	// The model call was billed even though the step failed afterwards
	if rc.TotalTokens.TotalTokens != 100 {
		t.Fatalf("total tokens after failed step = %d, want 100", rc.TotalTokens.TotalTokens)
	}
	if rc.TotalTokens.CostUSD != 0.01 {
		t.Errorf("cost after failed step = %.4f, want 0.01", rc.TotalTokens.CostUSD)
	}

	if len(rc.Steps) != 1 {
		t.Fatalf("recorded %d steps, want 1", len(rc.Steps))
	}
	if rc.Steps[0].Status != "failed" || rc.Steps[0].Error == "" {
		t.Errorf("step log = %+v, want failed status with error text", rc.Steps[0])
	}
}

func TestAddTokens(t *testing.T) {
	rc := NewWorkerContext("test")

	rc.AddTokens(&TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, CostUSD: 0.001})
	rc.AddTokens(nil)
	rc.AddTokens(&TokenUsage{InputTokens: 20, OutputTokens: 10, TotalTokens: 30, CostUSD: 0.002})

	if rc.TotalTokens.InputTokens != 30 || rc.TotalTokens.OutputTokens != 15 || rc.TotalTokens.TotalTokens != 45 {
		t.Errorf("accumulated usage = %+v, want 30in/15out/45 total", rc.TotalTokens)
	}
}

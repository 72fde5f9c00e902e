package core

import (
	"context"
	"testing"

	"github.com/mohammad-safakhou/deepresearch/internal/session"
	"github.com/mohammad-safakhou/deepresearch/provider"
)

func TestWorkerExhaustionCompletesWithoutError(t *testing.T) {
	llm := newStubLLM()
	llm.respond = func(req provider.ChatRequest) (*provider.ChatResponse, error) {
		return textResponse("still gathering evidence"), nil
	}
	worker := NewWorkerAgent(llm, testRegistry(nil, nil), "worker_1", 3, 1<<40, NoOpProgress{})

	fc, report := worker.Execute(context.Background(), SubTask{ID: "task_1", Objective: "alpha"})

	if report.Err != "max_iterations" {
		t.Fatalf("report err = %q", report.Err)
	}
	if fc.Status != session.StatusCompleted {
		t.Fatalf("status = %q", fc.Status)
	}
	if fc.Error != "" {
		t.Fatalf("completed worker carries error %q", fc.Error)
	}
	if fc.FinalOutput == "" {
		t.Fatal("exhausted worker should still report its findings")
	}
}

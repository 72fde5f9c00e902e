package main

import (
	"strings"
	"testing"
)

func TestBuildRuntimeRejectsInvalidConfig(t *testing.T) {
	t.Setenv("DEEPRESEARCH_LLM_API_KEY", "")

	_, err := buildRuntime("", "", 0, false)
	if err == nil {
		t.Fatal("expected a validation error for the missing api key")
	}
	if !strings.Contains(err.Error(), "DEEPRESEARCH_LLM_API_KEY") {
		t.Fatalf("err = %v, want the api key hint", err)
	}
}

package app

import (
	"errors"
	"testing"
	"time"
)

func TestNewOperation(t *testing.T) {
	started := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		operation  string
		parameters string
	}{
		{
			name:       "with parameters",
			operation:  "Record",
			parameters: "name=Thames walk",
		},
		{
			name:       "empty parameters",
			operation:  "List",
			parameters: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation(tt.operation, tt.parameters, started)

			if op.Name != tt.operation {
				t.Errorf("Name = %q, want %q", op.Name, tt.operation)
			}
			if op.Parameters != tt.parameters {
				t.Errorf("Parameters = %q, want %q", op.Parameters, tt.parameters)
			}
			if op.Status != "success" {
				t.Errorf("Status = %q, want %q", op.Status, "success")
			}
			if op.Failed() {
				t.Error("Failed() = true for a new operation")
			}
		})
	}
}

func TestOperation_Track(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error keeps success", err: nil, want: false},
		{name: "error marks failure", err: errors.New("boom"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation("Rename", "", time.Now())
			if got := op.Track(tt.err); got != tt.err {
				t.Errorf("Track() = %v, want %v", got, tt.err)
			}
			if op.Failed() != tt.want {
				t.Errorf("Failed() = %v, want %v", op.Failed(), tt.want)
			}
		})
	}
}

func TestOperation_Elapsed(t *testing.T) {
	started := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	op := NewOperation("Record", "", started)

	if got := op.Elapsed(started.Add(90 * time.Second)); got != 90*time.Second {
		t.Errorf("Elapsed() = %v, want 1m30s", got)
	}
}

package probe

import (
	"context"
	"errors"
	"testing"
)

func TestRun(t *testing.T) {
	results := Run(context.Background(),
		Probe{
			Name: "Database",
			Check: func(ctx context.Context) error {
				return nil
			},
			Critical: true,
		},
		Probe{
			Name: "Fleet",
			Check: func(ctx context.Context) error {
				return errors.New("no active bases registered")
			},
		},
	)

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if !results[0].OK() {
		t.Errorf("Expected success probe to pass, got error: %v", results[0].Err)
	}
	if !results[0].Critical {
		t.Error("Expected critical flag to carry over to the result")
	}
	if results[1].OK() {
		t.Error("Expected failure probe to fail, got nil")
	}
}

func TestAnalyzeResults(t *testing.T) {
	tests := []struct {
		name    string
		results []Result
		wantErr bool
	}{
		{
			name: "All Pass",
			results: []Result{
				{Name: "P1", Critical: true},
			},
			wantErr: false,
		},
		{
			name: "Critical Failure",
			results: []Result{
				{Name: "P1", Critical: true, Err: errors.New("fail")},
			},
			wantErr: true,
		},
		{
			name: "Non-Critical Failure",
			results: []Result{
				{Name: "P1", Err: errors.New("fail")},
			},
			wantErr: false,
		},
		{
			name: "Mixed Failure",
			results: []Result{
				{Name: "P1", Err: errors.New("fail")},
				{Name: "P2", Critical: true, Err: errors.New("fail")},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AnalyzeResults(tt.results)
			if (err != nil) != tt.wantErr {
				t.Errorf("AnalyzeResults() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

package store

import (
	"errors"
	"math"
	"testing"
)

func TestValidateVector(t *testing.T) {
	tests := []struct {
		name    string
		vec     []float32
		dim     int
		wantErr bool
	}{
		{name: "valid", vec: []float32{0.1, 0.2, 0.3}, dim: 3, wantErr: false},
		{name: "too short", vec: []float32{0.1}, dim: 3, wantErr: true},
		{name: "too long", vec: []float32{0.1, 0.2, 0.3, 0.4}, dim: 3, wantErr: true},
		{name: "nil vector", vec: nil, dim: 3, wantErr: true},
		{name: "NaN component", vec: []float32{0.1, float32(math.NaN()), 0.3}, dim: 3, wantErr: true},
		{name: "Inf component", vec: []float32{float32(math.Inf(1)), 0.2, 0.3}, dim: 3, wantErr: true},
		{name: "zero vector is valid", vec: []float32{0, 0, 0}, dim: 3, wantErr: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVector(tt.vec, tt.dim)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateVector() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidVector) {
				t.Errorf("ValidateVector() error = %v, want errors.Is(err, ErrInvalidVector)", err)
			}
		})
	}
}

func TestValidateTurns(t *testing.T) {
	tests := []struct {
		name    string
		turns   []Turn
		wantErr bool
	}{
		{name: "user and model", turns: []Turn{{Role: RoleUser, Content: "q"}, {Role: RoleModel, Content: "a"}}, wantErr: false},
		{name: "empty slice", turns: nil, wantErr: false},
		{name: "assistant rejected", turns: []Turn{{Role: "assistant", Content: "a"}}, wantErr: true},
		{name: "empty role rejected", turns: []Turn{{Role: "", Content: "a"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTurns(tt.turns)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTurns() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRole) {
				t.Errorf("ValidateTurns() error = %v, want errors.Is(err, ErrInvalidRole)", err)
			}
		})
	}
}

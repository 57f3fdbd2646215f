package model

import (
	"testing"

	"github.com/YuminosukeSato/irisml/pkg/errors"
)

func TestStateManager(t *testing.T) {
	s := NewStateManager()
	if s.IsFitted() {
		t.Fatal("new StateManager should not be fitted")
	}

	err := s.RequireFitted("StandardScaler", "Transform")
	var notFitted *errors.NotFittedError
	if !errors.As(err, &notFitted) {
		t.Fatalf("RequireFitted() = %v, want NotFittedError", err)
	}

	s.SetFitted(4, 120)
	if err := s.RequireFitted("StandardScaler", "Transform"); err != nil {
		t.Errorf("RequireFitted() after SetFitted = %v", err)
	}
	if f, n := s.Dimensions(); f != 4 || n != 120 {
		t.Errorf("Dimensions() = (%d, %d), want (4, 120)", f, n)
	}

	if err := s.RequireFeatures("Transform", 4); err != nil {
		t.Errorf("RequireFeatures(4) = %v", err)
	}
	var dimErr *errors.DimensionError
	if err := s.RequireFeatures("Transform", 3); !errors.As(err, &dimErr) {
		t.Errorf("RequireFeatures(3) = %v, want DimensionError", err)
	}

	s.Reset()
	if s.IsFitted() {
		t.Error("Reset should clear fitted state")
	}
}

package vision

import (
	"errors"
	"testing"
)

func TestGetEngineBeforeInit(t *testing.T) {
	CloseEngine()
	_, err := GetEngine()
	if err == nil {
		t.Fatal("expected a hard failure before Init")
	}
	var initErr *InitializationError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected an InitializationError, got %T: %v", err, err)
	}
}

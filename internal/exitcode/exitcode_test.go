package exitcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitErrorUnwrapsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("load: %w", BadConfig("history.backend: unknown backend"))

	var exitErr ExitError
	if !errors.As(err, &exitErr) {
		t.Fatal("errors.As did not find ExitError")
	}
	if exitErr.Code != Config {
		t.Errorf("code = %d, want %d", exitErr.Code, Config)
	}
	if exitErr.Error() != "history.backend: unknown backend" {
		t.Errorf("message = %q", exitErr.Error())
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		err  ExitError
		code int
	}{
		{BadUsage("x"), Usage},
		{BadConfig("x"), Config},
		{Cancel(), Cancelled},
	}
	for _, tt := range tests {
		if tt.err.Code != tt.code {
			t.Errorf("%q code = %d, want %d", tt.err.Message, tt.err.Code, tt.code)
		}
	}
}

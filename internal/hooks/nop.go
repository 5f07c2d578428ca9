// Package hooks provides default no-op implementations of the processor's
// optional callbacks, so the façade and loop never need a nil check for the
// two callbacks that are not mandatory.
package hooks

import (
	"context"

	"github.com/arloliu/eventproc/internal/types"
)

// NopInitializing leaves the pump's default starting position untouched.
func NopInitializing(_ context.Context, _ string, _ *types.EventPosition) error {
	return nil
}

// NopClosing does nothing on partition close.
func NopClosing(_ context.Context, _ string, _ types.CloseReason) error {
	return nil
}

//go:build !js && !wasm
// +build !js,!wasm

package tutor

import (
	"context"
	"fmt"
)

// callCompletion is a stub for non-WASM builds.
func (s *Service) callCompletion(_ context.Context, _ string) (string, error) {
	return "", fmt.Errorf("tutor: completion calls require WASM environment")
}

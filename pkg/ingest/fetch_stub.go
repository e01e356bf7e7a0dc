//go:build !js && !wasm
// +build !js,!wasm

package ingest

import (
	"context"
	"fmt"
)

// callIngest is a stub for non-WASM builds.
func (s *Service) callIngest(_ context.Context, _ string) (string, error) {
	return "", fmt.Errorf("ingest: document processing requires WASM environment")
}

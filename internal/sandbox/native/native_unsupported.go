//go:build !darwin && !linux

package native

import "github.com/basket/go-claw/internal/skillerrors"

// unsupportedSandbox refuses to run on platforms with no sandbox tier.
// Degrading to unsandboxed execution is never acceptable.
type unsupportedSandbox struct{}

func newPlatformSandbox() platformSandbox {
	return unsupportedSandbox{}
}

// ReexecEntrypoint is a no-op on platforms with no native sandbox tier.
func ReexecEntrypoint() {}

func (unsupportedSandbox) Wrap(req RunRequest, argv []string) ([]string, func(), error) {
	return nil, nil, skillerrors.New(skillerrors.UnsupportedPlatform,
		"native sandbox is not implemented for this platform; refusing to run unsandboxed")
}

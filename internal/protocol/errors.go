package protocol

import (
	"errors"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/worldapi"
)

const (
	ErrBadRequest = "E_BAD_REQUEST"
	ErrNotFound   = "E_NOT_FOUND"

	// Construction rejections reported by the world.
	ErrOutOfBounds   = "E_OUT_OF_BOUNDS"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrLevelTooLow   = "E_LEVEL_TOO_LOW"
	ErrFull          = "E_FULL"
	ErrNotOwner      = "E_NOT_OWNER"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:    {},
	ErrNotFound:      {},
	ErrOutOfBounds:   {},
	ErrInvalidTarget: {},
	ErrLevelTooLow:   {},
	ErrFull:          {},
	ErrNotOwner:      {},
	ErrInternal:      {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeFor maps a world or planner error to its wire code. A nil error has
// no code.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, worldapi.ErrOutOfBounds):
		return ErrOutOfBounds
	case errors.Is(err, worldapi.ErrInvalidTarget):
		return ErrInvalidTarget
	case errors.Is(err, worldapi.ErrLevelTooLow):
		return ErrLevelTooLow
	case errors.Is(err, worldapi.ErrFull):
		return ErrFull
	case errors.Is(err, worldapi.ErrNotOwner):
		return ErrNotOwner
	}
	return ErrInternal
}

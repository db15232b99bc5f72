package utils

import (
	"github.com/pkg/errors"
)

// NewDimensionMismatchError is used when two parallel inputs do not have the same length.
func NewDimensionMismatchError(what string, expected, actual int) error {
	return errors.Errorf("%s: expected %d elements but got %d", what, expected, actual)
}

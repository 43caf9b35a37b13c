package merkle

import "errors"

var (
	ErrLeafIndexOutOfRange = errors.New("leaf index out of range")
	ErrEmptyTree           = errors.New("tree has no leaves")
)

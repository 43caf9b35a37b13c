package policy

import (
	"errors"
	"fmt"
)

var (
	ErrMissingTemplate    = errors.New("missing descriptor template")
	ErrMissingKeys        = errors.New("missing keys information")
	ErrNameTooLong        = fmt.Errorf("name must not exceed %d bytes", MaxNameLength)
	ErrTooManyKeys        = fmt.Errorf("policy must not have more than %d keys", MaxKeys)
	ErrInvalidKeyInfo     = errors.New("key info must be in the form [fingerprint/path]xpub or xpub")
	ErrPrivateKey         = errors.New("key info must not contain an extended private key")
	ErrInvalidPlaceholder = errors.New("template refers to a key placeholder out of range")
	ErrUnusedKey          = errors.New("every key must be referenced by the template")
	ErrUnsupportedDefault = errors.New("template is not a standard single-signature template")
)

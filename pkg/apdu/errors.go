package apdu

import (
	"errors"
	"fmt"
)

var (
	ErrDataTooLong = fmt.Errorf(
		"apdu data must not exceed %d bytes", MaxDataLength,
	)
	ErrShortResponse = errors.New("response must contain at least the status word")
)

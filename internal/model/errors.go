package model

import (
	"errors"
)

var (
	ErrConfig    = errors.New("invalid config")
	ErrISOFormat = errors.New("invalid ISO8601 duration")
)

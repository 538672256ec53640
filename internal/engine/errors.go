package engine

import "errors"

var (
	ErrUnknownSymbol      = errors.New("symbol not subscribed")
	ErrAlreadySubscribed  = errors.New("symbol already subscribed")
	ErrNotRunning         = errors.New("engine not running")
	ErrDuplicateShortName = errors.New("instrument name already mapped to another symbol")
)

package chrome

import "errors"

// Session errors - returned while loading and reading a presentation
var (
	ErrNavigateFailed   = errors.New("navigation failed")
	ErrReadinessTimeout = errors.New("readiness signal not observed")
	ErrDocumentSnapshot = errors.New("document snapshot failed")
	ErrUnknownNode      = errors.New("node not in document snapshot")
	ErrScriptException  = errors.New("script raised an exception")
)

// Pool errors - returned during browser instance management
var (
	ErrPoolShutdown  = errors.New("pool is shutting down")
	ErrInstanceDead  = errors.New("browser instance is dead")
	ErrRestartFailed = errors.New("browser restart failed")
)

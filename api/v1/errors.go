package v1

var (
	// common errors
	ErrSuccess             = newError(0, "ok")
	ErrBadRequest          = newError(400, "bad request")
	ErrUnauthorized        = newError(401, "unauthorized")
	ErrNotFound            = newError(404, "not found")
	ErrInternalServerError = newError(500, "internal server error")

	// user errors
	ErrUsernameAlreadyUse = newError(1001, "The username is already in use.")

	// sync errors
	ErrSyncAlreadyRunning = newError(2001, "sync already running")
	ErrNoSyncRunning      = newError(2002, "no sync running")
	ErrInvalidRootPath    = newError(2003, "invalid root path")
	ErrNoValidFiles       = newError(2004, "no valid files found")
	ErrQuotaExceeded      = newError(2005, "remote storage quota exceeded")
	ErrRemoteAuthFailed   = newError(2006, "remote storage authentication failed")
	ErrNothingToRetry     = newError(2007, "no failed files to retry")
	ErrInvalidClearType   = newError(2008, "invalid clear type")
)

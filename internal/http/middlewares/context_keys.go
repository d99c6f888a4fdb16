package middlewares

// Keys stored on the gin context.
const (
	CtxRequestID = "request_id"
	CtxJobID     = "job_id"

	ctxUserIDKey = "auth.userID"
	ctxEmailKey  = "auth.email"
	ctxRoleKey   = "auth.role"
)

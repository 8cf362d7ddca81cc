package middleware

import (
	"net/http"

	"github.com/frahmantamala/paygate/pkg/logger"
	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"
)

const HeaderTraceID = "X-Trace-ID"

// RequestID propagates X-Trace-ID and attaches it, with chi's request id, to
// the context logger.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(HeaderTraceID)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		fields := []any{"trace_id", traceID}
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		ctx := logger.With(r.Context(), fields...)

		w.Header().Set(HeaderTraceID, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

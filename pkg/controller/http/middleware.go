package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/utils/errutil"
	"github.com/projectloop/mailgrouper/pkg/utils/logging"
)

// accessLogger logs every request the same way the teacher's accessLogger
// does, plus appends a SPEC_FULL §11 AuditEvent when an AuditRepository is
// configured — the audit trail is a side effect of serving the request,
// not a separate pass over traffic.
func accessLogger(audit interfaces.AuditRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				dur := time.Since(start)
				logging.Default().Info("access",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", dur,
					"remote", r.RemoteAddr,
				)

				if audit == nil {
					return
				}
				userID, _ := UserFromContext(r.Context())
				ev := &model.AuditEvent{
					UserID:     userID,
					Method:     r.Method,
					Path:       r.URL.Path,
					StatusCode: ww.Status(),
					DurationMS: dur.Milliseconds(),
					RemoteAddr: r.RemoteAddr,
					At:         start.UTC(),
				}
				if err := audit.Append(r.Context(), ev); err != nil {
					errutil.Handle(r.Context(), err, "append audit event")
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

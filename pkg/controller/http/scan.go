package http

import (
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/usecase"
)

func scanOndemandHandler(uc *usecase.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserFromContext(r.Context())
		limit := atoiDefault(r.URL.Query().Get("limit"), 0)

		enqueued, err := uc.ScanOndemand(r.Context(), userID, limit)
		if err != nil {
			handleErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, struct {
			Enqueued int `json:"enqueued"`
		}{enqueued})
	}
}

type scanRetroactiveRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func scanRetroactiveHandler(uc *usecase.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserFromContext(r.Context())

		var req scanRetroactiveRequest
		if err := decodeJSON(r, &req); err != nil {
			handleErr(w, r, err)
			return
		}

		start, err := time.Parse(rfc3339, req.Start)
		if err != nil {
			handleErr(w, r, goerr.Wrap(interfaces.ErrInvalidInput, "invalid start timestamp", goerr.V("cause", err.Error())))
			return
		}
		end, err := time.Parse(rfc3339, req.End)
		if err != nil {
			handleErr(w, r, goerr.Wrap(interfaces.ErrInvalidInput, "invalid end timestamp", goerr.V("cause", err.Error())))
			return
		}

		if err := uc.ScanRetroactive(r.Context(), userID, start, end); err != nil {
			handleErr(w, r, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

package http

import (
	"net/http"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/usecase"
)

type queueStatsResponse struct {
	Notification queueDepth `json:"notification"`
	AIProcessing queueDepth `json:"ai_processing"`
	Reflection   queueDepth `json:"reflection"`
}

type queueDepth struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Dead       int `json:"dead"`
}

func toQueueDepth(s interfaces.QueueStats) queueDepth {
	return queueDepth{Pending: s.Pending, Processing: s.Processing, Completed: s.Completed, Failed: s.Failed, Dead: s.Dead}
}

func queueStatsHandler(uc *usecase.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := uc.QueueStats(r.Context())
		if err != nil {
			handleErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, queueStatsResponse{
			Notification: toQueueDepth(report.Notification),
			AIProcessing: toQueueDepth(report.AIProcessing),
			Reflection:   toQueueDepth(report.Reflection),
		})
	}
}

// queueProcessHandler backs POST /api/v1/queue/process, draining one batch
// from each durable queue synchronously (spec §6: an operator-triggered
// drain rather than waiting on the next poll tick).
func queueProcessHandler(uc *usecase.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uc.QueueProcess(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}
}

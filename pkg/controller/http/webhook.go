package http

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/goerr/v2"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/usecase"
)

// pubsubPushEnvelope is the standard Cloud Pub/Sub push delivery shape
// Gmail watch notifications arrive in (spec §4.3): Message.Data is a
// base64-encoded JSON payload carrying the watched mailbox's address.
type pubsubPushEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type pubsubPushData struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// webhookHandler backs POST /webhook/mail. The envelope is untrusted for
// anything beyond identifying which mailbox to resync (HandlePush re-reads
// history from the persisted cursor rather than trusting the push body),
// matching watch.Coordinator.HandlePush's own doc comment.
func webhookHandler(uc *usecase.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var envelope pubsubPushEnvelope
		if err := decodeJSON(r, &envelope); err != nil {
			handleErr(w, r, err)
			return
		}

		raw, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
		if err != nil {
			handleErr(w, r, goerr.Wrap(interfaces.ErrInvalidInput, "push message data is not valid base64", goerr.V("cause", err.Error())))
			return
		}

		var data pubsubPushData
		if err := json.Unmarshal(raw, &data); err != nil {
			handleErr(w, r, goerr.Wrap(interfaces.ErrInvalidInput, "push message data is not valid json", goerr.V("cause", err.Error())))
			return
		}
		if data.EmailAddress == "" {
			handleErr(w, r, goerr.Wrap(interfaces.ErrInvalidInput, "push message data missing emailAddress"))
			return
		}

		if err := uc.HandleWebhook(r.Context(), model.UserID(data.EmailAddress)); err != nil {
			handleErr(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

package http

import (
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/goerr/v2"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/utils/errutil"
)

// writeJSON marshals v and writes it with the given status, matching the
// teacher's workspacesHandler: marshal first, write the header only once
// marshaling succeeded.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck // header already committed
}

// decodeJSON parses the request body into v, reporting a client error on
// malformed JSON via interfaces.ErrInvalidInput rather than a 500.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return goerr.Wrap(interfaces.ErrInvalidInput, "malformed request body", goerr.V("cause", err.Error()))
	}
	return nil
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	errutil.HandleHTTP(r.Context(), w, err)
}

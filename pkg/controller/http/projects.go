package http

import (
	"net/http"
	"strconv"

	"github.com/m-mizutani/goerr/v2"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
	"github.com/projectloop/mailgrouper/pkg/usecase"
)

// projectResponse is the local DTO shaping model.Project for the wire,
// since the domain model carries no json tags (mirrors teacher's
// workspaceResponse in server.go).
type projectResponse struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Aliases            []string `json:"aliases"`
	Address            string   `json:"address,omitempty"`
	JobNumbers         []string `json:"job_numbers,omitempty"`
	ClientName         string   `json:"client_name,omitempty"`
	ClientEmail        string   `json:"client_email,omitempty"`
	Status             string   `json:"status"`
	EmailCount         int      `json:"email_count"`
	CreationConfidence float64  `json:"creation_confidence"`
	NeedsReview        bool     `json:"needs_review"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`
}

func toProjectResponse(p *model.Project) projectResponse {
	return projectResponse{
		ID:                 string(p.ID),
		Name:               p.Name,
		Aliases:            p.Aliases,
		Address:            p.Address.Full,
		JobNumbers:         p.JobNumbers,
		ClientName:         p.Client.Name,
		ClientEmail:        p.Client.Email,
		Status:             p.Status.String(),
		EmailCount:         p.EmailCount,
		CreationConfidence: p.CreationConfidence,
		NeedsReview:        p.NeedsReview,
		CreatedAt:          p.CreatedAt.Format(rfc3339),
		UpdatedAt:          p.UpdatedAt.Format(rfc3339),
	}
}

const rfc3339 = "2006-01-02T15:04:05Z07:00"

func listProjectsHandler(uc *usecase.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserFromContext(r.Context())
		if !ok {
			handleErr(w, r, goerr.Wrap(interfaces.ErrAuthExpired, "unauthenticated"))
			return
		}

		projects, err := uc.ListProjects(r.Context(), userID, r.URL.Query().Get("status"))
		if err != nil {
			handleErr(w, r, err)
			return
		}

		out := make([]projectResponse, len(projects))
		for i, p := range projects {
			out[i] = toProjectResponse(p)
		}
		writeJSON(w, http.StatusOK, struct {
			Projects []projectResponse `json:"projects"`
		}{out})
	}
}

func getProjectHandler(uc *usecase.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserFromContext(r.Context())
		p, err := uc.GetProject(r.Context(), userID, model.ProjectID(pathParam(r, "id")))
		if err != nil {
			handleErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toProjectResponse(p))
	}
}

type updateProjectRequest struct {
	Name    *string  `json:"name,omitempty"`
	Aliases []string `json:"aliases,omitempty"`
	Status  *string  `json:"status,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

func updateProjectHandler(uc *usecase.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserFromContext(r.Context())

		var req updateProjectRequest
		if err := decodeJSON(r, &req); err != nil {
			handleErr(w, r, err)
			return
		}

		patch := usecase.ProjectPatch{Name: req.Name, Aliases: req.Aliases}
		if req.Status != nil {
			st := types.ProjectStatus(*req.Status)
			patch.Status = &st
		}

		p, err := uc.UpdateProject(r.Context(), userID, model.ProjectID(pathParam(r, "id")), patch, req.Reason)
		if err != nil {
			handleErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toProjectResponse(p))
	}
}

type assignEmailRequest struct {
	MessageID string `json:"message_id"`
	Reason    string `json:"reason,omitempty"`
}

func assignEmailHandler(uc *usecase.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserFromContext(r.Context())

		var req assignEmailRequest
		if err := decodeJSON(r, &req); err != nil {
			handleErr(w, r, err)
			return
		}
		if req.MessageID == "" {
			handleErr(w, r, goerr.Wrap(interfaces.ErrInvalidInput, "message_id is required"))
			return
		}

		p, err := uc.AssignEmail(r.Context(), userID, model.ProjectID(pathParam(r, "id")), model.MessageID(req.MessageID), req.Reason)
		if err != nil {
			handleErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toProjectResponse(p))
	}
}

func unassignEmailHandler(uc *usecase.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserFromContext(r.Context())
		reason := r.URL.Query().Get("reason")

		err := uc.UnassignEmail(r.Context(), userID, model.ProjectID(pathParam(r, "id")), model.MessageID(pathParam(r, "mid")), reason)
		if err != nil {
			handleErr(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func mergeProjectsHandler(uc *usecase.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserFromContext(r.Context())
		target := r.URL.Query().Get("target")
		if target == "" {
			handleErr(w, r, goerr.Wrap(interfaces.ErrInvalidInput, "target query parameter is required"))
			return
		}

		p, err := uc.MergeProjects(r.Context(), userID, model.ProjectID(pathParam(r, "id")), model.ProjectID(target))
		if err != nil {
			handleErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toProjectResponse(p))
	}
}

type splitProjectRequest struct {
	MessageIDs []string `json:"message_ids"`
	NewName    string   `json:"new_name"`
}

func splitProjectHandler(uc *usecase.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserFromContext(r.Context())

		var req splitProjectRequest
		if err := decodeJSON(r, &req); err != nil {
			handleErr(w, r, err)
			return
		}

		msgIDs := make([]model.MessageID, len(req.MessageIDs))
		for i, m := range req.MessageIDs {
			msgIDs[i] = model.MessageID(m)
		}

		p, err := uc.SplitProject(r.Context(), userID, model.ProjectID(pathParam(r, "id")), msgIDs, req.NewName)
		if err != nil {
			handleErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toProjectResponse(p))
	}
}

// atoiDefault parses s as an int, returning def on failure or empty input —
// used by scan.go and queue.go for optional numeric query parameters.
func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

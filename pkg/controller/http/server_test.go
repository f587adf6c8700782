package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"

	httpctrl "github.com/projectloop/mailgrouper/pkg/controller/http"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
	"github.com/projectloop/mailgrouper/pkg/notify"
	"github.com/projectloop/mailgrouper/pkg/repository/memory"
	"github.com/projectloop/mailgrouper/pkg/usecase"
)

const testUserID = model.UserID("user-1")

func newTestServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	repo := memory.New()

	_, err := repo.Project().Create(context.Background(), testUserID, &model.Project{
		ID:     model.ProjectID("p1"),
		UserID: testUserID,
		Name:   "123 Example St",
		Status: types.ProjectStatusActive,
	})
	gt.NoError(t, err).Required()

	uc := usecase.New(repo, nil, nil, nil, nil, nil, nil, nil, usecase.Config{})
	hub := notify.NewHub()
	srv := httpctrl.New(uc, hub, httpctrl.Config{})

	ts := httptest.NewServer(srv)
	return ts, ts.Close
}

func authedRequest(t *testing.T, method, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	gt.NoError(t, err).Required()
	req.Header.Set("Authorization", "Bearer "+string(testUserID))
	return req
}

func TestListProjectsRequiresBearerToken(t *testing.T) {
	ts, closeFn := newTestServer(t)
	defer closeFn()

	resp, err := http.Get(ts.URL + "/api/v1/projects")
	gt.NoError(t, err).Required()
	defer resp.Body.Close()
	gt.Value(t, resp.StatusCode).Equal(http.StatusUnauthorized)
}

func TestListProjectsReturnsOwnedProjects(t *testing.T) {
	ts, closeFn := newTestServer(t)
	defer closeFn()

	req := authedRequest(t, http.MethodGet, ts.URL+"/api/v1/projects")
	resp, err := http.DefaultClient.Do(req)
	gt.NoError(t, err).Required()
	defer resp.Body.Close()
	gt.Value(t, resp.StatusCode).Equal(http.StatusOK)

	var body struct {
		Projects []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"projects"`
	}
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&body)).Required()
	gt.Array(t, body.Projects).Length(1)
	gt.Value(t, body.Projects[0].ID).Equal("p1")
}

func TestGetProjectNotFound(t *testing.T) {
	ts, closeFn := newTestServer(t)
	defer closeFn()

	req := authedRequest(t, http.MethodGet, ts.URL+"/api/v1/projects/does-not-exist")
	resp, err := http.DefaultClient.Do(req)
	gt.NoError(t, err).Required()
	defer resp.Body.Close()
	gt.Value(t, resp.StatusCode).Equal(http.StatusNotFound)
}

func TestWebhookRejectsBadToken(t *testing.T) {
	repo := memory.New()
	uc := usecase.New(repo, nil, nil, nil, nil, nil, nil, nil, usecase.Config{})
	hub := notify.NewHub()
	srv := httpctrl.New(uc, hub, httpctrl.Config{WebhookSharedSecret: "s3cret"})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/webhook/mail/?token=wrong", "application/json", nil)
	gt.NoError(t, err).Required()
	defer resp.Body.Close()
	gt.Value(t, resp.StatusCode).Equal(http.StatusUnauthorized)
}

package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type scanConfigRepository struct {
	client *firestore.Client
	prefix string
}

func (r *scanConfigRepository) collection() string {
	if r.prefix != "" {
		return r.prefix + "_scan_configs"
	}
	return "scan_configs"
}

func (r *scanConfigRepository) Get(ctx context.Context, userID model.UserID) (*model.ScanConfig, error) {
	doc, err := r.client.Collection(r.collection()).Doc(string(userID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return &model.ScanConfig{UserID: userID, MaxLookbackDays: 7, UpdatedAt: time.Now().UTC()}, nil
		}
		return nil, goerr.Wrap(err, "failed to get scan config", goerr.V("userID", userID))
	}
	var c model.ScanConfig
	if err := doc.DataTo(&c); err != nil {
		return nil, goerr.Wrap(err, "failed to decode scan config", goerr.V("userID", userID))
	}
	return &c, nil
}

func (r *scanConfigRepository) Put(ctx context.Context, c *model.ScanConfig) error {
	c.UpdatedAt = time.Now().UTC()
	_, err := r.client.Collection(r.collection()).Doc(string(c.UserID)).Set(ctx, c)
	if err != nil {
		return goerr.Wrap(err, "failed to put scan config", goerr.V("userID", c.UserID))
	}
	return nil
}

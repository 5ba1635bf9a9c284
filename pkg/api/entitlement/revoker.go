// Package entitlement revokes published content when a subscription
// lapses, by calling the main application's internal API.
package entitlement

import (
	"context"
	"fmt"

	"github.com/levigross/grequests"
	"github.com/pkg/errors"

	"github.com/azzapp/billing-api/internal/shared/config"
	"github.com/azzapp/billing-api/internal/shared/logutil"
)

type Revoker interface {
	UnpublishWebCardForUser(ctx context.Context, userID uint) error
}

type HTTPRevoker struct {
	log logutil.Log

	apiRoot     string
	accessToken string
}

var _ Revoker = HTTPRevoker{}

func NewHTTPRevoker(log logutil.Log, cfg config.Config) (*HTTPRevoker, error) {
	apiRoot := cfg.GetString("MAIN_APP_INTERNAL_ROOT")
	if apiRoot == "" {
		return nil, errors.New("no main app internal root")
	}

	accessToken := cfg.GetString("MAIN_APP_INTERNAL_ACCESS_TOKEN")
	if accessToken == "" {
		return nil, errors.New("no main app internal access token")
	}

	return &HTTPRevoker{
		log:         log,
		apiRoot:     apiRoot,
		accessToken: accessToken,
	}, nil
}

func (r HTTPRevoker) UnpublishWebCardForUser(ctx context.Context, userID uint) error {
	apiURL := fmt.Sprintf("%s/v1/users/%d/webcard/unpublish", r.apiRoot, userID)

	resp, err := grequests.Post(apiURL, &grequests.RequestOptions{
		Context: ctx,
		Headers: map[string]string{
			"X-Internal-Access-Token": r.accessToken,
		},
	})
	if err != nil {
		return errors.Wrapf(err, "failed to unpublish web card for user %d", userID)
	}
	if !resp.Ok {
		return fmt.Errorf("unpublish for user %d: response code %d", userID, resp.StatusCode)
	}

	r.log.Infof("Unpublished web card for user %d", userID)
	return nil
}

// NopRevoker is used in tests and in environments without the main app.
type NopRevoker struct {
	Revoked []uint
}

func (r *NopRevoker) UnpublishWebCardForUser(ctx context.Context, userID uint) error {
	r.Revoked = append(r.Revoked, userID)
	return nil
}

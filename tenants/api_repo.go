package tenants

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jrsteele09/retail-console/apiclient"
)

const (
	shopsPath       = "shops/"
	checkAccessPath = "shops/%d/check-access/"
)

var _ Repo = (*APIRepo)(nil)

// APIRepo reads shops from the remote API. The client must already carry the session's bearer token.
type APIRepo struct {
	client *apiclient.Client
}

func NewAPIRepo(client *apiclient.Client) *APIRepo {
	return &APIRepo{client: client}
}

// ShopsPath is the listing URL used as the fetch cache key for the shop list
func ShopsPath() string {
	return shopsPath
}

// CheckAccessPath returns the access re-check URL for a shop
func CheckAccessPath(shopID int64) string {
	return fmt.Sprintf(checkAccessPath, shopID)
}

func (r *APIRepo) List(ctx context.Context) ([]Shop, error) {
	body, err := r.client.Get(ctx, shopsPath)
	if err != nil {
		return nil, err
	}
	return DecodeShops(body)
}

func (r *APIRepo) CheckAccess(ctx context.Context, shopID int64) (AccessCheck, error) {
	var check AccessCheck
	if err := r.client.GetJSON(ctx, CheckAccessPath(shopID), &check); err != nil {
		return AccessCheck{}, err
	}
	if role, err := ParseRole(string(check.Role)); err == nil {
		check.Role = role
	}
	return check, nil
}

// DecodeShops accepts both a bare JSON array and a paginated {"results": [...]} page
func DecodeShops(body []byte) ([]Shop, error) {
	shops := []Shop{}
	if len(body) == 0 {
		return shops, nil
	}
	if err := json.Unmarshal(body, &shops); err == nil {
		return normaliseRoles(shops), nil
	}
	var page struct {
		Results []Shop `json:"results"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode shops: %w", err)
	}
	if page.Results == nil {
		return []Shop{}, nil
	}
	return normaliseRoles(page.Results), nil
}

// normaliseRoles folds API role spellings such as "Manager" onto the known roles.
// Unknown roles are left as sent so that selection still rejects them.
func normaliseRoles(shops []Shop) []Shop {
	for i := range shops {
		if role, err := ParseRole(string(shops[i].Role)); err == nil {
			shops[i].Role = role
		}
	}
	return shops
}

package tenants

import "context"

type Repo interface {
	List(ctx context.Context) ([]Shop, error)
	CheckAccess(ctx context.Context, shopID int64) (AccessCheck, error)
}

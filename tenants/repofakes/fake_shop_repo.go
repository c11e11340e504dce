package tenantrepofakes

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jrsteele09/retail-console/tenants"
)

var _ tenants.Repo = (*FakeShopRepo)(nil)

type FakeShopRepo struct {
	shops       map[int64]tenants.Shop
	access      map[int64]tenants.AccessCheck
	checkErr    error
	checkCalls  int
	checkCalled chan int64
	lock        sync.RWMutex
}

func NewFakeShopRepo() *FakeShopRepo {
	return &FakeShopRepo{
		shops:       make(map[int64]tenants.Shop),
		access:      make(map[int64]tenants.AccessCheck),
		checkCalled: make(chan int64, 16),
	}
}

// Upsert stores a shop and grants access with the shop's role
func (fr *FakeShopRepo) Upsert(shop tenants.Shop) {
	fr.lock.Lock()
	defer fr.lock.Unlock()
	fr.shops[shop.ID] = shop
	fr.access[shop.ID] = tenants.AccessCheck{HasAccess: true, Role: shop.Role}
}

func (fr *FakeShopRepo) SetAccess(shopID int64, check tenants.AccessCheck) {
	fr.lock.Lock()
	defer fr.lock.Unlock()
	fr.access[shopID] = check
}

func (fr *FakeShopRepo) SetCheckError(err error) {
	fr.lock.Lock()
	defer fr.lock.Unlock()
	fr.checkErr = err
}

func (fr *FakeShopRepo) CheckCalls() int {
	fr.lock.RLock()
	defer fr.lock.RUnlock()
	return fr.checkCalls
}

// Checked receives the shop id of every access check once it has been answered
func (fr *FakeShopRepo) Checked() <-chan int64 {
	return fr.checkCalled
}

func (fr *FakeShopRepo) List(_ context.Context) ([]tenants.Shop, error) {
	fr.lock.RLock()
	defer fr.lock.RUnlock()

	shops := make([]tenants.Shop, 0, len(fr.shops))
	for _, s := range fr.shops {
		shops = append(shops, s)
	}
	sort.Slice(shops, func(i, j int) bool {
		return shops[i].ID < shops[j].ID
	})
	return shops, nil
}

func (fr *FakeShopRepo) CheckAccess(_ context.Context, shopID int64) (tenants.AccessCheck, error) {
	fr.lock.Lock()
	fr.checkCalls++
	check, ok := fr.access[shopID]
	err := fr.checkErr
	fr.lock.Unlock()

	defer func() {
		select {
		case fr.checkCalled <- shopID:
		default:
		}
	}()

	if err != nil {
		return tenants.AccessCheck{}, err
	}
	if !ok {
		return tenants.AccessCheck{}, errors.New("not found")
	}
	return check, nil
}

package normalizer

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pricefeed/backend/internal/domain"
)

// Registry holds one normalizer per shop
type Registry struct {
	mu          sync.RWMutex
	normalizers map[string]Normalizer
}

// NewRegistry creates a registry holding ns
func NewRegistry(ns ...Normalizer) *Registry {
	r := &Registry{normalizers: make(map[string]Normalizer)}
	for _, n := range ns {
		r.Register(n)
	}
	return r
}

// DefaultRegistry registers every built-in retailer. configs override the
// built-in per-shop policy; missing entries keep the defaults.
func DefaultRegistry(deps Deps, configs map[string]ShopConfig) *Registry {
	pick := func(shop string, def ShopConfig) ShopConfig {
		if c, ok := configs[shop]; ok {
			return c
		}
		return def
	}
	return NewRegistry(
		NewCarrefour(deps, pick(CarrefourShop, DefaultCarrefourConfig())),
		NewAuchan(deps, pick(AuchanShop, DefaultAuchanConfig())),
	)
}

// DefaultShopConfigs returns the built-in policy of every retailer
func DefaultShopConfigs() map[string]ShopConfig {
	return map[string]ShopConfig{
		CarrefourShop: DefaultCarrefourConfig(),
		AuchanShop:    DefaultAuchanConfig(),
	}
}

// Register adds or replaces the normalizer for n.Shop()
func (r *Registry) Register(n Normalizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.normalizers[strings.ToLower(n.Shop())] = n
}

// Get returns the normalizer for shop
func (r *Registry) Get(shop string) (Normalizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.normalizers[strings.ToLower(strings.TrimSpace(shop))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownShop, shop)
	}
	return n, nil
}

// Shops lists registered shop ids in sorted order
func (r *Registry) Shops() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	shops := make([]string, 0, len(r.normalizers))
	for s := range r.normalizers {
		shops = append(shops, s)
	}
	sort.Strings(shops)
	return shops
}

// Detect returns the first normalizer, by shop id, that can handle raw
func (r *Registry) Detect(raw domain.RawRecord) (Normalizer, error) {
	for _, shop := range r.Shops() {
		n, err := r.Get(shop)
		if err != nil {
			continue
		}
		if n.CanHandle(raw) {
			return n, nil
		}
	}
	return nil, domain.ErrFormatNotSupported
}

package state

import "github.com/jrsteele09/retail-console/tenants"

// Storage keys, one per container
const (
	ShopKey     = "shop-storage"
	SessionKey  = "session-storage"
	CurrencyKey = "currency-storage"
	ModalKey    = "modal-storage"
	SidebarKey  = "sidebar-storage"
)

const DefaultCurrency = "UZS"

// ShopState is the selected tenant and the shops the user can pick from
type ShopState struct {
	Selected *tenants.Shop  `json:"selected_shop"`
	Shops    []tenants.Shop `json:"shops"`
}

// SessionState mirrors the active role and the path the console returns to
type SessionState struct {
	Role tenants.Role `json:"role"`
	Path string       `json:"path"`
}

type CurrencyState struct {
	Currency string `json:"currency"`
}

// ModalState names the modal left open, empty when none is
type ModalState struct {
	Open string `json:"open"`
}

type SidebarState struct {
	Collapsed bool `json:"collapsed"`
}

// Prefs is the UI preference view of a session
type Prefs struct {
	Currency         string `json:"currency"`
	Modal            string `json:"modal"`
	SidebarCollapsed bool   `json:"sidebar_collapsed"`
}

// PathMarker is the path persisted for a role
func PathMarker(role tenants.Role) string {
	if role == "" {
		return ""
	}
	return "/" + role.String()
}

package guard

// State is where one navigation stands in the session/role check
type State int

const (
	Unchecked State = iota
	TokenInvalid
	NoTenant
	RoleMismatch
	RoleAligned
)

func (s State) String() string {
	switch s {
	case Unchecked:
		return "unchecked"
	case TokenInvalid:
		return "token_invalid"
	case NoTenant:
		return "no_tenant"
	case RoleMismatch:
		return "role_mismatch"
	case RoleAligned:
		return "role_aligned"
	default:
		return "unknown"
	}
}

// Decision is the outcome of evaluating a navigation.
// Location is set when the navigation must move elsewhere; Replace marks a rewrite of the
// current entry rather than a new one.
type Decision struct {
	State    State
	Path     string
	Location string
	Replace  bool
}

// Render reports whether tenant-scoped content may be shown
func (d Decision) Render() bool {
	return d.State == RoleAligned
}

// Redirect reports whether the navigation must move to Location
func (d Decision) Redirect() bool {
	return d.Location != ""
}

package config

// AuthConfig is the flat admin/non-admin authorization model: a single
// owner plus an explicit admin id set. It is injected into every
// authorization check rather than read from ambient state.
type AuthConfig struct {
	OwnerID  string   `yaml:"owner_id" envconfig:"OWNER_ID"`
	AdminIDs []string `yaml:"admin_ids" envconfig:"ADMIN_IDS"`
}

// IsAdmin reports whether the given user may perform administrative
// operations. With an empty admin list only the owner qualifies; once
// admins are configured the list is authoritative.
func (a AuthConfig) IsAdmin(userID string) bool {
	if userID == "" {
		return false
	}
	if len(a.AdminIDs) == 0 {
		return a.OwnerID != "" && userID == a.OwnerID
	}
	for _, id := range a.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

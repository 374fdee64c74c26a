package session

import (
	"encoding/json"
	"strings"
)

// Shop identifies a tenant the user owns. Name is the unique slug used as a
// subdomain segment; DisplayName is the human label shown in dashboards.
type Shop struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// UnmarshalJSON accepts both the object form {"name":..,"displayName":..} and
// the bare string form the API returns for legacy accounts.
func (s *Shop) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		s.Name = name
		s.DisplayName = name
		return nil
	}
	type shopAlias Shop
	var alias shopAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*s = Shop(alias)
	return nil
}

// User is the authenticated profile returned by the API.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Shops    []Shop `json:"shops"`
}

// HasShop reports whether the user's shop list contains the given slug.
// Comparison is case-insensitive to match registration-time uniqueness rules.
func (u User) HasShop(name string) bool {
	for _, shop := range u.Shops {
		if strings.EqualFold(shop.Name, name) {
			return true
		}
	}
	return false
}

// Session pairs the authenticated user with the current access token. The
// token is an opaque bearer credential; the client never inspects it.
type Session struct {
	User        User
	AccessToken string
}

package memory

import (
	"cmp"
	"slices"
	"strings"

	"github.com/lborres/bantay/core"
)

func ptr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneUser(u *core.User) *core.User {
	c := *u
	c.Role = slices.Clone(u.Role)
	c.Image = ptr(u.Image)
	c.BanReason = ptr(u.BanReason)
	return &c
}

func cloneAccount(a *core.Account) *core.Account {
	c := *a
	c.Password = ptr(a.Password)
	c.AccessToken = ptr(a.AccessToken)
	c.RefreshToken = ptr(a.RefreshToken)
	c.ExpiresAt = ptr(a.ExpiresAt)
	return &c
}

func cloneVerification(v *core.Verification) *core.Verification {
	c := *v
	c.ConsumedAt = ptr(v.ConsumedAt)
	c.SupersededAt = ptr(v.SupersededAt)
	return &c
}

func matchesFilter(u *core.User, f core.UserFilter) bool {
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(u.Email), q) && !strings.Contains(strings.ToLower(u.Name), q) {
			return false
		}
	}
	if f.Role != "" && !u.Role.Has(f.Role) {
		return false
	}
	if f.Banned != nil && u.Banned != *f.Banned {
		return false
	}
	if f.EmailVerified != nil && u.EmailVerified != *f.EmailVerified {
		return false
	}
	return true
}

func compareUsers(a, b *core.User, field core.SortField) int {
	switch field {
	case core.SortEmail:
		return strings.Compare(a.Email, b.Email)
	case core.SortName:
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	case core.SortEmailVerified:
		return cmp.Compare(boolInt(a.EmailVerified), boolInt(b.EmailVerified))
	}
	return a.CreatedAt.Compare(b.CreatedAt)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func cmpInt64(a, b int64) int { return cmp.Compare(a, b) }

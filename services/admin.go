package services

import (
	"context"
	"time"

	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/email"
)

// Ensure AdminService implements AdminHandler
var _ core.AdminHandler = (*AdminService)(nil)

const (
	// CapabilityManageUsers covers every admin operation.
	CapabilityManageUsers = "users:manage"

	DefaultPageLimit = 20
	MaxPageLimit     = 100

	statsMonths = 6
)

// AdminService overlays roles and bans on users. Every operation names its
// actor explicitly and is checked through HasPermission.
type AdminService struct {
	deps
	storage  core.Storage
	sessions *SessionManager
	notify   *notifier
}

func NewAdminService(storage core.Storage, sessions *SessionManager, mail Mail, opts ...Option) *AdminService {
	d := newDeps(opts)
	return &AdminService{deps: d, storage: storage, sessions: sessions, notify: newNotifier(d, mail)}
}

// HasPermission reports whether userID may use capability. Admins hold all
// capabilities; nobody else holds any.
func (a *AdminService) HasPermission(ctx context.Context, userID, capability string) (bool, error) {
	var allowed bool
	err := a.storage.WithTx(ctx, func(tx core.Tx) error {
		var err error
		allowed, err = hasPermission(ctx, tx, userID, capability)
		return err
	})
	return allowed, err
}

func hasPermission(ctx context.Context, tx core.Tx, userID, _ string) (bool, error) {
	user, err := tx.GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.Role.Has(core.RoleAdmin), nil
}

func authorize(ctx context.Context, tx core.Tx, actorID string) error {
	ok, err := hasPermission(ctx, tx, actorID, CapabilityManageUsers)
	if err != nil {
		if core.KindOf(err) == core.KindNotFound {
			return core.ErrForbidden
		}
		return err
	}
	if !ok {
		return core.ErrForbidden
	}
	return nil
}

// SetRole replaces the roles of targetID.
func (a *AdminService) SetRole(ctx context.Context, actorID, targetID string, roles core.Roles) (*core.User, error) {
	if err := core.ValidateRoles(roles); err != nil {
		return nil, err
	}

	var user *core.User
	var promoted bool
	err := a.storage.WithTx(ctx, func(tx core.Tx) error {
		if err := authorize(ctx, tx, actorID); err != nil {
			return err
		}
		var err error
		user, err = tx.LockUser(ctx, targetID)
		if err != nil {
			return err
		}
		promoted = !user.Role.Has(core.RoleAdmin) && roles.Has(core.RoleAdmin)
		user.Role = roles
		user.UpdatedAt = a.now()
		return tx.UpdateUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "user role changed", "actor_id", actorID, "user_id", targetID, "role", roles.String())
	if promoted {
		a.notify.send(ctx, email.AdminPromotion, user.Email, email.Data{
			Name: user.Name,
			URL:  a.notify.link("/admin", nil),
		})
	}
	return user, nil
}

// SetBanned bans or unbans targetID. Live sessions are kept but refused at
// verification while the ban holds.
func (a *AdminService) SetBanned(ctx context.Context, actorID, targetID string, banned bool, reason *string) (*core.User, error) {
	var user *core.User
	err := a.storage.WithTx(ctx, func(tx core.Tx) error {
		if err := authorize(ctx, tx, actorID); err != nil {
			return err
		}
		var err error
		user, err = tx.LockUser(ctx, targetID)
		if err != nil {
			return err
		}
		user.Banned = banned
		user.BanReason = nil
		if banned {
			user.BanReason = reason
		}
		user.UpdatedAt = a.now()
		return tx.UpdateUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	// cached sessions would skip the ban check
	a.sessions.forgetUser(ctx, targetID)
	a.logger.InfoContext(ctx, "user ban changed", "actor_id", actorID, "user_id", targetID, "banned", banned)
	return user, nil
}

// ListUsers pages through users matching filter.
func (a *AdminService) ListUsers(ctx context.Context, actorID string, filter core.UserFilter, sort core.UserSort, page core.Page) (*core.UserPage, error) {
	switch sort.Field {
	case "":
		sort.Field = core.SortCreatedAt
	case core.SortCreatedAt, core.SortEmail, core.SortName, core.SortEmailVerified:
	default:
		return nil, core.ErrValidation.WithMessage("unsupported sort field %q", sort.Field)
	}
	if page.Offset < 0 {
		return nil, core.ErrValidation.WithMessage("offset must not be negative")
	}
	switch {
	case page.Limit <= 0:
		page.Limit = DefaultPageLimit
	case page.Limit > MaxPageLimit:
		page.Limit = MaxPageLimit
	}

	result := &core.UserPage{Offset: page.Offset, Limit: page.Limit}
	err := a.storage.WithTx(ctx, func(tx core.Tx) error {
		if err := authorize(ctx, tx, actorID); err != nil {
			return err
		}
		var err error
		result.Users, result.Total, err = tx.ListUsers(ctx, filter, sort, page)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Users == nil {
		result.Users = []*core.User{}
	}
	return result, nil
}

// RemoveUser hard-deletes targetID and everything attached to it.
func (a *AdminService) RemoveUser(ctx context.Context, actorID, targetID string) error {
	var revoked int
	err := a.storage.WithTx(ctx, func(tx core.Tx) error {
		if err := authorize(ctx, tx, actorID); err != nil {
			return err
		}
		if _, err := tx.LockUser(ctx, targetID); err != nil {
			return err
		}
		var err error
		revoked, err = tx.DeleteUserSessions(ctx, targetID)
		if err != nil {
			return err
		}
		return tx.DeleteUser(ctx, targetID)
	})
	if err != nil {
		return err
	}

	a.sessions.forgetUser(ctx, targetID)
	a.metrics.SessionsRevoked("user-removed", revoked)
	a.logger.InfoContext(ctx, "user removed", "actor_id", actorID, "user_id", targetID)
	return nil
}

// Stats returns user totals and sign-ups for the current and previous five
// months. Months without sign-ups are reported as zeros.
func (a *AdminService) Stats(ctx context.Context, actorID string) (*core.UserStats, error) {
	now := a.now().UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(statsMonths - 1), 0)

	var stats *core.UserStats
	err := a.storage.WithTx(ctx, func(tx core.Tx) error {
		if err := authorize(ctx, tx, actorID); err != nil {
			return err
		}
		var err error
		stats, err = tx.CountUsers(ctx, first)
		return err
	})
	if err != nil {
		return nil, err
	}

	byMonth := make(map[string]core.MonthlySignups, len(stats.Monthly))
	for _, m := range stats.Monthly {
		byMonth[m.Month] = m
	}
	stats.Monthly = make([]core.MonthlySignups, 0, statsMonths)
	for i := range statsMonths {
		key := first.AddDate(0, i, 0).Format("2006-01")
		m, ok := byMonth[key]
		if !ok {
			m = core.MonthlySignups{Month: key}
		}
		stats.Monthly = append(stats.Monthly, m)
	}
	return stats, nil
}

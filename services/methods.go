package services

import (
	"context"
	"fmt"

	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/crypto"
	"github.com/lborres/bantay/pkg/metrics"
)

// Ensure MethodRegistry implements MethodHandler
var _ core.MethodHandler = (*MethodRegistry)(nil)

// MethodRegistry manages the sign-in methods attached to a user. A user
// always keeps at least one method and at most one credential.
type MethodRegistry struct {
	deps
	storage  core.Storage
	password crypto.PasswordHandler
}

func NewMethodRegistry(storage core.Storage, password crypto.PasswordHandler, opts ...Option) *MethodRegistry {
	return &MethodRegistry{deps: newDeps(opts), storage: storage, password: password}
}

func (r *MethodRegistry) ListMethods(ctx context.Context, userID string) (*core.AuthMethods, error) {
	var methods *core.AuthMethods
	err := r.storage.WithTx(ctx, func(tx core.Tx) error {
		if _, err := tx.GetUserByID(ctx, userID); err != nil {
			return err
		}
		accounts, err := tx.GetUserAccounts(ctx, userID)
		if err != nil {
			return err
		}
		methods = describe(accounts)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return methods, nil
}

// AddCredential attaches a password to a user who signed up through a provider.
func (r *MethodRegistry) AddCredential(ctx context.Context, userID, newPassword string) (*core.AuthMethods, error) {
	if err := core.ValidatePassword(newPassword); err != nil {
		return nil, err
	}
	hash, err := r.password.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	methods, err := r.change(ctx, "add-credential", userID, func(tx core.Tx, accounts []*core.Account) error {
		if find(accounts, core.ProviderCredential) != nil {
			return core.ErrAlreadyHasCredential
		}
		now := r.now()
		return tx.CreateAccount(ctx, &core.Account{
			ID:         crypto.NewID(),
			UserID:     userID,
			ProviderID: core.ProviderCredential,
			AccountID:  userID,
			Password:   &hash,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "credential added", "user_id", userID)
	return methods, nil
}

// RemoveCredential detaches any linked method, credential included.
func (r *MethodRegistry) RemoveCredential(ctx context.Context, userID, providerID string) (*core.AuthMethods, error) {
	if providerID == "" {
		return nil, core.ErrInvalidProvider
	}
	methods, err := r.change(ctx, "remove", userID, func(tx core.Tx, accounts []*core.Account) error {
		return removeMethod(ctx, tx, accounts, providerID)
	})
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "sign-in method removed", "user_id", userID, "provider_id", providerID)
	return methods, nil
}

// LinkExternalProvider attaches an external identity. Passwords go through AddCredential.
func (r *MethodRegistry) LinkExternalProvider(ctx context.Context, userID, providerID, externalID string) (*core.AuthMethods, error) {
	if providerID == "" || providerID == core.ProviderCredential {
		return nil, core.ErrInvalidProvider.WithMessage("provider %q cannot be linked, use a password credential instead", providerID)
	}
	if externalID == "" {
		return nil, core.ErrValidation.WithMessage("external id is required")
	}

	methods, err := r.change(ctx, "link", userID, func(tx core.Tx, accounts []*core.Account) error {
		if find(accounts, providerID) != nil {
			return core.ErrAlreadyLinked
		}
		now := r.now()
		return tx.CreateAccount(ctx, &core.Account{
			ID:         crypto.NewID(),
			UserID:     userID,
			ProviderID: providerID,
			AccountID:  externalID,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "provider linked", "user_id", userID, "provider_id", providerID)
	return methods, nil
}

func (r *MethodRegistry) UnlinkExternalProvider(ctx context.Context, userID, providerID string) (*core.AuthMethods, error) {
	if providerID == "" || providerID == core.ProviderCredential {
		return nil, core.ErrInvalidProvider.WithMessage("provider %q is not an external provider", providerID)
	}
	methods, err := r.change(ctx, "unlink", userID, func(tx core.Tx, accounts []*core.Account) error {
		return removeMethod(ctx, tx, accounts, providerID)
	})
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "provider unlinked", "user_id", userID, "provider_id", providerID)
	return methods, nil
}

// change runs mutate with the user row locked and the current accounts
// loaded, then describes the resulting methods.
func (r *MethodRegistry) change(ctx context.Context, op, userID string, mutate func(tx core.Tx, accounts []*core.Account) error) (*core.AuthMethods, error) {
	var methods *core.AuthMethods
	err := r.storage.WithTx(ctx, func(tx core.Tx) error {
		if _, err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		accounts, err := tx.GetUserAccounts(ctx, userID)
		if err != nil {
			return err
		}
		if err := mutate(tx, accounts); err != nil {
			return err
		}
		accounts, err = tx.GetUserAccounts(ctx, userID)
		if err != nil {
			return err
		}
		methods = describe(accounts)
		return nil
	})
	r.metrics.MethodChange(op, metrics.Result(err))
	if err != nil {
		return nil, err
	}
	return methods, nil
}

func removeMethod(ctx context.Context, tx core.Tx, accounts []*core.Account, providerID string) error {
	account := find(accounts, providerID)
	if account == nil {
		return core.ErrMethodNotFound
	}
	if len(accounts) <= 1 {
		return core.ErrLastMethod
	}
	return tx.DeleteAccount(ctx, account.ID)
}

func find(accounts []*core.Account, providerID string) *core.Account {
	for _, a := range accounts {
		if a.ProviderID == providerID {
			return a
		}
	}
	return nil
}

func describe(accounts []*core.Account) *core.AuthMethods {
	m := &core.AuthMethods{Methods: make([]string, 0, len(accounts))}
	for _, a := range accounts {
		m.Methods = append(m.Methods, a.ProviderID)
		if a.ProviderID == core.ProviderCredential {
			m.HasCredential = true
		}
	}
	m.CanRemoveCredential = len(m.Methods) > 1 && m.HasCredential
	return m
}

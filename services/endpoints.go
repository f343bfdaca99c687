package services

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/lborres/bantay/core"
)

// Operation ids bound by HTTP adapters.
const (
	OpSignUp          = "signUpWithEmailAndPassword"
	OpSignIn          = "signInWithEmailAndPassword"
	OpSignOut         = "signOut"
	OpGetSession      = "getSession"
	OpChangePassword  = "changePassword"
	OpUpdateProfile   = "updateProfile"
	OpOAuthStart      = "startSocialSignIn"
	OpOAuthCallback   = "finishSocialSignIn"
	OpListMethods     = "listAuthMethods"
	OpAddCredential   = "addCredential"
	OpRemoveMethod    = "removeAuthMethod"
	OpLinkProvider    = "linkExternalProvider"
	OpUnlinkProvider  = "unlinkExternalProvider"
	OpListSessions    = "listSessions"
	OpRevokeSession   = "revokeSession"
	OpRevokeSessionID = "revokeSessionByID"
	OpRevokeOthers    = "revokeOtherSessions"
	OpRevokeAll       = "revokeAllSessions"
	OpRequestConfirm  = "requestConfirmation"
	OpConfirm         = "confirmToken"
	OpForgotPassword  = "requestPasswordReset"
	OpRequestOTP      = "requestOTP"
	OpConfirmOTP      = "confirmOTP"
	OpAdminListUsers  = "adminListUsers"
	OpAdminSetRole    = "adminSetRole"
	OpAdminBan        = "adminBanUser"
	OpAdminUnban      = "adminUnbanUser"
	OpAdminRemoveUser = "adminRemoveUser"
	OpAdminStats      = "adminUserStats"
)

func endpoint(method, path string, access core.Access, opID, desc string) core.Endpoint {
	return core.Endpoint{
		Path:     path,
		Method:   method,
		Access:   access,
		Metadata: core.EndpointMetadata{OperationID: opID, Description: desc},
	}
}

// BaseEndpoints returns framework-agnostic endpoint definitions for every
// operation. Paths are relative to the adapter's base path.
func BaseEndpoints() []core.Endpoint {
	return []core.Endpoint{
		endpoint("POST", "/sign-up", core.AccessPublic, OpSignUp, "Sign up a user using email and password"),
		endpoint("POST", "/sign-in", core.AccessPublic, OpSignIn, "Sign in a user using email and password"),
		endpoint("POST", "/sign-out", core.AccessUser, OpSignOut, "Sign out the current user and invalidate the session"),
		endpoint("GET", "/session", core.AccessUser, OpGetSession, "Get the current user's session data"),
		endpoint("POST", "/change-password", core.AccessUser, OpChangePassword, "Change the password and sign out other sessions"),
		endpoint("PATCH", "/profile", core.AccessUser, OpUpdateProfile, "Update the current user's profile"),

		endpoint("GET", "/oauth/:provider", core.AccessPublic, OpOAuthStart, "Redirect to a social provider"),
		endpoint("GET", "/oauth/:provider/callback", core.AccessPublic, OpOAuthCallback, "Complete a social sign-in"),

		endpoint("GET", "/methods", core.AccessUser, OpListMethods, "List the sign-in methods of the current user"),
		endpoint("POST", "/methods/credential", core.AccessUser, OpAddCredential, "Add a password to the current user"),
		endpoint("DELETE", "/methods/:provider", core.AccessUser, OpRemoveMethod, "Remove a sign-in method"),
		endpoint("POST", "/link/:provider", core.AccessUser, OpLinkProvider, "Start linking an external provider to the current user"),
		endpoint("DELETE", "/link/:provider", core.AccessUser, OpUnlinkProvider, "Unlink an external provider"),

		endpoint("GET", "/sessions", core.AccessUser, OpListSessions, "List the current user's sessions"),
		endpoint("POST", "/sessions/revoke", core.AccessUser, OpRevokeSession, "Revoke a session by token"),
		endpoint("DELETE", "/sessions/:id", core.AccessUser, OpRevokeSessionID, "Revoke a session by id"),
		endpoint("POST", "/sessions/revoke-others", core.AccessUser, OpRevokeOthers, "Revoke every session except the current one"),
		endpoint("POST", "/sessions/revoke-all", core.AccessUser, OpRevokeAll, "Revoke every session"),

		endpoint("POST", "/confirmations", core.AccessUser, OpRequestConfirm, "Request confirmation of a sensitive action"),
		endpoint("POST", "/confirm", core.AccessPublic, OpConfirm, "Confirm a sensitive action with an emailed token"),
		endpoint("POST", "/forgot-password", core.AccessPublic, OpForgotPassword, "Send a password reset link"),
		endpoint("POST", "/otp/request", core.AccessPublic, OpRequestOTP, "Send a one-time code"),
		endpoint("POST", "/otp/confirm", core.AccessPublic, OpConfirmOTP, "Confirm a one-time code"),

		endpoint("GET", "/admin/users", core.AccessAdmin, OpAdminListUsers, "List users"),
		endpoint("PUT", "/admin/users/:id/role", core.AccessAdmin, OpAdminSetRole, "Replace a user's roles"),
		endpoint("POST", "/admin/users/:id/ban", core.AccessAdmin, OpAdminBan, "Ban a user"),
		endpoint("DELETE", "/admin/users/:id/ban", core.AccessAdmin, OpAdminUnban, "Lift a user's ban"),
		endpoint("DELETE", "/admin/users/:id", core.AccessAdmin, OpAdminRemoveUser, "Delete a user"),
		endpoint("GET", "/admin/stats", core.AccessAdmin, OpAdminStats, "User totals and monthly sign-ups"),
	}
}

// EndpointRegistry manages a collection of framework-agnostic endpoints
// and handles conflict detection for duplicate METHOD:PATH combinations.
//
// It starts with the base endpoints and supports registration of
// additional plugin endpoints with automatic conflict detection.
type EndpointRegistry struct {
	// endpoints stores all registered endpoints keyed by "METHOD:PATH"
	endpoints map[string]*core.Endpoint
	// operations guards against two endpoints sharing an OperationID
	operations map[string]bool
}

// NewEndpointRegistry creates a new registry with all base endpoints
// pre-registered.
func NewEndpointRegistry() *EndpointRegistry {
	reg := &EndpointRegistry{
		endpoints:  make(map[string]*core.Endpoint),
		operations: make(map[string]bool),
	}

	for _, ep := range BaseEndpoints() {
		if err := reg.register(&ep); err != nil {
			panic(err)
		}
	}

	return reg
}

func key(ep *core.Endpoint) string {
	return fmt.Sprintf("%s:%s", ep.Method, ep.Path)
}

// register adds a single endpoint to the registry with conflict detection.
// Returns error if an endpoint with the same METHOD:PATH already exists.
func (r *EndpointRegistry) register(ep *core.Endpoint) error {
	if _, exists := r.endpoints[key(ep)]; exists {
		return fmt.Errorf("endpoint conflict: %s %s already registered", ep.Method, ep.Path)
	}
	if r.operations[ep.Metadata.OperationID] {
		return fmt.Errorf("endpoint conflict: operation %s already registered", ep.Metadata.OperationID)
	}

	r.endpoints[key(ep)] = ep
	r.operations[ep.Metadata.OperationID] = true
	return nil
}

// RegisterPlugin registers additional plugin endpoints to the registry.
// Returns error if any plugin endpoint conflicts with existing endpoints
// or with other plugin endpoints in the same batch.
//
// If an error occurs, no endpoints from the plugin are registered.
func (r *EndpointRegistry) RegisterPlugin(endpoints []core.Endpoint) error {
	seen := make(map[string]bool)
	seenOps := make(map[string]bool)
	for i := range endpoints {
		ep := &endpoints[i]
		k := key(ep)

		if _, exists := r.endpoints[k]; exists {
			return fmt.Errorf("plugin endpoint conflict: %s %s already registered", ep.Method, ep.Path)
		}
		if r.operations[ep.Metadata.OperationID] {
			return fmt.Errorf("plugin endpoint conflict: operation %s already registered", ep.Metadata.OperationID)
		}
		if seen[k] || seenOps[ep.Metadata.OperationID] {
			return fmt.Errorf("plugin contains duplicate endpoint: %s %s", ep.Method, ep.Path)
		}
		seen[k] = true
		seenOps[ep.Metadata.OperationID] = true
	}

	// No conflicts found, register all plugin endpoints
	for i := range endpoints {
		ep := endpoints[i]
		r.endpoints[key(&ep)] = &ep
		r.operations[ep.Metadata.OperationID] = true
	}

	return nil
}

// Endpoints returns all registered endpoints ordered by path, then method.
func (r *EndpointRegistry) Endpoints() []*core.Endpoint {
	result := make([]*core.Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		result = append(result, ep)
	}
	slices.SortFunc(result, func(a, b *core.Endpoint) int {
		return cmp.Or(cmp.Compare(a.Path, b.Path), cmp.Compare(a.Method, b.Method))
	})
	return result
}

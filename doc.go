// Package identity provides the authentication core for a single
// community finance group: local credentials, invitation-gated
// registration, session issuance, and external identity linking.
//
// Credential flows:
//   - Authenticator covers Login, Register, and ChangePassword. Login
//     resolves an email-or-username identifier and folds every failure
//     mode into the same invalid-credentials error so callers cannot
//     probe which accounts exist. Register is invitation-gated: the
//     account insert and the invitation consumption commit in one
//     transaction, so a lost race never leaves an account admitted on a
//     spent token.
//
// Invitations:
//   - InvitationService mints single-use, time-bounded admission
//     tokens. Consumption is a guarded update that re-checks validity
//     inside the store; of N concurrent redeemers exactly one wins.
//     Used invitations are retained as an audit trail, expired unused
//     ones are reclaimed by CleanupExpired.
//
// Sessions:
//   - SessionService issues a signed HS256 access token plus an opaque
//     refresh artifact. Only the sha256 digest of the artifact is
//     stored; Exchange rotates grants, revoking the old one in the same
//     transaction that issues the new session.
//
// External identities:
//   - The external package resolves provider-verified profiles through
//     a fixed sequence: match by provider identity, link by email,
//     create new (invitation-gated). Verification against Google and
//     Facebook lives in external/providers.
package identity

package identity

// AuthMethod is the mechanism by which an identity proves itself:
// a local password or a named external provider. Closed set, same
// treatment as UserRole.
type AuthMethod string

const (
	// AuthMethodLocal authenticates with username/email and password
	AuthMethodLocal AuthMethod = "local"
	// AuthMethodGoogle authenticates through a verified Google assertion
	AuthMethodGoogle AuthMethod = "google"
	// AuthMethodFacebook authenticates through a verified Facebook assertion
	AuthMethodFacebook AuthMethod = "facebook"
)

// IsValid checks if the method is one of the predefined valid methods
func (m AuthMethod) IsValid() bool {
	switch m {
	case AuthMethodLocal, AuthMethodGoogle, AuthMethodFacebook:
		return true
	default:
		return false
	}
}

// IsExternal reports whether the method is provider-backed.
func (m AuthMethod) IsExternal() bool {
	return m == AuthMethodGoogle || m == AuthMethodFacebook
}

// ParseAuthMethod safely parses a string into an AuthMethod type
func ParseAuthMethod(s string) (AuthMethod, bool) {
	method := AuthMethod(s)
	return method, method.IsValid()
}

// ParseProvider maps a provider identifier from the wire ("google",
// "facebook") to its AuthMethod. Local is not a provider.
func ParseProvider(s string) (AuthMethod, bool) {
	method, ok := ParseAuthMethod(s)
	if !ok || !method.IsExternal() {
		return "", false
	}
	return method, true
}

package domain

// CallerIdentity is the resolved caller of a request. It is never persisted
// by this service.
type CallerIdentity struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Anonymous bool   `json:"anonymous"`
}

// AnonymousCaller returns the identity used when no credential is supplied.
func AnonymousCaller() CallerIdentity {
	return CallerIdentity{Role: RoleUser, Anonymous: true}
}

// IsAdmin reports whether the caller is an authenticated administrator.
func (c CallerIdentity) IsAdmin() bool {
	return !c.Anonymous && c.Role == RoleAdmin
}

// User is a user record owned by the identity collaborator.
type User struct {
	UserID    string `json:"user_id"`
	Role      Role   `json:"role"`
	TokenHash string `json:"-"`
}

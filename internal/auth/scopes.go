package auth

// Scopes accepted by the read API.
const (
	ScopeImportsRead  = "imports:read"
	ScopeWorkoutsRead = "workouts:read"
)

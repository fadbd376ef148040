package constants

// Scope selects which run store a command reads or writes: the project-local
// .dtsm directory or the one under the user's home.
type Scope string

const (
	// ScopeLocal is the .dtsm directory under the project root.
	ScopeLocal Scope = "local"

	// ScopeGlobal is ~/.dtsm.
	ScopeGlobal Scope = "global"

	// ScopeBoth reads from both stores (listing only).
	ScopeBoth Scope = "both"
)

// Valid returns true if the scope is a recognized value.
func (s Scope) Valid() bool {
	switch s {
	case ScopeLocal, ScopeGlobal, ScopeBoth:
		return true
	}
	return false
}

// String returns the string representation of the scope.
func (s Scope) String() string {
	return string(s)
}

package identity

import (
	"sync"

	"github.com/stellar/go/strkey"
)

// Capability is an action class a caller may hold
type Capability string

const (
	CapabilitySubmit  Capability = "submit"
	CapabilityExecute Capability = "execute"
	CapabilityAdmin   Capability = "admin"
)

// Authorizer answers whether a caller holds a capability. The engine treats
// this as an opaque predicate; the surrounding application decides how
// identities map to capabilities.
type Authorizer interface {
	HasCapability(caller string, capability Capability) bool
}

// ValidAddress reports whether the account id is a well-formed ed25519
// public-key address
func ValidAddress(account string) bool {
	return strkey.IsValidEd25519PublicKey(account)
}

// StaticAuthorizer is an in-memory Authorizer with explicit grants.
// Every valid address implicitly holds the submit capability; execute and
// admin must be granted.
type StaticAuthorizer struct {
	mu     sync.RWMutex
	grants map[string]map[Capability]bool
}

// NewStaticAuthorizer creates an authorizer with no grants
func NewStaticAuthorizer() *StaticAuthorizer {
	return &StaticAuthorizer{grants: make(map[string]map[Capability]bool)}
}

// Grant gives the caller a capability
func (a *StaticAuthorizer) Grant(caller string, capability Capability) {
	a.mu.Lock()
	defer a.mu.Unlock()
	caps, ok := a.grants[caller]
	if !ok {
		caps = make(map[Capability]bool)
		a.grants[caller] = caps
	}
	caps[capability] = true
}

// Revoke removes a capability from the caller
func (a *StaticAuthorizer) Revoke(caller string, capability Capability) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if caps, ok := a.grants[caller]; ok {
		delete(caps, capability)
	}
}

// HasCapability implements Authorizer
func (a *StaticAuthorizer) HasCapability(caller string, capability Capability) bool {
	if capability == CapabilitySubmit {
		return ValidAddress(caller)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.grants[caller][capability]
}

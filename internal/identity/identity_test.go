package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const validAccount = "GAAZI4TCR3TY5OJHCTJC2A4QSY6CJWJH5IAJTGKIN2ER7LBNVKOCCWN7"

func TestValidAddress(t *testing.T) {
	assert.True(t, ValidAddress(validAccount))
	assert.False(t, ValidAddress(""))
	assert.False(t, ValidAddress("not-an-address"))
	// Secret seeds are not account addresses
	assert.False(t, ValidAddress("SBCVMMCBEDB64TVJZFYJOJAERZC4YVVUOE6SYR2Y76CBTENGUSGWRRVO"))
	// A flipped checksum character must fail
	assert.False(t, ValidAddress("GAAZI4TCR3TY5OJHCTJC2A4QSY6CJWJH5IAJTGKIN2ER7LBNVKOCCWN8"))
}

func TestSubmitIsImplicitForValidAddresses(t *testing.T) {
	a := NewStaticAuthorizer()

	assert.True(t, a.HasCapability(validAccount, CapabilitySubmit))
	assert.False(t, a.HasCapability("service-account", CapabilitySubmit))

	// Submit does not imply the privileged capabilities
	assert.False(t, a.HasCapability(validAccount, CapabilityExecute))
	assert.False(t, a.HasCapability(validAccount, CapabilityAdmin))
}

func TestGrantAndRevoke(t *testing.T) {
	a := NewStaticAuthorizer()

	a.Grant("worker-1", CapabilityExecute)
	assert.True(t, a.HasCapability("worker-1", CapabilityExecute))
	assert.False(t, a.HasCapability("worker-1", CapabilityAdmin))

	a.Revoke("worker-1", CapabilityExecute)
	assert.False(t, a.HasCapability("worker-1", CapabilityExecute))

	// Revoking what was never granted is a no-op
	a.Revoke("worker-2", CapabilityAdmin)
	assert.False(t, a.HasCapability("worker-2", CapabilityAdmin))
}

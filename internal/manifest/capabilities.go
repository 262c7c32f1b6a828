package manifest

import (
	"errors"
	"fmt"

	"github.com/fluxbase-eu/islet/internal/extract"
)

// Capability names a family of identifiers a component can require at render time
type Capability string

const (
	CapabilityRoute        = Capability(extract.KindRoute)
	CapabilityMessage      = Capability(extract.KindMessage)
	CapabilityFlashMessage = Capability(extract.KindFlashMessage)
)

// ErrUnknownCapability is returned when requiring through an unregistered capability
var ErrUnknownCapability = errors.New("unknown capability")

// Requirer records that an identifier is needed for hydration
type Requirer interface {
	Has(identifier string) bool
	Require(identifier string)
}

// Capabilities exposes the builder's managers keyed by capability
func (b *Builder) Capabilities() map[Capability]Requirer {
	return map[Capability]Requirer{
		CapabilityRoute:        b.routes,
		CapabilityMessage:      b.messages,
		CapabilityFlashMessage: b.flashMessages,
	}
}

// Require marks identifier as required through the named capability
func (b *Builder) Require(capability Capability, identifier string) error {
	requirer, ok := b.Capabilities()[capability]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCapability, capability)
	}
	requirer.Require(identifier)
	return nil
}

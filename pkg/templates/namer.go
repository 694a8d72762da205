package templates

import (
	"fmt"
	"strings"

	"github.com/netreplica/nrx/pkg/topology"
)

// InterfaceNameContext is passed to interface_names templates.
type InterfaceNameContext struct {
	Interface string
	Index     int
}

// InterfaceNamer assigns emulated interface names with the platform's
// optional interface_names template. Platforms without one, and templates
// that render to nothing, get topology.DefaultEmulatedName.
type InterfaceNamer struct {
	Resolver *Resolver
}

var _ topology.Namer = (*InterfaceNamer)(nil)

// EmulatedName implements topology.Namer.
func (n *InterfaceNamer) EmulatedName(platform, native string, index int) (string, error) {
	res, err := n.Resolver.Resolve(CategoryInterfaceNames, platform, false)
	if err != nil {
		return "", err
	}
	if !res.Found() {
		return topology.DefaultEmulatedName(index), nil
	}
	out, err := res.Template.Render(InterfaceNameContext{Interface: native, Index: index})
	if err != nil {
		return "", fmt.Errorf("interface name for %s: %w", native, err)
	}
	return strings.TrimSpace(out), nil
}

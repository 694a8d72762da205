package render

import "github.com/netreplica/nrx/pkg/topology"

// InterfaceContext is one device interface as seen by templates.
type InterfaceContext struct {
	Name     string
	Emulated string
	Index    int
}

// NodeContext is passed to nodes templates.
type NodeContext struct {
	ID           int
	NodeID       int
	DeviceIndex  int
	Name         string
	Platform     string
	PlatformName string
	Vendor       string
	VendorName   string
	Model        string
	ModelName    string
	Role         string
	RoleName     string
	PrimaryIP4   string
	PrimaryIP6   string
	Level        int
	Rank         float64

	// Kind is the template key the node template resolved to: the
	// platform, its kind, or "default".
	Kind string

	// Topology is the topology name.
	Topology string

	Interfaces []InterfaceContext

	// Config is the raw startup configuration text, if any.
	Config string

	// InterfaceMap and StartupConfig are paths of side artifacts relative
	// to the primary document. Empty when not produced.
	InterfaceMap  string
	StartupConfig string
}

// InterfaceMapContext is passed to interface_maps templates.
type InterfaceMapContext struct {
	Device     string
	Platform   string
	Interfaces []InterfaceContext
	// Map is native name to emulated name.
	Map map[string]string
}

// EndpointContext is one end of a link.
type EndpointContext struct {
	Node              string
	NodeID            int
	DeviceIndex       int
	Interface         string
	EmulatedInterface string
	Index             int
}

// LinkContext is a link with its 0-based id.
type LinkContext struct {
	ID int
	A  EndpointContext
	B  EndpointContext
}

// TopologyContext is passed to the topology template.
type TopologyContext struct {
	Name string
	// File is the primary document path relative to the output directory.
	File string
	// Dir is the output directory as given by the user, empty for the
	// current directory. Path is File joined to Dir.
	Dir  string
	Path string
	// Nodes holds the rendered node blocks in device order.
	Nodes   []string
	Links   []LinkContext
	Roles   map[string][]int
	Devices []NodeContext
}

func newNodeContext(topoName string, d *topology.Device) NodeContext {
	ctx := NodeContext{
		ID:           d.ID,
		NodeID:       d.NodeID,
		DeviceIndex:  d.DeviceIndex,
		Name:         d.Name,
		Platform:     d.Platform,
		PlatformName: d.PlatformName,
		Vendor:       d.Vendor,
		VendorName:   d.VendorName,
		Model:        d.Model,
		ModelName:    d.ModelName,
		Role:         d.Role,
		RoleName:     d.RoleName,
		PrimaryIP4:   d.PrimaryIP4,
		PrimaryIP6:   d.PrimaryIP6,
		Level:        d.Level,
		Rank:         d.Rank,
		Topology:     topoName,
		Config:       d.Config,
		Interfaces:   interfaceContexts(d),
	}
	if ctx.PlatformName == "" {
		ctx.PlatformName = d.Platform
	}
	return ctx
}

func interfaceContexts(d *topology.Device) []InterfaceContext {
	out := make([]InterfaceContext, len(d.Interfaces))
	for i, ifc := range d.Interfaces {
		out[i] = InterfaceContext{Name: ifc.Native, Emulated: ifc.Emulated, Index: ifc.Index}
	}
	return out
}

func newInterfaceMapContext(d *topology.Device) InterfaceMapContext {
	m := make(map[string]string, len(d.InterfaceMap))
	for native, em := range d.InterfaceMap {
		m[native] = em.Name
	}
	return InterfaceMapContext{
		Device:     d.Name,
		Platform:   d.Platform,
		Interfaces: interfaceContexts(d),
		Map:        m,
	}
}

func newEndpointContext(e topology.Endpoint) EndpointContext {
	return EndpointContext{
		Node:              e.Node,
		NodeID:            e.NodeID,
		DeviceIndex:       e.DeviceIndex,
		Interface:         e.Interface,
		EmulatedInterface: e.EmulatedInterface,
		Index:             e.Index,
	}
}

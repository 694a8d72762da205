// Package topology turns a device/interface graph into a normalized
// topology: an ordered device list with levels, ranks and emulated
// interface maps, plus an ordered list of links.
package topology

import (
	"github.com/netreplica/nrx/pkg/graph"
)

// EmulatedInterface is the emulation-side identity assigned to a native
// interface.
type EmulatedInterface struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// Interface is a device interface after emulated names were assigned.
type Interface struct {
	Native   string `json:"native"`
	Emulated string `json:"emulated"`
	Index    int    `json:"index"`
}

// Device is a graph device enriched with topology-derived attributes.
type Device struct {
	graph.Device

	Level int     `json:"level"`
	Rank  float64 `json:"rank"`

	// Interfaces is sorted by native name.
	Interfaces []Interface `json:"interfaces"`

	// InterfaceMap maps native interface name to emulated identity.
	InterfaceMap map[string]EmulatedInterface `json:"interface_map"`
}

// Endpoint is one end of a link.
type Endpoint struct {
	Node              string `json:"node"`
	NodeID            int    `json:"node_id"`
	DeviceIndex       int    `json:"device_index"`
	Interface         string `json:"interface"`
	EmulatedInterface string `json:"c_interface"`
	Index             int    `json:"index"`
}

// Link is a cable between two device interfaces. ID is the 0-based
// discovery order.
type Link struct {
	ID int      `json:"id"`
	A  Endpoint `json:"a"`
	B  Endpoint `json:"b"`
}

// Topology is the result of Build.
type Topology struct {
	Name    string    `json:"name"`
	Devices []*Device `json:"nodes"`
	Links   []*Link   `json:"links"`

	// Roles maps a role slug to the ascending device indexes sharing it.
	Roles map[string][]int `json:"roles"`

	byIndex map[int]*Device
	byName  map[string]*Device
}

// DeviceByIndex returns the device with the given device_index.
func (t *Topology) DeviceByIndex(idx int) (*Device, bool) {
	d, ok := t.byIndex[idx]
	return d, ok
}

// DeviceByName returns the device with the given name.
func (t *Topology) DeviceByName(name string) (*Device, bool) {
	d, ok := t.byName[name]
	return d, ok
}

// InterfaceCount returns the number of interfaces across all devices.
func (t *Topology) InterfaceCount() int {
	n := 0
	for _, d := range t.Devices {
		n += len(d.Interfaces)
	}
	return n
}

// DefaultRoleLevels is the role to level table used when none is configured.
var DefaultRoleLevels = map[string]int{
	"unknown":             0,
	"server":              0,
	"tor-switch":          1,
	"access-switch":       1,
	"leaf":                1,
	"distribution-switch": 2,
	"spine":               2,
	"core-switch":         3,
	"super-spine":         3,
	"router":              4,
}

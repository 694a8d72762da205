// Package testutil provides graph fixtures shared by package tests.
package testutil

import (
	"os"
	"testing"

	"github.com/netreplica/nrx/pkg/graph"
)

// GraphBuilder assembles a graph the way the inventory client does: device
// nodes first-come, node ids allocated sequentially, cables as a pair of
// interface nodes tagged side a and side b.
type GraphBuilder struct {
	t       testing.TB
	g       *graph.Graph
	next    int
	devices map[string]int
	nextDev int
}

// NewGraphBuilder creates a builder for a graph named name.
func NewGraphBuilder(t testing.TB, name string) *GraphBuilder {
	t.Helper()
	return &GraphBuilder{
		t:       t,
		g:       graph.New(name),
		devices: make(map[string]int),
	}
}

// Device adds a device and returns its node id.
func (b *GraphBuilder) Device(name, platform, role string) int {
	b.t.Helper()
	return b.DeviceWith(graph.Device{Name: name, Platform: platform, Role: role})
}

// DeviceWith adds a device with explicit attributes. ID, NodeID and
// DeviceIndex are assigned by the builder when left zero.
func (b *GraphBuilder) DeviceWith(dev graph.Device) int {
	b.t.Helper()
	id := b.next
	b.next++
	dev.Type = graph.TypeDevice
	dev.NodeID = id
	if dev.ID == 0 {
		dev.ID = 1000 + id
	}
	if dev.DeviceIndex == 0 {
		dev.DeviceIndex = b.nextDev
	}
	b.nextDev++
	if _, err := b.g.AddDevice(id, graph.SideNone, dev); err != nil {
		b.t.Fatalf("adding device %s: %v", dev.Name, err)
	}
	b.devices[dev.Name] = id
	return id
}

// Interface adds an interface owned by device and returns its node id.
func (b *GraphBuilder) Interface(device, name string, side graph.Side) int {
	b.t.Helper()
	devID, ok := b.devices[device]
	if !ok {
		b.t.Fatalf("interface %s: unknown device %s", name, device)
	}
	id := b.next
	b.next++
	iface := graph.Interface{ID: 2000 + id, Type: graph.TypeInterface, Name: name, NodeID: id}
	if _, err := b.g.AddInterface(id, side, iface); err != nil {
		b.t.Fatalf("adding interface %s:%s: %v", device, name, err)
	}
	b.Edge(devID, id)
	return id
}

// Cable connects devA:ifA (side a) with devB:ifB (side b).
func (b *GraphBuilder) Cable(devA, ifA, devB, ifB string) {
	b.t.Helper()
	a := b.Interface(devA, ifA, graph.SideA)
	z := b.Interface(devB, ifB, graph.SideB)
	b.Edge(a, z)
}

// Edge adds a raw edge.
func (b *GraphBuilder) Edge(a, z int) {
	b.t.Helper()
	if err := b.g.AddEdge(a, z); err != nil {
		b.t.Fatalf("adding edge %d-%d: %v", a, z, err)
	}
}

// Graph returns the assembled graph.
func (b *GraphBuilder) Graph() *graph.Graph {
	return b.g
}

// ScenarioGraph returns the two-leaf, one-spine fabric:
//
//	leaf1:eth_native_A <-> spine1:eth_native_X
//	leaf2:eth_native_B <-> spine1:eth_native_Y
func ScenarioGraph(t testing.TB) *graph.Graph {
	t.Helper()
	b := NewGraphBuilder(t, "scenario")
	b.Device("leaf1", "sonic", "leaf")
	b.Device("leaf2", "sonic", "leaf")
	b.Device("spine1", "eos", "spine")
	b.Cable("leaf1", "eth_native_A", "spine1", "eth_native_X")
	b.Cable("leaf2", "eth_native_B", "spine1", "eth_native_Y")
	return b.Graph()
}

// Chdir changes the working directory to dir for the duration of the test and
// restores it on cleanup, like testing.T.Chdir on newer toolchains.
func Chdir(t testing.TB, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("restore working directory %s: %v", old, err)
		}
	})
}

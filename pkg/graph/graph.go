// Package graph holds the vendor-neutral network graph exported from an
// inventory system: device nodes, interface nodes, device-interface edges
// and interface-interface (cable) edges.
package graph

import (
	"fmt"
)

// Side breaks the symmetry of a cable: the interface tagged SideA is the
// one a link is emitted from.
type Side string

const (
	SideA    Side = "a"
	SideB    Side = "b"
	SideNone Side = ""
)

// Device is the set of device attributes carried by a device node.
type Device struct {
	ID           int    `json:"id"`
	Type         string `json:"type,omitempty"`
	Name         string `json:"name"`
	NodeID       int    `json:"node_id"`
	DeviceIndex  int    `json:"device_index"`
	Platform     string `json:"platform"`
	PlatformName string `json:"platform_name,omitempty"`
	Vendor       string `json:"vendor,omitempty"`
	VendorName   string `json:"vendor_name,omitempty"`
	Model        string `json:"model,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	Role         string `json:"role,omitempty"`
	RoleName     string `json:"role_name,omitempty"`
	PrimaryIP4   string `json:"primary_ip4,omitempty"`
	PrimaryIP6   string `json:"primary_ip6,omitempty"`
	Config       string `json:"config,omitempty"`
}

// Interface is the set of interface attributes carried by an interface node.
type Interface struct {
	ID     int    `json:"id"`
	Type   string `json:"type,omitempty"`
	Name   string `json:"name"`
	NodeID int    `json:"node_id"`
}

// Node is either a *DeviceNode or an *InterfaceNode.
type Node interface {
	NodeID() int
	NodeSide() Side
	isNode()
}

// DeviceNode is a graph node representing a device.
type DeviceNode struct {
	ID     int
	Side   Side
	Device Device
}

func (n *DeviceNode) NodeID() int    { return n.ID }
func (n *DeviceNode) NodeSide() Side { return n.Side }
func (*DeviceNode) isNode()          {}

// InterfaceNode is a graph node representing a device interface.
type InterfaceNode struct {
	ID        int
	Side      Side
	Interface Interface
}

func (n *InterfaceNode) NodeID() int    { return n.ID }
func (n *InterfaceNode) NodeSide() Side { return n.Side }
func (*InterfaceNode) isNode()          {}

// Edge is an undirected edge, stored in the order it was added.
type Edge struct {
	Source int
	Target int
}

// Graph is an undirected graph of device and interface nodes. Nodes and
// adjacency lists preserve insertion order.
type Graph struct {
	Name string

	nodes []Node
	index map[int]int
	adj   map[int][]int
	edges []Edge
	seen  map[[2]int]bool
}

// New creates an empty graph with the given name.
func New(name string) *Graph {
	return &Graph{
		Name:  name,
		index: make(map[int]int),
		adj:   make(map[int][]int),
		seen:  make(map[[2]int]bool),
	}
}

// AddDevice adds a device node.
func (g *Graph) AddDevice(id int, side Side, dev Device) (*DeviceNode, error) {
	n := &DeviceNode{ID: id, Side: side, Device: dev}
	if err := g.addNode(n); err != nil {
		return nil, err
	}
	return n, nil
}

// AddInterface adds an interface node.
func (g *Graph) AddInterface(id int, side Side, iface Interface) (*InterfaceNode, error) {
	n := &InterfaceNode{ID: id, Side: side, Interface: iface}
	if err := g.addNode(n); err != nil {
		return nil, err
	}
	return n, nil
}

func (g *Graph) addNode(n Node) error {
	if _, ok := g.index[n.NodeID()]; ok {
		return fmt.Errorf("graph: duplicate node id %d", n.NodeID())
	}
	g.index[n.NodeID()] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return nil
}

// AddEdge connects two existing nodes. Adding the same edge twice (in
// either direction) is a no-op.
func (g *Graph) AddEdge(a, b int) error {
	if a == b {
		return fmt.Errorf("graph: self-loop on node %d", a)
	}
	if _, ok := g.index[a]; !ok {
		return fmt.Errorf("graph: edge %d-%d references unknown node %d", a, b, a)
	}
	if _, ok := g.index[b]; !ok {
		return fmt.Errorf("graph: edge %d-%d references unknown node %d", a, b, b)
	}
	key := [2]int{a, b}
	if b < a {
		key = [2]int{b, a}
	}
	if g.seen[key] {
		return nil
	}
	g.seen[key] = true
	g.adj[a] = append(g.adj[a], b)
	g.adj[b] = append(g.adj[b], a)
	g.edges = append(g.edges, Edge{Source: a, Target: b})
	return nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id int) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.nodes[i], true
}

// Nodes returns all nodes in insertion order. The slice must not be modified.
func (g *Graph) Nodes() []Node {
	return g.nodes
}

// Neighbors returns the nodes adjacent to id in edge insertion order.
func (g *Graph) Neighbors(id int) []Node {
	ids := g.adj[id]
	out := make([]Node, 0, len(ids))
	for _, nid := range ids {
		out = append(out, g.nodes[g.index[nid]])
	}
	return out
}

// Edges returns every edge once, in insertion order.
func (g *Graph) Edges() []Edge {
	return g.edges
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Devices returns the device nodes in insertion order.
func (g *Graph) Devices() []*DeviceNode {
	var out []*DeviceNode
	for _, n := range g.nodes {
		if d, ok := n.(*DeviceNode); ok {
			out = append(out, d)
		}
	}
	return out
}

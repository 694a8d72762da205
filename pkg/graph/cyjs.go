package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Node type tags used by the CYJS interchange format.
const (
	TypeDevice    = "device"
	TypeInterface = "interface"
)

// cyjsDoc mirrors the Cytoscape JSON layout written by networkx
// cytoscape_data(): graph attributes under "data", nodes and edges under
// "elements".
type cyjsDoc struct {
	Data       json.RawMessage `json:"data"`
	Directed   bool            `json:"directed"`
	Multigraph bool            `json:"multigraph"`
	Elements   cyjsElements    `json:"elements"`
}

type cyjsElements struct {
	Nodes []cyjsNode `json:"nodes"`
	Edges []cyjsEdge `json:"edges"`
}

type cyjsNode struct {
	Data cyjsNodeData `json:"data"`
}

type cyjsNodeData struct {
	ID        string      `json:"id"`
	Value     *nodeRef    `json:"value,omitempty"`
	Name      string      `json:"name,omitempty"`
	Type      string      `json:"type"`
	Side      Side        `json:"side,omitempty"`
	NodeID    *int        `json:"node_id,omitempty"`
	Device    *cyjsDevice `json:"device,omitempty"`
	Interface *Interface  `json:"interface,omitempty"`
}

// cyjsDevice tracks whether device_index was present. Files written before
// the key existed carry none, and their devices are numbered in file order.
type cyjsDevice struct {
	Device
	DeviceIndex *int `json:"device_index,omitempty"`
}

type cyjsEdge struct {
	Data cyjsEdgeData `json:"data"`
}

type cyjsEdgeData struct {
	Source nodeRef `json:"source"`
	Target nodeRef `json:"target"`
}

// nodeRef is a node key that may be encoded as a JSON number or as a
// numeric string.
type nodeRef int

func (r *nodeRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("node reference %q is not numeric", s)
		}
		*r = nodeRef(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("node reference %s is not numeric", string(b))
	}
	*r = nodeRef(n)
	return nil
}

// LoadCYJS reads a CYJS graph file.
func LoadCYJS(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can't read CYJS topology graph: %w", err)
	}
	defer f.Close()
	return ReadCYJS(f)
}

// ReadCYJS decodes a CYJS document into a Graph.
func ReadCYJS(r io.Reader) (*Graph, error) {
	var doc cyjsDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("can't parse CYJS topology graph: %w", err)
	}

	name, err := graphName(doc.Data)
	if err != nil {
		return nil, err
	}
	g := New(name)

	used := make(map[int]bool)
	for _, n := range doc.Elements.Nodes {
		if d := n.Data.Device; d != nil && d.DeviceIndex != nil {
			used[*d.DeviceIndex] = true
		}
	}
	next := 0

	for i, n := range doc.Elements.Nodes {
		id, err := n.Data.key()
		if err != nil {
			return nil, fmt.Errorf("cyjs node %d: %w", i, err)
		}
		switch n.Data.Type {
		case TypeDevice:
			if n.Data.Device == nil {
				return nil, fmt.Errorf("cyjs node %d: type %q without %q attributes", id, TypeDevice, TypeDevice)
			}
			dev := n.Data.Device.Device
			if idx := n.Data.Device.DeviceIndex; idx != nil {
				dev.DeviceIndex = *idx
			} else {
				for used[next] {
					next++
				}
				dev.DeviceIndex = next
				used[next] = true
			}
			if _, err := g.AddDevice(id, n.Data.Side, dev); err != nil {
				return nil, err
			}
		case TypeInterface:
			if n.Data.Interface == nil {
				return nil, fmt.Errorf("cyjs node %d: type %q without %q attributes", id, TypeInterface, TypeInterface)
			}
			if _, err := g.AddInterface(id, n.Data.Side, *n.Data.Interface); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("cyjs node %d: unknown node type %q", id, n.Data.Type)
		}
	}

	for _, e := range doc.Elements.Edges {
		if err := g.AddEdge(int(e.Data.Source), int(e.Data.Target)); err != nil {
			return nil, fmt.Errorf("cyjs: %w", err)
		}
	}
	return g, nil
}

// key returns the node key: "value" when present, otherwise "id".
func (d cyjsNodeData) key() (int, error) {
	if d.Value != nil {
		return int(*d.Value), nil
	}
	n, err := strconv.Atoi(d.ID)
	if err != nil {
		return 0, fmt.Errorf("node id %q is not numeric", d.ID)
	}
	return n, nil
}

// graphName accepts both graph attribute encodings used by networkx: an
// object ({"name": "x"}) and the older list of [key, value] pairs.
func graphName(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '{' {
		var attrs map[string]any
		if err := json.Unmarshal(raw, &attrs); err != nil {
			return "", fmt.Errorf("can't parse CYJS graph data: %w", err)
		}
		name, _ := attrs["name"].(string)
		return name, nil
	}
	var pairs [][]any
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return "", fmt.Errorf("can't parse CYJS graph data: %w", err)
	}
	for _, p := range pairs {
		if len(p) == 2 {
			if k, _ := p[0].(string); k == "name" {
				name, _ := p[1].(string)
				return name, nil
			}
		}
	}
	return "", nil
}

// WriteCYJS encodes g as a CYJS document.
func WriteCYJS(w io.Writer, g *Graph) error {
	data, err := json.Marshal(map[string]string{"name": g.Name})
	if err != nil {
		return err
	}
	doc := cyjsDoc{
		Data: data,
		Elements: cyjsElements{
			Nodes: make([]cyjsNode, 0, g.NodeCount()),
			Edges: make([]cyjsEdge, 0, g.EdgeCount()),
		},
	}

	for _, n := range g.Nodes() {
		id := n.NodeID()
		ref := nodeRef(id)
		nid := id
		nd := cyjsNodeData{
			ID:     strconv.Itoa(id),
			Value:  &ref,
			Name:   strconv.Itoa(id),
			Side:   n.NodeSide(),
			NodeID: &nid,
		}
		switch v := n.(type) {
		case *DeviceNode:
			idx := v.Device.DeviceIndex
			nd.Type = TypeDevice
			nd.Device = &cyjsDevice{Device: v.Device, DeviceIndex: &idx}
		case *InterfaceNode:
			iface := v.Interface
			nd.Type = TypeInterface
			nd.Interface = &iface
		}
		doc.Elements.Nodes = append(doc.Elements.Nodes, cyjsNode{Data: nd})
	}
	for _, e := range g.Edges() {
		doc.Elements.Edges = append(doc.Elements.Edges, cyjsEdge{
			Data: cyjsEdgeData{Source: nodeRef(e.Source), Target: nodeRef(e.Target)},
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("can't export as JSON: %w", err)
	}
	return nil
}

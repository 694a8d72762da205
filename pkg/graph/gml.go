package graph

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var gmlEscaper = strings.NewReplacer("&", "&amp;", `"`, "&quot;")

// WriteGML encodes g in the Graph Modelling Language. GML output is an
// export-only format; it is never read back.
func WriteGML(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)
	gw := &gmlWriter{w: bw}

	gw.open("graph")
	gw.str("name", g.Name)
	for _, n := range g.Nodes() {
		gw.open("node")
		gw.num("id", n.NodeID())
		gw.str("label", strconv.Itoa(n.NodeID()))
		gw.str("side", string(n.NodeSide()))
		switch v := n.(type) {
		case *DeviceNode:
			gw.str("type", TypeDevice)
			gw.open("device")
			writeGMLDevice(gw, &v.Device)
			gw.close()
		case *InterfaceNode:
			gw.str("type", TypeInterface)
			gw.open("interface")
			gw.num("id", v.Interface.ID)
			gw.str("name", v.Interface.Name)
			gw.str("type", v.Interface.Type)
			gw.num("node_id", v.Interface.NodeID)
			gw.close()
		}
		gw.close()
	}
	for _, e := range g.Edges() {
		gw.open("edge")
		gw.num("source", e.Source)
		gw.num("target", e.Target)
		gw.close()
	}
	gw.close()

	if gw.err != nil {
		return fmt.Errorf("can't export as GML: %w", gw.err)
	}
	return bw.Flush()
}

func writeGMLDevice(gw *gmlWriter, d *Device) {
	gw.num("id", d.ID)
	gw.str("name", d.Name)
	gw.num("node_id", d.NodeID)
	gw.num("device_index", d.DeviceIndex)
	gw.str("platform", d.Platform)
	gw.str("platform_name", d.PlatformName)
	gw.str("vendor", d.Vendor)
	gw.str("vendor_name", d.VendorName)
	gw.str("model", d.Model)
	gw.str("model_name", d.ModelName)
	gw.str("role", d.Role)
	gw.str("role_name", d.RoleName)
	gw.str("primary_ip4", d.PrimaryIP4)
	gw.str("primary_ip6", d.PrimaryIP6)
}

// gmlWriter tracks nesting depth and the first write error.
type gmlWriter struct {
	w     *bufio.Writer
	depth int
	err   error
}

func (g *gmlWriter) line(s string) {
	if g.err != nil {
		return
	}
	_, g.err = fmt.Fprintf(g.w, "%s%s\n", strings.Repeat("  ", g.depth), s)
}

func (g *gmlWriter) open(key string) {
	g.line(key + " [")
	g.depth++
}

func (g *gmlWriter) close() {
	g.depth--
	g.line("]")
}

// str writes a string attribute; empty values are omitted.
func (g *gmlWriter) str(key, value string) {
	if value == "" {
		return
	}
	g.line(fmt.Sprintf("%s \"%s\"", key, gmlEscaper.Replace(value)))
}

func (g *gmlWriter) num(key string, value int) {
	g.line(fmt.Sprintf("%s %d", key, value))
}

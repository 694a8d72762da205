package netbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/netreplica/nrx/pkg/graph"
	"github.com/netreplica/nrx/pkg/util"
)

// Filter selects what to export.
type Filter struct {
	Sites []string
	Tags  []string
	Roles []string

	// InterfaceTags, when set, limits interfaces to those carrying one of
	// the tags.
	InterfaceTags []string

	// ExportConfigs fetches rendered device configurations.
	ExportConfigs bool

	// Name overrides the graph name derived from sites or tags.
	Name string
}

type nested struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	Slug         string  `json:"slug"`
	Model        string  `json:"model"`
	Manufacturer *nested `json:"manufacturer"`
}

type ipAddress struct {
	Address string `json:"address"`
}

type apiDevice struct {
	ID         int        `json:"id"`
	Name       *string    `json:"name"`
	Role       *nested    `json:"role"`
	DeviceRole *nested    `json:"device_role"`
	Platform   *nested    `json:"platform"`
	DeviceType *nested    `json:"device_type"`
	PrimaryIP4 *ipAddress `json:"primary_ip4"`
	PrimaryIP6 *ipAddress `json:"primary_ip6"`
}

// role returns the device role; NetBox before 3.6 calls it device_role.
func (d *apiDevice) role() *nested {
	if d.Role != nil {
		return d.Role
	}
	return d.DeviceRole
}

type apiInterface struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Device nested `json:"device"`
	Type   struct {
		Value string `json:"value"`
	} `json:"type"`
	MgmtOnly bool    `json:"mgmt_only"`
	Cable    *nested `json:"cable"`
}

type apiTermination struct {
	ObjectType string `json:"object_type"`
	ObjectID   int    `json:"object_id"`
}

type apiCable struct {
	ID            int              `json:"id"`
	ATerminations []apiTermination `json:"a_terminations"`
	BTerminations []apiTermination `json:"b_terminations"`
}

const interfaceObjectType = "dcim.interface"

// FetchGraph exports the devices matching f, their connected Ethernet
// interfaces and the cables between them.
func (c *Client) FetchGraph(ctx context.Context, f Filter) (*graph.Graph, error) {
	if len(f.Sites) == 0 && len(f.Tags) == 0 {
		return nil, fmt.Errorf("%w: at least one site or tag is required", util.ErrInvalidConfig)
	}

	q := url.Values{}
	for _, site := range f.Sites {
		id, err := c.siteID(ctx, site)
		if err != nil {
			return nil, err
		}
		q.Add("site_id", strconv.Itoa(id))
	}
	for _, tag := range f.Tags {
		q.Add("tag", tag)
	}
	for _, role := range f.Roles {
		q.Add("role", role)
	}

	apiDevices, err := list[apiDevice](ctx, c, "/api/dcim/devices/", q)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	c.log.WithField("devices", len(apiDevices)).Info("fetched devices")

	name := graphName(f)
	g := graph.New(name)
	nextNode := 0

	devNodes := make(map[int]int, len(apiDevices))
	devIDs := make([]int, 0, len(apiDevices))
	for i := range apiDevices {
		dev := deviceRecord(&apiDevices[i])
		dev.NodeID = nextNode
		dev.DeviceIndex = i
		if f.ExportConfigs {
			dev.Config = c.renderConfig(ctx, dev.ID, dev.Name)
		}
		if _, err := g.AddDevice(nextNode, graph.SideNone, dev); err != nil {
			return nil, err
		}
		devNodes[dev.ID] = nextNode
		devIDs = append(devIDs, dev.ID)
		nextNode++
	}

	ifaces, err := inBlocks(ctx, c, "interfaces", devIDs, c.cfg.InterfacesBlockSize,
		func(ctx context.Context, block []int) ([]apiInterface, error) {
			iq := idValues("device_id", block)
			for _, tag := range f.InterfaceTags {
				iq.Add("tag", tag)
			}
			return list[apiInterface](ctx, c, "/api/dcim/interfaces/", iq)
		})
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}

	type ifaceRef struct {
		rec    graph.Interface
		device int
	}
	kept := make(map[int]*ifaceRef)
	var cableIDs []int
	seenCable := make(map[int]bool)
	for _, ifc := range ifaces {
		if !strings.Contains(ifc.Type.Value, "base") || ifc.Cable == nil || ifc.MgmtOnly {
			continue
		}
		kept[ifc.ID] = &ifaceRef{
			rec: graph.Interface{
				ID:   ifc.ID,
				Type: graph.TypeInterface,
				Name: ifc.Name,
			},
			device: ifc.Device.ID,
		}
		if !seenCable[ifc.Cable.ID] {
			seenCable[ifc.Cable.ID] = true
			cableIDs = append(cableIDs, ifc.Cable.ID)
		}
	}
	c.log.WithFields(logrus.Fields{
		"interfaces": len(kept),
		"cables":     len(cableIDs),
	}).Info("fetched interfaces")

	cables, err := inBlocks(ctx, c, "cables", cableIDs, c.cfg.CablesBlockSize,
		func(ctx context.Context, block []int) ([]apiCable, error) {
			return list[apiCable](ctx, c, "/api/dcim/cables/", idValues("id", block))
		})
	if err != nil {
		return nil, fmt.Errorf("listing cables: %w", err)
	}

	links := 0
	for _, cable := range cables {
		if len(cable.ATerminations) != 1 || len(cable.BTerminations) != 1 {
			continue
		}
		ta, tb := cable.ATerminations[0], cable.BTerminations[0]
		if ta.ObjectType != interfaceObjectType || tb.ObjectType != interfaceObjectType || ta.ObjectID == tb.ObjectID {
			continue
		}
		ia, ib := kept[ta.ObjectID], kept[tb.ObjectID]
		if ia == nil || ib == nil {
			c.log.WithField("cable", cable.ID).Debug("one or both interfaces of this cable are not in the export graph")
			continue
		}
		da, okA := devNodes[ia.device]
		db, okB := devNodes[ib.device]
		if !okA || !okB {
			c.log.WithField("cable", cable.ID).Debug("one or both devices of this cable are not in the export graph")
			continue
		}
		ia.rec.NodeID, ib.rec.NodeID = nextNode, nextNode+1
		nextNode += 2
		if _, err := g.AddInterface(ia.rec.NodeID, graph.SideA, ia.rec); err != nil {
			return nil, err
		}
		if _, err := g.AddInterface(ib.rec.NodeID, graph.SideB, ib.rec); err != nil {
			return nil, err
		}
		for _, e := range [][2]int{{da, ia.rec.NodeID}, {db, ib.rec.NodeID}, {ia.rec.NodeID, ib.rec.NodeID}} {
			if err := g.AddEdge(e[0], e[1]); err != nil {
				return nil, err
			}
		}
		links++
	}
	c.log.WithFields(logrus.Fields{"graph": name, "links": links}).Info("graph assembled")
	return g, nil
}

func (c *Client) siteID(ctx context.Context, name string) (int, error) {
	sites, err := list[nested](ctx, c, "/api/dcim/sites/", url.Values{"name": {name}})
	if err != nil {
		return 0, fmt.Errorf("looking up site %q: %w", name, err)
	}
	if len(sites) == 0 {
		return 0, fmt.Errorf("%w: no data found for a site %q", util.ErrInventory, name)
	}
	return sites[0].ID, nil
}

// renderConfig returns the device configuration rendered by NetBox, or an
// empty string when the device has none.
func (c *Client) renderConfig(ctx context.Context, id int, name string) string {
	var resp struct {
		Content string `json:"content"`
	}
	u := c.endpoint(fmt.Sprintf("/api/dcim/devices/%d/render-config/", id), nil)
	data, err := c.do(ctx, http.MethodPost, u, struct{}{})
	if err == nil {
		err = json.Unmarshal(data, &resp)
	}
	if err != nil {
		util.WithDevice(c.log, name).WithError(err).Debug("no rendered configuration")
		return ""
	}
	return resp.Content
}

func deviceRecord(d *apiDevice) graph.Device {
	dev := graph.Device{
		ID:           d.ID,
		Type:         graph.TypeDevice,
		Platform:     "unknown",
		PlatformName: "unknown",
		Vendor:       "unknown",
		VendorName:   "unknown",
		Model:        "unknown",
		ModelName:    "unknown",
	}
	if r := d.role(); r != nil {
		dev.Role = r.Slug
		dev.RoleName = r.Name
	}
	if d.Name != nil && *d.Name != "" {
		dev.Name = *d.Name
	} else {
		prefix := dev.Role
		if prefix == "" {
			prefix = "device"
		}
		dev.Name = fmt.Sprintf("%s-%d", prefix, d.ID)
	}
	if p := d.Platform; p != nil {
		dev.Platform = p.Slug
		dev.PlatformName = p.Name
		if m := p.Manufacturer; m != nil {
			dev.Vendor, dev.VendorName = m.Slug, m.Name
		}
	}
	if t := d.DeviceType; t != nil {
		dev.Model, dev.ModelName = t.Slug, t.Model
		if m := t.Manufacturer; m != nil && dev.Vendor == "unknown" {
			dev.Vendor, dev.VendorName = m.Slug, m.Name
		}
	}
	if d.PrimaryIP4 != nil {
		dev.PrimaryIP4 = d.PrimaryIP4.Address
	}
	if d.PrimaryIP6 != nil {
		dev.PrimaryIP6 = d.PrimaryIP6.Address
	}
	return dev
}

func graphName(f Filter) string {
	switch {
	case f.Name != "":
		return f.Name
	case len(f.Sites) > 0:
		return strings.Join(f.Sites, "-")
	default:
		return strings.Join(f.Tags, "-")
	}
}

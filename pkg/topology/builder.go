package topology

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/netreplica/nrx/pkg/graph"
	"github.com/netreplica/nrx/pkg/util"
)

// Options configures Build.
type Options struct {
	// Levels maps a role slug to a level. Nil means DefaultRoleLevels.
	Levels map[string]int

	// Namer assigns emulated interface names. Nil means DefaultNamer.
	Namer Namer

	Log logrus.FieldLogger
}

// builder holds the state of a single Build call.
type builder struct {
	opts Options
	log  logrus.FieldLogger
	topo *Topology

	// keyed by device graph node id
	devByNode map[int]*Device
	order     []int
	natives   map[int]map[string]bool

	pending []pendingLink
}

type pendingLink struct {
	aDev, bDev     int
	aIface, bIface string
}

// Build walks g once and produces the topology. Any node lacking a
// required attribute fails the whole build.
func Build(g *graph.Graph, opts Options) (*Topology, error) {
	if opts.Levels == nil {
		opts.Levels = DefaultRoleLevels
	}
	if opts.Namer == nil {
		opts.Namer = DefaultNamer
	}
	log := opts.Log
	if log == nil {
		log = util.DiscardLogger()
	}

	b := &builder{
		opts: opts,
		log:  log,
		topo: &Topology{
			Name:    g.Name,
			Roles:   make(map[string][]int),
			byIndex: make(map[int]*Device),
			byName:  make(map[string]*Device),
		},
		devByNode: make(map[int]*Device),
		natives:   make(map[int]map[string]bool),
	}

	for _, n := range g.Nodes() {
		var err error
		switch v := n.(type) {
		case *graph.DeviceNode:
			err = b.addDevice(v)
		case *graph.InterfaceNode:
			err = b.addInterface(g, v)
		}
		if err != nil {
			return nil, err
		}
	}

	b.assignRanks()
	b.assignInterfaces()
	if err := b.resolveLinks(); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"devices": len(b.topo.Devices),
		"links":   len(b.topo.Links),
	}).Debug("topology built")
	return b.topo, nil
}

func (b *builder) addDevice(n *graph.DeviceNode) error {
	d := n.Device
	if d.Name == "" {
		return util.NewGraphError(n.ID, "name", "")
	}
	if d.Platform == "" {
		return util.NewGraphError(n.ID, "platform", "")
	}
	if prev, ok := b.topo.DeviceByName(d.Name); ok {
		return util.NewGraphError(n.ID, "", fmt.Sprintf("duplicate device name %q (also device_index %d)", d.Name, prev.DeviceIndex))
	}
	if prev, ok := b.topo.DeviceByIndex(d.DeviceIndex); ok {
		return util.NewGraphError(n.ID, "", fmt.Sprintf("duplicate device_index %d (also %q)", d.DeviceIndex, prev.Name))
	}

	dev := &Device{
		Device:       d,
		Level:        b.opts.Levels[d.Role],
		InterfaceMap: make(map[string]EmulatedInterface),
	}
	b.topo.Devices = append(b.topo.Devices, dev)
	b.topo.byIndex[d.DeviceIndex] = dev
	b.topo.byName[d.Name] = dev
	b.devByNode[n.ID] = dev
	b.order = append(b.order, n.ID)
	if d.Role != "" {
		b.topo.Roles[d.Role] = append(b.topo.Roles[d.Role], d.DeviceIndex)
	}
	if _, ok := b.natives[n.ID]; !ok {
		b.natives[n.ID] = make(map[string]bool)
	}
	return nil
}

func (b *builder) addInterface(g *graph.Graph, n *graph.InterfaceNode) error {
	if n.Interface.Name == "" {
		return util.NewGraphError(n.ID, "name", "")
	}
	owner, err := ownerOf(g, n.ID)
	if err != nil {
		return err
	}
	if b.natives[owner] == nil {
		b.natives[owner] = make(map[string]bool)
	}
	b.natives[owner][n.Interface.Name] = true

	if n.Side != graph.SideA {
		return nil
	}

	peer, err := peerOf(g, n.ID)
	if err != nil {
		return err
	}
	if peer == nil {
		b.log.WithField("node", n.ID).Debugf("interface %s has no link peer, skipping link", n.Interface.Name)
		return nil
	}
	peerOwner, err := ownerOf(g, peer.ID)
	if err != nil {
		return err
	}
	b.pending = append(b.pending, pendingLink{
		aDev: owner, aIface: n.Interface.Name,
		bDev: peerOwner, bIface: peer.Interface.Name,
	})
	return nil
}

// ownerOf returns the node id of the single device adjacent to an interface.
func ownerOf(g *graph.Graph, ifaceID int) (int, error) {
	owner, count := -1, 0
	for _, nb := range g.Neighbors(ifaceID) {
		if _, ok := nb.(*graph.DeviceNode); ok {
			owner = nb.NodeID()
			count++
		}
	}
	switch count {
	case 0:
		return 0, util.NewGraphError(ifaceID, "", "interface has no owning device")
	case 1:
		return owner, nil
	default:
		return 0, util.NewGraphError(ifaceID, "", fmt.Sprintf("interface has %d owning devices", count))
	}
}

// peerOf returns the interface at the other end of the cable, or nil.
func peerOf(g *graph.Graph, ifaceID int) (*graph.InterfaceNode, error) {
	var peer *graph.InterfaceNode
	for _, nb := range g.Neighbors(ifaceID) {
		if in, ok := nb.(*graph.InterfaceNode); ok {
			if peer != nil {
				return nil, util.NewGraphError(ifaceID, "", "interface has more than one link peer")
			}
			peer = in
		}
	}
	return peer, nil
}

// assignRanks sorts each role group by device_index and spreads ranks
// over [0, 1]. Singleton groups and devices without a role get 0.5.
func (b *builder) assignRanks() {
	for _, dev := range b.topo.Devices {
		dev.Rank = 0.5
	}
	for _, group := range b.topo.Roles {
		sort.Ints(group)
		if len(group) <= 1 {
			continue
		}
		for pos, idx := range group {
			if dev, ok := b.topo.DeviceByIndex(idx); ok {
				dev.Rank = float64(pos) / float64(len(group)-1)
			}
		}
	}
}

// assignInterfaces sorts native names byte-wise and assigns emulated names
// by sorted position. Every device's map is complete before links are
// resolved.
func (b *builder) assignInterfaces() {
	for _, nodeID := range b.order {
		dev := b.devByNode[nodeID]
		names := make([]string, 0, len(b.natives[nodeID]))
		for name := range b.natives[nodeID] {
			names = append(names, name)
		}
		sort.Strings(names)

		dev.Interfaces = make([]Interface, 0, len(names))
		for idx, native := range names {
			emulated := b.emulatedName(dev, native, idx)
			dev.Interfaces = append(dev.Interfaces, Interface{Native: native, Emulated: emulated, Index: idx})
			dev.InterfaceMap[native] = EmulatedInterface{Name: emulated, Index: idx}
		}
	}
}

func (b *builder) emulatedName(dev *Device, native string, idx int) string {
	name, err := b.opts.Namer.EmulatedName(dev.Platform, native, idx)
	if err != nil {
		util.WithDevice(b.log, dev.Name).WithError(err).Warnf("interface naming failed for %s, using default naming", native)
		return DefaultEmulatedName(idx)
	}
	if name == "" {
		return DefaultEmulatedName(idx)
	}
	return name
}

func (b *builder) resolveLinks() error {
	b.topo.Links = make([]*Link, 0, len(b.pending))
	for i, p := range b.pending {
		a, err := b.endpoint(p.aDev, p.aIface)
		if err != nil {
			return err
		}
		z, err := b.endpoint(p.bDev, p.bIface)
		if err != nil {
			return err
		}
		b.topo.Links = append(b.topo.Links, &Link{ID: i, A: a, B: z})
	}
	return nil
}

func (b *builder) endpoint(devNode int, native string) (Endpoint, error) {
	dev, ok := b.devByNode[devNode]
	if !ok {
		return Endpoint{}, util.NewGraphError(devNode, "", "link endpoint is not a device")
	}
	em, ok := dev.InterfaceMap[native]
	if !ok {
		return Endpoint{}, util.NewGraphError(devNode, "", fmt.Sprintf("interface %s missing from device %s interface map", native, dev.Name))
	}
	return Endpoint{
		Node:              dev.Name,
		NodeID:            dev.NodeID,
		DeviceIndex:       dev.DeviceIndex,
		Interface:         native,
		EmulatedInterface: em.Name,
		Index:             em.Index,
	}, nil
}

package netbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netreplica/nrx/pkg/graph"
	"github.com/netreplica/nrx/pkg/util"
)

// fakeNetBox serves the handful of DCIM endpoints the client uses, with
// limit/offset pagination and an optional cap on ids per filter.
type fakeNetBox struct {
	mu         sync.Mutex
	sites      map[string]int
	devices    []map[string]any
	interfaces []map[string]any
	cables     []map[string]any
	configs    map[int]string
	maxIDs     int

	requests []*http.Request
	rejected int
}

func (f *fakeNetBox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r)

	q := r.URL.Query()
	var items []map[string]any
	switch {
	case r.URL.Path == "/api/dcim/sites/":
		if id, ok := f.sites[q.Get("name")]; ok {
			items = append(items, map[string]any{"id": id, "name": q.Get("name"), "slug": q.Get("name")})
		}
	case r.URL.Path == "/api/dcim/devices/":
		sites := q["site_id"]
		for _, d := range f.devices {
			if len(sites) == 0 || slices.Contains(sites, strconv.Itoa(nestedID(d, "site"))) {
				items = append(items, d)
			}
		}
	case r.URL.Path == "/api/dcim/interfaces/":
		if f.tooMany(w, q["device_id"]) {
			return
		}
		for _, i := range f.interfaces {
			if slices.Contains(q["device_id"], strconv.Itoa(nestedID(i, "device"))) {
				items = append(items, i)
			}
		}
	case r.URL.Path == "/api/dcim/cables/":
		if f.tooMany(w, q["id"]) {
			return
		}
		for _, c := range f.cables {
			if slices.Contains(q["id"], strconv.Itoa(c["id"].(int))) {
				items = append(items, c)
			}
		}
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/render-config/"):
		id, _ := strconv.Atoi(strings.Split(r.URL.Path, "/")[4])
		cfg, ok := f.configs[id]
		if !ok {
			http.Error(w, `{"detail":"no config template"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"content": cfg})
		return
	default:
		http.NotFound(w, r)
		return
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 {
		limit = len(items)
	}
	end := min(offset+limit, len(items))
	resp := map[string]any{"count": len(items), "next": nil, "results": items[min(offset, end):end]}
	if end < len(items) {
		q.Set("offset", strconv.Itoa(end))
		resp["next"] = "http://" + r.Host + r.URL.Path + "?" + q.Encode()
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeNetBox) tooMany(w http.ResponseWriter, ids []string) bool {
	if f.maxIDs > 0 && len(ids) > f.maxIDs {
		f.rejected++
		http.Error(w, "Request-URI Too Large", http.StatusRequestURITooLong)
		return true
	}
	return false
}

// queries returns the query strings of requests to path, in order.
func (f *fakeNetBox) queries(path string) []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []url.Values
	for _, r := range f.requests {
		if r.URL.Path == path {
			out = append(out, r.URL.Query())
		}
	}
	return out
}

func nestedID(m map[string]any, key string) int {
	n, _ := m[key].(map[string]any)
	id, _ := n["id"].(int)
	return id
}

func fakeDevice(id, site int, name, role, platform string) map[string]any {
	d := map[string]any{
		"id":   id,
		"site": map[string]any{"id": site},
		"role": map[string]any{"id": 1, "slug": role, "name": strings.ToUpper(role)},
		"device_type": map[string]any{
			"id": 1, "slug": "generic", "model": "Generic",
			"manufacturer": map[string]any{"id": 1, "slug": "acme", "name": "ACME"},
		},
		"primary_ip4": map[string]any{"address": "192.0.2." + strconv.Itoa(id) + "/24"},
		"primary_ip6": nil,
	}
	if name != "" {
		d["name"] = name
	}
	if platform != "" {
		d["platform"] = map[string]any{"id": 1, "slug": platform, "name": strings.ToUpper(platform)}
	}
	return d
}

func fakeInterface(id, device int, name, typ string, cable int) map[string]any {
	i := map[string]any{
		"id":        id,
		"name":      name,
		"device":    map[string]any{"id": device},
		"type":      map[string]any{"value": typ},
		"mgmt_only": false,
		"cable":     nil,
	}
	if cable != 0 {
		i["cable"] = map[string]any{"id": cable}
	}
	return i
}

func fakeCable(id, a, b int) map[string]any {
	term := func(ifc int) []map[string]any {
		return []map[string]any{{"object_type": "dcim.interface", "object_id": ifc}}
	}
	return map[string]any{"id": id, "a_terminations": term(a), "b_terminations": term(b)}
}

// newFakeLab returns two devices in site "lab" joined by one cable, plus a
// device in another site cabled to the second one.
func newFakeLab() *fakeNetBox {
	mgmt := fakeInterface(103, 1, "Management1", "1000base-t", 11)
	mgmt["mgmt_only"] = true
	return &fakeNetBox{
		sites: map[string]int{"lab": 1, "other": 2},
		devices: []map[string]any{
			fakeDevice(1, 1, "r1", "leaf", "eos"),
			fakeDevice(2, 1, "r2", "spine", "sonic"),
			fakeDevice(3, 2, "r3", "leaf", "eos"),
		},
		interfaces: []map[string]any{
			fakeInterface(101, 1, "Ethernet1", "10gbase-x-sfpp", 10),
			fakeInterface(102, 1, "Ethernet2", "virtual", 12),
			mgmt,
			fakeInterface(104, 1, "Ethernet3", "1000base-t", 0),
			fakeInterface(201, 2, "Ethernet1", "10gbase-x-sfpp", 10),
			fakeInterface(202, 2, "Ethernet2", "1000base-t", 13),
			fakeInterface(301, 3, "Ethernet1", "1000base-t", 13),
		},
		cables: []map[string]any{
			fakeCable(10, 101, 201),
			fakeCable(13, 202, 301),
		},
		configs: map[int]string{1: "hostname r1\n"},
	}
}

func newTestClient(t *testing.T, fake *fakeNetBox, mutate func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	cfg := Config{URL: srv.URL, Token: "secret", RequestsPerSecond: 1000}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg, nil)
	require.NoError(t, err)
	return c
}

// ============================================================================
// FetchGraph
// ============================================================================

func TestFetchGraph(t *testing.T) {
	fake := newFakeLab()
	c := newTestClient(t, fake, nil)

	g, err := c.FetchGraph(context.Background(), Filter{Sites: []string{"lab"}})
	require.NoError(t, err)

	assert.Equal(t, "lab", g.Name)
	assert.Equal(t, 4, g.NodeCount())
	assert.Equal(t, 3, g.EdgeCount())

	devs := g.Devices()
	require.Len(t, devs, 2)
	r1 := devs[0].Device
	assert.Equal(t, "r1", r1.Name)
	assert.Equal(t, 0, r1.NodeID)
	assert.Equal(t, 0, r1.DeviceIndex)
	assert.Equal(t, "eos", r1.Platform)
	assert.Equal(t, "leaf", r1.Role)
	assert.Equal(t, "LEAF", r1.RoleName)
	assert.Equal(t, "acme", r1.Vendor)
	assert.Equal(t, "generic", r1.Model)
	assert.Equal(t, "192.0.2.1/24", r1.PrimaryIP4)
	assert.Empty(t, r1.Config)
	assert.Equal(t, graph.SideNone, devs[0].Side)
	assert.Equal(t, 1, devs[1].Device.DeviceIndex)

	a, ok := g.Node(2)
	require.True(t, ok)
	ifA, ok := a.(*graph.InterfaceNode)
	require.True(t, ok)
	assert.Equal(t, graph.SideA, ifA.Side)
	assert.Equal(t, "Ethernet1", ifA.Interface.Name)
	assert.Equal(t, 101, ifA.Interface.ID)

	b, ok := g.Node(3)
	require.True(t, ok)
	assert.Equal(t, graph.SideB, b.NodeSide())

	neighbors := g.Neighbors(2)
	require.Len(t, neighbors, 2)
	assert.Equal(t, 0, neighbors[0].NodeID())
	assert.Equal(t, 3, neighbors[1].NodeID())

	cableQueries := fake.queries("/api/dcim/cables/")
	require.Len(t, cableQueries, 1)
	assert.ElementsMatch(t, []string{"10", "13"}, cableQueries[0]["id"])
}

func TestFetchGraphAuthHeader(t *testing.T) {
	fake := newFakeLab()
	c := newTestClient(t, fake, nil)

	_, err := c.FetchGraph(context.Background(), Filter{Sites: []string{"lab"}})
	require.NoError(t, err)

	require.NotEmpty(t, fake.requests)
	for _, r := range fake.requests {
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"), r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
	}
}

func TestFetchGraphPagination(t *testing.T) {
	fake := newFakeLab()
	c := newTestClient(t, fake, func(cfg *Config) { cfg.PageSize = 1 })

	g, err := c.FetchGraph(context.Background(), Filter{Sites: []string{"lab", "other"}})
	require.NoError(t, err)

	assert.Equal(t, "lab-other", g.Name)
	assert.Len(t, g.Devices(), 3)
	assert.Len(t, fake.queries("/api/dcim/devices/"), 3)
	// Both cables now have both ends in the graph.
	assert.Equal(t, 3+4, g.NodeCount())
}

func TestFetchGraphBlockHalving(t *testing.T) {
	fake := newFakeLab()
	fake.maxIDs = 1
	c := newTestClient(t, fake, func(cfg *Config) {
		cfg.InterfacesBlockSize = 4
		cfg.CablesBlockSize = 2
	})

	g, err := c.FetchGraph(context.Background(), Filter{Sites: []string{"lab", "other"}})
	require.NoError(t, err)
	assert.Equal(t, 7, g.NodeCount())

	ifQueries := fake.queries("/api/dcim/interfaces/")
	// 3 ids rejected, 2 ids rejected, then one request per device.
	require.Len(t, ifQueries, 5)
	assert.Len(t, ifQueries[0]["device_id"], 3)
	assert.Len(t, ifQueries[1]["device_id"], 2)
	for _, q := range ifQueries[2:] {
		assert.Len(t, q["device_id"], 1)
	}
	// Two interface blocks and one cable block were rejected.
	assert.Equal(t, 3, fake.rejected)
}

func TestFetchGraphBlockHalvingGivesUp(t *testing.T) {
	fake := newFakeLab()
	fake.maxIDs = 1
	c := newTestClient(t, fake, func(cfg *Config) {
		cfg.InterfacesBlockSize = 8
		cfg.MaxAttempts = 2
	})

	_, err := c.FetchGraph(context.Background(), Filter{Sites: []string{"lab"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrInventory)
	assert.True(t, isTooLarge(err))
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Len(t, fake.queries("/api/dcim/interfaces/"), 2)
}

func TestFetchGraphUnknownSite(t *testing.T) {
	c := newTestClient(t, newFakeLab(), nil)

	_, err := c.FetchGraph(context.Background(), Filter{Sites: []string{"nosuch"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrInventory)
	assert.Contains(t, err.Error(), `"nosuch"`)
}

func TestFetchGraphRequiresSiteOrTag(t *testing.T) {
	c := newTestClient(t, newFakeLab(), nil)

	_, err := c.FetchGraph(context.Background(), Filter{Roles: []string{"leaf"}})
	assert.ErrorIs(t, err, util.ErrInvalidConfig)
}

func TestFetchGraphFilters(t *testing.T) {
	fake := newFakeLab()
	c := newTestClient(t, fake, nil)

	g, err := c.FetchGraph(context.Background(), Filter{
		Tags:          []string{"dc1", "pod2"},
		Roles:         []string{"leaf"},
		InterfaceTags: []string{"fabric"},
	})
	require.NoError(t, err)
	assert.Equal(t, "dc1-pod2", g.Name)

	devQ := fake.queries("/api/dcim/devices/")
	require.Len(t, devQ, 1)
	assert.Equal(t, []string{"dc1", "pod2"}, devQ[0]["tag"])
	assert.Equal(t, []string{"leaf"}, devQ[0]["role"])
	assert.Empty(t, devQ[0]["site_id"])

	for _, q := range fake.queries("/api/dcim/interfaces/") {
		assert.Equal(t, []string{"fabric"}, q["tag"])
	}
}

func TestFetchGraphNameOverride(t *testing.T) {
	c := newTestClient(t, newFakeLab(), nil)

	g, err := c.FetchGraph(context.Background(), Filter{Sites: []string{"lab"}, Name: "demo"})
	require.NoError(t, err)
	assert.Equal(t, "demo", g.Name)
}

func TestFetchGraphExportConfigs(t *testing.T) {
	fake := newFakeLab()
	c := newTestClient(t, fake, nil)

	g, err := c.FetchGraph(context.Background(), Filter{Sites: []string{"lab"}, ExportConfigs: true})
	require.NoError(t, err)

	devs := g.Devices()
	require.Len(t, devs, 2)
	assert.Equal(t, "hostname r1\n", devs[0].Device.Config)
	assert.Empty(t, devs[1].Device.Config)

	var posts int
	for _, r := range fake.requests {
		if r.Method == http.MethodPost {
			posts++
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		}
	}
	assert.Equal(t, 2, posts)
}

// ============================================================================
// Client
// ============================================================================

func TestNewValidation(t *testing.T) {
	for _, raw := range []string{"", "netbox.local", "://bad"} {
		_, err := New(Config{URL: raw}, nil)
		assert.ErrorIs(t, err, util.ErrInvalidConfig, raw)
	}

	c, err := New(Config{URL: "https://netbox.example.com/"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, c.cfg.PageSize)
	assert.Equal(t, DefaultInterfacesBlockSize, c.cfg.InterfacesBlockSize)
	assert.Equal(t, DefaultCablesBlockSize, c.cfg.CablesBlockSize)
	assert.Equal(t, DefaultTimeout, c.http.Timeout)
	assert.Equal(t, "https://netbox.example.com/api/dcim/sites/?name=x",
		c.endpoint("/api/dcim/sites/", url.Values{"name": {"x"}}))
}

func TestAPIErrorTooLarge(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   bool
	}{
		{http.StatusRequestURITooLong, "", true},
		{http.StatusRequestHeaderFieldsTooLarge, "", true},
		{http.StatusBadRequest, "Request Header Or Cookie Too Large", true},
		{http.StatusBadRequest, "invalid filter", false},
		{http.StatusInternalServerError, "too large", false},
	}
	for _, tt := range tests {
		e := &APIError{Method: "GET", URL: "u", StatusCode: tt.status, Body: tt.body}
		if got := e.TooLarge(); got != tt.want {
			t.Errorf("TooLarge(%d, %q) = %v, want %v", tt.status, tt.body, got, tt.want)
		}
	}
}

func TestAPIErrorMessage(t *testing.T) {
	e := &APIError{Method: "GET", URL: "http://nb/api/", StatusCode: 403, Body: strings.Repeat("x", 300)}
	msg := e.Error()
	assert.Contains(t, msg, "403 Forbidden")
	assert.True(t, strings.HasSuffix(msg, "..."))
	assert.ErrorIs(t, e, util.ErrInventory)
}

func TestDeviceRecord(t *testing.T) {
	var d apiDevice
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": 42,
		"name": null,
		"device_role": {"id": 3, "slug": "spine", "name": "Spine"},
		"platform": null,
		"device_type": {"slug": "7050", "model": "DCS-7050",
			"manufacturer": {"slug": "arista", "name": "Arista"}},
		"primary_ip6": {"address": "2001:db8::1/64"}
	}`), &d))

	dev := deviceRecord(&d)
	assert.Equal(t, "spine-42", dev.Name)
	assert.Equal(t, "spine", dev.Role)
	assert.Equal(t, "unknown", dev.Platform)
	assert.Equal(t, "arista", dev.Vendor)
	assert.Equal(t, "Arista", dev.VendorName)
	assert.Equal(t, "7050", dev.Model)
	assert.Equal(t, "DCS-7050", dev.ModelName)
	assert.Equal(t, "2001:db8::1/64", dev.PrimaryIP6)
	assert.Equal(t, graph.TypeDevice, dev.Type)

	dev = deviceRecord(&apiDevice{ID: 7})
	assert.Equal(t, "device-7", dev.Name)
	assert.Equal(t, "unknown", dev.Vendor)
	assert.Equal(t, "unknown", dev.Model)
}

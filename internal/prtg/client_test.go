package prtg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type mockObject struct {
	kind     string // "probe", "group", "device"
	objid    int
	name     string
	parentid int
	priority int
	tags     string
	location string
	host     string
	active   bool
	status   string
}

// row renders the object the way the table API does: some columns raw,
// some as display strings, so the flexible decoders get exercised.
func (o *mockObject) row() map[string]any {
	var active any = "false"
	if o.active {
		active = "true"
	}
	if o.kind == "probe" {
		active = 0
		if o.active {
			active = -1
		}
	}
	m := map[string]any{
		"objid":    o.objid,
		"name":     o.name,
		"active":   active,
		"status":   o.status,
		"parentid": strconv.Itoa(o.parentid),
		"priority": strconv.Itoa(o.priority),
		"tags":     o.tags,
		"location": o.location,
	}
	if o.kind == "device" {
		m["host"] = o.host
	}
	return m
}

var tableKinds = map[string]string{
	"probes":  "probe",
	"groups":  "group",
	"devices": "device",
}

// mockPRTG fakes the platform API: a small fixed tree, clone via
// redirect, and a per-clone visibility delay so polling gets exercised.
type mockPRTG struct {
	t   *testing.T
	srv *httptest.Server

	mu         sync.Mutex
	requests   []*url.URL
	objects    map[int]*mockObject
	pending    map[int]int // clone id -> table lookups to miss before visible
	nextID     int
	cloneDelay int
	failures   int  // serve this many 503s before answering
	noRedirect bool // serve clones without redirecting
}

func newMockPRTG(t *testing.T) (*mockPRTG, *Client) {
	t.Helper()
	m := &mockPRTG{
		t: t,
		objects: map[int]*mockObject{
			1:    {kind: "probe", objid: 1, name: "Local Probe", active: true, status: "Up"},
			2000: {kind: "group", objid: 2000, name: "[Acme Inc.]", parentid: 1, active: true, status: "Up"},
			2010: {kind: "group", objid: 2010, name: "[ACM] HQ", parentid: 2000, priority: 3, tags: "stage-production", location: "500 Main St, Springfield", active: true, status: "Up"},
			2020: {kind: "group", objid: 2020, name: "[ACM] HQ", parentid: 1, active: true, status: "Up"},
			4017: {kind: "device", objid: 4017, name: "Dell PowerEdge R740 (10.0.0.5)", parentid: 2010, priority: 3, host: "10.0.0.5", active: true, status: "Up"},
			4020: {kind: "device", objid: 4020, name: " Old Server (10.0.0.9) ", parentid: 2000, host: "10.0.0.9", active: false, status: "Paused by user"},
		},
		pending:    map[int]int{},
		nextID:     9000,
		cloneDelay: 1,
	}
	m.srv = httptest.NewServer(m)
	t.Cleanup(m.srv.Close)

	c := NewClient(Config{
		URL:               m.srv.URL,
		Token:             "tok-123",
		TemplateGroup:     600,
		TemplateDevice:    650,
		Retries:           3,
		Backoff:           time.Millisecond,
		VisibilityTimeout: 2 * time.Second,
	})
	c.pollInterval = time.Millisecond
	return m, c
}

func (m *mockPRTG) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests = append(m.requests, r.URL)
	failing := m.failures > 0
	if failing {
		m.failures--
	}
	m.mu.Unlock()
	if failing {
		http.Error(w, "server overloaded", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	switch r.URL.Path {
	case "/api/healthstatus.json":
		writeTestJSON(m.t, w, map[string]any{"Overallstate": 1})
	case "/api/table.json":
		m.serveTable(w, q)
	case "/api/duplicateobject.htm":
		m.serveClone(w, r)
	case "/api/getobjectproperty.htm":
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8" ?><prtg><version>24.1.92</version><result>  https://cmdb.example.com/ci?sys_id=abc  </result></prtg>`)
	case "/api/setpriority.htm":
		if q.Get("id") == "666" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8" ?><prtg><error>Sorry, the selected object cannot be used here.</error></prtg>`)
			return
		}
		fmt.Fprint(w, "OK")
	case "/api/setobjectproperty.htm", "/api/pause.htm", "/api/moveobject.htm", "/api/deleteobject.htm", "/api/rename.htm":
		fmt.Fprint(w, "OK")
	case "/group.htm", "/device.htm":
		fmt.Fprint(w, "<html>object page</html>")
	default:
		http.NotFound(w, r)
	}
}

func (m *mockPRTG) serveTable(w http.ResponseWriter, q url.Values) {
	m.mu.Lock()
	defer m.mu.Unlock()

	content := q.Get("content")
	ids := make([]int, 0, len(m.objects))
	for id := range m.objects {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	rows := make([]map[string]any, 0)
	for _, id := range ids {
		o := m.objects[id]
		if o.kind != tableKinds[content] {
			continue
		}
		if m.pending[o.objid] > 0 {
			m.pending[o.objid]--
			continue
		}
		if v := q.Get("filter_objid"); v != "" && v != strconv.Itoa(o.objid) {
			continue
		}
		if v := q.Get("filter_name"); v != "" && v != o.name {
			continue
		}
		if v := q.Get("filter_parentid"); v != "" && v != strconv.Itoa(o.parentid) {
			continue
		}
		if v := q.Get("id"); v != "" && !m.inSubtree(o, v) {
			continue
		}
		rows = append(rows, o.row())
	}
	writeTestJSON(m.t, w, map[string]any{content: rows, "treesize": len(rows)})
}

func (m *mockPRTG) inSubtree(o *mockObject, root string) bool {
	rootID, _ := strconv.Atoi(root)
	for cur := o; cur != nil; cur = m.objects[cur.parentid] {
		if cur.objid == rootID {
			return true
		}
	}
	return false
}

func (m *mockPRTG) serveClone(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	m.mu.Lock()
	if m.noRedirect {
		m.mu.Unlock()
		fmt.Fprint(w, "<html>clone failed</html>")
		return
	}
	templateID, _ := strconv.Atoi(q.Get("id"))
	kind := "group"
	if templateID == 650 {
		kind = "device"
	}
	m.nextID++
	id := m.nextID
	parentID, _ := strconv.Atoi(q.Get("targetid"))
	m.objects[id] = &mockObject{
		kind:     kind,
		objid:    id,
		name:     q.Get("name"),
		parentid: parentID,
		host:     q.Get("host"),
		active:   true,
		status:   "Up",
	}
	m.pending[id] = m.cloneDelay
	m.mu.Unlock()
	http.Redirect(w, r, fmt.Sprintf("/%s.htm?id=%d&tabid=1", kind, id), http.StatusFound)
}

// callsTo returns the query values of every request to the given path, in
// order.
func (m *mockPRTG) callsTo(path string) []url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []url.Values
	for _, u := range m.requests {
		if u.Path == path {
			out = append(out, u.Query())
		}
	}
	return out
}

func (m *mockPRTG) lastCall(t *testing.T, path string) url.Values {
	t.Helper()
	calls := m.callsTo(path)
	if len(calls) == 0 {
		t.Fatalf("no request to %s", path)
	}
	return calls[len(calls)-1]
}

// apiSequence returns the ordered API paths hit, ignoring the object
// pages that clone redirects land on.
func (m *mockPRTG) apiSequence() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, u := range m.requests {
		if strings.HasPrefix(u.Path, "/api/") {
			out = append(out, u.Path)
		}
	}
	return out
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestPing(t *testing.T) {
	m, c := newMockPRTG(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	q := m.lastCall(t, "/api/healthstatus.json")
	if got := q.Get("apitoken"); got != "tok-123" {
		t.Errorf("apitoken = %q, want tok-123", got)
	}
}

func TestAuthModes(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want map[string]string
	}{
		{
			name: "token",
			cfg:  Config{Token: "tok-9"},
			want: map[string]string{"apitoken": "tok-9"},
		},
		{
			name: "passhash",
			cfg:  Config{Username: "sync", Passhash: "12345"},
			want: map[string]string{"username": "sync", "passhash": "12345"},
		},
		{
			name: "password",
			cfg:  Config{Username: "sync", Password: "hunter2"},
			want: map[string]string{"username": "sync", "password": "hunter2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newMockPRTG(t)
			cfg := tt.cfg
			cfg.URL = m.srv.URL
			c := NewClient(cfg)
			if err := c.Ping(context.Background()); err != nil {
				t.Fatalf("Ping: %v", err)
			}
			q := m.lastCall(t, "/api/healthstatus.json")
			for k, v := range tt.want {
				if got := q.Get(k); got != v {
					t.Errorf("%s = %q, want %q", k, got, v)
				}
			}
			for _, param := range []string{"apitoken", "passhash", "password"} {
				if _, expected := tt.want[param]; !expected && q.Has(param) {
					t.Errorf("unexpected %s param in %s mode", param, tt.name)
				}
			}
		})
	}
}

func TestGetProbe(t *testing.T) {
	_, c := newMockPRTG(t)
	p, err := c.GetProbe(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetProbe: %v", err)
	}
	if p.ID != 1 || p.Name != "Local Probe" || p.ParentID != 0 {
		t.Errorf("probe = %+v", p)
	}
	if !p.Active || p.Status != StatusUp {
		t.Errorf("probe state = active %v status %v", p.Active, p.Status)
	}
}

func TestGetProbeNotFound(t *testing.T) {
	_, c := newMockPRTG(t)
	_, err := c.GetProbe(context.Background(), 77)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
	if nf.Kind != "probe" || nf.ID != 77 {
		t.Errorf("NotFoundError = %+v", nf)
	}
}

func TestGetGroupDecodesStringlyColumns(t *testing.T) {
	_, c := newMockPRTG(t)
	g, err := c.GetGroup(context.Background(), 2010)
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if g.ParentID != 2000 {
		t.Errorf("ParentID = %d, want 2000", g.ParentID)
	}
	if g.Priority != 3 {
		t.Errorf("Priority = %d, want 3", g.Priority)
	}
	if len(g.Tags) != 1 || g.Tags[0] != "stage-production" {
		t.Errorf("Tags = %v", g.Tags)
	}
	if g.Location != "500 Main St, Springfield" {
		t.Errorf("Location = %q", g.Location)
	}
}

func TestGetGroupsByName(t *testing.T) {
	m, c := newMockPRTG(t)

	groups, err := c.GetGroupsByName(context.Background(), "[ACM] HQ", 0)
	if err != nil {
		t.Fatalf("GetGroupsByName: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups anywhere, want 2", len(groups))
	}
	if q := m.lastCall(t, "/api/table.json"); q.Has("filter_parentid") {
		t.Error("unscoped lookup sent filter_parentid")
	}

	groups, err = c.GetGroupsByName(context.Background(), "[ACM] HQ", 2000)
	if err != nil {
		t.Fatalf("GetGroupsByName scoped: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != 2010 {
		t.Fatalf("scoped groups = %+v, want just 2010", groups)
	}
	if got := m.lastCall(t, "/api/table.json").Get("filter_parentid"); got != "2000" {
		t.Errorf("filter_parentid = %q, want 2000", got)
	}
}

func TestGetDevice(t *testing.T) {
	_, c := newMockPRTG(t)
	d, err := c.GetDevice(context.Background(), 4020)
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	if d.Name != "Old Server (10.0.0.9)" {
		t.Errorf("Name = %q, want trimmed", d.Name)
	}
	if d.Host != "10.0.0.9" {
		t.Errorf("Host = %q", d.Host)
	}
	if d.Active {
		t.Error("device should be inactive")
	}
	if d.Status != StatusPaused {
		t.Errorf("Status = %v, want paused", d.Status)
	}
}

func TestGetDevicesByGroupIsTransitive(t *testing.T) {
	m, c := newMockPRTG(t)
	devices, err := c.GetDevicesByGroup(context.Background(), 2000)
	if err != nil {
		t.Fatalf("GetDevicesByGroup: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2 (one nested two levels down)", len(devices))
	}
	q := m.lastCall(t, "/api/table.json")
	if got := q.Get("id"); got != "2000" {
		t.Errorf("id param = %q, want 2000", got)
	}
	if q.Has("filter_parentid") {
		t.Error("subtree listing must not filter on direct parent")
	}
}

func TestGetParentOfDevice(t *testing.T) {
	_, c := newMockPRTG(t)
	g, err := c.GetParent(context.Background(), 4017)
	if err != nil {
		t.Fatalf("GetParent: %v", err)
	}
	if g.ID != 2010 || g.Name != "[ACM] HQ" {
		t.Errorf("parent = %+v, want group 2010", g)
	}
}

func TestGetParentFallsBackToProbe(t *testing.T) {
	_, c := newMockPRTG(t)
	g, err := c.GetParent(context.Background(), 2000)
	if err != nil {
		t.Fatalf("GetParent: %v", err)
	}
	if g.ID != 1 || g.Name != "Local Probe" {
		t.Errorf("parent = %+v, want probe 1", g)
	}
}

func TestAddGroup(t *testing.T) {
	m, c := newMockPRTG(t)
	created, err := c.AddGroup(context.Background(), Group{
		Name:     "[ACM] Annex",
		Active:   true,
		Priority: 3,
		Tags:     []string{"stage-production"},
		Location: "12 Side St, Springfield",
	}, 2000)
	if err != nil {
		t.Fatalf("AddGroup: %v", err)
	}
	if created.ID != 9001 {
		t.Errorf("created.ID = %d, want 9001", created.ID)
	}
	if created.ParentID != 2000 {
		t.Errorf("created.ParentID = %d, want 2000", created.ParentID)
	}

	clone := m.lastCall(t, "/api/duplicateobject.htm")
	if got := clone.Get("id"); got != "600" {
		t.Errorf("clone template id = %q, want 600", got)
	}
	if got := clone.Get("name"); got != "[ACM] Annex" {
		t.Errorf("clone name = %q", got)
	}
	if got := clone.Get("targetid"); got != "2000" {
		t.Errorf("clone targetid = %q, want 2000", got)
	}

	want := []string{
		"/api/duplicateobject.htm",
		"/api/table.json", // clone not visible yet
		"/api/table.json",
		"/api/pause.htm", // resume
		"/api/setpriority.htm",
		"/api/setobjectproperty.htm", // tags
		"/api/setobjectproperty.htm", // location
	}
	got := m.apiSequence()
	if len(got) != len(want) {
		t.Fatalf("API sequence = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("API sequence[%d] = %s, want %s (full: %v)", i, got[i], want[i], got)
		}
	}

	if got := m.lastCall(t, "/api/pause.htm").Get("action"); got != "1" {
		t.Errorf("pause action = %q, want 1 (resume)", got)
	}
	props := m.callsTo("/api/setobjectproperty.htm")
	if got := props[0].Get("name"); got != "tags" {
		t.Errorf("first property = %q, want tags", got)
	}
	if got := props[1].Get("name"); got != "location" {
		t.Errorf("second property = %q, want location", got)
	}
}

func TestAddDevice(t *testing.T) {
	m, c := newMockPRTG(t)
	created, err := c.AddDevice(context.Background(), Device{
		Name:       "Cisco C9300 (10.0.1.2)",
		Host:       "10.0.1.2",
		Active:     true,
		Priority:   3,
		Tags:       []string{"stage-production", "network-switch"},
		ServiceURL: "https://cmdb.example.com/ci?sys_id=abc",
		Icon:       "vendors_Cisco.png",
	}, 2010)
	if err != nil {
		t.Fatalf("AddDevice: %v", err)
	}
	if created.ID != 9001 {
		t.Errorf("created.ID = %d, want 9001", created.ID)
	}

	clone := m.lastCall(t, "/api/duplicateobject.htm")
	if got := clone.Get("id"); got != "650" {
		t.Errorf("clone template id = %q, want 650", got)
	}
	if got := clone.Get("host"); got != "10.0.1.2" {
		t.Errorf("clone host = %q", got)
	}

	props := m.callsTo("/api/setobjectproperty.htm")
	if len(props) != 3 {
		t.Fatalf("got %d property writes, want 3", len(props))
	}
	byName := map[string]string{}
	for _, p := range props {
		byName[p.Get("name")] = p.Get("value")
	}
	if got := byName["tags"]; got != "stage-production network-switch" {
		t.Errorf("tags = %q, want space-joined", got)
	}
	if got := byName["serviceurl"]; got != "https://cmdb.example.com/ci?sys_id=abc" {
		t.Errorf("serviceurl = %q", got)
	}
	if got := byName["deviceicon"]; got != "vendors_Cisco.png" {
		t.Errorf("deviceicon = %q", got)
	}
}

func TestAddGroupWithoutTemplate(t *testing.T) {
	m, _ := newMockPRTG(t)
	c := NewClient(Config{URL: m.srv.URL, Token: "t"})
	if _, err := c.AddGroup(context.Background(), Group{Name: "x"}, 1); err == nil {
		t.Fatal("expected error without template_group")
	}
	if len(m.callsTo("/api/duplicateobject.htm")) != 0 {
		t.Error("clone attempted without a template")
	}
}

func TestCloneWithoutRedirectFails(t *testing.T) {
	m, c := newMockPRTG(t)
	m.noRedirect = true
	_, err := c.AddGroup(context.Background(), Group{Name: "x", Active: true}, 2000)
	if err == nil || !strings.Contains(err.Error(), "did not redirect") {
		t.Fatalf("err = %v, want redirect failure", err)
	}
}

func TestSetPriorityValidatesRange(t *testing.T) {
	m, c := newMockPRTG(t)
	for _, bad := range []int{0, -1, 6} {
		if err := c.SetPriority(context.Background(), 4017, bad); err == nil {
			t.Errorf("SetPriority(%d) accepted", bad)
		}
	}
	if len(m.callsTo("/api/setpriority.htm")) != 0 {
		t.Error("out-of-range priority reached the API")
	}
	if err := c.SetPriority(context.Background(), 4017, 5); err != nil {
		t.Fatalf("SetPriority(5): %v", err)
	}
	if got := m.lastCall(t, "/api/setpriority.htm").Get("prio"); got != "5" {
		t.Errorf("prio = %q, want 5", got)
	}
}

func TestSetInheritLocation(t *testing.T) {
	m, c := newMockPRTG(t)
	if err := c.SetInheritLocation(context.Background(), 2010, false); err != nil {
		t.Fatalf("SetInheritLocation: %v", err)
	}
	q := m.lastCall(t, "/api/setobjectproperty.htm")
	if q.Get("name") != "locationgroup_" || q.Get("value") != "0" {
		t.Errorf("property = %s=%s, want locationgroup_=0", q.Get("name"), q.Get("value"))
	}
}

func TestPauseAndResume(t *testing.T) {
	m, c := newMockPRTG(t)
	if err := c.Pause(context.Background(), 4017); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if got := m.lastCall(t, "/api/pause.htm").Get("action"); got != "0" {
		t.Errorf("pause action = %q, want 0", got)
	}
	if err := c.Resume(context.Background(), 4017); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got := m.lastCall(t, "/api/pause.htm").Get("action"); got != "1" {
		t.Errorf("resume action = %q, want 1", got)
	}
}

func TestMoveObject(t *testing.T) {
	m, c := newMockPRTG(t)
	if err := c.MoveObject(context.Background(), 4017, 2000); err != nil {
		t.Fatalf("MoveObject: %v", err)
	}
	q := m.lastCall(t, "/api/moveobject.htm")
	if q.Get("id") != "4017" || q.Get("targetid") != "2000" {
		t.Errorf("move params = %v", q)
	}
}

func TestDeleteObjectApproves(t *testing.T) {
	m, c := newMockPRTG(t)
	if err := c.DeleteObject(context.Background(), 4020); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	q := m.lastCall(t, "/api/deleteobject.htm")
	if q.Get("id") != "4020" || q.Get("approve") != "1" {
		t.Errorf("delete params = %v", q)
	}
}

func TestRename(t *testing.T) {
	m, c := newMockPRTG(t)
	if err := c.Rename(context.Background(), 4017, "Dell PowerEdge R740 (10.0.0.6)"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	q := m.lastCall(t, "/api/rename.htm")
	if q.Get("id") != "4017" || q.Get("value") != "Dell PowerEdge R740 (10.0.0.6)" {
		t.Errorf("rename params = %v", q)
	}
}

func TestGetObjectProperty(t *testing.T) {
	m, c := newMockPRTG(t)
	got, err := c.GetObjectProperty(context.Background(), 4017, "serviceurl")
	if err != nil {
		t.Fatalf("GetObjectProperty: %v", err)
	}
	if got != "https://cmdb.example.com/ci?sys_id=abc" {
		t.Errorf("property = %q, want trimmed URL", got)
	}
	q := m.lastCall(t, "/api/getobjectproperty.htm")
	if q.Get("name") != "serviceurl" || q.Get("show") != "nohtmlencode" {
		t.Errorf("property params = %v", q)
	}
}

func TestBadRequestSurfacesXMLError(t *testing.T) {
	m, c := newMockPRTG(t)
	err := c.SetPriority(context.Background(), 666, 3)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Sorry, the selected object cannot be used here.") {
		t.Errorf("err = %v, want platform message", err)
	}
	var te *TransientError
	if errors.As(err, &te) {
		t.Error("400 must not be retried")
	}
	if got := len(m.callsTo("/api/setpriority.htm")); got != 1 {
		t.Errorf("got %d requests, want 1", got)
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	m, c := newMockPRTG(t)
	m.failures = 2
	g, err := c.GetGroup(context.Background(), 2000)
	if err != nil {
		t.Fatalf("GetGroup after transient failures: %v", err)
	}
	if g.ID != 2000 {
		t.Errorf("group = %+v", g)
	}
	if got := len(m.callsTo("/api/table.json")); got != 3 {
		t.Errorf("got %d requests, want 3 (two 503s then success)", got)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	m, c := newMockPRTG(t)
	m.failures = 10
	_, err := c.GetGroup(context.Background(), 2000)
	var te *TransientError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransientError", err)
	}
	if te.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", te.Attempts)
	}
	if got := len(m.callsTo("/api/table.json")); got != 4 {
		t.Errorf("got %d requests, want 4", got)
	}
}

func TestDeviceURL(t *testing.T) {
	_, c := newMockPRTG(t)
	got := c.DeviceURL(4017)
	if !strings.HasSuffix(got, "/device.htm?id=4017") {
		t.Errorf("DeviceURL = %q", got)
	}
}

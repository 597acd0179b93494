package treesync

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/treeline/internal/prtg"
	"github.com/HerbHall/treeline/internal/snow"
)

// AdapterOptions tune expected-tree construction for one site.
type AdapterOptions struct {
	// RootIsSite collapses the company and site levels into a single
	// root, for customers monitored under a dedicated probe.
	RootIsSite bool

	// MinDevices is the grouping gate: below it the site gets a flat
	// tree with no structural groups.
	MinDevices int

	// InternalLabel and ExternalLabel name the ownership buckets.
	InternalLabel string
	ExternalLabel string

	// Resume starts created devices active instead of paused.
	Resume bool
}

// SkippedItem records an inventory record the adapter could not place.
type SkippedItem struct {
	Name string
	Err  error
}

// classGroup buckets a set of class names under one display label.
type classGroup struct {
	label   string
	classes []string
}

// classGroups splits broad categories into labeled sub-buckets by record
// class. Categories without an entry, "Server" included, keep all their
// devices directly under the category group.
var classGroups = map[string][]classGroup{
	"Network": {
		{label: "Switches", classes: []string{"IP Switch", "Network Switch", "Switch"}},
		{label: "Routers", classes: []string{"IP Router", "Router"}},
		{label: "Firewalls", classes: []string{"Firewall", "Network Firewall"}},
		{label: "Access Points", classes: []string{"Access Point", "Wireless Access Point"}},
	},
}

// BuildExpected assembles the expected tree for one site from its
// inventory records. Records that cannot become devices are returned in
// the skipped list; the tree is still built from the rest.
//
// Devices are sorted by record name so repeated builds over the same
// inventory produce identical trees.
func BuildExpected(company *snow.Company, location *snow.Location, items []snow.ConfigItem, opts AdapterOptions, logger *zap.Logger) (*Tree, []SkippedItem) {
	if logger == nil {
		logger = zap.NewNop()
	}

	decor := &GroupDecor{ServiceURL: location.Link, DisableInheritLocation: true}

	var t *Tree
	var site *Node
	if opts.RootIsSite {
		root := GroupNode(prtg.Group{
			Name:     fmt.Sprintf("[%s] %s", company.Name, location.Name),
			Location: location.GeoString(),
			Active:   true,
		})
		root.Decor = decor
		t = NewTree(root)
		site = root
	} else {
		// The root carries the full company name so operator suffixes on
		// the live group ("Acme Corp (decommissioned)") still match.
		t = NewTree(GroupNode(prtg.Group{Name: fmt.Sprintf("[%s]", company.Name), Active: true}))
		site = GroupNode(prtg.Group{
			Name:     groupName(company.ShortName, location.Name),
			Location: location.GeoString(),
			Active:   true,
		})
		site.Decor = decor
		t.AddChild(t.Root(), site)
	}

	sorted := make([]snow.ConfigItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	flat := len(sorted) < opts.MinDevices

	var skipped []SkippedItem
	for i := range sorted {
		item := &sorted[i]
		dev, err := deviceFromItem(company.NameFormat, item, opts.Resume, logger)
		if err == nil {
			var parent *Node
			parent, err = placeItem(t, site, company.ShortName, item, flat, opts)
			if err == nil {
				t.AddChild(parent, DeviceNode(dev, item))
				continue
			}
		}
		logger.Warn("config item skipped",
			zap.String("item", itemLabel(item)),
			zap.Error(err))
		skipped = append(skipped, SkippedItem{Name: itemLabel(item), Err: err})
	}
	return t, skipped
}

// placeItem resolves (creating as needed) the expected group the item's
// device hangs under.
func placeItem(t *Tree, site *Node, short string, item *snow.ConfigItem, flat bool, opts AdapterOptions) (*Node, error) {
	if flat {
		return site, nil
	}
	if item.IsInternal {
		return ensureGroup(t, site, groupName(short, opts.InternalLabel), nil), nil
	}
	if item.Stage == "" {
		return nil, &ValidationError{Item: itemLabel(item), Field: "stage"}
	}
	parent := ensureGroup(t, site, groupName(short, opts.ExternalLabel), nil)
	parent = ensureGroup(t, parent, groupName(short, item.Stage), []string{hyphenate(item.Stage)})
	if item.Category == "" {
		return parent, nil
	}
	parent = ensureGroup(t, parent, groupName(short, item.Category), []string{hyphenate(item.Category)})
	if label := classLabel(item.Category, item.SysClass); label != "" {
		parent = ensureGroup(t, parent, groupName(short, label), nil)
	}
	return parent, nil
}

// ensureGroup returns the named child group of parent, creating the
// expected node if absent.
func ensureGroup(t *Tree, parent *Node, name string, tags []string) *Node {
	if g := FindChildGroup(parent, name); g != nil {
		return g
	}
	n := GroupNode(prtg.Group{Name: name, Tags: tags, Active: true})
	t.AddChild(parent, n)
	return n
}

// deviceFromItem validates one inventory record and renders its device.
// Virtualization records are exempt from the manufacturer and address
// requirements: virtual appliances are often registered before either
// is known.
func deviceFromItem(format snow.NameFormat, item *snow.ConfigItem, resume bool, logger *zap.Logger) (prtg.Device, error) {
	exempt := item.Category == "Virtualization"
	man := ""
	if item.Manufacturer != nil {
		man = item.Manufacturer.Name
	}
	if !exempt {
		if man == "" {
			return prtg.Device{}, &ValidationError{Item: itemLabel(item), Field: "manufacturer"}
		}
		if item.IPAddress == "" {
			return prtg.Device{}, &ValidationError{Item: itemLabel(item), Field: "ip_address"}
		}
	}

	host := item.IPAddress
	if host == "" {
		host = item.HostName
	}

	return prtg.Device{
		Name:       deviceName(format, item, man, logger),
		Host:       host,
		ServiceURL: item.Link,
		Icon:       prtg.IconForManufacturer(man),
		Priority:   3,
		Tags:       deviceTags(item),
		Active:     resume,
	}, nil
}

// deviceName renders the company's naming template. Templates degrade
// field by field with a warning rather than failing the record.
func deviceName(format snow.NameFormat, item *snow.ConfigItem, man string, logger *zap.Logger) string {
	ip := item.IPAddress
	if format == snow.NameManufacturerHostIP {
		if man != "" && item.ModelNumber != "" && item.HostName != "" && ip != "" {
			return fmt.Sprintf("%s %s %s (%s)", man, item.ModelNumber, item.HostName, ip)
		}
		logger.Warn("hostname template missing a field, using default template",
			zap.String("item", itemLabel(item)))
	}
	switch {
	case man != "" && item.ModelNumber != "" && ip != "":
		return fmt.Sprintf("%s %s (%s)", man, item.ModelNumber, ip)
	case man != "" && ip != "":
		logger.Warn("model number missing, using short device name",
			zap.String("item", itemLabel(item)))
		return fmt.Sprintf("%s (%s)", man, ip)
	default:
		return itemLabel(item)
	}
}

func deviceTags(item *snow.ConfigItem) []string {
	var tags []string
	for _, v := range []string{item.Stage, item.Category} {
		if v != "" {
			tags = append(tags, hyphenate(v))
		}
	}
	return tags
}

// classLabel returns the sub-bucket label for a record class, or ""
// when the category has no class split.
func classLabel(category, sysClass string) string {
	for _, g := range classGroups[category] {
		for _, c := range g.classes {
			if strings.EqualFold(c, sysClass) {
				return g.label
			}
		}
	}
	return ""
}

func groupName(short, label string) string {
	return fmt.Sprintf("[%s] %s", short, label)
}

// hyphenate joins whitespace-separated words with hyphens; tags must
// not contain spaces or the platform splits them.
func hyphenate(s string) string {
	return strings.Join(strings.Fields(s), "-")
}

func itemLabel(item *snow.ConfigItem) string {
	if item.Name != "" {
		return item.Name
	}
	return item.ID
}

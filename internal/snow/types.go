package snow

import (
	"encoding/json"
	"strings"
)

// Typed views of the CMDB records the sync engine consumes. The table API
// hands back loosely-typed rows; everything is validated and normalized here
// at the client boundary so the rest of the service never touches raw fields.

// Company is a CMDB company record.
type Company struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// ShortName is the abbreviated company name used for group prefixes.
	// Falls back to Name when the record has no abbreviation.
	ShortName  string     `json:"short_name"`
	NameFormat NameFormat `json:"name_format"`
}

// Country is a resolved country reference.
type Country struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Location is a CMDB site location. Street, City and State are flattened to
// single lines; together with the country they feed the monitoring
// platform's geo lookup.
type Location struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Country *Country `json:"country,omitempty"`
	Street  string   `json:"street,omitempty"`
	City    string   `json:"city,omitempty"`
	State   string   `json:"state,omitempty"`
	// Link is the canonical browser URL of the location record.
	Link string `json:"link,omitempty"`
}

// GeoString renders the single-line postal address stamped on root groups.
// Empty components are skipped so partial records still geocode.
func (l *Location) GeoString() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{l.Street, l.City, l.State} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if l.Country != nil && l.Country.Name != "" {
		parts = append(parts, l.Country.Name)
	}
	return strings.Join(parts, ", ")
}

// Manufacturer is a resolved manufacturer reference.
type Manufacturer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ConfigItem is a configuration item slated for monitoring.
type ConfigItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// IPAddress is the validated IPv4 address, or empty when the record
	// holds none (or holds garbage; device validation reports it later).
	IPAddress    string        `json:"ip_address,omitempty"`
	Manufacturer *Manufacturer `json:"manufacturer,omitempty"`
	ModelNumber  string        `json:"model_number,omitempty"`
	// Stage is the lifecycle stage label (e.g. "Production").
	Stage string `json:"stage,omitempty"`
	// Category is the device category label (e.g. "Server").
	Category string `json:"category,omitempty"`
	// SysClass is the CMDB class name (e.g. "Linux Server").
	SysClass string `json:"sys_class,omitempty"`
	// Link is the canonical browser URL of the record.
	Link string `json:"link,omitempty"`
	// MonitoringID is the monitoring platform object id, 0 when unset.
	MonitoringID int `json:"monitoring_id,omitempty"`
	// IsInternal marks infrastructure owned by the service provider rather
	// than the customer.
	IsInternal bool   `json:"is_internal,omitempty"`
	HostName   string `json:"host_name,omitempty"`
}

// NameFormat selects the device naming template configured per company.
type NameFormat int

const (
	// NameManufacturerIP names devices "{manufacturer} {model} ({ip})".
	NameManufacturerIP NameFormat = iota
	// NameManufacturerHostIP names devices "{manufacturer} {model} {host} ({ip})".
	NameManufacturerHostIP
)

// ParseNameFormat maps the instance's choice-list label to a NameFormat.
// Unknown labels fall back to the manufacturer+IP template.
func ParseNameFormat(label string) NameFormat {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "hostname + ip":
		return NameManufacturerHostIP
	default:
		return NameManufacturerIP
	}
}

// Reference is a link-typed field on a table record. The instance
// serializes empty references as "" rather than null, so decoding is
// tolerant of both.
type Reference struct {
	Value        string `json:"value,omitempty"`
	DisplayValue string `json:"display_value,omitempty"`
	Link         string `json:"link,omitempty"`
}

func (r *Reference) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == `""` || s == "null" {
		*r = Reference{}
		return nil
	}
	type plain Reference
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Reference(p)
	return nil
}

// Empty reports whether the record holds no reference.
func (r Reference) Empty() bool {
	return r.Link == "" && r.Value == ""
}

// Raw table rows as the instance returns them.

type companyRecord struct {
	SysID           string `json:"sys_id"`
	Name            string `json:"name"`
	AbbreviatedName string `json:"u_abbreviated_name"`
	DeviceFormat    string `json:"u_prtg_format"`
}

type locationRecord struct {
	SysID   string    `json:"sys_id"`
	Name    string    `json:"name"`
	Country Reference `json:"u_country"`
	Street  string    `json:"street"`
	City    string    `json:"city"`
	State   string    `json:"state"`
}

type ciRecord struct {
	SysID           string    `json:"sys_id"`
	Name            string    `json:"name"`
	IPAddress       string    `json:"ip_address"`
	Manufacturer    Reference `json:"manufacturer"`
	ModelNumber     string    `json:"model_number"`
	UsedFor         string    `json:"u_used_for"`
	Category        string    `json:"u_category"`
	SysClassName    string    `json:"sys_class_name"`
	MonitoringID    string    `json:"u_prtg_id"`
	Instrumentation string    `json:"u_prtg_instrumentation"`
	HostName        string    `json:"u_host_name"`
}

// listResponse is the table API envelope for list queries.
type listResponse[T any] struct {
	Result []T `json:"result"`
}

// recordResponse is the table API envelope for single-record operations.
type recordResponse[T any] struct {
	Result T `json:"result"`
}

// statsResponse is the aggregate API envelope. Counts come back as strings.
type statsResponse struct {
	Result struct {
		Stats struct {
			Count string `json:"count"`
		} `json:"stats"`
	} `json:"result"`
}

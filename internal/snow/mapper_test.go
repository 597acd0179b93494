package snow

import "testing"

func TestParseNameFormat(t *testing.T) {
	tests := []struct {
		label string
		want  NameFormat
	}{
		{"ip only", NameManufacturerIP},
		{"IP Only", NameManufacturerIP},
		{"hostname + ip", NameManufacturerHostIP},
		{"Hostname + IP", NameManufacturerHostIP},
		{"  Hostname + IP  ", NameManufacturerHostIP},
		{"", NameManufacturerIP},
		{"something else", NameManufacturerIP},
	}
	for _, tc := range tests {
		if got := ParseNameFormat(tc.label); got != tc.want {
			t.Errorf("ParseNameFormat(%q) = %v, want %v", tc.label, got, tc.want)
		}
	}
}

func TestValidIPv4(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.0.0.5", "10.0.0.5"},
		{" 10.0.0.5 ", "10.0.0.5"},
		{"255.255.255.255", "255.255.255.255"},
		{"not-an-ip", ""},
		{"10.0.0", ""},
		{"10.0.0.256", ""},
		{"2001:db8::1", ""}, // v6 is not in scope for device hosts
		{"", ""},
	}
	for _, tc := range tests {
		if got := validIPv4(tc.in); got != tc.want {
			t.Errorf("validIPv4(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFlattenAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"500 Main St\r\nSuite 100", "500 Main St Suite 100"},
		{"500 Main St\nSuite 100", "500 Main St Suite 100"},
		{"500 Main St", "500 Main St"},
		{"  500 Main St \r\n", "500 Main St"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := flattenAddress(tc.in); got != tc.want {
			t.Errorf("flattenAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMapCompany_ShortNameFallback(t *testing.T) {
	company := mapCompany(companyRecord{
		SysID: "co-9",
		Name:  "Initech",
	})
	if company.ShortName != "Initech" {
		t.Errorf("ShortName = %q, want fallback to full name", company.ShortName)
	}
	if company.NameFormat != NameManufacturerIP {
		t.Errorf("NameFormat = %v, want default NameManufacturerIP", company.NameFormat)
	}
}

func TestGeoString_PartialRecord(t *testing.T) {
	loc := &Location{City: "Austin", State: "TX"}
	if got, want := loc.GeoString(), "Austin, TX"; got != want {
		t.Errorf("GeoString() = %q, want %q", got, want)
	}
	empty := &Location{}
	if got := empty.GeoString(); got != "" {
		t.Errorf("GeoString() on empty location = %q, want empty", got)
	}
}

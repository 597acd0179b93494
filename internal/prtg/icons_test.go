package prtg

import "testing"

func TestIconForManufacturer(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Dell Inc.", "vendors_Dell.png"},
		{"dell", "vendors_Dell.png"},
		{"  Cisco Systems  ", "vendors_Cisco.png"},
		{"Hewlett-Packard", "vendors_HP.png"},
		{"Juniper Networks", "vendors_Juniper_Networks.png"},
		{"VMware, Inc.", "vendors_VMware.png"},
		{"Initech", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := IconForManufacturer(tt.name); got != tt.want {
			t.Errorf("IconForManufacturer(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

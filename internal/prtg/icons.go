package prtg

import "strings"

// iconsByManufacturer maps lowercased manufacturer names to the vendor
// icon files shipped with the platform. Names come from CMDB manufacturer
// records, so common legal-name variants are listed too.
var iconsByManufacturer = map[string]string{
	"dell":                "vendors_Dell.png",
	"dell inc.":           "vendors_Dell.png",
	"cisco":               "vendors_Cisco.png",
	"cisco systems":       "vendors_Cisco.png",
	"cisco systems, inc.": "vendors_Cisco.png",
	"hp":                  "vendors_HP.png",
	"hewlett packard":     "vendors_HP.png",
	"hewlett-packard":     "vendors_HP.png",
	"hpe":                 "vendors_HP.png",
	"aruba":               "vendors_Aruba.png",
	"aruba networks":      "vendors_Aruba.png",
	"apc":                 "vendors_APC.png",
	"eaton":               "vendors_Eaton.png",
	"fortinet":            "vendors_Fortinet.png",
	"fortinet, inc.":      "vendors_Fortinet.png",
	"juniper":             "vendors_Juniper_Networks.png",
	"juniper networks":    "vendors_Juniper_Networks.png",
	"lenovo":              "vendors_Lenovo.png",
	"microsoft":           "vendors_Microsoft.png",
	"netapp":              "vendors_NetApp.png",
	"palo alto networks":  "vendors_Palo_Alto_Networks.png",
	"sonicwall":           "vendors_SonicWALL.png",
	"synology":            "vendors_Synology.png",
	"ubiquiti":            "vendors_Ubiquiti.png",
	"ubiquiti networks":   "vendors_Ubiquiti.png",
	"vmware":              "vendors_VMware.png",
	"vmware, inc.":        "vendors_VMware.png",
}

// IconForManufacturer returns the vendor icon file for a manufacturer
// name, or "" when no icon is known (the device keeps the template's
// default icon).
func IconForManufacturer(name string) string {
	return iconsByManufacturer[strings.ToLower(strings.TrimSpace(name))]
}

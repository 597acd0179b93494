package snow

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

func mapCompany(rec companyRecord) *Company {
	name := strings.TrimSpace(rec.Name)
	short := strings.TrimSpace(rec.AbbreviatedName)
	if short == "" {
		short = name
	}
	return &Company{
		ID:         rec.SysID,
		Name:       name,
		ShortName:  short,
		NameFormat: ParseNameFormat(rec.DeviceFormat),
	}
}

func (c *Client) mapLocation(ctx context.Context, rec locationRecord) (*Location, error) {
	loc := &Location{
		ID:     rec.SysID,
		Name:   strings.TrimSpace(rec.Name),
		Street: flattenAddress(rec.Street),
		City:   flattenAddress(rec.City),
		State:  flattenAddress(rec.State),
		Link:   c.LocationURL(rec.SysID),
	}
	if !rec.Country.Empty() {
		id, name, err := c.ResolveReference(ctx, rec.Country.Link)
		if err != nil {
			return nil, fmt.Errorf("resolve country of location %q: %w", loc.Name, err)
		}
		loc.Country = &Country{ID: id, Name: name}
	}
	return loc, nil
}

func (c *Client) mapConfigItem(ctx context.Context, rec ciRecord, memo map[string]*Manufacturer) (*ConfigItem, error) {
	ci := &ConfigItem{
		ID:          rec.SysID,
		Name:        rec.Name,
		IPAddress:   validIPv4(rec.IPAddress),
		ModelNumber: rec.ModelNumber,
		Stage:       rec.UsedFor,
		Category:    rec.Category,
		SysClass:    rec.SysClassName,
		Link:        c.CIURL(rec.SysID),
		IsInternal:  rec.Instrumentation == "true",
		HostName:    rec.HostName,
	}
	if id, err := strconv.Atoi(strings.TrimSpace(rec.MonitoringID)); err == nil {
		ci.MonitoringID = id
	}
	if !rec.Manufacturer.Empty() {
		m, ok := memo[rec.Manufacturer.Link]
		if !ok {
			id, name, err := c.ResolveReference(ctx, rec.Manufacturer.Link)
			if err != nil {
				return nil, fmt.Errorf("resolve manufacturer of %q: %w", rec.Name, err)
			}
			m = &Manufacturer{ID: id, Name: name}
			memo[rec.Manufacturer.Link] = m
		}
		ci.Manufacturer = m
	}
	return ci, nil
}

// validIPv4 returns the trimmed address when it parses as plain IPv4,
// else "". Bad addresses degrade to empty so a single malformed record
// cannot sink a whole site fetch; device validation reports them later.
func validIPv4(s string) string {
	s = strings.TrimSpace(s)
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return ""
	}
	return s
}

// flattenAddress collapses multi-line address fields to one line for the
// platform's single-line location string.
func flattenAddress(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

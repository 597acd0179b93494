package prtg

import (
	"fmt"
	"strconv"
	"strings"
)

// Status is the rolled-up monitoring state of a platform object. The
// platform decorates pause states with their cause ("Paused (by user)",
// "Paused until ..."); the parser folds all of those into StatusPaused.
type Status int

const (
	StatusUnknown Status = iota
	StatusScanning
	StatusUp
	StatusWarning
	StatusDown
	StatusDownAcknowledged
	StatusDownPartial
	StatusNoProbe
	StatusPaused
	StatusUnusual
	StatusNotLicensed
)

var statusNames = map[Status]string{
	StatusUnknown:          "unknown",
	StatusScanning:         "scanning",
	StatusUp:               "up",
	StatusWarning:          "warning",
	StatusDown:             "down",
	StatusDownAcknowledged: "down acknowledged",
	StatusDownPartial:      "down partial",
	StatusNoProbe:          "no probe",
	StatusPaused:           "paused",
	StatusUnusual:          "unusual",
	StatusNotLicensed:      "not licensed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStatus maps the platform's status text to a Status. Down states
// come decorated both ways ("Down (Acknowledged)", "Down Acknowledged"),
// so parentheses are stripped before matching.
func ParseStatus(text string) Status {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.NewReplacer("(", "", ")", "").Replace(t)
	switch {
	case t == "up":
		return StatusUp
	case t == "warning":
		return StatusWarning
	case t == "unusual":
		return StatusUnusual
	case t == "scanning":
		return StatusScanning
	case t == "no probe":
		return StatusNoProbe
	case t == "not licensed":
		return StatusNotLicensed
	case strings.Contains(t, "paused"):
		return StatusPaused
	case strings.HasPrefix(t, "down acknowledged"):
		return StatusDownAcknowledged
	case strings.HasPrefix(t, "down partial"):
		return StatusDownPartial
	case strings.HasPrefix(t, "down"):
		return StatusDown
	default:
		return StatusUnknown
	}
}

// Group is a container object in the platform tree. ID 0 means the group
// does not exist yet.
type Group struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	ParentID int      `json:"parent_id,omitempty"`
	Priority int      `json:"priority,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Location string   `json:"location,omitempty"`
	Status   Status   `json:"status"`
	Active   bool     `json:"active"`
}

// Probe is the platform's root-level container. The sync engine treats it
// exactly like a group.
type Probe = Group

// Device is a monitored endpoint.
type Device struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	ParentID   int      `json:"parent_id,omitempty"`
	Host       string   `json:"host,omitempty"`
	ServiceURL string   `json:"service_url,omitempty"`
	Icon       string   `json:"icon,omitempty"`
	Priority   int      `json:"priority,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Location   string   `json:"location,omitempty"`
	Status     Status   `json:"status"`
	Active     bool     `json:"active"`
}

// flexInt decodes the table API's habit of returning numbers either raw or
// as display strings, depending on the column.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(strings.Trim(string(data), `"`))
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("parse %q as int: %w", s, err)
	}
	*f = flexInt(n)
	return nil
}

// flexBool decodes "true"/"false" display text as well as the raw -1/0
// representation.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.TrimSpace(strings.Trim(string(data), `"`)))
	switch s {
	case "true", "-1", "1", "yes":
		*f = true
	default:
		*f = false
	}
	return nil
}

// tableRow is one object row from the table API. Probes, groups and
// devices share the same shape; device-only columns stay empty for the
// others.
type tableRow struct {
	ObjID    flexInt  `json:"objid"`
	Name     string   `json:"name"`
	Active   flexBool `json:"active"`
	Status   string   `json:"status"`
	ParentID flexInt  `json:"parentid"`
	Priority flexInt  `json:"priority"`
	Tags     string   `json:"tags"`
	Location string   `json:"location"`
	Host     string   `json:"host"`
}

func (r tableRow) group() Group {
	return Group{
		ID:       int(r.ObjID),
		Name:     strings.TrimSpace(r.Name),
		ParentID: int(r.ParentID),
		Priority: int(r.Priority),
		Tags:     strings.Fields(r.Tags),
		Location: strings.TrimSpace(r.Location),
		Status:   ParseStatus(r.Status),
		Active:   bool(r.Active),
	}
}

func (r tableRow) device() Device {
	return Device{
		ID:       int(r.ObjID),
		Name:     strings.TrimSpace(r.Name),
		ParentID: int(r.ParentID),
		Host:     strings.TrimSpace(r.Host),
		Priority: int(r.Priority),
		Tags:     strings.Fields(r.Tags),
		Location: strings.TrimSpace(r.Location),
		Status:   ParseStatus(r.Status),
		Active:   bool(r.Active),
	}
}

type probesResponse struct {
	Probes []tableRow `json:"probes"`
}

type groupsResponse struct {
	Groups []tableRow `json:"groups"`
}

type devicesResponse struct {
	Devices []tableRow `json:"devices"`
}

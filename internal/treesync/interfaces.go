package treesync

import (
	"context"

	"github.com/HerbHall/treeline/internal/prtg"
	"github.com/HerbHall/treeline/internal/snow"
)

// Inventory is the slice of the CMDB client the sync engine consumes.
// *snow.Client satisfies it; tests substitute an in-memory fake.
type Inventory interface {
	GetCompany(ctx context.Context, name string) (*snow.Company, error)
	GetLocation(ctx context.Context, name string) (*snow.Location, error)
	GetCompanyLocations(ctx context.Context, companyName string) ([]snow.Location, error)
	GetConfigItems(ctx context.Context, company *snow.Company, location *snow.Location) ([]snow.ConfigItem, error)
	GetDeviceCount(ctx context.Context, company *snow.Company, location *snow.Location) (int, error)
	UpdateConfigItem(ctx context.Context, ci *snow.ConfigItem) error
}

// Monitoring is the slice of the platform client the sync engine
// consumes. *prtg.Client satisfies it.
type Monitoring interface {
	GetProbe(ctx context.Context, id int) (*prtg.Probe, error)
	GetGroup(ctx context.Context, id int) (*prtg.Group, error)
	GetDevice(ctx context.Context, id int) (*prtg.Device, error)
	GetDevicesByGroup(ctx context.Context, groupID int) ([]prtg.Device, error)
	AddGroup(ctx context.Context, group prtg.Group, parentID int) (*prtg.Group, error)
	AddDevice(ctx context.Context, device prtg.Device, parentID int) (*prtg.Device, error)
	Rename(ctx context.Context, id int, name string) error
	SetHost(ctx context.Context, id int, host string) error
	SetPriority(ctx context.Context, id, value int) error
	SetTags(ctx context.Context, id int, tags []string) error
	SetServiceURL(ctx context.Context, id int, serviceURL string) error
	SetIcon(ctx context.Context, id int, icon string) error
	SetInheritLocation(ctx context.Context, id int, inherit bool) error
	MoveObject(ctx context.Context, id, targetID int) error
	DeleteObject(ctx context.Context, id int) error
	GetObjectProperty(ctx context.Context, id int, name string) (string, error)
	DeviceURL(id int) string
}

var (
	_ Inventory  = (*snow.Client)(nil)
	_ Monitoring = (*prtg.Client)(nil)
)

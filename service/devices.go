package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"tvbridge/adb"
	"tvbridge/models"
)

// ErrNoActiveDevice is returned by operations that need a selected
// device when the registry is empty.
var ErrNoActiveDevice = errors.New("no active device")

// enrichConcurrency bounds parallel getprop lookups during a scan so a
// large fleet does not fork one adb child per device all at once.
const enrichConcurrency = 4

// Bridge is the slice of the adb client the device service consumes.
type Bridge interface {
	Devices(ctx context.Context) ([]models.DeviceInfo, error)
	Connect(ctx context.Context, address string) error
	Disconnect(ctx context.Context, serial string) error
	Shell(ctx context.Context, serial string, args ...string) (string, error)
	GetProp(ctx context.Context, serial, prop string) (string, error)
	Install(ctx context.Context, serial, apkPath string, opts adb.InstallOptions) error
	Screencap(ctx context.Context, serial string) ([]byte, error)
}

// DeviceService runs the scan/connect/install/screenshot workers. Each
// operation is a short-lived unit of work: it drives the bridge, and on
// success updates the session registry and the history store. All
// operations honor ctx cancellation, which reaches the underlying adb
// child process.
type DeviceService struct {
	bridge   Bridge
	registry *SessionRegistry
	store    *HistoryStore
}

func NewDeviceService(bridge Bridge, registry *SessionRegistry, store *HistoryStore) *DeviceService {
	return &DeviceService{bridge: bridge, registry: registry, store: store}
}

// Scan lists reachable devices and enriches them with name and model.
// It never touches the registry; selecting a device is a separate,
// explicit action.
func (s *DeviceService) Scan(ctx context.Context) ([]models.DeviceInfo, error) {
	devices, err := s.bridge.Devices(ctx)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i := range devices {
		i := i
		g.Go(func() error {
			s.enrich(gctx, &devices[i])
			return nil
		})
	}
	g.Wait()

	slog.Info("device scan complete", "count", len(devices))
	return devices, nil
}

// ConnectNetwork establishes a network target, verifies it shows up in
// the device list, enriches it, and makes it the active device.
func (s *DeviceService) ConnectNetwork(ctx context.Context, address string) (*models.DeviceInfo, error) {
	if err := s.bridge.Connect(ctx, address); err != nil {
		return nil, err
	}
	return s.activate(ctx, address)
}

// ConnectUSB selects an already attached USB target as active after
// verifying it is reachable.
func (s *DeviceService) ConnectUSB(ctx context.Context, serial string) (*models.DeviceInfo, error) {
	return s.activate(ctx, serial)
}

// activate confirms serial is reachable, enriches it, sets it active
// and records it in the history store.
func (s *DeviceService) activate(ctx context.Context, serial string) (*models.DeviceInfo, error) {
	devices, err := s.bridge.Devices(ctx)
	if err != nil {
		return nil, err
	}
	found := false
	for _, d := range devices {
		if d.Serial == serial {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("device %s did not appear in the device list after connect", serial)
	}

	device := models.DeviceInfo{Serial: serial, Status: models.StatusConnected}
	s.enrich(ctx, &device)

	s.registry.Set(device)
	if s.store != nil {
		if err := s.store.Record(device); err != nil {
			slog.Warn("failed to record device history", "serial", serial, "error", err)
		}
	}
	return &device, nil
}

// Disconnect tears down the active device. Network targets get an adb
// disconnect; USB targets are only deselected. The registry is cleared
// even when the bridge call fails, so a dead target can always be
// dropped.
func (s *DeviceService) Disconnect(ctx context.Context) error {
	device := s.registry.Get()
	if device == nil {
		return ErrNoActiveDevice
	}

	var bridgeErr error
	if isNetworkSerial(device.Serial) {
		bridgeErr = s.bridge.Disconnect(ctx, device.Serial)
	}
	s.registry.Clear()

	if bridgeErr != nil {
		return fmt.Errorf("device deselected, but adb disconnect failed: %w", bridgeErr)
	}
	return nil
}

// Install installs an APK on the active device.
func (s *DeviceService) Install(ctx context.Context, apkPath string, opts adb.InstallOptions) error {
	device := s.registry.Get()
	if device == nil {
		return ErrNoActiveDevice
	}
	return s.bridge.Install(ctx, device.Serial, apkPath, opts)
}

// Screenshot captures the active device's screen as PNG bytes.
func (s *DeviceService) Screenshot(ctx context.Context) ([]byte, error) {
	device := s.registry.Get()
	if device == nil {
		return nil, ErrNoActiveDevice
	}
	return s.bridge.Screencap(ctx, device.Serial)
}

// ShellCommand runs a shell command on the active device. args reach
// the bridge verbatim, so arguments containing spaces survive; callers
// holding a single command string split it themselves.
func (s *DeviceService) ShellCommand(ctx context.Context, args []string) (string, error) {
	device := s.registry.Get()
	if device == nil {
		return "", ErrNoActiveDevice
	}
	return s.bridge.Shell(ctx, device.Serial, args...)
}

// History lists previously connected devices, newest first.
func (s *DeviceService) History() ([]models.DeviceHistoryEntry, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.List()
}

// enrich fills in name and model via getprop. Lookup failures leave
// the fields empty; a device that cannot answer getprop is still
// usable by serial.
func (s *DeviceService) enrich(ctx context.Context, device *models.DeviceInfo) {
	if model, err := s.bridge.GetProp(ctx, device.Serial, "ro.product.model"); err == nil && model != "" {
		device.Model = model
		device.Name = model
	}
	if brand, err := s.bridge.GetProp(ctx, device.Serial, "ro.product.brand"); err == nil && brand != "" {
		if device.Model != "" {
			device.Name = brand + " " + device.Model
		} else {
			device.Name = brand
		}
	}
}

// isNetworkSerial reports whether the serial is an IP:port target.
func isNetworkSerial(serial string) bool {
	return strings.Contains(serial, ":")
}

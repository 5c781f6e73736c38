package adb

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"tvbridge/models"
)

// pngSignature is the fixed 8-byte magic header of a PNG stream.
// screencap output on some devices is prefixed with stray bytes, so
// callers scan for this and strip everything before it.
var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// InstallOptions map to the bridge's install flags.
type InstallOptions struct {
	Replace   bool // -r: replace an already installed package
	Force     bool // -f: force even on version/signature mismatch
	Downgrade bool // -d: allow version downgrade
}

// Client exposes typed bridge operations over the executor. Every
// method issues exactly one invocation with its own timeout; retries
// are the caller's business.
type Client struct {
	exec *Executor

	// Timeout applies to every invocation except Connect, which gets
	// ConnectTimeout since network targets can hang in SYN retries.
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

func NewClient(exec *Executor) *Client {
	return &Client{
		exec:           exec,
		Timeout:        10 * time.Second,
		ConnectTimeout: 5 * time.Second,
	}
}

// Version runs `adb version` as a startup health probe.
func (c *Client) Version(ctx context.Context) (string, error) {
	res, err := c.exec.Run(ctx, []string{"version"}, Options{Timeout: c.Timeout})
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", invocationError("adb version", res)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Devices lists reachable targets via `adb devices`. Lines after the
// header are `<serial>\t<state>`; anything not in state "device" is
// skipped, matching how the tool treats offline/unauthorized targets.
func (c *Client) Devices(ctx context.Context) ([]models.DeviceInfo, error) {
	res, err := c.exec.Run(ctx, []string{"devices"}, Options{Timeout: c.Timeout})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, invocationError("adb devices", res)
	}
	return parseDeviceList(res.Stdout), nil
}

// parseDeviceList parses `adb devices` output.
func parseDeviceList(output string) []models.DeviceInfo {
	var devices []models.DeviceInfo
	for i, line := range strings.Split(output, "\n") {
		// Skip the "List of devices attached" header and blanks.
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		serial, state := fields[0], fields[1]
		if state != "device" {
			continue
		}
		devices = append(devices, models.DeviceInfo{
			Serial: serial,
			Status: models.StatusConnected,
		})
	}
	return devices
}

// Connect establishes a network target. The bridge exits zero even on
// failure and reports the outcome in stdout, so success is the literal
// string "connected" appearing there.
func (c *Client) Connect(ctx context.Context, address string) error {
	res, err := c.exec.Run(ctx, []string{"connect", address}, Options{Timeout: c.ConnectTimeout})
	if err != nil {
		return err
	}
	if !res.Success {
		return invocationError("adb connect", res)
	}
	if !strings.Contains(res.Stdout, "connected") {
		return fmt.Errorf("adb connect %s: %s", address, strings.TrimSpace(res.Stdout))
	}
	return nil
}

// Disconnect tears down a network target.
func (c *Client) Disconnect(ctx context.Context, serial string) error {
	res, err := c.exec.Run(ctx, []string{"disconnect", serial}, Options{Timeout: c.ConnectTimeout})
	if err != nil {
		return err
	}
	if !res.Success {
		return invocationError("adb disconnect", res)
	}
	return nil
}

// Shell runs a remote shell command and returns its trimmed text
// output.
func (c *Client) Shell(ctx context.Context, serial string, args ...string) (string, error) {
	full := append([]string{"-s", serial, "shell"}, args...)
	res, err := c.exec.Run(ctx, full, Options{Timeout: c.Timeout})
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", invocationError("adb shell", res)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// GetProp reads one system property from the device.
func (c *Client) GetProp(ctx context.Context, serial, prop string) (string, error) {
	return c.Shell(ctx, serial, "getprop", prop)
}

// Install installs a package on the device. Like connect, the bridge
// signals success with the string "Success" in stdout rather than the
// exit code alone.
func (c *Client) Install(ctx context.Context, serial, apkPath string, opts InstallOptions) error {
	args := []string{"-s", serial, "install"}
	if opts.Replace {
		args = append(args, "-r")
	}
	if opts.Force {
		args = append(args, "-f")
	}
	if opts.Downgrade {
		args = append(args, "-d")
	}
	args = append(args, apkPath)

	// Installs push the whole APK over the wire; give them room.
	res, err := c.exec.Run(ctx, args, Options{Timeout: 6 * c.Timeout})
	if err != nil {
		return err
	}
	if !res.Success {
		return invocationError("adb install", res)
	}
	if !strings.Contains(res.Stdout, "Success") {
		return fmt.Errorf("adb install %s: %s", apkPath, strings.TrimSpace(res.Stdout+res.Stderr))
	}
	return nil
}

// Screencap captures the device screen as PNG bytes. Runs in binary
// mode and strips any stray bytes before the PNG signature.
func (c *Client) Screencap(ctx context.Context, serial string) ([]byte, error) {
	args := []string{"-s", serial, "exec-out", "screencap", "-p"}
	res, err := c.exec.Run(ctx, args, Options{Timeout: c.Timeout, Binary: true})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, invocationError("adb screencap", res)
	}
	return ExtractPNG(res.RawStdout)
}

// ExtractPNG locates the PNG signature in raw screencap output and
// returns the payload from there on.
func ExtractPNG(raw []byte) ([]byte, error) {
	idx := bytes.Index(raw, pngSignature)
	if idx < 0 {
		return nil, fmt.Errorf("screencap output has no PNG signature (%d bytes)", len(raw))
	}
	return raw[idx:], nil
}

// invocationError converts a failed Result into an error for callers
// that have no use for partial output.
func invocationError(op string, res Result) error {
	if res.cause != nil {
		return fmt.Errorf("%s: %w", op, res.cause)
	}
	if res.Error != "" {
		return fmt.Errorf("%s: %s", op, res.Error)
	}
	detail := strings.TrimSpace(res.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(res.Stdout)
	}
	if res.ExitCode != nil {
		return fmt.Errorf("%s: exit %d: %s", op, *res.ExitCode, detail)
	}
	return fmt.Errorf("%s: %s", op, detail)
}

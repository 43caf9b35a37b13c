package client

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/vulpemventures/ledger-bitcoin/pkg/apdu"
	"golang.org/x/mod/semver"
)

const minAppVersion = "v2.1"

var supportedAppNames = map[string]struct{}{
	"Bitcoin":      {},
	"Bitcoin Test": {},
}

// AppVersion describes the application currently running on the device.
type AppVersion struct {
	Name    string
	Version string
	Flags   []byte
}

// IsSupported returns whether the app speaks the protocol of this client.
// Pre-release versions count as the release they precede.
func (v AppVersion) IsSupported() bool {
	if _, ok := supportedAppNames[v.Name]; !ok {
		return false
	}
	version := "v" + v.Version
	if semver.Canonical(version) != version {
		return false
	}
	return semver.Compare(semver.MajorMinor(version), minAppVersion) >= 0
}

// GetVersion returns the name and version of the app running on the
// device.
func (c *Client) GetVersion(ctx context.Context) (*AppVersion, error) {
	cmd := apdu.Command{Cla: apdu.ClaDefault, Ins: apdu.InsGetVersion}
	data, err := c.makeRequest(ctx, cmd, nil)
	if err != nil {
		return nil, err
	}

	version, err := parseAppVersion(data)
	if err != nil {
		c.warn(err, "failed to decode app version")
		return nil, NewUnexpectedResultError(cmd.Ins, data)
	}
	return version, nil
}

// checkAppVersion is run before the commands that require the wallet
// policy protocol.
func (c *Client) checkAppVersion(ctx context.Context) error {
	version, err := c.GetVersion(ctx)
	if err != nil {
		return err
	}
	if !version.IsSupported() {
		c.log("app %s %s is not supported", version.Name, version.Version)
		return NewUnsupportedAppVersionError()
	}
	return nil
}

// format (0x01) | len | name | len | version | len | flags
func parseAppVersion(data []byte) (*AppVersion, error) {
	r := bytes.NewReader(data)

	format, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if format != 0x01 {
		return nil, fmt.Errorf("unknown format 0x%02x", format)
	}

	name, err := readLengthPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("invalid name: %w", err)
	}
	version, err := readLengthPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("invalid version: %w", err)
	}
	flags, err := readLengthPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}

	return &AppVersion{
		Name:    string(name),
		Version: string(version),
		Flags:   flags,
	}, nil
}

func readLengthPrefixed(r *bytes.Reader) ([]byte, error) {
	n, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

package radio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// DefaultAPConnection is the NetworkManager connection name used for the hotspot.
const DefaultAPConnection = "plant-waterer-ap"

// Runner executes nmcli with the given arguments and returns its stdout.
type Runner func(ctx context.Context, args ...string) ([]byte, error)

// ExecRunner runs the nmcli binary.
func ExecRunner(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "nmcli", args...)
	out, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && len(ee.Stderr) > 0 {
			return out, fmt.Errorf("nmcli %s: %w: %s", strings.Join(redact(args), " "), err, strings.TrimSpace(string(ee.Stderr)))
		}
		return out, fmt.Errorf("nmcli %s: %w", strings.Join(redact(args), " "), err)
	}
	return out, nil
}

// redact hides the value following any "password" argument.
func redact(args []string) []string {
	out := append([]string(nil), args...)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == "password" {
			out[i+1] = "***"
		}
	}
	return out
}

// NMCLI drives a Wi-Fi interface through NetworkManager.
type NMCLI struct {
	iface  string
	apConn string
	run    Runner

	mu     sync.Mutex
	resume string // connection active before the last suspend
}

// NewNMCLI creates a driver for iface. run defaults to ExecRunner.
func NewNMCLI(iface string, run Runner) *NMCLI {
	if run == nil {
		run = ExecRunner
	}
	return &NMCLI{iface: iface, apConn: DefaultAPConnection, run: run}
}

// SetRadio switches the Wi-Fi radio. Resuming starts re-activating whichever
// connection was up when the radio was suspended and returns without waiting
// for it, so the quiet window ends as soon as the radio is back on.
func (n *NMCLI) SetRadio(ctx context.Context, on bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !on {
		fields, err := n.device(ctx, "GENERAL.CONNECTION")
		if err == nil {
			n.resume = fields["GENERAL.CONNECTION"]
		}
		_, err = n.run(ctx, "radio", "wifi", "off")
		return err
	}

	if _, err := n.run(ctx, "radio", "wifi", "on"); err != nil {
		return err
	}
	if n.resume != "" {
		conn := n.resume
		n.resume = ""
		if _, err := n.run(ctx, "--wait", "0", "connection", "up", "id", conn); err != nil {
			return fmt.Errorf("reactivate %q: %w", conn, err)
		}
	}
	return nil
}

// StartAP creates or replaces the hotspot connection.
func (n *NMCLI) StartAP(ctx context.Context, ssid, password string) error {
	_, err := n.run(ctx, "--wait", "0", "device", "wifi", "hotspot",
		"ifname", n.iface, "con-name", n.apConn, "ssid", ssid, "password", password)
	return err
}

// APActive reports whether the hotspot connection is activated.
func (n *NMCLI) APActive(ctx context.Context) (bool, error) {
	out, err := n.run(ctx, "-t", "-f", "NAME,STATE", "connection", "show", "--active")
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(string(out), "\n") {
		name, state, ok := splitTerse(line)
		if ok && name == n.apConn && state == "activated" {
			return true, nil
		}
	}
	return false, nil
}

// StopAP deactivates the hotspot connection.
func (n *NMCLI) StopAP(ctx context.Context) error {
	_, err := n.run(ctx, "connection", "down", "id", n.apConn)
	return err
}

// Connect starts joining ssid without waiting for the result.
func (n *NMCLI) Connect(ctx context.Context, ssid, password string) error {
	args := []string{"--wait", "0", "device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	args = append(args, "ifname", n.iface)
	_, err := n.run(ctx, args...)
	return err
}

// Connected reports whether the interface is connected to a network other than the hotspot.
func (n *NMCLI) Connected(ctx context.Context) (bool, error) {
	fields, err := n.device(ctx, "GENERAL.STATE,GENERAL.CONNECTION")
	if err != nil {
		return false, err
	}
	// GENERAL.STATE is "100 (connected)" once fully up.
	state := fields["GENERAL.STATE"]
	conn := fields["GENERAL.CONNECTION"]
	return strings.HasPrefix(state, "100") && conn != "" && conn != n.apConn, nil
}

// Disconnect drops any connection on the interface.
func (n *NMCLI) Disconnect(ctx context.Context) error {
	_, err := n.run(ctx, "device", "disconnect", n.iface)
	return err
}

// IP returns the interface's first IPv4 address without prefix length.
func (n *NMCLI) IP(ctx context.Context) (string, error) {
	out, err := n.run(ctx, "-t", "-f", "IP4.ADDRESS", "device", "show", n.iface)
	if err != nil {
		return "", err
	}
	if addr := firstIPv4(string(out)); addr != "" {
		return addr, nil
	}
	return "", fmt.Errorf("no IPv4 address on %s", n.iface)
}

func (n *NMCLI) device(ctx context.Context, fields string) (map[string]string, error) {
	out, err := n.run(ctx, "-t", "-f", fields, "device", "show", n.iface)
	if err != nil {
		return nil, err
	}
	return parseTerseFields(string(out)), nil
}

// firstIPv4 returns the first IP4.ADDRESS[n] value with its prefix length removed.
func firstIPv4(out string) string {
	for _, line := range strings.Split(out, "\n") {
		k, v, ok := splitTerse(line)
		if ok && strings.HasPrefix(k, "IP4.ADDRESS") && v != "" {
			addr, _, _ := strings.Cut(v, "/")
			return addr
		}
	}
	return ""
}

// parseTerseFields parses "KEY:value" lines from nmcli -t output.
func parseTerseFields(out string) map[string]string {
	m := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		k, v, ok := splitTerse(line)
		if ok {
			m[k] = v
		}
	}
	return m
}

// splitTerse splits one nmcli -t line at its first unescaped colon.
func splitTerse(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case ':':
			return unescapeTerse(line[:i]), unescapeTerse(line[i+1:]), true
		}
	}
	return "", "", false
}

func unescapeTerse(s string) string {
	return strings.NewReplacer(`\:`, ":", `\\`, `\`).Replace(s)
}

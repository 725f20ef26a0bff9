package daemon

import (
	"strings"
)

const (
	unitName = "acpibatt.service"
	unitDir  = "/etc/systemd/system"
)

const unitTemplate = `[Unit]
Description=ACPI battery and AC adapter monitor
After=dbus.service

[Service]
Type=simple
ExecStart=/path/to/acpibatt daemon --config /path/to/config --daemon-socket /path/to/socket
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure

[Install]
WantedBy=multi-user.target
`

// renderUnit fills the systemd unit template.
func renderUnit(exePath, configPath, socketPath string) string {
	return strings.NewReplacer(
		"/path/to/acpibatt", exePath,
		"/path/to/config", configPath,
		"/path/to/socket", socketPath,
	).Replace(unitTemplate)
}

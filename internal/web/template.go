package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stamp": func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.UTC().Format("2006-01-02 15:04:05Z")
	},
	"orUnknown": func(s string) string {
		if s == "" {
			return "unknown"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>GeoSentinel</title>
<style>
body { font-family: monospace; max-width: 800px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.inside { color: green; font-weight: bold; }
.outside { color: #888; }
.pendingEntry, .pendingExit { color: orange; }
.unknown { color: #aaa; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>GeoSentinel</h1>

<h2>Monitor</h2>
<table>
<tr><th>Running</th><td>{{if .Running}}yes{{else}}no{{end}}</td></tr>
<tr><th>Authorization</th><td>{{orUnknown .Authorization}}</td></tr>
<tr><th>Location</th><td>{{if .Location}}{{printf "%.5f, %.5f" .Location.Lat .Location.Lon}}{{else}}-{{end}}</td></tr>
<tr><th>Regions</th><td>{{.Monitored}} monitored, {{.Excluded}} excluded</td></tr>
<tr><th>Armed timers</th><td>{{.ArmedTimers}}</td></tr>
</table>

<h2>Geofences</h2>
{{if .Geofences}}<table>
<tr><th>Name</th><th>Priority</th><th>State</th><th>Last entry</th><th>Last exit</th><th></th></tr>
{{range .Geofences}}<tr>
<td>{{.Name}}{{if not .Enabled}} (disabled){{end}}</td>
<td>{{.Priority}}</td>
<td class="{{.State}}">{{.State}}</td>
<td>{{stamp .LastEntry}}</td>
<td>{{stamp .LastExit}}</td>
<td>{{if .Snoozing}}snoozed until {{stamp .SnoozeUntil}}{{else if not .Monitored}}{{if .Enabled}}over capacity{{end}}{{end}}</td>
</tr>
{{end}}</table>{{else}}<p>No geofences.</p>{{end}}

<h2>Settings</h2>
<table>
<tr><th>Dwell</th><td>{{.Settings.DwellSeconds}}s</td></tr>
<tr><th>Exit debounce</th><td>{{.Settings.ExitDebounceSeconds}}s</td></tr>
<tr><th>Max regions</th><td>{{.Settings.MaxMonitoredRegions}}</td></tr>
<tr><th>Battery mode</th><td>{{.Settings.BatteryMode}}</td></tr>
<tr><th>Significant change</th><td>{{if .Settings.SignificantChange}}on{{else}}off{{end}}</td></tr>
<tr><th>Visits</th><td>{{if .Settings.VisitMonitoring}}on{{else}}off{{end}}</td></tr>
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Entries</th><td>{{.Counts.Entries}}</td></tr>
<tr><th>Exits</th><td>{{.Counts.Exits}}</td></tr>
<tr><th>Dwell cancelled</th><td>{{.Counts.DwellCancelled}}</td></tr>
<tr><th>Exit cancelled</th><td>{{.Counts.ExitCancelled}}</td></tr>
<tr><th>Snoozed drops</th><td>{{.Counts.SnoozedDrops}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
{{if .Config.Broker}}<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Store</th><td>{{.Config.StoreBackend}}</td></tr>
<tr><th>Signals</th><td>{{.Config.SignalSource}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/logs">Logs</a> | <a href="/metrics">Metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	return indexTmpl.Execute(w, snap)
}

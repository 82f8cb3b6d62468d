package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/plant-waterer/internal/state"
)

// formatUptime renders d as days, hours, minutes and seconds, dropping
// leading zero units.
func formatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	parts := []struct {
		n    int64
		unit string
	}{
		{secs / 86400, "d"},
		{secs / 3600 % 24, "h"},
		{secs / 60 % 60, "m"},
		{secs % 60, "s"},
	}
	out := ""
	for i, p := range parts {
		if out == "" && p.n == 0 && i < len(parts)-1 {
			continue
		}
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%d%s", p.n, p.unit)
	}
	return out
}

// page is the data rendered into the status page.
type page struct {
	state.Snapshot
	Message   string
	Error     bool
	Accepting bool
}

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"clock": func(t time.Time) string {
		return t.Local().Format("15:04:05")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
{{if not .Accepting}}<meta http-equiv="refresh" content="5; url=/">{{end}}
<title>Plant Waterer</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.msg { padding: 6px 8px; background: #e8f5e9; }
.msg.err { background: #e3f2fd; color: #0d47a1; }
.halted { color: red; font-weight: bold; }
</style>
</head>
<body>
<h1>Plant Waterer</h1>
{{if .Message}}<p class="msg{{if .Error}} err{{end}}">{{.Message}}</p>{{end}}
{{if .Halted}}<p class="halted">Pump fault: automatic watering halted.</p>{{end}}

{{if .Accepting}}
<h2>Connect to Wi-Fi</h2>
<form method="post" action="/">
<p><label>Network <input name="ssid" maxlength="32"></label></p>
<p><label>Password <input name="password" type="password" maxlength="63"></label></p>
<p><button type="submit">Connect</button></p>
</form>
{{end}}

<h2>Sensors</h2>
<table>
<tr><th>Moisture</th><td>{{if .HasReading}}{{.MoisturePercent}}% (raw {{.MoistureRaw}}){{else}}no reading yet{{end}}</td></tr>
<tr><th>Water tank</th><td>{{.WaterLevel}}</td></tr>
{{if .HasReading}}<tr><th>Read at</th><td>{{clock .ReadingAt}}</td></tr>{{end}}
</table>

<h2>Watering</h2>
<table>
<tr><th>Pump</th><td class="{{if .PumpOn}}on{{else}}off{{end}}">{{if .PumpOn}}ON{{else}}OFF{{end}}{{if .PumpSource}} ({{.PumpSource}}){{end}}</td></tr>
<tr><th>State</th><td>{{.Watering}}</td></tr>
<tr><th>Threshold</th><td>{{.Threshold}}%</td></tr>
<tr><th>Interval</th><td>{{.IntervalMinutes}} min</td></tr>
</table>
<p><a href="/start">Start pump</a> | <a href="/stop">Stop pump</a></p>

<form method="post" action="/">
<p><label>Threshold % <input name="input_value" inputmode="numeric" placeholder="{{.Threshold}}"></label></p>
<p><label>Interval min <input name="input_value2" inputmode="numeric" placeholder="{{.IntervalMinutes}}"></label></p>
<p><button type="submit">Save</button></p>
</form>

<h2>System</h2>
<table>
<tr><th>Wi-Fi</th><td>{{.WiFiMode}} / {{.Provision}}</td></tr>
{{if .Credentials}}<tr><th>Network</th><td>{{.Credentials.SSID}}</td></tr>{{end}}
<tr><th>IP</th><td>{{.IP}}</td></tr>
<tr><th>Indicator</th><td>{{.Indicator}}</td></tr>
<tr><th>MQTT</th><td>{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
</table>

<h2>Log</h2>
<table>
{{range .Log}}<tr><th>{{clock .Time}}</th><td>{{.Message}}</td></tr>
{{else}}<tr><td>empty</td></tr>
{{end}}</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, p page) error {
	return indexTmpl.Execute(w, p)
}

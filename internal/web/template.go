package web

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sweeney/aquarium-controller/internal/control"
	"github.com/sweeney/aquarium-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm", days, h, m)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm", h, m)
		}
		return fmt.Sprintf("%dm %ds", m, int(d.Seconds())%60)
	},
	"ago": func(t, now time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return humanize.RelTime(t, now, "ago", "from now")
	},
	"value": formatValue,
	"class": valueClass,
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
{{if .RefreshSeconds}}<meta http-equiv="refresh" content="{{.RefreshSeconds}}">{{end}}
<title>Aquarium</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
form { display: inline; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.alert { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Aquarium{{if .Snap.Config.Hostname}} on {{.Snap.Config.Hostname}}{{end}}</h1>

<h2>Status</h2>
<table>
{{range .Snap.Fields.Fields}}<tr><th>{{.Key}}</th><td class="{{class .Value}}">{{value .Value}}</td></tr>
{{else}}<tr><td colspan="2">no data yet</td></tr>
{{end}}</table>

{{if .Controllers}}<h2>Controllers</h2>
<table>
{{range .Controllers}}<tr><th>{{.Name}}</th><td>{{.State}}{{if not .Monitoring}} (stopped){{end}}</td>
<td>{{$name := .Name}}{{range $.Actions}}<form method="post" action="/api/controllers/{{$name}}/{{.}}?redirect=1"><button>{{.}}</button></form> {{end}}</td></tr>
{{end}}</table>{{end}}

<h2>System</h2>
<table>
<tr><th>Version</th><td>{{.Snap.Config.Version}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.Snap.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Last update</th><td>{{ago .Snap.LastUpdate .Snap.Now}}</td></tr>
<tr><th>MQTT</th><td class="{{if .Snap.MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .Snap.MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Snap.Config.Broker}}</td></tr>
{{if .Snap.Network}}<tr><th>Network</th><td>{{.Snap.Network.Status}} ({{.Snap.Network.Type}}{{if .Snap.Network.SSID}}, {{.Snap.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Snap.Network.IP}}</td></tr>{{end}}
</table>

<p><a href="/index.json">JSON</a> | <a href="/api/controllers">API</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

// actions offered as buttons on the page.
var actions = []string{"auto", "on", "off"}

type pageData struct {
	Snap           status.Snapshot
	Uptime         time.Duration
	Controllers    []control.Snapshot
	Actions        []string
	RefreshSeconds int
}

func page(snap status.Snapshot, controllers []Controller, refresh time.Duration) pageData {
	p := pageData{
		Snap:           snap,
		Uptime:         snap.Uptime(),
		Actions:        actions,
		RefreshSeconds: int(refresh / time.Second),
	}
	for _, c := range controllers {
		p.Controllers = append(p.Controllers, c.Snapshot())
	}
	return p
}

func renderHTML(w io.Writer, p pageData) error {
	return indexTmpl.Execute(w, p)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "ON"
		}
		return "OFF"
	case float64:
		if math.IsNaN(x) {
			return "n/a"
		}
		return humanize.FtoaWithDigits(x, 2)
	case string:
		return x
	}
	return fmt.Sprint(v)
}

func valueClass(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "on"
		}
		return "off"
	case float64:
		if math.IsNaN(x) {
			return "unknown"
		}
	case string:
		switch x {
		case "HIGH", "LOW":
			return "alert"
		case "UNKNOWN":
			return "unknown"
		}
	}
	return ""
}

package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/sweeney/wrist-pager/internal/status"
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
	"onOff": func(on bool) string {
		if on {
			return "ON"
		}
		return "OFF"
	},
	"onOffClass": func(on bool) string {
		if on {
			return "on"
		}
		return "off"
	},
	"deref": func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	},
	"bars": func(rssi int) string {
		n := status.SignalBars(rssi)
		return strings.Repeat("█", n) + strings.Repeat("░", 4-n)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Wrist Pager</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Wrist Pager<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Page</h2>
<table>
<tr><th>Current</th><td id="page">{{.Nav.Deck.Current}}{{with .PageName}} ({{.}}){{end}}</td></tr>
<tr><th>Previous</th><td id="previous">{{.Nav.Deck.Previous}}</td></tr>
<tr><th>Pages</th><td>{{.Nav.Deck.Count}}</td></tr>
<tr><th>Paging</th><td class="{{if .Nav.Enabled}}on{{else}}off{{end}}">{{if .Nav.Enabled}}enabled{{else}}disabled{{end}}</td></tr>
<tr><th>Transition</th><td id="transition">{{if .Nav.Gesture.PageChangeInProgress}}yes{{else}}no{{end}}</td></tr>
{{with .LastChange}}<tr><th>Last gesture</th><td id="last-gesture">{{.Change.Gesture}} {{.Change.Previous}} &rarr; {{.Change.Page}} at {{.Timestamp.UTC.Format "15:04:05Z"}}</td></tr>{{end}}
</table>

<h2>Orientation</h2>
<table>
{{if .HavePose}}<tr><th>Roll</th><td id="roll">{{printf "%.1f" .Nav.Pose.Roll}}</td></tr>
<tr><th>Pitch</th><td id="pitch">{{printf "%.1f" .Nav.Pose.Pitch}}</td></tr>
<tr><th>Yaw</th><td id="yaw">{{printf "%.1f" .Nav.Pose.Yaw}}</td></tr>{{else}}<tr><th>Pose</th><td>waiting</td></tr>{{end}}
<tr><th>Source</th><td>{{.Config.Source}}</td></tr>
</table>

<h2>Switches</h2>
<table>
<tr><th>Paging</th><td class="{{onOffClass .Switches.Paging}}">{{onOff .Switches.Paging}}</td></tr>
<tr><th>WiFi uplink</th><td class="{{onOffClass .Switches.WiFi}}">{{onOff .Switches.WiFi}}</td></tr>
<tr><th>Peer link</th><td class="{{onOffClass .Switches.PeerLink}}">{{onOff .Switches.PeerLink}}</td></tr>
<tr><th>Ready</th><td>{{if .SwitchesReady}}yes{{else}}no{{end}}</td></tr>
<tr><th>Peer frames</th><td id="peer-frames">{{.PeerFrames.Received}} received, {{.PeerFrames.Dropped}} dropped</td></tr>
</table>

{{with .Peer}}<h2>Peer</h2>
<table>
<tr><th>Text</th><td>{{.Text}}</td></tr>
<tr><th>Int</th><td>{{.Int}}</td></tr>
<tr><th>Float</th><td>{{.Float}}</td></tr>
<tr><th>Bool</th><td>{{.Bool}}</td></tr>
<tr><th>Received</th><td>{{.ReceivedAt.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
</table>
{{end}}
<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTT.Connected}}connected{{else}}disconnected{{end}}">{{if .MQTT.Connected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Uplink</th><td>{{if .MQTT.Uplink}}on{{else}}off ({{.MQTT.Buffered}} buffered){{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>
{{if .Network.RSSI}}<tr><th>Signal</th><td id="signal">{{bars (deref .Network.RSSI)}} ({{deref .Network.RSSI}} dBm)</td></tr>{{end}}{{end}}
</table>

<h2>Gesture Counts</h2>
<table>
<tr><th>Left</th><td id="count-left">{{.Nav.Counts.Left}}</td></tr>
<tr><th>Right</th><td id="count-right">{{.Nav.Counts.Right}}</td></tr>
<tr><th>Idle resets</th><td>{{.Nav.Counts.IdleResets}}</td></tr>
<tr><th>Invalid samples</th><td>{{.Nav.Counts.Invalid}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var names = {{.Config.PageNames}};

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }
  function setText(id, text) {
    var el = document.getElementById(id);
    if (el) { el.textContent = text; }
  }

  function connect() {
    var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("pending", "reconnecting");
      setTimeout(connect, 5000);
    };
    ws.onerror = function() { setDot("err", "error"); };
    ws.onmessage = function(ev) {
      try {
        var s = JSON.parse(ev.data).status;
        var name = names && names[s.page.index] ? " (" + names[s.page.index] + ")" : "";
        setText("page", s.page.index + name);
        setText("previous", s.page.previous);
        setText("transition", s.page.in_transition ? "yes" : "no");
        setText("count-left", s.gesture_counts.left);
        setText("count-right", s.gesture_counts.right);
        setText("peer-frames", s.peer_frames.received + " received, " + s.peer_frames.dropped + " dropped");
        if (s.pose) {
          setText("roll", s.pose.roll.toFixed(1));
          setText("pitch", s.pose.pitch.toFixed(1));
          setText("yaw", s.pose.yaw.toFixed(1));
        }
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}

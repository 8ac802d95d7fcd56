package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/fuel-kiosk/internal/status"
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
	"liters": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"price":  FormatPrice,
	"label":  Label,
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Fuel Kiosk</title>
<script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
<style>
body { font-family: sans-serif; max-width: 800px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
#status { font-size: 1.3em; padding: 0.5em; background: #f4f4f4; border-radius: 4px; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.tilt { color: #c00; }
.charts { display: flex; gap: 1em; flex-wrap: wrap; }
.charts > div { flex: 1; min-width: 300px; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; background: orange; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.system { font-family: monospace; color: #666; font-size: 0.85em; }
</style>
</head>
<body>
<h1>Fuel Kiosk<span id="live-dot" class="live-dot" title="connecting"></span></h1>

<p id="status">{{.Feed.Status}}</p>
<p id="summary">Total: {{liters .Feed.TotalLiters}} L / Avg price: {{price .Feed.AvgPrice}}</p>

<div class="charts">
<div><canvas id="litersChart"></canvas></div>
<div><canvas id="typeChart"></canvas></div>
</div>

<h2>Recent sessions</h2>
<table>
<thead><tr><th>Session</th><th>Type</th><th>Liters</th><th>Price</th></tr></thead>
<tbody id="sessions">
{{range .Feed.Sessions}}<tr{{if .Aborted}} class="tilt"{{end}}><td>{{label .Seq}}</td><td>{{if .Aborted}}Tilt{{else}}Normal{{end}}</td><td>{{liters .Liters}}</td><td>{{price .Price}}</td></tr>
{{end}}</tbody>
</table>

<p><a href="/csv">Download CSV</a> · <a href="/data">JSON</a> · <a href="/health">Health</a></p>

<p class="system">boot {{.System.BootID}} · up {{uptime .Uptime}} · MQTT {{if .System.MQTTConnected}}connected{{else}}disconnected{{end}}{{if .System.Network}} · {{.System.Network.IP}}{{end}}</p>

<script>
(function() {
  var dot = document.getElementById("live-dot");
  var litersChart = new Chart(document.getElementById("litersChart"), {
    type: "bar",
    data: { labels: [], datasets: [{ label: "Liters", data: [], backgroundColor: [] }] },
    options: { scales: { y: { beginAtZero: true } } }
  });
  var typeChart = new Chart(document.getElementById("typeChart"), {
    type: "pie",
    data: { labels: ["Normal", "Tilt"], datasets: [{ data: [0, 0], backgroundColor: ["#4caf50", "#f44336"] }] }
  });

  function cell(tr, text) {
    var td = document.createElement("td");
    td.textContent = text;
    tr.appendChild(td);
  }

  function render(d) {
    document.getElementById("status").textContent = d.status;
    document.getElementById("summary").textContent =
      "Total: " + d.totalLiters.toFixed(2) + " L / Avg price: €" + d.avgPrice.toFixed(2);

    litersChart.data.labels = d.labels;
    litersChart.data.datasets[0].data = d.liters;
    litersChart.data.datasets[0].backgroundColor = d.types.map(function(t) {
      return t === "Tilt" ? "#f44336" : "#4caf50";
    });
    litersChart.update();
    typeChart.data.datasets[0].data = [d.normal, d.tilt];
    typeChart.update();

    var body = document.getElementById("sessions");
    body.innerHTML = "";
    for (var i = 0; i < d.labels.length; i++) {
      var tr = document.createElement("tr");
      if (d.types[i] === "Tilt") tr.className = "tilt";
      cell(tr, d.labels[i]);
      cell(tr, d.types[i]);
      cell(tr, d.liters[i].toFixed(2));
      cell(tr, d.prices[i]);
      body.appendChild(tr);
    }
  }

  function poll() {
    fetch("/data").then(function(r) { return r.json(); }).then(render).catch(function() {
      dot.className = "live-dot err";
    });
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { dot.className = "live-dot ok"; dot.title = "live"; };
    ws.onmessage = function(e) {
      try { render(JSON.parse(e.data)); } catch (err) {}
    };
    ws.onclose = function() {
      dot.className = "live-dot err";
      dot.title = "reconnecting";
      poll();
      setTimeout(connect, 5000);
    };
  }

  poll();
  if (window.WebSocket) {
    connect();
  } else {
    setInterval(poll, 1000);
  }
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, feed Feed, snap status.Snapshot) error {
	data := struct {
		Feed   Feed
		System status.Snapshot
		Uptime time.Duration
	}{
		Feed:   feed,
		System: snap,
		Uptime: snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}

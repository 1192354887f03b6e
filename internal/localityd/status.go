// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package localityd

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"time"

	sigar "github.com/cloudfoundry/gosigar"
	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/glusterloc/client/gluster"
)

const statusTemplateStr = `
<!doctype html>
<html lang="en">
<head>
  <title>glusterloc status</title>
  <style>
    caption {
      caption-side: top;
      text-align: left;
      font-weight: bold;
    }
    table.status {
      border-collapse: collapse;
    }
    table.status td, table.status th {
      border: 1px solid #DDD;
      text-align: left;
      padding: 4px 8px;
    }
    table.status th {
      background-color: #3399FF;
      color: white;
    }
  </style>
</head>

<body>

<h3>{{.JobName}}</h3>

<table>
  <tr>
    <td>Addr:</td>
    <td>{{.Cfg.Addr}}</td>
  </tr>
  <tr>
    <td>Attributes from:</td>
    <td>{{.Source}}</td>
  </tr>
  <tr>
    <td>Cached topologies:</td>
    <td>{{.CacheLen}} ({{.Cache.Hits}} hits / {{.Cache.Misses}} misses / {{.Cache.Invalid}} invalid)</td>
  </tr>
  <tr>
    <td>Free memory:</td>
    <td>{{.FreeMem}} / {{.TotalMem}} mb</td>
  </tr>
  <tr>
    <td>Last reboot:</td>
    <td>{{.Reboot}}</td>
  </tr>
</table>

<br>
<table class="status">
  <caption>Volumes</caption>
  <tr>
    <th>Volume</th>
    <th>Mount point</th>
  </tr>
  {{range $k, $v := .Cfg.Volumes}}
  <tr>
    <td>{{$k}}{{if eq $k $.DefaultVolume}} (default){{end}}</td>
    <td>{{$v}}</td>
  </tr>
  {{end}}
</table>

<br>
<table class="status">
  <caption>Client Ops</caption>
  <tr>
    <th>Op</th>
    <th>Stats</th>
  </tr>
  {{range $k, $v := .Ops}}
  <tr>
    <td>{{$k}}</td>
    <td>{{$v}}</td>
  </tr>
  {{end}}
</table>

status update time: {{.Now}}
</body>
</html>
`

// StatusData includes status info of the locality service.
type StatusData struct {
	JobName       string
	Cfg           Config
	Source        string
	DefaultVolume string
	CacheLen      int
	Cache         gluster.CacheStats
	FreeMem       uint64
	TotalMem      uint64

	Reboot time.Time
	Ops    map[string]string
	Now    time.Time
}

const mb = 1024 * 1024

var (
	// When was the last reboot?
	reboot = time.Now()

	// Status html template.
	statusTemplate = template.Must(template.New("status_html").Parse(statusTemplateStr))
)

// statusHandler serves the status page, as json if the "Accept" header asks
// for "application/json" and as html otherwise.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Header.Get("Accept") == "application/json" {
		writeJSON(w, s.genStatus())
	} else {
		s.handleHTML(w)
	}
}

func (s *Server) source() string {
	switch {
	case s.cfg.SnapshotPath != "":
		return "snapshot " + s.cfg.SnapshotPath
	case s.cfg.GetfattrCmd != "":
		return "command " + s.cfg.GetfattrCmd
	}
	return "getxattr"
}

// Generate status data.
func (s *Server) genStatus() StatusData {
	mem := sigar.Mem{}
	if err := mem.Get(); nil != err {
		log.Errorf("failed to get memory info: %s", err)
		mem.ActualFree = 0
		mem.Total = 0
	}

	return StatusData{
		JobName:       "glusterloc-localityd",
		Cfg:           s.cfg,
		Source:        s.source(),
		DefaultVolume: s.client.DefaultVolume(),
		CacheLen:      s.client.CacheLen(),
		Cache:         s.client.CacheStats(),
		FreeMem:       mem.ActualFree / mb,
		TotalMem:      mem.Total / mb,
		Reboot:        reboot,
		Ops:           s.client.OpStrings(),
		Now:           time.Now(),
	}
}

func (s *Server) handleHTML(w http.ResponseWriter) {
	var b bytes.Buffer
	if err := statusTemplate.Execute(&b, s.genStatus()); err != nil {
		e := fmt.Sprintf("failed to encode html status data: %s", err)
		log.Errorf(e)
		http.Error(w, e, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.Write(b.Bytes())
}

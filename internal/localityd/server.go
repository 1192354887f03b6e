// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package localityd serves block locations of files on GlusterFS volumes over
// HTTP, for schedulers that want to run work next to its data.
package localityd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	log "github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/westerndigitalcorporation/glusterloc/client/gluster"
	"github.com/westerndigitalcorporation/glusterloc/internal/core"
	"github.com/westerndigitalcorporation/glusterloc/internal/server"
)

var httpOps = server.NewOpMetric("glusterloc_http", "handler")

// Server is the HTTP server of the locality service.
type Server struct {
	// Configuration parameters.
	cfg Config

	// Where topologies and locations come from.
	client *gluster.Client
}

// NewServer creates a new Server.
func NewServer(cfg Config, client *gluster.Client) *Server {
	return &Server{cfg: cfg, client: client}
}

// Handler returns the handler for all endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Status page.
	mux.HandleFunc("/", s.statusHandler)

	mux.HandleFunc("/locate", s.locateHandler)
	mux.HandleFunc("/topology", s.topologyHandler)
	mux.HandleFunc("/clear", s.clearHandler)
	mux.Handle("/metrics", promhttp.Handler())

	// Endpoint for shutting down the service.
	mux.HandleFunc("/_quit", server.QuitHandler)
	return mux
}

// Start starts the HTTP server. It only returns on error.
func (s *Server) Start() error {
	log.Infof("listening on address %s", s.cfg.Addr)
	return http.ListenAndServe(s.cfg.Addr, s.Handler())
}

// GET /locate?path=P&start=N&length=M
//
// Replies with a JSON list of block locations, or null if locality isn't
// available for the file.
func (s *Server) locateHandler(w http.ResponseWriter, r *http.Request) {
	op := httpOps.Start("locate")
	defer op.End()

	q := r.URL.Query()
	path := q.Get("path")
	start, err1 := strconv.ParseInt(q.Get("start"), 10, 64)
	length, err2 := strconv.ParseInt(q.Get("length"), 10, 64)
	if path == "" || err1 != nil || err2 != nil {
		op.Failed()
		http.Error(w, "usage: /locate?path=P&start=N&length=M", http.StatusBadRequest)
		return
	}

	locs, err := s.client.BlockLocations(path, start, length)
	if err != nil {
		op.Failed()
		http.Error(w, fmt.Sprintf("%s: %s", path, err), http.StatusBadRequest)
		return
	}
	writeJSON(w, locs)
}

// topologyReply is what /topology sends back.
type topologyReply struct {
	Valid bool `json:"valid"`
	*core.Topology
}

// GET /topology?path=P
func (s *Server) topologyHandler(w http.ResponseWriter, r *http.Request) {
	op := httpOps.Start("topology")
	defer op.End()

	path := r.URL.Query().Get("path")
	if path == "" {
		op.Failed()
		http.Error(w, "usage: /topology?path=P", http.StatusBadRequest)
		return
	}
	t, err := s.client.Topology(path)
	if err != nil {
		op.Failed()
		http.Error(w, fmt.Sprintf("%s: %s", path, err), http.StatusBadRequest)
		return
	}
	if !t.Valid() {
		writeJSON(w, topologyReply{Valid: false})
		return
	}
	writeJSON(w, topologyReply{Valid: true, Topology: t})
}

// POST /clear
func (s *Server) clearHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	n := s.client.CacheLen()
	s.client.ClearCache()
	log.Infof("Cleared %d cached topologies on request from %s", n, r.RemoteAddr)
	fmt.Fprintf(w, "cleared %d\n", n)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		e := fmt.Sprintf("failed to encode json reply: %s", err)
		log.Errorf(e)
		http.Error(w, e, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}

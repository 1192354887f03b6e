// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package server

import (
	"net/http"

	log "github.com/golang/glog"
)

// QuitHandler kills the process. Tests use it to stop a daemon they started.
func QuitHandler(w http.ResponseWriter, r *http.Request) {
	log.Fatalf("Received a quit request from %s, exiting", r.RemoteAddr)
}

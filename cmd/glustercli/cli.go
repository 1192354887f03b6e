// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/codegangsta/cli"
	shlex "github.com/flynn-archive/go-shlex"
	"github.com/peterh/liner"

	log "github.com/golang/glog"
	"github.com/westerndigitalcorporation/glusterloc/client/gluster"
	"github.com/westerndigitalcorporation/glusterloc/internal/core"
	"github.com/westerndigitalcorporation/glusterloc/internal/fuse"
	"github.com/westerndigitalcorporation/glusterloc/internal/localityd"
	"github.com/westerndigitalcorporation/glusterloc/internal/pathinfo"
	"github.com/westerndigitalcorporation/glusterloc/internal/snapshot"
)

var usage = `
	glustercli inspects the data locality of files on GlusterFS volumes.

	You can issue one command:

		glustercli [(--volume <name>=<mount>)...] [--getfattr <cmd>] [--rate <n>] <subcommand> [<flags>...]

	or start a command line interpreter:

		glustercli [(--volume <name>=<mount>)...] shell

	Paths may be glusterfs://<volume>/<path> URIs, which are mapped to the
	mount point given for the volume, or absolute local paths. The first
	volume given is the default one, used for glusterfs:///<path>.

	Attributes are read with getxattr(2) unless --getfattr names a command to
	run instead (e.g. "sudo getfattr -m . -n trusted.glusterfs.pathinfo"), or
	--snapshot names a file recorded earlier with the 'record' command.
	`

// glCli holds the state that lives across commands in a shell.
type glCli struct {
	// the actual client; created on first use.
	clt *gluster.Client
	// Releases whatever the client's fetcher holds open.
	cltCloser io.Closer
	// the command line framework we'll use to launch commands.
	app *cli.App
	// State for fuse mounts.
	mountState *fuse.MountState
	// True if we are running a shell.
	inShell bool
	// Output of commands.
	out io.Writer
}

// newGlCli creates a new glCli object.
func newGlCli() *glCli {
	g := &glCli{out: os.Stdout}
	app := cli.NewApp()
	app.Name = "glustercli"
	app.Usage = usage
	app.Flags = []cli.Flag{
		cli.StringSliceFlag{
			Name:  "volume",
			Usage: "Volume and the mount point it's mounted at, as name=mount; may be repeated",
		},
		cli.StringFlag{
			Name:  "getfattr",
			Usage: "Command to read attributes with, the path is appended",
		},
		cli.StringFlag{
			Name:  "snapshot",
			Usage: "Read attributes from this snapshot instead of the volume",
		},
		cli.Float64Flag{
			Name:  "rate",
			Usage: "Max attribute reads per second from the volume, 0 for no limit",
		},
	}

	pathFlag := cli.StringFlag{
		Name:  "path, p",
		Usage: "glusterfs URI or local path of a file",
	}
	dbFlag := cli.StringFlag{
		Name:  "db",
		Usage: "snapshot database file",
	}
	fileFlag := cli.StringFlag{
		Name:  "file, f",
		Usage: "file to read from or write to (default: stdin/stdout)",
	}

	app.Commands = []cli.Command{
		{
			Name:  "parse",
			Usage: "Parses pathinfo text, as printed by getfattr, and prints the topology.",
			Flags: []cli.Flag{
				fileFlag,
			},
			Action: g.cmdParse,
		},
		{
			Name:    "topology",
			Aliases: []string{"t"},
			Usage:   "Prints the topology of a file.",
			Flags: []cli.Flag{
				pathFlag,
			},
			Action: g.cmdTopology,
		},
		{
			Name:    "locate",
			Aliases: []string{"l"},
			Usage:   "Prints the hosts storing each block of a byte range of a file.",
			Flags: []cli.Flag{
				pathFlag,
				cli.IntFlag{
					Name:  "start, s",
					Usage: "first byte of the range",
				},
				cli.IntFlag{
					Name:  "length, n",
					Usage: "length of the range",
				},
			},
			Action: g.cmdLocate,
		},
		{
			Name:   "clear",
			Usage:  "Drops all cached topologies.",
			Action: g.cmdClear,
		},
		{
			Name:  "record",
			Usage: "Records the attribute of every file under a directory into a snapshot.",
			Flags: []cli.Flag{
				dbFlag,
				cli.StringFlag{
					Name:  "root, r",
					Usage: "directory to walk",
				},
			},
			Action: g.cmdRecord,
		},
		{
			Name:  "export",
			Usage: "Writes a snapshot as a compressed stream.",
			Flags: []cli.Flag{
				dbFlag,
				fileFlag,
			},
			Action: g.cmdExport,
		},
		{
			Name:  "import",
			Usage: "Adds the records of an exported stream to a snapshot.",
			Flags: []cli.Flag{
				dbFlag,
				fileFlag,
			},
			Action: g.cmdImport,
		},
		{
			Name:  "mount",
			Usage: "Mounts fake files that report the pathinfo given in a layout file.",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "path, p",
					Usage: "mount point",
				},
				cli.StringFlag{
					Name:  "layout",
					Usage: `json layout: {"files": [{"name": ..., "size": ..., "pathinfo": ...}]}`,
				},
			},
			Action: g.cmdMount,
		},
		{
			Name:   "umount",
			Usage:  "Unmounts the fake files.",
			Action: g.cmdUmount,
		},
		{
			Name:   "shell",
			Usage:  "Starts a command line interpreter.",
			Action: g.cmdShell,
		},
	}
	g.app = app

	// By default 'HelpName' will be the parent command name + command name.
	// Overwrite 'HelpName' to be command name only.
	for i := range g.app.Commands {
		g.app.Commands[i].HelpName = g.app.Commands[i].Name
	}
	return g
}

// run starts a command specified by users.
func (g *glCli) run(args []string) error {
	return g.app.Run(args)
}

// stop frees up all resources used by the glCli object.
func (g *glCli) stop() {
	if g.mountState != nil {
		g.mountState.Unmount()
	}
	if g.cltCloser != nil {
		g.cltCloser.Close()
		g.cltCloser = nil
	}
}

// parseVolumes turns name=mount strings into a map.
func parseVolumes(specs []string) (map[string]string, string, error) {
	volumes := make(map[string]string)
	first := ""
	for _, spec := range specs {
		i := strings.IndexByte(spec, '=')
		if i <= 0 || i == len(spec)-1 {
			return nil, "", fmt.Errorf("expected name=mount, got %q", spec)
		}
		volumes[spec[:i]] = spec[i+1:]
		if first == "" {
			first = spec[:i]
		}
	}
	return volumes, first, nil
}

// getClient returns the client, creating it from the global flags on first
// use.
func (g *glCli) getClient(c *cli.Context) *gluster.Client {
	if g.clt != nil {
		return g.clt
	}
	volumes, first, err := parseVolumes(c.GlobalStringSlice("volume"))
	if err != nil {
		log.Errorf("%s", err)
		return nil
	}
	cfg := localityd.Config{
		Addr:          "-",
		Volumes:       volumes,
		DefaultVolume: first,
		GetfattrCmd:   c.GlobalString("getfattr"),
		SnapshotPath:  c.GlobalString("snapshot"),
		FetchRate:     c.GlobalFloat64("rate"),
		FetchRetries:  localityd.DefaultConfig.FetchRetries,
		Instance:      "glustercli",
	}
	if err := cfg.Validate(); err != nil {
		log.Errorf("%s", err)
		return nil
	}
	g.clt, g.cltCloser, err = localityd.NewClient(cfg)
	if err != nil {
		log.Errorf("failed to create client: %s", err)
		return nil
	}
	return g.clt
}

func (g *glCli) printJSON(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Errorf("failed to encode: %s", err)
		return
	}
	fmt.Fprintln(g.out, string(b))
}

func (g *glCli) printTopology(t *core.Topology) {
	if !t.Valid() {
		fmt.Fprintln(g.out, "no locality available")
		return
	}
	if t.Striped() {
		fmt.Fprintf(g.out, "stripe size: %d\n", t.StripeSize)
	} else {
		fmt.Fprintln(g.out, "not striped")
	}
	for i, u := range t.Units {
		fmt.Fprintf(g.out, "unit %d: %s\n", i, strings.Join(u.Hosts, " "))
	}
}

// cmdParse implements the "parse" subcommand.
func (g *glCli) cmdParse(c *cli.Context) {
	var r io.Reader = os.Stdin
	if name := c.String("file"); name != "" {
		f, err := os.Open(name)
		if err != nil {
			log.Errorf("%s", err)
			return
		}
		defer f.Close()
		r = f
	}
	raw, err := ioutil.ReadAll(r)
	if err != nil {
		log.Errorf("%s", err)
		return
	}
	t, err := pathinfo.Parse(string(raw))
	if err != nil {
		kind, _ := pathinfo.KindOf(err)
		fmt.Fprintf(g.out, "invalid (%s): %s\n", kind, err)
		return
	}
	g.printTopology(t)
}

// cmdTopology implements the "topology" subcommand.
func (g *glCli) cmdTopology(c *cli.Context) {
	client := g.getClient(c)
	if client == nil {
		return
	}
	path := c.String("path")
	if path == "" {
		log.Errorf("missing path")
		return
	}
	t, err := client.Topology(path)
	if err != nil {
		log.Errorf("%s: %s", path, err)
		return
	}
	g.printTopology(t)
}

// cmdLocate implements the "locate" subcommand.
func (g *glCli) cmdLocate(c *cli.Context) {
	client := g.getClient(c)
	if client == nil {
		return
	}
	path := c.String("path")
	if path == "" {
		log.Errorf("missing path")
		return
	}
	locs, err := client.BlockLocations(path, int64(c.Int("start")), int64(c.Int("length")))
	if err != nil {
		log.Errorf("%s: %s", path, err)
		return
	}
	if locs == nil {
		fmt.Fprintln(g.out, "no locality available")
		return
	}
	for _, l := range locs {
		fmt.Fprintf(g.out, "%d\t%d\t%s\n", l.Offset, l.Length, strings.Join(l.Hosts, ","))
	}
}

// cmdClear implements the "clear" subcommand.
func (g *glCli) cmdClear(c *cli.Context) {
	if g.clt == nil {
		return
	}
	n := g.clt.CacheLen()
	g.clt.ClearCache()
	fmt.Fprintf(g.out, "cleared %d\n", n)
}

func openDB(c *cli.Context) *snapshot.DB {
	name := c.String("db")
	if name == "" {
		log.Errorf("missing db")
		return nil
	}
	db, err := snapshot.Open(name)
	if err != nil {
		log.Errorf("%s", err)
		return nil
	}
	return db
}

// cmdRecord implements the "record" subcommand.
func (g *glCli) cmdRecord(c *cli.Context) {
	client := g.getClient(c)
	if client == nil {
		return
	}
	root := c.String("root")
	if root == "" {
		log.Errorf("missing root")
		return
	}
	if local, err := client.ResolvePath(root); err == nil {
		root = local
	}
	db := openDB(c)
	if db == nil {
		return
	}
	defer db.Close()

	start := time.Now()
	recorded, failed, err := db.Record(root, client.Fetcher())
	if err != nil {
		log.Errorf("record failed: %s", err)
	}
	fmt.Fprintf(g.out, "recorded %d, failed %d, in %s\n", recorded, failed, time.Since(start))
}

// cmdExport implements the "export" subcommand.
func (g *glCli) cmdExport(c *cli.Context) {
	db := openDB(c)
	if db == nil {
		return
	}
	defer db.Close()

	var w io.Writer = g.out
	if name := c.String("file"); name != "" {
		f, err := os.Create(name)
		if err != nil {
			log.Errorf("%s", err)
			return
		}
		defer f.Close()
		w = f
	}
	if _, err := db.WriteTo(w); err != nil {
		log.Errorf("%s", err)
	}
}

// cmdImport implements the "import" subcommand.
func (g *glCli) cmdImport(c *cli.Context) {
	db := openDB(c)
	if db == nil {
		return
	}
	defer db.Close()

	var r io.Reader = os.Stdin
	if name := c.String("file"); name != "" {
		f, err := os.Open(name)
		if err != nil {
			log.Errorf("%s", err)
			return
		}
		defer f.Close()
		r = f
	}
	if _, err := db.ReadFrom(r); err != nil {
		log.Errorf("%s", err)
		return
	}
	fmt.Fprintf(g.out, "%d records\n", db.Len())
}

// checkMountState cleans up mountState and prints a message if the fuse
// goroutine has exited. It returns true if a fuse goroutine is still running.
func (g *glCli) checkMountState() bool {
	if g.mountState != nil && g.mountState.Exited() {
		log.Infof("Mount exited: %s", g.mountState)
		g.mountState = nil
	}
	return g.mountState != nil
}

func (g *glCli) cmdMount(c *cli.Context) {
	if g.checkMountState() {
		log.Infof("Already mounted %s", g.mountState)
		return
	}

	path, layoutFile := c.String("path"), c.String("layout")
	if path == "" || layoutFile == "" {
		log.Errorf("missing path or layout")
		return
	}
	f, err := os.Open(layoutFile)
	if err != nil {
		log.Errorf("%s", err)
		return
	}
	layout, err := fuse.LoadLayout(f)
	f.Close()
	if err != nil {
		log.Errorf("%s", err)
		return
	}

	log.Infof("Mounting on %q...", path)
	g.mountState = fuse.Mount(layout, path)

	if !g.inShell {
		for g.checkMountState() {
			time.Sleep(time.Second)
		}
	}
}

func (g *glCli) cmdUmount(c *cli.Context) {
	if !g.checkMountState() {
		log.Infof("Nothing is mounted.")
		return
	}
	if err := g.mountState.Unmount(); err != nil {
		log.Errorf("Unmount error: %s", err)
		return
	}
	// Wait for the fuse goroutine to exit.
	for g.checkMountState() {
		time.Sleep(100 * time.Millisecond)
	}
}

// cmdShell implements "shell" subcommand.
func (g *glCli) cmdShell(c *cli.Context) {
	g.inShell = true
	defer func() { g.inShell = false }()

	// Make cli not exit on errors.
	cli.OsExiter = func(int) {}

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) (out []string) {
		for _, cmd := range g.app.Commands {
			if strings.HasPrefix(cmd.Name, prefix) {
				out = append(out, cmd.Name)
			}
		}
		return
	})
	defer line.Close()

	for {
		input, err := line.Prompt("(gluster) ")
		if err != nil {
			if err != io.EOF {
				log.Errorf("error: %v", err)
			}
			return
		}

		// Split with shell-style quoting, so that paths with spaces can be
		// given.
		args, err := shlex.Split(input)
		if err != nil {
			log.Errorf("error: %v", err)
			continue
		}
		if 0 == len(args) {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			return
		}

		if g.runCommand(c, args...) == nil {
			line.AppendHistory(input)
		}
	}
}

// runCommand runs a command after the cli gets started already, carrying the
// global flags along.
func (g *glCli) runCommand(c *cli.Context, args ...string) error {
	glArgs := []string{"glustercli"}
	for _, v := range c.GlobalStringSlice("volume") {
		glArgs = append(glArgs, "--volume", v)
	}
	if s := c.GlobalString("getfattr"); s != "" {
		glArgs = append(glArgs, "--getfattr", s)
	}
	if s := c.GlobalString("snapshot"); s != "" {
		glArgs = append(glArgs, "--snapshot", s)
	}
	if r := c.GlobalFloat64("rate"); r > 0 {
		glArgs = append(glArgs, "--rate", strconv.FormatFloat(r, 'g', -1, 64))
	}
	return g.run(append(glArgs, args...))
}

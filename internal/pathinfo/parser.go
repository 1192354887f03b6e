// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT
//
// Package pathinfo parses the trusted.glusterfs.pathinfo extended attribute.
//
// The attribute describes the translator graph that a file resolves to, from
// the outermost translator down to the bricks, e.g. for a file on a volume
// that distributes over replica pairs:
//
//	trusted.glusterfs.pathinfo="(<DISTRIBUTE:vol-dht>
//	    (<REPLICATE:vol-replicate-0>
//	        <POSIX(/b1):host-1:/b1/file> <POSIX(/b2):host-2:/b2/file>))"
//
// Parsing peels the layers in a fixed order: envelope, distribute, an
// optional enclosing group, stripe, replicate and finally the bricks.
// Each layer is a function from text to (layer, remainder).
package pathinfo

import (
	"strconv"
	"strings"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/glusterloc/internal/core"
)

// Translator tags, as they appear in the attribute.
const (
	distributeTag = "<DISTRIBUTE:"
	stripeTag     = "<STRIPE:"
	replicateTag  = "<REPLICATE:"
	brickTag      = "<POSIX("
)

// Parse turns attribute text into a Topology. Any structural mismatch fails
// the whole parse with a *ParseError.
func Parse(raw string) (*core.Topology, error) {
	body, err := parseEnvelope(raw)
	if err != nil {
		return nil, err
	}
	if body, err = parseDistribute(body); err != nil {
		return nil, err
	}
	if body, err = parseGroup(body); err != nil {
		return nil, err
	}
	size, units, err := parseStripe(body)
	if err != nil {
		return nil, err
	}

	topo := &core.Topology{Raw: raw, StripeSize: size, Units: make([]core.StripeUnit, 0, len(units))}
	for _, unit := range units {
		bricks, err := parseReplicate(unit)
		if err != nil {
			return nil, err
		}
		hosts, err := parseBricks(bricks)
		if err != nil {
			return nil, err
		}
		topo.Units = append(topo.Units, core.StripeUnit{Hosts: hosts})
	}
	return topo, nil
}

// parseEnvelope strips key="..." and returns the value. Comment lines such as
// the "# file: <name>" header printed by getfattr are skipped.
func parseEnvelope(raw string) (string, error) {
	text := trimSpace(raw)
	for strings.HasPrefix(text, "#") {
		nl := strings.IndexByte(text, '\n')
		if nl < 0 {
			return "", newParseError(ErrNoEnvelope, raw, "no attribute after comment")
		}
		text = trimSpace(text[nl+1:])
	}

	prefix := core.PathInfoKey + `="`
	if !strings.HasPrefix(text, prefix) || len(text) <= len(prefix) || text[len(text)-1] != '"' {
		return "", newParseError(ErrNoEnvelope, raw, "expected %s=\"...\"", core.PathInfoKey)
	}
	body := trimSpace(text[len(prefix) : len(text)-1])
	if body == "" {
		return "", newParseError(ErrNoEnvelope, raw, "empty value")
	}
	return body, nil
}

// parseDistribute unwraps "(<DISTRIBUTE:name> body)". A file always lives on
// exactly one distribute subvolume, so the tag itself carries nothing we need.
func parseDistribute(s string) (string, error) {
	if !strings.HasPrefix(s, "("+distributeTag) {
		return s, nil
	}
	inner, rest, err := unwrap(s)
	if err != nil {
		return "", err
	}
	ignoreTrailing(rest)
	_, body, err := splitTag(inner, distributeTag)
	if err != nil {
		return "", err
	}
	return trimSpace(body), nil
}

// parseGroup unwraps a parenthesized subvolume, if there is one.
func parseGroup(s string) (string, error) {
	if !strings.HasPrefix(s, "(") {
		return s, nil
	}
	inner, rest, err := unwrap(s)
	if err != nil {
		return "", err
	}
	ignoreTrailing(rest)
	return trimSpace(inner), nil
}

// parseStripe splits "<STRIPE:name:[N]> unit unit ..." into the stripe size
// and the text of each unit. Text without a stripe tag is a single unit of an
// unstriped file.
func parseStripe(s string) (int64, []string, error) {
	if !strings.HasPrefix(s, stripeTag) {
		return core.NoStriping, []string{s}, nil
	}
	args, rest, err := splitTag(s, stripeTag)
	if err != nil {
		return 0, nil, err
	}
	size, err := parseStripeSize(args)
	if err != nil {
		return 0, nil, err
	}

	rest = trimSpace(rest)
	if rest == "" {
		return 0, nil, newParseError(ErrMalformedStripeHeader, s, "no stripe units")
	}

	var units []string
	for rest != "" {
		var unit string
		switch rest[0] {
		case '(':
			if unit, rest, err = unwrap(rest); err != nil {
				return 0, nil, err
			}
		case '<':
			end, err := MatchingClose(rest)
			if err != nil {
				return 0, nil, err
			}
			unit, rest = rest[:end], rest[end:]
		default:
			// Brick paths are assumed to contain no whitespace.
			unit, rest = nextToken(rest)
		}
		units = append(units, trimSpace(unit))
		rest = trimSpace(rest)
	}
	return size, units, nil
}

// parseStripeSize reads "name:[N]" from the arguments of a STRIPE tag.
func parseStripeSize(args string) (int64, error) {
	i := strings.LastIndexByte(args, ':')
	if i <= 0 {
		return 0, newParseError(ErrMalformedStripeHeader, args, "expected name:[size]")
	}
	num := args[i+1:]
	if len(num) < 3 || num[0] != '[' || num[len(num)-1] != ']' {
		return 0, newParseError(ErrMalformedStripeHeader, args, "expected [size]")
	}
	size, err := strconv.ParseInt(num[1:len(num)-1], 10, 64)
	if err != nil || size <= 0 {
		return 0, newParseError(ErrMalformedStripeHeader, args, "bad stripe size %q", num)
	}
	log.V(1).Infof("Stripe size: %d", size)
	return size, nil
}

// parseReplicate unwraps "<REPLICATE:name> bricks". Replication isn't
// represented beyond the list of hosts, so only the bricks are kept.
func parseReplicate(unit string) (string, error) {
	if !strings.HasPrefix(unit, replicateTag) {
		return unit, nil
	}
	_, rest, err := splitTag(unit, replicateTag)
	if err != nil {
		return "", err
	}
	return trimSpace(rest), nil
}

// parseBricks returns the host of every <POSIX(export):host:path> record in
// s, in order.
func parseBricks(s string) ([]string, error) {
	orig := s
	var hosts []string
	for {
		i := strings.Index(s, brickTag)
		if i < 0 {
			break
		}
		s = s[i:]
		end, err := MatchingClose(s)
		if err != nil {
			return nil, err
		}
		host, err := brickHost(s[1 : end-1])
		if err != nil {
			return nil, err
		}
		if host != "" {
			hosts = append(hosts, host)
		}
		s = s[end:]
	}
	if len(hosts) == 0 {
		return nil, newParseError(ErrNoBricks, orig, "")
	}
	return hosts, nil
}

// brickHost extracts host from "POSIX(export):host:path". It returns an empty
// host if the record doesn't have that shape.
func brickHost(rec string) (string, error) {
	rec = strings.TrimPrefix(rec, "POSIX")
	end, err := MatchingClose(rec)
	if err != nil {
		return "", err
	}
	rec = rec[end:]
	if !strings.HasPrefix(rec, ":") {
		return "", nil
	}
	rec = rec[1:]
	j := strings.IndexByte(rec, ':')
	if j <= 0 {
		return "", nil
	}
	return rec[:j], nil
}

// splitTag splits "<TAG:args> rest", where s starts with tag, into args and
// rest.
func splitTag(s, tag string) (args, rest string, err error) {
	end, err := MatchingClose(s)
	if err != nil {
		return "", "", err
	}
	return s[len(tag) : end-1], s[end:], nil
}

func ignoreTrailing(rest string) {
	if rest = trimSpace(rest); rest != "" {
		log.Warningf("Ignore garbage at the end of pathinfo: %q", rest)
	}
}

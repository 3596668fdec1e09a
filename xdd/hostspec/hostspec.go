// Package hostspec parses the `[[user@]host[,host]:]path` grammar from
// spec §6: zero or one colon separates an optional host list from the
// path, commas separate host-list entries, and each entry may carry an
// optional `user@` prefix. An empty host list means localhost.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package hostspec

import (
	"strings"

	"github.com/bws-xdd/xddmcp/xdd/xerrors"
)

// Entry is one parsed `[user@]host` pair.
type Entry struct {
	User string
	Host string
}

// Spec is a fully-parsed host-spec argument.
type Spec struct {
	Hosts []Entry // empty means localhost
	Path  string
}

// Parse splits raw per spec §6. The colon separating the host list from
// the path is the *last* colon so that IPv6-free plain paths containing
// no colon at all are unambiguous; a spec with more than one colon is a
// SpecError.
func Parse(raw string) (Spec, error) {
	idx := strings.Index(raw, ":")
	if idx < 0 {
		return Spec{Path: raw}, nil
	}
	if strings.Index(raw[idx+1:], ":") >= 0 {
		return Spec{}, &xerrors.SpecError{Spec: raw}
	}

	hostList, path := raw[:idx], raw[idx+1:]
	if path == "" {
		return Spec{}, &xerrors.SpecError{Spec: raw}
	}

	var hosts []Entry
	for _, tok := range strings.Split(hostList, ",") {
		if tok == "" {
			return Spec{}, &xerrors.SpecError{Spec: raw}
		}
		entry := Entry{Host: tok}
		if at := strings.Index(tok, "@"); at >= 0 {
			entry.User, entry.Host = tok[:at], tok[at+1:]
		}
		if entry.Host == "" {
			return Spec{}, &xerrors.SpecError{Spec: raw}
		}
		hosts = append(hosts, entry)
	}
	return Spec{Hosts: hosts, Path: path}, nil
}

// Package transport implements the SSH-based remote-agent launch and
// tunneling described in spec §4.5: it opens an authenticated remote
// shell, launches the RemoteAgent, reads its published endpoint URI,
// and forwards a local TCP listener through the SSH session's
// direct-tcpip channels so that net/rpc calls reach the remote
// FlowBuilder transparently. Adapted from the teacher's pattern of
// wrapping a third-party client library (e.g. the S3/GCP backend
// clients in ais/backend) behind a small local type; golang.org/x/crypto/ssh
// and golang.org/x/term fill the role those cloud SDKs play there.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/rpc"
	"os"
	"os/user"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"

	"github.com/bws-xdd/xddmcp/xdd/nlog"
	"github.com/bws-xdd/xddmcp/xdd/rpcapi"
	"github.com/bws-xdd/xddmcp/xdd/xerrors"
)

// URIDelimiter is the literal line the RemoteAgent writes before and
// after its endpoint URI (spec §4.6).
const URIDelimiter = "--xddmcp-endpoint--"

// RemoteCommand is the fixed remote command Transport executes to
// launch the RemoteAgent (spec §4.5 step 3).
var RemoteCommand = "xddmcp-server"

// Transport owns one SSH session, its forwarding listener, and the
// RPC client dialed through it.
type Transport struct {
	host    string
	sshCli  *ssh.Client
	session *ssh.Session
	ln      net.Listener
	rpcCli  *rpc.Client

	closeOnce sync.Once
}

// Dial performs the full spec §4.5 sequence against host, authenticating
// as user (falling back to an interactive password prompt, at most two
// attempts).
func Dial(host, sshUser string) (*Transport, error) {
	if sshUser == "" {
		if u, err := user.Current(); err == nil {
			sshUser = u.Username
		}
	}

	cfg, err := authConfig(sshUser, host)
	if err != nil {
		return nil, err
	}

	sshCli, err := ssh.Dial("tcp", net.JoinHostPort(host, "22"), cfg)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return nil, &xerrors.ResolveError{Host: host, Err: err}
		}
		return nil, &xerrors.TransportError{Host: host, Reason: err.Error()}
	}

	go keepalive(sshCli)

	session, err := sshCli.NewSession()
	if err != nil {
		sshCli.Close()
		return nil, &xerrors.TransportError{Host: host, Reason: err.Error()}
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		sshCli.Close()
		return nil, &xerrors.TransportError{Host: host, Reason: err.Error()}
	}
	var stderrBuf strings.Builder
	session.Stderr = &stderrBuf

	if err := session.Start(RemoteCommand); err != nil {
		session.Close()
		sshCli.Close()
		return nil, &xerrors.TransportError{Host: host, Reason: err.Error()}
	}

	uri, err := readEndpointURI(stdout)
	if err != nil {
		session.Close()
		sshCli.Close()
		return nil, &xerrors.TransportError{Host: host, Reason: err.Error(), Stderr: stderrBuf.String()}
	}

	remotePort, err := parseURIPort(uri)
	if err != nil {
		session.Close()
		sshCli.Close()
		return nil, &xerrors.TransportError{Host: host, Reason: err.Error(), Stderr: stderrBuf.String()}
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		session.Close()
		sshCli.Close()
		return nil, &xerrors.TransportError{Host: host, Reason: err.Error()}
	}

	t := &Transport{host: host, sshCli: sshCli, session: session, ln: ln}
	go t.forwardLoop(remotePort)

	localAddr := ln.Addr().(*net.TCPAddr)
	rpcCli, err := rpc.Dial("tcp", localAddr.String())
	if err != nil {
		t.Shutdown()
		return nil, &xerrors.TransportError{Host: host, Reason: err.Error()}
	}
	t.rpcCli = rpcCli
	return t, nil
}

// Client returns the RPC-proxying Endpoint implementation bound to this
// transport's tunnel.
func (t *Transport) Client() *Client {
	return &Client{rpc: t.rpcCli}
}

// Shutdown runs all three teardown steps from spec §4.5 even if an
// earlier one fails: remote "shutdown" RPC, stop local listener, close
// SSH session.
func (t *Transport) Shutdown() error {
	var errs xerrors.Errs
	t.closeOnce.Do(func() {
		if t.rpcCli != nil {
			var reply struct{}
			_ = t.rpcCli.Call(rpcapi.ServiceName+".Shutdown", &struct{}{}, &reply)
			if err := t.rpcCli.Close(); err != nil {
				errs.Add(err)
			}
		}
		if t.ln != nil {
			if err := t.ln.Close(); err != nil {
				errs.Add(err)
			}
		}
		if t.session != nil {
			_ = t.session.Close()
		}
		if err := t.sshCli.Close(); err != nil {
			errs.Add(err)
		}
	})
	if errs.Cnt() == 0 {
		return nil
	}
	return &errs
}

func (t *Transport) forwardLoop(remotePort int) {
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			return
		}
		go t.forwardConn(conn, remotePort)
	}
}

func (t *Transport) forwardConn(local net.Conn, remotePort int) {
	defer local.Close()
	remote, err := t.sshCli.Dial("tcp", net.JoinHostPort("localhost", strconv.Itoa(remotePort)))
	if err != nil {
		nlog.Warningf("direct-tcpip dial to %s:%d failed: %v", t.host, remotePort, err)
		return
	}
	defer remote.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); io.Copy(remote, local) }()
	go func() { defer wg.Done(); io.Copy(local, remote) }()
	wg.Wait()
}

func readEndpointURI(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if sc.Text() == URIDelimiter {
			if !sc.Scan() {
				break
			}
			uri := sc.Text()
			// Drain the trailing delimiter line; the agent's own
			// liveness does not depend on this succeeding.
			sc.Scan()
			return uri, nil
		}
	}
	return "", fmt.Errorf("remote agent exited before publishing an endpoint")
}

// parseURIPort extracts the port from "xddrpc:RemoteFlowBuilder@127.0.0.1:<port>".
func parseURIPort(uri string) (int, error) {
	idx := strings.LastIndex(uri, ":")
	if idx < 0 {
		return 0, fmt.Errorf("malformed endpoint uri %q", uri)
	}
	return strconv.Atoi(uri[idx+1:])
}

func keepalive(cli *ssh.Client) {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for range t.C {
		if _, _, err := cli.SendRequest("keepalive@xddmcp", true, nil); err != nil {
			return
		}
	}
}

func authConfig(sshUser, host string) (*ssh.ClientConfig, error) {
	hostKeyCallback, err := hostKeyCallback()
	if err != nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	cfg := &ssh.ClientConfig{
		User:            sshUser,
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
		Auth: []ssh.AuthMethod{
			ssh.RetryableAuthMethod(ssh.PasswordCallback(func() (string, error) {
				return promptPassword(sshUser, host)
			}), 2),
		},
	}

	if agentAuth, ok := sshAgentAuth(); ok {
		cfg.Auth = append([]ssh.AuthMethod{agentAuth}, cfg.Auth...)
	}
	return cfg, nil
}

func promptPassword(sshUser, host string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s@%s's password: ", sshUser, host)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// sshAgentAuth tries host-based keys via a running ssh-agent before
// falling back to the password prompt (spec §4.5 "trying host-based
// keys first").
func sshAgentAuth() (ssh.AuthMethod, bool) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, false
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, false
	}
	ag := agent.NewClient(conn)
	return ssh.PublicKeysCallback(ag.Signers), true
}

func hostKeyCallback() (ssh.HostKeyCallback, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return knownhosts.New(home + "/.ssh/known_hosts")
}

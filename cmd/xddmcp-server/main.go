// Command xddmcp-server is the RemoteAgent (spec §4.6): a minimal
// executable launched by Transport over SSH. It starts an RPC daemon
// bound to localhost on an OS-selected port, registers a
// RemoteFlowBuilder, publishes its endpoint URI on stdout between two
// delimiter lines, then serves requests until told to shut down or
// until its parent process disappears. Adapted from the teacher's
// cmd/xmeta idiom of a small single-purpose binary built directly on
// stdlib net/rpc plumbing.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"fmt"
	"net"
	"net/rpc"
	"os"
	"time"

	"github.com/bws-xdd/xddmcp/xdd/flowbuilder"
	"github.com/bws-xdd/xddmcp/xdd/nlog"
	"github.com/bws-xdd/xddmcp/xdd/rpcapi"
	"github.com/bws-xdd/xddmcp/xdd/transport"
)

func main() {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		fmt.Fprintf(os.Stderr, "xddmcp-server: listen: %v\n", err)
		os.Exit(1)
	}

	svc := rpcapi.NewService(flowbuilder.New())
	svc.OnShutdown(func() {
		time.Sleep(200 * time.Millisecond)
		os.Exit(0)
	})
	server := rpc.NewServer()
	if err := server.RegisterName(rpcapi.ServiceName, svc); err != nil {
		fmt.Fprintf(os.Stderr, "xddmcp-server: register: %v\n", err)
		os.Exit(1)
	}

	port := ln.Addr().(*net.TCPAddr).Port
	uri := fmt.Sprintf("xddrpc:%s@127.0.0.1:%d", rpcapi.ServiceName, port)
	fmt.Println(transport.URIDelimiter)
	fmt.Println(uri)
	fmt.Println(transport.URIDelimiter)
	os.Stdout.Sync()

	go watchParent(ln)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go server.ServeConn(conn)
	}
}

// watchParent polls the parent process identifier; when it becomes 1
// the controlling SSH session is gone and the agent shuts itself down
// (spec §4.6's "sole liveness coupling to the controlling shell
// session").
func watchParent(ln net.Listener) {
	for {
		time.Sleep(2 * time.Second)
		if os.Getppid() == 1 {
			nlog.Warningf("parent process gone, shutting down")
			ln.Close()
			return
		}
	}
}

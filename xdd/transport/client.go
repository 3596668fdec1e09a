package transport

import (
	"net/rpc"

	"github.com/bws-xdd/xddmcp/xdd/flow"
	"github.com/bws-xdd/xddmcp/xdd/naming"
	"github.com/bws-xdd/xddmcp/xdd/nlog"
	"github.com/bws-xdd/xddmcp/xdd/rpcapi"
)

// Client is the RPC-proxied FlowBuilder: every method is one
// request/response round trip through the tunnel, matching the local
// FlowBuilder's method set exactly (spec §9 "identical semantics
// whether in-process or across a tunnel"). A lost tunnel logs the
// failure and degrades a call to its zero value rather than panicking;
// CompletionStatus then reports (0, false), so the monitor loop keeps
// polling that flow as still running. The monitor loop has no stall
// timeout.
type Client struct {
	rpc *rpc.Client
}

func (c *Client) call(method string, args, reply any) {
	if err := c.rpc.Call(rpcapi.ServiceName+"."+method, args, reply); err != nil {
		nlog.Errorf("rpc call %s failed: %v", method, err)
	}
}

func (c *Client) PathExists(path string) bool {
	var reply rpcapi.BoolReply
	c.call("PathExists", &rpcapi.PathArgs{Path: path}, &reply)
	return reply.Value
}

func (c *Client) PathIsDir(path string) bool {
	var reply rpcapi.BoolReply
	c.call("PathIsDir", &rpcapi.PathArgs{Path: path}, &reply)
	return reply.Value
}

func (c *Client) GetFileSize(path string) (int64, error) {
	var reply rpcapi.Int64Reply
	c.call("GetFileSize", &rpcapi.PathArgs{Path: path}, &reply)
	return reply.Value, asError(reply.Err)
}

func (c *Client) BuildWalk(source, target string, targetExists, targetIsDir bool) (naming.WalkResult, error) {
	var reply rpcapi.BuildWalkReply
	c.call("BuildWalk", &rpcapi.BuildWalkArgs{Source: source, Target: target, TargetExists: targetExists, TargetIsDir: targetIsDir}, &reply)
	return reply.Result, asError(reply.Err)
}

func (c *Client) CreateDirectory(path string) error {
	var reply rpcapi.ErrReply
	c.call("CreateDirectory", &rpcapi.PathArgs{Path: path}, &reply)
	return asError(reply.Err)
}

func (c *Client) CreateSymlink(path, target string) error {
	var reply rpcapi.ErrReply
	c.call("CreateSymlink", &rpcapi.SymlinkArgs{Path: path, Target: target}, &reply)
	return asError(reply.Err)
}

func (c *Client) CreateEmptyFile(path string) error {
	var reply rpcapi.ErrReply
	c.call("CreateEmptyFile", &rpcapi.PathArgs{Path: path}, &reply)
	return asError(reply.Err)
}

func (c *Client) RemoveRestartCookie(filename string) error {
	var reply rpcapi.ErrReply
	c.call("RemoveRestartCookie", &rpcapi.PathArgs{Path: filename}, &reply)
	return asError(reply.Err)
}

func (c *Client) GetRestartOffset(filename string) (int64, error) {
	var reply rpcapi.Int64Reply
	c.call("GetRestartOffset", &rpcapi.PathArgs{Path: filename}, &reply)
	return reply.Value, asError(reply.Err)
}

func (c *Client) MarkTransferCompleted(destRoot, destRelPath string) error {
	var reply rpcapi.ErrReply
	c.call("MarkTransferCompleted", &rpcapi.DestPathArgs{DestRoot: destRoot, DestRelPath: destRelPath}, &reply)
	return asError(reply.Err)
}

func (c *Client) TransferIsComplete(destRoot, destRelPath string) bool {
	var reply rpcapi.BoolReply
	c.call("TransferIsComplete", &rpcapi.DestPathArgs{DestRoot: destRoot, DestRelPath: destRelPath}, &reply)
	return reply.Value
}

func (c *Client) RemoveTransferProgressFile(destRoot string) error {
	var reply rpcapi.ErrReply
	c.call("RemoveTransferProgressFile", &rpcapi.PathArgs{Path: destRoot}, &reply)
	return asError(reply.Err)
}

func (c *Client) Hostname() (string, error) {
	var reply rpcapi.StringReply
	c.call("Hostname", &struct{}{}, &reply)
	return reply.Value, asError(reply.Err)
}

func (c *Client) ProtocolVersion() string {
	var reply rpcapi.StringReply
	c.call("ProtocolVersion", &struct{}{}, &reply)
	return reply.Value
}

func (c *Client) HasPreallocateAvailable() bool {
	var reply rpcapi.BoolReply
	c.call("HasPreallocateAvailable", &struct{}{}, &reply)
	return reply.Value
}

func (c *Client) BuildFlow(isSink bool, reqSize int64, flowIdx, numFlows int, ifaces []flow.Iface, directIO, serial bool) {
	var reply struct{}
	c.call("BuildFlow", &rpcapi.BuildFlowArgs{
		IsSink: isSink, ReqSize: reqSize, FlowIdx: flowIdx, NumFlows: numFlows,
		Ifaces: ifaces, DirectIO: directIO, Serial: serial,
	}, &reply)
}

func (c *Client) StartFlow(target string, flowSize int64, restart bool, restartOffset int64) {
	var reply struct{}
	c.call("StartFlow", &rpcapi.StartFlowArgs{Target: target, FlowSize: flowSize, Restart: restart, RestartOffset: restartOffset}, &reply)
}

func (c *Client) PollFlow() bool {
	var reply rpcapi.BoolReply
	c.call("PollFlow", &struct{}{}, &reply)
	return reply.Value
}

func (c *Client) CompletionStatus() (int, bool) {
	var reply rpcapi.CompletionReply
	c.call("CompletionStatus", &struct{}{}, &reply)
	return reply.Code, reply.Done
}

func (c *Client) CurrentByte() int64 {
	var reply rpcapi.Int64Reply
	c.call("CurrentByte", &struct{}{}, &reply)
	return reply.Value
}

func (c *Client) Output(flushAll bool) string {
	var reply rpcapi.StringReply
	c.call("Output", &rpcapi.OutputArgs{FlushAll: flushAll}, &reply)
	return reply.Value
}

func (c *Client) CancelFlow() error {
	var reply rpcapi.ErrReply
	c.call("CancelFlow", &struct{}{}, &reply)
	return asError(reply.Err)
}

func (c *Client) ErrorString() string {
	var reply rpcapi.StringReply
	c.call("ErrorString", &struct{}{}, &reply)
	return reply.Value
}

func asError(s string) error {
	if s == "" {
		return nil
	}
	return errString(s)
}

type errString string

func (e errString) Error() string { return string(e) }

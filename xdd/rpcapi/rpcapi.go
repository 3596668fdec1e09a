// Package rpcapi defines the gob-encodable request/reply pairs and the
// RemoteFlowBuilder service that `net/rpc` drives across the SSH tunnel
// (spec §4.4 "Remote proxy vs local object"; §4.6 RemoteAgent). The
// teacher's FlowBuilder methods take and return plain values; net/rpc
// requires every method to be `func(args, *reply) error`, so this
// package is the thin marshaling layer between the two, grounded on the
// same RPC registration idiom the teacher uses for its own xaction
// notification callbacks (reb/rebargs.go's self-contained args structs).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package rpcapi

import (
	"github.com/bws-xdd/xddmcp/xdd/flow"
	"github.com/bws-xdd/xddmcp/xdd/flowbuilder"
	"github.com/bws-xdd/xddmcp/xdd/naming"
)

// ServiceName is the net/rpc service name the RemoteAgent registers
// under and the Client dials by.
const ServiceName = "RemoteFlowBuilder"

type (
	PathArgs struct{ Path string }
	BoolReply struct{ Value bool }
	Int64Reply struct {
		Value int64
		Err   string
	}
	ErrReply struct{ Err string }
	StringReply struct {
		Value string
		Err   string
	}

	BuildWalkArgs struct {
		Source, Target             string
		TargetExists, TargetIsDir bool
	}
	BuildWalkReply struct {
		Result naming.WalkResult
		Err    string
	}

	DestPathArgs struct{ DestRoot, DestRelPath string }

	BuildFlowArgs struct {
		IsSink            bool
		ReqSize           int64
		FlowIdx, NumFlows int
		Ifaces            []flow.Iface
		DirectIO, Serial  bool
	}

	StartFlowArgs struct {
		Target                string
		FlowSize               int64
		Restart                bool
		RestartOffset          int64
	}

	CompletionReply struct {
		Code int
		Done bool
	}

	OutputArgs struct{ FlushAll bool }
)

// Service wraps a local FlowBuilder so that `net/rpc` can register it;
// the RemoteAgent owns exactly one Service instance for its lifetime.
type Service struct {
	fb         *flowbuilder.FlowBuilder
	onShutdown func()
}

func NewService(fb *flowbuilder.FlowBuilder) *Service { return &Service{fb: fb} }

// OnShutdown registers the callback run once the Shutdown RPC is
// received, after the reply has been sent (spec §4.6: the Transport's
// shutdown call is "expected to break the RPC call" on the client
// side, which only requires the reply to go out — the callback is how
// the RemoteAgent binary itself chooses to exit).
func (s *Service) OnShutdown(fn func()) { s.onShutdown = fn }

func (s *Service) PathExists(args *PathArgs, reply *BoolReply) error {
	reply.Value = s.fb.PathExists(args.Path)
	return nil
}

func (s *Service) PathIsDir(args *PathArgs, reply *BoolReply) error {
	reply.Value = s.fb.PathIsDir(args.Path)
	return nil
}

func (s *Service) GetFileSize(args *PathArgs, reply *Int64Reply) error {
	size, err := s.fb.GetFileSize(args.Path)
	reply.Value = size
	reply.Err = errString(err)
	return nil
}

func (s *Service) BuildWalk(args *BuildWalkArgs, reply *BuildWalkReply) error {
	res, err := s.fb.BuildWalk(args.Source, args.Target, args.TargetExists, args.TargetIsDir)
	reply.Result = res
	reply.Err = errString(err)
	return nil
}

func (s *Service) CreateDirectory(args *PathArgs, reply *ErrReply) error {
	reply.Err = errString(s.fb.CreateDirectory(args.Path))
	return nil
}

type SymlinkArgs struct{ Path, Target string }

func (s *Service) CreateSymlink(args *SymlinkArgs, reply *ErrReply) error {
	reply.Err = errString(s.fb.CreateSymlink(args.Path, args.Target))
	return nil
}

func (s *Service) CreateEmptyFile(args *PathArgs, reply *ErrReply) error {
	reply.Err = errString(s.fb.CreateEmptyFile(args.Path))
	return nil
}

func (s *Service) RemoveRestartCookie(args *PathArgs, reply *ErrReply) error {
	reply.Err = errString(s.fb.RemoveRestartCookie(args.Path))
	return nil
}

func (s *Service) GetRestartOffset(args *PathArgs, reply *Int64Reply) error {
	offset, err := s.fb.GetRestartOffset(args.Path)
	reply.Value = offset
	reply.Err = errString(err)
	return nil
}

func (s *Service) MarkTransferCompleted(args *DestPathArgs, reply *ErrReply) error {
	reply.Err = errString(s.fb.MarkTransferCompleted(args.DestRoot, args.DestRelPath))
	return nil
}

func (s *Service) TransferIsComplete(args *DestPathArgs, reply *BoolReply) error {
	reply.Value = s.fb.TransferIsComplete(args.DestRoot, args.DestRelPath)
	return nil
}

func (s *Service) RemoveTransferProgressFile(args *PathArgs, reply *ErrReply) error {
	reply.Err = errString(s.fb.RemoveTransferProgressFile(args.Path))
	return nil
}

func (s *Service) Hostname(_ *struct{}, reply *StringReply) error {
	host, err := s.fb.Hostname()
	reply.Value = host
	reply.Err = errString(err)
	return nil
}

func (s *Service) ProtocolVersion(_ *struct{}, reply *StringReply) error {
	reply.Value = s.fb.ProtocolVersion()
	return nil
}

func (s *Service) HasPreallocateAvailable(_ *struct{}, reply *BoolReply) error {
	reply.Value = s.fb.HasPreallocateAvailable()
	return nil
}

func (s *Service) BuildFlow(args *BuildFlowArgs, reply *struct{}) error {
	s.fb.BuildFlow(args.IsSink, args.ReqSize, args.FlowIdx, args.NumFlows, args.Ifaces, args.DirectIO, args.Serial)
	return nil
}

func (s *Service) StartFlow(args *StartFlowArgs, reply *struct{}) error {
	s.fb.StartFlow(args.Target, args.FlowSize, args.Restart, args.RestartOffset)
	return nil
}

func (s *Service) PollFlow(_ *struct{}, reply *BoolReply) error {
	reply.Value = s.fb.PollFlow()
	return nil
}

func (s *Service) CompletionStatus(_ *struct{}, reply *CompletionReply) error {
	code, done := s.fb.CompletionStatus()
	reply.Code, reply.Done = code, done
	return nil
}

func (s *Service) CurrentByte(_ *struct{}, reply *Int64Reply) error {
	reply.Value = s.fb.CurrentByte()
	return nil
}

func (s *Service) Output(args *OutputArgs, reply *StringReply) error {
	reply.Value = s.fb.Output(args.FlushAll)
	return nil
}

func (s *Service) CancelFlow(_ *struct{}, reply *ErrReply) error {
	reply.Err = errString(s.fb.CancelFlow())
	return nil
}

func (s *Service) ErrorString(_ *struct{}, reply *StringReply) error {
	reply.Value = s.fb.ErrorString()
	return nil
}

// Shutdown is the RPC method Transport calls to break the RemoteAgent's
// serve loop on teardown (spec §4.5 step "invoke the remote 'shutdown'
// method"). It replies successfully, then asynchronously runs the
// registered shutdown callback so the reply reaches the client first.
func (s *Service) Shutdown(_ *struct{}, reply *struct{}) error {
	if s.onShutdown != nil {
		go s.onShutdown()
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

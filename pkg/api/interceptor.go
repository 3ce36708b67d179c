package api

import (
	"fmt"

	"github.com/cuemby/taskmaster/pkg/rpc"
)

// readOnlyReceiver wraps adminReceiver and rejects every write method,
// for a Unix-socket listener that should not accept mutating admin
// calls from just-anyone with local filesystem access.
type readOnlyReceiver struct {
	*adminReceiver
}

func (r *readOnlyReceiver) QueueTask(args *rpc.QueueTaskArgs, reply *rpc.QueueTaskReply) error {
	return permissionDenied("QueueTask")
}

func (r *readOnlyReceiver) CancelTask(args *rpc.CancelTaskArgs, reply *rpc.CancelTaskReply) error {
	return permissionDenied("CancelTask")
}

func (r *readOnlyReceiver) PromoteNode(args *rpc.PromoteNodeArgs, reply *rpc.PromoteNodeReply) error {
	return permissionDenied("PromoteNode")
}

func (r *readOnlyReceiver) ForgetNode(args *rpc.ForgetNodeArgs, reply *rpc.ForgetNodeReply) error {
	return permissionDenied("ForgetNode")
}

func permissionDenied(method string) error {
	return fmt.Errorf("%s: write operations not allowed on this listener", method)
}

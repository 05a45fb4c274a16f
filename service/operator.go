package service

import (
	"context"

	"wsalloc/domain/workspace"
	"wsalloc/infra/engine"
)

// Operator is a compute step that borrows a workspace. Requirements
// reports how much scratch memory it needs per space; Run may use the
// buffers directly or launch asynchronous work on the stream.
//
// Operators sharing one workspace run against merged requirements, so
// each sees buffers at least as large and as aligned as it asked for.
type Operator interface {
	Requirements() workspace.Requirements
	Run(ctx context.Context, ws workspace.Workspace, stream *engine.Stream) error
}

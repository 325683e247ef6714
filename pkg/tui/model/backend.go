package model

import (
	"context"

	"github.com/modoterra/uxhost/pkg/core"
	"github.com/modoterra/uxhost/pkg/logstore"
	"github.com/modoterra/uxhost/pkg/transport/uds"
)

// Backend is the viewing-surface boundary: a snapshot read and a clear write.
type Backend interface {
	Snapshot(ctx context.Context) ([]core.Event, error)
	Clear(ctx context.Context) error
}

// LocalBackend reads the store owned by this process.
type LocalBackend struct {
	Store *logstore.Store
}

func (b LocalBackend) Snapshot(context.Context) ([]core.Event, error) {
	return b.Store.Snapshot(), nil
}

func (b LocalBackend) Clear(context.Context) error {
	b.Store.Clear()
	return nil
}

// RemoteBackend talks to a host over its control channel.
type RemoteBackend struct {
	Client *uds.Client
}

func (b RemoteBackend) Snapshot(ctx context.Context) ([]core.Event, error) {
	var snap []core.Event
	if err := b.Client.Call(ctx, uds.ControlChannel, uds.MethodGetSnapshot, nil, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (b RemoteBackend) Clear(ctx context.Context) error {
	return b.Client.Call(ctx, uds.ControlChannel, uds.MethodClear, nil, nil)
}

// Package wiretest provides a deterministic in-memory wire pair for
// testing gpuwire clients and servers without a transport or a GPU.
//
// FlushClient and FlushServer are the only suspension points of the
// protocol; a test that alternates them observes a total order on events:
//
//	pair := wiretest.NewPair(&wiretest.FakeGpu{})
//	buf := pair.Client.Device().CreateBuffer(...)
//	buf.MapReadAsync(0, 4, rec.Callback(), 1)
//	pair.MustFlushClient(t) // commands execute, completions queue up
//	pair.MustFlushServer(t) // callbacks fire
package wiretest

import (
	"testing"

	"github.com/gogpu/gpuwire/client"
	"github.com/gogpu/gpuwire/server"
)

// Pair couples a client and a server endpoint over an in-memory wire.
type Pair struct {
	Client *client.Client
	Server *server.Server
}

// NewPair creates a connected endpoint pair executing against gpu.
func NewPair(gpu server.Gpu) *Pair {
	return &Pair{
		Client: client.New(),
		Server: server.New(gpu),
	}
}

// FlushClient drains buffered commands into the server and appends the
// server's resulting completion frames to the client's inbound queue.
// Control frames apply immediately; user callbacks wait for FlushServer.
// Native resources whose release fence has settled are reclaimed.
func (p *Pair) FlushClient() error {
	if err := p.Server.HandleCommands(p.Client.TakeCommands()); err != nil {
		return err
	}
	p.Server.ReclaimCompleted(p.Server.LastSubmittedFence())
	return p.Client.HandleCompletions(p.Server.TakeCompletions())
}

// FlushServer drains the server→client direction and dispatches every
// queued completion to its user callback.
func (p *Pair) FlushServer() error {
	if err := p.Client.HandleCompletions(p.Server.TakeCompletions()); err != nil {
		return err
	}
	return p.Client.DispatchCompletions()
}

// MustFlushClient is FlushClient that fails the test on error.
func (p *Pair) MustFlushClient(t testing.TB) {
	t.Helper()
	if err := p.FlushClient(); err != nil {
		t.Fatalf("FlushClient: %v", err)
	}
}

// MustFlushServer is FlushServer that fails the test on error.
func (p *Pair) MustFlushServer(t testing.TB) {
	t.Helper()
	if err := p.FlushServer(); err != nil {
		t.Fatalf("FlushServer: %v", err)
	}
}

// MustRoundTrip runs a client flush then a server flush.
func (p *Pair) MustRoundTrip(t testing.TB) {
	t.Helper()
	p.MustFlushClient(t)
	p.MustFlushServer(t)
}

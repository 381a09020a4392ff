// Package gpuwire implements the command wire of a client–server GPU
// abstraction in the GoGPU ecosystem.
//
// # Overview
//
// A client process records GPU commands and object lifetimes against proxy
// handles. The wire serializes those records and delivers them to a server
// process, which re-executes them against a real backend (gogpu/wgpu by
// default). Asynchronous results — buffer mapping completions, fence
// completed-value updates — flow back from server to client and are
// dispatched to user-supplied callbacks.
//
// The transport itself is not part of this module: the embedder supplies a
// reliable, ordered, bidirectional byte channel and shuttles the output of
// client.Client.TakeCommands to server.Server.HandleCommands, and the
// output of server.Server.TakeCompletions back to
// client.Client.HandleCompletions.
//
// # Packages
//
//   - gpuwire (this package): frame layout, envelope codec, shared enums
//   - client: proxy objects (Device, Buffer, Fence, Queue, ShaderModule)
//     and completion dispatch
//   - server: command execution shims and the Gpu backend boundary
//   - halgpu: production Gpu backend over gogpu/wgpu hal
//   - wiretest: deterministic in-memory wire pair for tests
//
// # Threading
//
// Each side of the wire is single-threaded cooperative: one goroutine per
// side owns all proxies and tables. User callbacks run on that goroutine,
// during completion dispatch or during Unmap/Release cancellation.
//
// # Quick start
//
//	c := client.New()
//	gpu, err := halgpu.New(device, queue)
//	if err != nil {
//		return err
//	}
//	s := server.New(gpu)
//
//	buf := c.Device().CreateBuffer(gpuwire.BufferDescriptor{
//		Size:  1024,
//		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
//	})
//	buf.MapReadAsync(0, 4, onMapped, 0)
//
//	// Embedder-driven pumping; wiretest.Pair does this for tests.
//	s.HandleCommands(c.TakeCommands())
//	c.HandleCompletions(s.TakeCompletions())
//	c.DispatchCompletions() // onMapped runs here
package gpuwire

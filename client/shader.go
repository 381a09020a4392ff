package client

// ShaderModule is the client proxy for a compiled shader module. The
// source is compiled server-side; a compile failure is reported through a
// control frame and surfaces here after the next flush round-trip.
type ShaderModule struct {
	c              *Client
	id             uint64
	creationFailed bool
	released       bool
}

// ID returns the module's wire handle.
func (m *ShaderModule) ID() uint64 { return m.id }

// CreationFailed reports whether the server rejected the module's source.
func (m *ShaderModule) CreationFailed() bool { return m.creationFailed }

// Release drops the module.
func (m *ShaderModule) Release() {
	if m.released {
		return
	}
	m.released = true
	if m.c.err == nil {
		m.c.enc.ReleaseShaderModule(m.id)
	}
	m.c.objects.Release(m.id)
}

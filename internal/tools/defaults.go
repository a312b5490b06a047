package tools

// DefaultRegistry assembles the standard built-in tool set, grounded on
// tools/registry.py::get_default_registry: file ops, shell (plus its two
// companion tools), version control, web, todo, and — once the chat
// client is available — the sub-agent tool. client may be nil, in which
// case Task is omitted. The Task tool runs its sub-agent against this same
// registry, so Task itself is among the tools a sub-agent can call.
func DefaultRegistry(client ChatClient) *Registry {
	r := NewRegistry()

	r.Register(NewReadTool())
	r.Register(NewWriteTool())
	r.Register(NewEditTool())
	r.Register(NewGlobTool())
	r.Register(NewGrepTool())

	shell := NewShellTool()
	r.Register(shell)
	r.Register(NewBashOutputTool(shell))
	r.Register(NewKillShellTool(shell))

	r.Register(NewVCSTool())
	r.Register(NewWebSearchTool())
	r.Register(NewWebFetchTool())
	r.Register(NewTodoTool())

	if client != nil {
		r.Register(NewSubAgentTool(client, r))
	}

	return r
}

package mcp

import "github.com/mark3labs/mcp-go/mcp"

var getToolDef = mcp.NewTool("status_get",
	mcp.WithDescription("Return the currently published activity snapshot: state, message, subagent count and age."),
)

var classifyToolDef = mcp.NewTool("status_classify",
	mcp.WithDescription("Classify the current filesystem signals without publishing. Shows what the watcher would publish right now and why."),
)

var pollToolDef = mcp.NewTool("status_poll",
	mcp.WithDescription("Run one tick of the viewer fallback chain over the configured sources and report what a display would show."),
	mcp.WithString("url",
		mcp.Description("Poll only this URL instead of the configured sources"),
	),
	mcp.WithString("kind",
		mcp.Description("Source kind for url: local, staticFallback or remoteMirror (default local)"),
		mcp.Enum("local", "staticFallback", "remoteMirror"),
	),
)

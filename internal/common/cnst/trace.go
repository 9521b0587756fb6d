package cnst

// Tracer names used across the console
const (
	// TraceRPC is the tracer name for inbound notification handling
	TraceRPC = "webconsole/rpc"
	// TraceResource is the tracer name for resource resolution
	TraceResource = "webconsole/resource"
)

// Common span names and prefixes
const (
	// SpanNotificationPrefix prefixes spans for handling inbound methods
	SpanNotificationPrefix = "console.notification."
	// SpanResourceResolve represents resolving one resource request
	SpanResourceResolve = "console.resource.resolve"
	// SpanWebSocketConnect represents establishing the browser link
	SpanWebSocketConnect = "console.ws.connect"
)

// Common attribute keys
const (
	AttrConnection       = "console.connection"
	AttrMethod           = "console.method"
	AttrResourceCategory = "console.resource.category"
	AttrResourcePath     = "console.resource.path"
	AttrResourceResult   = "console.resource.result"
	AttrClientAddr       = "client.remote_addr"
	AttrClientUserAgent  = "client.user_agent"
)

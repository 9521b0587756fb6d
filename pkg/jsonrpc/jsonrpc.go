package jsonrpc

import (
	"encoding/json"
	"fmt"
)

const Version = "2.0"

type (
	// Notification is a JSON-RPC 2.0 request without an id. The console
	// protocol consists of notifications only, in both directions.
	Notification struct {
		// JSONRPC version, must be "2.0"
		JSONRPC string `json:"jsonrpc"`
		// The method to be invoked
		Method string `json:"method"`
		// Positional parameters
		Params []any `json:"params"`
	}

	// InboundNotification keeps the parameters undecoded so that the method
	// table can decode each position into its own type.
	InboundNotification struct {
		JSONRPC string            `json:"jsonrpc"`
		Method  string            `json:"method"`
		Params  []json.RawMessage `json:"params"`
	}
)

// NewNotification creates a notification with the given method and params.
func NewNotification(method string, params ...any) Notification {
	if params == nil {
		params = []any{}
	}
	return Notification{
		JSONRPC: Version,
		Method:  method,
		Params:  params,
	}
}

// Encode marshals a notification for method with positional params.
func Encode(method string, params ...any) ([]byte, error) {
	data, err := json.Marshal(NewNotification(method, params...))
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}
	return data, nil
}

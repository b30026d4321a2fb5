package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// decode reads tool arguments into T. Argument names T does not declare are
// rejected so a misspelled option is reported instead of silently ignored.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, fmt.Errorf("%s: encode arguments: %w", toolLabel(req), err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&result); err != nil {
		return result, fmt.Errorf("%s: invalid arguments: %w", toolLabel(req), err)
	}
	return result, nil
}

func toolLabel(req mcp.CallToolRequest) string {
	if req.Params.Name == "" {
		return "tool"
	}
	return req.Params.Name
}

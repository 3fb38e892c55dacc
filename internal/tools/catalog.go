package tools

import "github.com/google/jsonschema-go/jsonschema"

// Spec advertises one tool.
type Spec struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
}

func object(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	if props == nil {
		props = map[string]*jsonschema.Schema{}
	}
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

func str(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

func num(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "number", Description: desc}
}

// Catalog lists every tool in the order it is advertised.
func Catalog() []Spec {
	return []Spec{
		{
			Name:        "navigate",
			Description: "Navigate the active page to a URL and wait until the network is idle",
			InputSchema: object(map[string]*jsonschema.Schema{
				"url": str("The URL to navigate to"),
			}, "url"),
		},
		{
			Name:        "screenshot",
			Description: "Capture a JPEG screenshot of the current viewport",
			InputSchema: object(nil),
		},
		{
			Name:        "click",
			Description: "Click the first element matching a CSS selector",
			InputSchema: object(map[string]*jsonschema.Schema{
				"selector": str("CSS selector of the element to click"),
			}, "selector"),
		},
		{
			Name:        "type",
			Description: "Type text into an input, textarea or contenteditable element",
			InputSchema: object(map[string]*jsonschema.Schema{
				"selector": str("CSS selector of the input element"),
				"text":     str("Text to type"),
			}, "selector", "text"),
		},
		{
			Name:        "scroll",
			Description: "Scroll an element into view, or scroll the page by an offset",
			InputSchema: object(map[string]*jsonschema.Schema{
				"x":        num("Horizontal offset in pixels"),
				"y":        num("Vertical offset in pixels"),
				"selector": str("CSS selector to scroll into view; takes precedence over x and y"),
			}),
		},
		{
			Name:        "wait_for_selector",
			Description: "Wait until an element matching a CSS selector is present",
			InputSchema: object(map[string]*jsonschema.Schema{
				"selector": str("CSS selector to wait for"),
				"timeout":  num("Timeout in milliseconds (default 5000)"),
			}, "selector"),
		},
		{
			Name:        "get_computed_styles",
			Description: "Read the computed layout styles of an element",
			InputSchema: object(map[string]*jsonschema.Schema{
				"selector": str("CSS selector of the element"),
			}, "selector"),
		},
		{
			Name:        "get_network_errors",
			Description: "Return and clear the failed network requests recorded since the last call",
			InputSchema: object(nil),
		},
		{
			Name:        "mobile_mode",
			Description: "Toggle mobile viewport emulation (375x812, touch) or restore the 1920x1080 desktop viewport",
			InputSchema: object(map[string]*jsonschema.Schema{
				"enable": {Type: "boolean", Description: "true for mobile, false for desktop"},
			}, "enable"),
		},
		{
			Name:        "evaluate",
			Description: "Evaluate JavaScript in the page and return its JSON-encoded result",
			InputSchema: object(map[string]*jsonschema.Schema{
				"script": str("JavaScript expression or statements to evaluate"),
			}, "script"),
		},
		{
			Name:        "get_console_logs",
			Description: "Return the most recent console messages (up to 100)",
			InputSchema: object(nil),
		},
	}
}

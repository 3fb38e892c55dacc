package tools

import (
	"errors"
	"fmt"
)

// ErrUnknownTool is reported for names that match no operation.
var ErrUnknownTool = errors.New("unknown tool")

// BlockType distinguishes the kinds of content a Result carries.
type BlockType string

const (
	TextBlock  BlockType = "text"
	ImageBlock BlockType = "image"
)

// Block is one piece of result content. Image data is raw bytes; the
// transport takes care of base64.
type Block struct {
	Type     BlockType
	Text     string
	Data     []byte
	MIMEType string
}

// Result is the outcome of one tool call. It always holds at least one block.
type Result struct {
	Content []Block
	IsError bool
}

// Text concatenates the text blocks.
func (r *Result) Text() string {
	var s string
	for _, b := range r.Content {
		if b.Type == TextBlock {
			s += b.Text
		}
	}
	return s
}

func TextResult(text string) *Result {
	return &Result{Content: []Block{{Type: TextBlock, Text: text}}}
}

func ImageResult(data []byte, mimeType string) *Result {
	return &Result{Content: []Block{{Type: ImageBlock, Data: data, MIMEType: mimeType}}}
}

// ErrorResult reports err as the failure of op.
func ErrorResult(op string, err error) *Result {
	return &Result{
		Content: []Block{{Type: TextBlock, Text: fmt.Sprintf("%s failed: %v", op, err)}},
		IsError: true,
	}
}

// UnknownToolResult reports a name that resolved to no operation.
func UnknownToolResult(name string) *Result {
	return &Result{
		Content: []Block{{Type: TextBlock, Text: "Unknown tool: " + name}},
		IsError: true,
	}
}

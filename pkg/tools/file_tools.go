package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Tool name constants.
const (
	ToolReadFile  = "read_file"
	ToolWriteFile = "write_file"
	ToolListFiles = "list_files"
)

const (
	defaultMaxFileBytes = 1048576 // 1MB cap on read output
	maxWriteBytes       = 4194304 // 4MB cap on written content
)

// sandbox confines file tools to a root directory. All paths supplied by the
// model are resolved relative to the root and must stay inside it.
type sandbox struct {
	root string
}

func newSandbox(root string) sandbox {
	if root == "" {
		root = "sandbox"
	}
	return sandbox{root: root}
}

// resolve maps a model-supplied relative path to an absolute path inside the
// sandbox, rejecting traversal outside the root.
func (s sandbox) resolve(relPath string) (string, error) {
	if relPath == "" {
		return "", NewToolError("InvalidPath", "path must not be empty")
	}
	if filepath.IsAbs(relPath) {
		return "", NewToolError("InvalidPath", "absolute paths are not allowed: %s", relPath)
	}

	cleaned := filepath.Clean(relPath)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", NewToolError("InvalidPath", "path escapes the sandbox: %s", relPath)
	}
	return filepath.Join(s.root, cleaned), nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, exists := args[key]
	if !exists {
		return "", NewToolError("MissingArgument", "missing required argument: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", NewToolError("InvalidArgument", "argument %s must be a string", key)
	}
	return s, nil
}

// ReadFileTool reads file contents from the sandbox.
type ReadFileTool struct {
	sandbox      sandbox
	maxSizeBytes int64
}

// NewReadFileTool creates a new read_file tool rooted at sandboxRoot.
func NewReadFileTool(sandboxRoot string, maxSizeBytes int64) *ReadFileTool {
	if maxSizeBytes <= 0 {
		maxSizeBytes = defaultMaxFileBytes
	}
	return &ReadFileTool{
		sandbox:      newSandbox(sandboxRoot),
		maxSizeBytes: maxSizeBytes,
	}
}

// Name returns the tool name.
func (t *ReadFileTool) Name() string {
	return ToolReadFile
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *ReadFileTool) PromptDocumentation() string {
	return `- **read_file** - Read contents of a file from the sandbox
  - Parameters:
    - path (string, REQUIRED): relative path within the sandbox
  - Large files are truncated at 1MB`
}

// Definition returns the tool definition for the LLM.
func (t *ReadFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolReadFile,
		Description: "Read contents of a file from the sandbox directory.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Relative path to the file within the sandbox",
				},
			},
			Required: []string{"path"},
		},
	}
}

// Exec reads the requested file.
func (t *ReadFileTool) Exec(_ context.Context, args map[string]any) (string, error) {
	relPath, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}

	fullPath, err := t.sandbox.resolve(relPath)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolError("FileNotFound", "file does not exist: %s", relPath)
		}
		return "", fmt.Errorf("stat %s: %w", relPath, err)
	}
	if info.IsDir() {
		return "", NewToolError("InvalidPath", "%s is a directory, not a file", relPath)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", relPath, err)
	}

	truncated := false
	if int64(len(data)) > t.maxSizeBytes {
		data = data[:t.maxSizeBytes]
		truncated = true
	}

	content := string(data)
	if truncated {
		content += fmt.Sprintf("\n\n[truncated at %d bytes]", t.maxSizeBytes)
	}
	return content, nil
}

// WriteFileTool writes file contents into the sandbox.
type WriteFileTool struct {
	sandbox sandbox
}

// NewWriteFileTool creates a new write_file tool rooted at sandboxRoot.
func NewWriteFileTool(sandboxRoot string) *WriteFileTool {
	return &WriteFileTool{sandbox: newSandbox(sandboxRoot)}
}

// Name returns the tool name.
func (t *WriteFileTool) Name() string {
	return ToolWriteFile
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *WriteFileTool) PromptDocumentation() string {
	return `- **write_file** - Write content to a file in the sandbox
  - Parameters:
    - path (string, REQUIRED): relative path within the sandbox
    - content (string, REQUIRED): file content to write
  - Parent directories are created as needed; existing files are overwritten`
}

// Definition returns the tool definition for the LLM.
func (t *WriteFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolWriteFile,
		Description: "Write content to a file in the sandbox directory, creating parent directories as needed.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Relative path to the file within the sandbox",
				},
				"content": {
					Type:        "string",
					Description: "Content to write to the file",
				},
			},
			Required: []string{"path", "content"},
		},
	}
}

// Exec writes the requested file.
func (t *WriteFileTool) Exec(_ context.Context, args map[string]any) (string, error) {
	relPath, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return "", err
	}
	if len(content) > maxWriteBytes {
		return "", NewToolError("ContentTooLarge", "content exceeds %d bytes", maxWriteBytes)
	}

	fullPath, err := t.sandbox.resolve(relPath)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("create parent directories for %s: %w", relPath, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", relPath, err)
	}

	return fmt.Sprintf("Wrote %d bytes to %s", len(content), relPath), nil
}

// ListFilesTool lists files under a sandbox directory.
type ListFilesTool struct {
	sandbox sandbox
}

// NewListFilesTool creates a new list_files tool rooted at sandboxRoot.
func NewListFilesTool(sandboxRoot string) *ListFilesTool {
	return &ListFilesTool{sandbox: newSandbox(sandboxRoot)}
}

// Name returns the tool name.
func (t *ListFilesTool) Name() string {
	return ToolListFiles
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *ListFilesTool) PromptDocumentation() string {
	return `- **list_files** - List files in a sandbox directory
  - Parameters:
    - path (string, optional): relative directory within the sandbox (default: sandbox root)
  - Directories are listed with a trailing slash`
}

// Definition returns the tool definition for the LLM.
func (t *ListFilesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolListFiles,
		Description: "List files and directories under a path in the sandbox.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Relative directory within the sandbox. Defaults to the sandbox root.",
				},
			},
		},
	}
}

// Exec lists the requested directory.
func (t *ListFilesTool) Exec(_ context.Context, args map[string]any) (string, error) {
	relPath := "."
	if v, exists := args["path"]; exists {
		s, ok := v.(string)
		if !ok {
			return "", NewToolError("InvalidArgument", "argument path must be a string")
		}
		if s != "" {
			relPath = s
		}
	}

	fullPath, err := t.sandbox.resolve(relPath)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolError("FileNotFound", "directory does not exist: %s", relPath)
		}
		return "", fmt.Errorf("list %s: %w", relPath, err)
	}

	if len(entries) == 0 {
		return "(empty directory)", nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

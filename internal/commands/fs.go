package commands

import (
	"context"
	"fmt"
	"io"
	"os"
)

const defaultMaxReadSize = 50 * 1024 * 1024 // 50MB

// FSConfig configures the file commands.
type FSConfig struct {
	Policy      PathPolicy
	MaxReadSize int64
}

// FileCommands returns ReadFile, WriteFile, AppendFile and DeleteFile.
func FileCommands(cfg FSConfig) []Command {
	if cfg.MaxReadSize <= 0 {
		cfg.MaxReadSize = defaultMaxReadSize
	}
	return []Command{
		&readFileCommand{cfg: cfg},
		&writeFileCommand{cfg: cfg},
		&appendFileCommand{cfg: cfg},
		&deleteFileCommand{cfg: cfg},
	}
}

// --- ReadFile ---

type readFileCommand struct{ cfg FSConfig }

func (c *readFileCommand) Name() string { return "ReadFile" }

func (c *readFileCommand) Describe() Descriptor {
	return Descriptor{
		Name:        c.Name(),
		Description: "Read the contents of a text file",
		Required:    []string{"path"},
		Outputs:     []string{"path", "content", "success", "error"},
	}
}

func (c *readFileCommand) Execute(ctx context.Context, inv Invocation) (Outputs, error) {
	path, err := inv.RequireString(ctx, "path")
	if err != nil {
		return nil, err
	}

	base := Outputs{"path": path, "content": ""}
	if err := c.cfg.Policy.Check(path, PathAccessRead); err != nil {
		return failure(err, base), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return failure(err, base), nil
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, c.cfg.MaxReadSize+1))
	if err != nil {
		return failure(err, base), nil
	}
	if int64(len(data)) > c.cfg.MaxReadSize {
		return failure(fmt.Errorf("%s: file exceeds %d bytes", path, c.cfg.MaxReadSize), base), nil
	}

	return success(Outputs{"path": path, "content": string(data)}), nil
}

// --- WriteFile ---

type writeFileCommand struct{ cfg FSConfig }

func (c *writeFileCommand) Name() string { return "WriteFile" }

func (c *writeFileCommand) Describe() Descriptor {
	return Descriptor{
		Name:        c.Name(),
		Description: "Create or truncate a file and write text to it",
		Required:    []string{"path", "text"},
		Outputs:     []string{"path", "success", "error"},
	}
}

func (c *writeFileCommand) Execute(ctx context.Context, inv Invocation) (Outputs, error) {
	path, err := inv.RequireString(ctx, "path")
	if err != nil {
		return nil, err
	}
	text, err := inv.RequireString(ctx, "text")
	if err != nil {
		return nil, err
	}

	base := Outputs{"path": path}
	if err := c.cfg.Policy.Check(path, PathAccessWrite); err != nil {
		return failure(err, base), nil
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return failure(err, base), nil
	}
	return success(base), nil
}

// --- AppendFile ---

type appendFileCommand struct{ cfg FSConfig }

func (c *appendFileCommand) Name() string { return "AppendFile" }

func (c *appendFileCommand) Describe() Descriptor {
	return Descriptor{
		Name:        c.Name(),
		Description: "Append text to a file, creating it if needed",
		Required:    []string{"path", "text"},
		Outputs:     []string{"path", "status", "success", "error"},
	}
}

func (c *appendFileCommand) Execute(ctx context.Context, inv Invocation) (Outputs, error) {
	path, err := inv.RequireString(ctx, "path")
	if err != nil {
		return nil, err
	}
	text, err := inv.RequireString(ctx, "text")
	if err != nil {
		return nil, err
	}

	base := Outputs{"path": path, "status": ""}
	if err := c.cfg.Policy.Check(path, PathAccessWrite); err != nil {
		return failure(err, base), nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return failure(err, base), nil
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return failure(err, base), nil
	}
	if err := f.Close(); err != nil {
		return failure(err, base), nil
	}
	return success(Outputs{"path": path, "status": "appended"}), nil
}

// --- DeleteFile ---

type deleteFileCommand struct{ cfg FSConfig }

func (c *deleteFileCommand) Name() string { return "DeleteFile" }

func (c *deleteFileCommand) Describe() Descriptor {
	return Descriptor{
		Name:        c.Name(),
		Description: "Delete a file",
		Required:    []string{"path"},
		Outputs:     []string{"path", "status", "success", "error"},
	}
}

func (c *deleteFileCommand) Execute(ctx context.Context, inv Invocation) (Outputs, error) {
	path, err := inv.RequireString(ctx, "path")
	if err != nil {
		return nil, err
	}

	base := Outputs{"path": path, "status": ""}
	if err := c.cfg.Policy.Check(path, PathAccessWrite); err != nil {
		return failure(err, base), nil
	}
	if err := os.Remove(path); err != nil {
		return failure(err, base), nil
	}
	return success(Outputs{"path": path, "status": "deleted"}), nil
}

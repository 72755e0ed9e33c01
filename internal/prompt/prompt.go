// Package prompt builds the shell-style prefix of the status line from the
// local machine and the editor context piped on stdin.
package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/sdpower/ccstatusbar-go/internal/config"
	"github.com/sdpower/ccstatusbar-go/internal/logger"
)

const (
	// StdinTimeout bounds how long the editor context read may block.
	StdinTimeout = time.Second
	gitTimeout   = time.Second
	maxStdin     = 1 << 20
)

var ErrStdinTimeout = errors.New("stdin read timed out")

// Context is the JSON the editor pipes to status-line commands.
type Context struct {
	Cwd       string `json:"cwd"`
	Workspace struct {
		CurrentDir string `json:"current_dir"`
		Name       string `json:"name"`
	} `json:"workspace"`
	Model struct {
		DisplayName string `json:"display_name"`
	} `json:"model"`
}

// ParseContext returns nil for input that is not a JSON object.
func ParseContext(data []byte) *Context {
	var c Context
	if err := json.Unmarshal(data, &c); err != nil {
		logger.Debug("ignoring editor context", "error", err)
		return nil
	}
	return &c
}

// ReadContext reads r to EOF within timeout and parses it.
func ReadContext(r io.Reader, timeout time.Duration) (*Context, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := io.ReadAll(io.LimitReader(r, maxStdin))
		ch <- result{data, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return ParseContext(res.data), nil
	case <-time.After(timeout):
		return nil, ErrStdinTimeout
	}
}

// StdinContext reads the editor context when stdin is piped. A terminal
// stdin yields nil without blocking.
func StdinContext() *Context {
	fd := os.Stdin.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return nil
	}
	c, err := ReadContext(os.Stdin, StdinTimeout)
	if err != nil {
		logger.Debug("failed to read editor context", "error", err)
		return nil
	}
	return c
}

// Builder assembles "time user @host workspace (branch*)" from the enabled
// display toggles.
type Builder struct {
	Display      config.Display
	ProjectLabel string
	Context      *Context

	now      func() time.Time
	username func() string
	hostname func() string
	workdir  func() string
	branch   func(ctx context.Context, dir string) string
}

func NewBuilder(display config.Display, projectLabel string, c *Context) *Builder {
	return &Builder{
		Display:      display,
		ProjectLabel: projectLabel,
		Context:      c,
		now:          time.Now,
		username:     currentUser,
		hostname:     shortHostname,
		workdir:      workingDir,
		branch:       GitBranch,
	}
}

// Build returns "" when no prompt part is enabled.
func (b *Builder) Build(ctx context.Context) string {
	d := b.Display
	var parts []string
	if d.ShowTime {
		parts = append(parts, b.now().Format("15:04:05"))
	}
	if d.ShowUser {
		parts = append(parts, b.username())
	}
	if d.ShowHost {
		parts = append(parts, "@"+b.hostname())
	}
	if d.ShowWorkspace {
		parts = append(parts, b.WorkspaceLabel())
	}
	if d.ShowGitBranch {
		if branch := b.branch(ctx, b.dir()); branch != "" {
			parts = append(parts, "("+branch+")")
		}
	}
	return strings.Join(parts, " ")
}

// WorkspaceLabel prefers the configured label, then the editor's workspace
// name, then the base name of the current directory.
func (b *Builder) WorkspaceLabel() string {
	if label := strings.TrimSpace(b.ProjectLabel); label != "" {
		return label
	}
	if b.Context != nil && b.Context.Workspace.Name != "" {
		return b.Context.Workspace.Name
	}
	dir := b.dir()
	if dir == "" {
		return "~"
	}
	return filepath.Base(dir)
}

func (b *Builder) dir() string {
	if c := b.Context; c != nil {
		if c.Workspace.CurrentDir != "" {
			return c.Workspace.CurrentDir
		}
		if c.Cwd != "" {
			return c.Cwd
		}
	}
	return b.workdir()
}

// GitBranch returns the checked-out branch in dir, suffixed with "*" when
// the tree has uncommitted changes, or "" outside a repository.
func GitBranch(ctx context.Context, dir string) string {
	out, err := git(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil || out == "" {
		return ""
	}
	status, err := git(ctx, dir, "status", "--porcelain")
	if err == nil && status != "" {
		return out + "*"
	}
	return out
}

func git(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "user"
}

func shortHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	host, _, _ := strings.Cut(h, ".")
	return host
}

func workingDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}

// Package prompts loads agent role text from disk. Role text is opaque
// configuration keyed by agent name: the engine passes it to the reasoning
// backend verbatim and never branches on its content.
package prompts

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/fsnotify/fsnotify"
)

// Loader resolves role text for agents from <dir>/<snake_name>/prompt.md,
// caching reads. When a watcher is started, edits under the prompts
// directory invalidate the cache so prompt changes apply to the next claim
// without a restart.
type Loader struct {
	dir string

	mu    sync.RWMutex
	cache map[string]string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewLoader creates a loader over the given prompts directory. The
// directory may be empty or missing; lookups then fall back to the
// built-in role text.
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:   dir,
		cache: make(map[string]string),
	}
}

// Load returns the role text for the agent. File contents win over the
// built-in fallback; a missing file is not an error.
func (l *Loader) Load(agentName string) string {
	l.mu.RLock()
	text, ok := l.cache[agentName]
	l.mu.RUnlock()
	if ok {
		return text
	}

	text = l.readFile(agentName)
	if text == "" {
		text = FallbackPrompt(agentName)
	}

	l.mu.Lock()
	l.cache[agentName] = text
	l.mu.Unlock()
	return text
}

func (l *Loader) readFile(agentName string) string {
	if l.dir == "" {
		return ""
	}
	path := filepath.Join(l.dir, snakeCase(agentName), "prompt.md")
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Watch starts invalidating the cache on changes under the prompts
// directory. Without a watcher the loader still works; prompts are just
// cached for the process lifetime.
func (l *Loader) Watch() error {
	if l.dir == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create prompt watcher: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", l.dir, err)
	}
	// Agent prompt files live one level down.
	entries, _ := os.ReadDir(l.dir)
	for _, entry := range entries {
		if entry.IsDir() {
			_ = watcher.Add(filepath.Join(l.dir, entry.Name()))
		}
	}

	l.watcher = watcher
	l.done = make(chan struct{})
	go l.watchLoop()
	return nil
}

func (l *Loader) watchLoop() {
	for {
		select {
		case <-l.done:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				log.Printf("[prompts] %s changed, clearing prompt cache", event.Name)
				l.mu.Lock()
				l.cache = make(map[string]string)
				l.mu.Unlock()
			}
		case <-l.watcher.Errors:
			// Ignore errors, keep watching
		}
	}
}

// Close stops the watcher if one is running.
func (l *Loader) Close() {
	if l.watcher != nil {
		close(l.done)
		l.watcher.Close()
		l.watcher = nil
	}
}

// FallbackPrompt returns the built-in role text used when no prompt file
// exists for the agent.
func FallbackPrompt(agentName string) string {
	return fmt.Sprintf(`You are %s, an agent for auto insurance claim processing.

Use your available tools to gather information and make decisions.
Return your decision in JSON format:
{
  "agent": %q,
  "status": "APPROVED | REJECTED | PARTIAL | ESCALATE",
  "reason": "concise_slug_snake_case",
  "explanation": "1-2 sentence human-readable rationale"
}`, agentName, agentName)
}

// snakeCase converts an agent name like "PolicyValidator" to its prompt
// directory name "policy_validator".
func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

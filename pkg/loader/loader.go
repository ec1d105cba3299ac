// Package loader ingests agent definition documents from a directory and
// publishes an immutable registry. Reloads build a fresh snapshot and swap
// it atomically; concurrent readers always observe a consistent view.
package loader

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wsaadi/nova/pkg/adl"
)

// snapshot is one immutable registry generation.
type snapshot struct {
	byID     map[string]*adl.Agent
	slugToID map[string]string
}

func emptySnapshot() *snapshot {
	return &snapshot{
		byID:     map[string]*adl.Agent{},
		slugToID: map[string]string{},
	}
}

// Loader scans a directory of ADL files and serves the resulting agents.
type Loader struct {
	dir        string
	knownTools func() map[string]bool

	mu      sync.RWMutex
	current *snapshot

	watcher *watcher
}

type Option func(*Loader)

// WithKnownTools supplies the tool registry's id set, used for warnings on
// tool_id references the runtime cannot serve.
func WithKnownTools(known func() map[string]bool) Option {
	return func(l *Loader) {
		l.knownTools = known
	}
}

func New(dir string, opts ...Option) *Loader {
	l := &Loader{
		dir:     dir,
		current: emptySnapshot(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the scanned directory.
func (l *Loader) Dir() string { return l.dir }

// Load scans the directory and swaps in the new snapshot. Files that fail
// validation are rejected with a log line; the scan continues.
func (l *Loader) Load() error {
	if l.dir == "" {
		return fmt.Errorf("agents directory not configured")
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("failed to read agents directory: %w", err)
	}

	next := emptySnapshot()
	loaded, rejected, skipped := 0, 0, 0

	for _, entry := range entries {
		if entry.IsDir() || !adl.HasKnownExtension(entry.Name()) {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())

		agent, status, err := l.loadFile(path)
		switch {
		case err != nil:
			slog.Warn("rejected agent file", "file", entry.Name(), "error", err)
			rejected++
		case agent == nil:
			slog.Info("skipped agent file", "file", entry.Name(), "status", status)
			skipped++
		default:
			if existing, ok := next.byID[agent.ID()]; ok {
				slog.Warn("duplicate agent id, keeping first",
					"id", agent.ID(), "kept", existing.SourceFile, "dropped", entry.Name())
				rejected++
				continue
			}
			next.byID[agent.ID()] = agent
			next.slugToID[agent.Slug] = agent.ID()
			loaded++
		}
	}

	l.mu.Lock()
	l.current = next
	l.mu.Unlock()

	slog.Info("agent registry loaded",
		"dir", l.dir, "loaded", loaded, "rejected", rejected, "skipped", skipped)
	return nil
}

// Reload is Load under its public registry name.
func (l *Loader) Reload() error { return l.Load() }

// loadFile parses and validates one file. A nil agent with a status means
// the file was deliberately skipped.
func (l *Loader) loadFile(path string) (*adl.Agent, adl.Status, error) {
	doc, err := adl.ParseFile(path)
	if err != nil {
		return nil, "", err
	}

	if doc.Identity.Status == adl.StatusDisabled || doc.Identity.Status == adl.StatusArchived {
		return nil, doc.Identity.Status, nil
	}

	return l.buildAgent(doc, path)
}

func (l *Loader) buildAgent(doc *adl.Document, sourceFile string) (*adl.Agent, adl.Status, error) {
	opts := adl.ValidateOptions{}
	if l.knownTools != nil {
		opts.KnownTools = l.knownTools()
	}

	result := adl.Validate(doc, opts)
	for _, warning := range result.Warnings {
		slog.Warn("agent validation warning", "agent", doc.Identity.ID, "path", warning.Path, "detail", warning.Message)
	}
	if !result.Valid() {
		return nil, "", fmt.Errorf("validation failed: %s", result.FormatErrors())
	}

	return &adl.Agent{
		Doc:        doc,
		Slug:       adl.SlugFor(doc),
		SourceFile: sourceFile,
		LoadedAt:   time.Now(),
	}, doc.Identity.Status, nil
}

// Get resolves an agent by id.
func (l *Loader) Get(id string) (*adl.Agent, bool) {
	snap := l.snapshot()
	agent, ok := snap.byID[id]
	return agent, ok
}

// GetBySlug resolves an agent by slug.
func (l *Loader) GetBySlug(slug string) (*adl.Agent, bool) {
	snap := l.snapshot()
	id, ok := snap.slugToID[slug]
	if !ok {
		return nil, false
	}
	agent, ok := snap.byID[id]
	return agent, ok
}

// Resolve accepts either an id or a slug.
func (l *Loader) Resolve(ref string) (*adl.Agent, bool) {
	if agent, ok := l.Get(ref); ok {
		return agent, true
	}
	return l.GetBySlug(ref)
}

// ListAll returns every loaded agent, sorted by id for stable output.
func (l *Loader) ListAll() []*adl.Agent {
	snap := l.snapshot()
	agents := make([]*adl.Agent, 0, len(snap.byID))
	for _, agent := range snap.byID {
		agents = append(agents, agent)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID() < agents[j].ID() })
	return agents
}

// ListActive returns agents whose status is active.
func (l *Loader) ListActive() []*adl.Agent {
	var active []*adl.Agent
	for _, agent := range l.ListAll() {
		if agent.Status() == adl.StatusActive {
			active = append(active, agent)
		}
	}
	return active
}

// ListByCategory filters on identity.category, case-insensitive.
func (l *Loader) ListByCategory(category string) []*adl.Agent {
	var matched []*adl.Agent
	for _, agent := range l.ListAll() {
		if strings.EqualFold(agent.Doc.Identity.Category, category) {
			matched = append(matched, agent)
		}
	}
	return matched
}

// Count returns the number of loaded agents.
func (l *Loader) Count() int {
	return len(l.snapshot().byID)
}

// Register validates raw document bytes and publishes the agent without a
// backing file. Used by the import endpoint.
func (l *Loader) Register(data []byte) (*adl.Agent, error) {
	doc, err := adl.Parse(data)
	if err != nil {
		return nil, err
	}
	if doc.Identity.Status == adl.StatusDisabled || doc.Identity.Status == adl.StatusArchived {
		return nil, fmt.Errorf("agent status is %s", doc.Identity.Status)
	}

	agent, _, err := l.buildAgent(doc, "")
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.current.clone()
	next.byID[agent.ID()] = agent
	next.slugToID[agent.Slug] = agent.ID()
	l.current = next

	return agent, nil
}

// Save writes the agent's document into the directory, named after its slug,
// and publishes it.
func (l *Loader) Save(agent *adl.Agent) error {
	if l.dir == "" {
		return fmt.Errorf("agents directory not configured")
	}

	data, err := agent.Doc.MarshalYAML()
	if err != nil {
		return fmt.Errorf("failed to serialise agent: %w", err)
	}

	path := filepath.Join(l.dir, agent.Slug+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write agent file: %w", err)
	}
	agent.SourceFile = path

	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.current.clone()
	next.byID[agent.ID()] = agent
	next.slugToID[agent.Slug] = agent.ID()
	l.current = next

	return nil
}

// Delete removes an agent from the registry and deletes its backing file
// when it has one.
func (l *Loader) Delete(id string) error {
	l.mu.Lock()
	agent, ok := l.current.byID[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("unknown agent: %s", id)
	}

	next := l.current.clone()
	delete(next.byID, id)
	delete(next.slugToID, agent.Slug)
	l.current = next
	l.mu.Unlock()

	if agent.SourceFile != "" {
		if err := os.Remove(agent.SourceFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove agent file: %w", err)
		}
	}
	return nil
}

func (l *Loader) snapshot() *snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		byID:     make(map[string]*adl.Agent, len(s.byID)),
		slugToID: make(map[string]string, len(s.slugToID)),
	}
	for k, v := range s.byID {
		next.byID[k] = v
	}
	for k, v := range s.slugToID {
		next.slugToID[k] = v
	}
	return next
}

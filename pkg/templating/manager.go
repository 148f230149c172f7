package templating

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/CTAG07/smartscript/pkg/engine"
	"github.com/CTAG07/smartscript/pkg/smartscript"
	"github.com/segmentio/fasthash/fnv1a"
	"github.com/zeebo/blake3"
	"golang.org/x/text/language"
)

// ErrScriptNotFound is returned by Execute for a name that is not loaded.
var ErrScriptNotFound = errors.New("script not found")

// ScriptInfo describes one loaded script.
type ScriptInfo struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time"`
	Digest    string    `json:"digest"`
	Functions []string  `json:"functions"`
}

type script struct {
	doc  *smartscript.DocumentNode
	info ScriptInfo
}

type preview struct {
	src string
	doc *smartscript.DocumentNode
}

// TemplateManager is the central controller for script execution. It owns
// the parsed scripts, the engine that renders them and the configuration
// both are built from.
type TemplateManager struct {
	logger    *slog.Logger
	config    *TemplateConfig
	engine    *engine.Engine
	scripts   map[string]*script
	scriptDir string
	mu        sync.RWMutex

	previews     map[uint64]preview
	previewOrder []uint64
	previewMu    sync.Mutex
}

// NewTemplateManager creates a TemplateManager serving the scripts under
// scriptDir and performs an initial Refresh.
func NewTemplateManager(logger *slog.Logger, config *TemplateConfig, scriptDir string) (*TemplateManager, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tm := &TemplateManager{
		logger:    logger,
		scriptDir: scriptDir,
		scripts:   map[string]*script{},
		previews:  map[uint64]preview{},
	}
	if err := tm.SetConfig(config); err != nil {
		return nil, err
	}
	if err := tm.Refresh(); err != nil {
		return nil, err
	}

	logger.Info("Template manager initialized", "dir", scriptDir)
	return tm, nil
}

func (tm *TemplateManager) buildEngine(config *TemplateConfig) (*engine.Engine, error) {
	tag := language.English
	if config.Locale != "" {
		var err error
		if tag, err = language.Parse(config.Locale); err != nil {
			return nil, fmt.Errorf("invalid locale %q: %w", config.Locale, err)
		}
	}
	return engine.New(
		engine.WithLogger(tm.logger),
		engine.WithLocale(tag),
		engine.WithMaxIterations(config.MaxLoopIterations),
	), nil
}

// SetConfig applies a new configuration. The engine is rebuilt immediately;
// a changed ScriptExtension takes effect on the next Refresh.
func (tm *TemplateManager) SetConfig(config *TemplateConfig) error {
	if config == nil {
		config = DefaultConfig()
	}
	e, err := tm.buildEngine(config)
	if err != nil {
		return err
	}

	tm.mu.Lock()
	tm.config = config
	tm.engine = e
	tm.mu.Unlock()

	tm.previewMu.Lock()
	tm.previews = map[uint64]preview{}
	tm.previewOrder = nil
	tm.previewMu.Unlock()
	return nil
}

// Refresh reparses every script under the script directory. On failure the
// previously loaded scripts stay in place.
func (tm *TemplateManager) Refresh() error {
	tm.mu.RLock()
	ext := tm.config.ScriptExtension
	dir := tm.scriptDir
	tm.mu.RUnlock()

	tm.logger.Info("Loading script files...", "dir", dir)
	loaded := map[string]*script{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ext) {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		s, err := loadScript(p, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		loaded[s.info.Name] = s
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		tm.logger.Warn("Script directory does not exist", "dir", dir)
		err = nil
	}
	if err != nil {
		tm.logger.Error("failed to load script files", "error", err)
		return err
	}
	if len(loaded) == 0 {
		tm.logger.Warn("No script files found", "dir", dir, "extension", ext)
	}

	tm.mu.Lock()
	tm.scripts = loaded
	tm.mu.Unlock()
	tm.logger.Info("Loaded script files", "count", len(loaded))
	return nil
}

func loadScript(filePath, name string) (*script, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", name, err)
	}
	stat, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat script %s: %w", name, err)
	}
	doc, err := smartscript.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse script %s: %w", name, err)
	}
	digest := blake3.Sum256(data)
	return &script{
		doc: doc,
		info: ScriptInfo{
			Name:      name,
			Size:      stat.Size(),
			ModTime:   stat.ModTime(),
			Digest:    hex.EncodeToString(digest[:]),
			Functions: smartscript.Functions(doc),
		},
	}, nil
}

// CleanName maps a URL or include path to a script name: slash separated,
// relative to the script directory, without "." or ".." elements.
func CleanName(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func (tm *TemplateManager) lookup(name string) (*script, *engine.Engine, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	s, ok := tm.scripts[CleanName(name)]
	return s, tm.engine, ok
}

// Execute renders the named script into rc.
func (tm *TemplateManager) Execute(rc engine.RenderContext, name string) error {
	s, e, ok := tm.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrScriptNotFound, name)
	}
	return e.Render(s.doc, rc)
}

// Has reports whether a script of that name is loaded.
func (tm *TemplateManager) Has(name string) bool {
	_, _, ok := tm.lookup(name)
	return ok
}

// IsScript reports whether name carries the configured script extension.
func (tm *TemplateManager) IsScript(name string) bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return strings.HasSuffix(name, tm.config.ScriptExtension)
}

// GetScriptInfo returns the description of one loaded script.
func (tm *TemplateManager) GetScriptInfo(name string) (ScriptInfo, bool) {
	s, _, ok := tm.lookup(name)
	if !ok {
		return ScriptInfo{}, false
	}
	return s.info, true
}

// GetScripts returns the descriptions of all loaded scripts sorted by name.
func (tm *TemplateManager) GetScripts() []ScriptInfo {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	infos := make([]ScriptInfo, 0, len(tm.scripts))
	for _, s := range tm.scripts {
		infos = append(infos, s.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// GetScriptNames returns the sorted names of all loaded scripts.
func (tm *TemplateManager) GetScriptNames() []string {
	infos := tm.GetScripts()
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

// GetConfig returns a copy of the current configuration.
func (tm *TemplateManager) GetConfig() TemplateConfig {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return *tm.config
}

func (tm *TemplateManager) GetScriptDir() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.scriptDir
}

// Engine returns the engine scripts are currently rendered with.
func (tm *TemplateManager) Engine() *engine.Engine {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.engine
}

// ExecuteString parses and renders content. Parsed trees are cached by
// content so repeated previews of the same source skip the parser.
func (tm *TemplateManager) ExecuteString(rc engine.RenderContext, content string) error {
	doc, err := tm.parsePreview(content)
	if err != nil {
		return err
	}
	return tm.Engine().Render(doc, rc)
}

func (tm *TemplateManager) parsePreview(content string) (*smartscript.DocumentNode, error) {
	key := fnv1a.HashString64(content)
	tm.previewMu.Lock()
	if p, ok := tm.previews[key]; ok && p.src == content {
		tm.previewMu.Unlock()
		return p.doc, nil
	}
	tm.previewMu.Unlock()

	doc, err := smartscript.Parse(content)
	if err != nil {
		return nil, err
	}

	size := tm.GetConfig().PreviewCacheSize
	if size <= 0 {
		return doc, nil
	}
	tm.previewMu.Lock()
	defer tm.previewMu.Unlock()
	if _, ok := tm.previews[key]; !ok {
		tm.previewOrder = append(tm.previewOrder, key)
	}
	tm.previews[key] = preview{src: content, doc: doc}
	for len(tm.previewOrder) > size {
		delete(tm.previews, tm.previewOrder[0])
		tm.previewOrder = tm.previewOrder[1:]
	}
	return doc, nil
}

// previewCount reports the number of cached preview trees.
func (tm *TemplateManager) previewCount() int {
	tm.previewMu.Lock()
	defer tm.previewMu.Unlock()
	return len(tm.previews)
}

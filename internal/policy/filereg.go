package policy

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/logger"
	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/types"
)

// 中文说明：
// 文件型策略来源：YAML 文件声明若干策略记录，viper 监听文件变更热加载。
// 实现 Provider 接口，可替代数据库为引擎供给策略。

type fileEntry struct {
	Name      string         `yaml:"name"`
	ModelID   int64          `yaml:"model_id,omitempty"`
	Kind      string         `yaml:"kind"`
	Priority  int            `yaml:"priority"`
	CreatedAt time.Time      `yaml:"created_at,omitempty"`
	Handler   string         `yaml:"handler,omitempty"`
	Source    string         `yaml:"source,omitempty"`
	Params    map[string]any `yaml:"params,omitempty"`
	Disabled  bool           `yaml:"disabled,omitempty"`
}

type fileDoc struct {
	Policies []fileEntry `yaml:"policies"`
}

// FileSnapshot 当前文件内容快照。
type FileSnapshot struct {
	Version  int64
	LoadedAt time.Time
	Records  []Record
}

// FileChangeListener 文件重载完成后触发。
type FileChangeListener func(FileSnapshot)

// FileProvider 基于 YAML 文件的策略来源。
type FileProvider struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  FileSnapshot
	listeners []FileChangeListener
}

// NewFileProvider 读取策略文件并监听更新。
func NewFileProvider(path string) (*FileProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("policy file provider requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read policy file failed: %w", err)
	}
	p := &FileProvider{path: path, v: v}
	if err := p.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := p.reload(); err != nil {
			logger.Errorf("policy file reload failed: %v", err)
			return
		}
		p.notify()
	})
	v.WatchConfig()
	return p, nil
}

// ListPolicies 实现 Provider：priority 降序、created_at 升序。
func (p *FileProvider) ListPolicies(_ context.Context, modelID int64, kind types.Flow) ([]Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown decision kind %q", kind)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Record, 0, len(p.snapshot.Records))
	for _, rec := range p.snapshot.Records {
		if rec.Kind != kind || !rec.Enabled {
			continue
		}
		if rec.ModelID != 0 && modelID != 0 && rec.ModelID != modelID {
			continue
		}
		out = append(out, rec)
	}
	SortRecords(out)
	return out, nil
}

// Snapshot 返回当前快照副本。
func (p *FileProvider) Snapshot() FileSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneFileSnapshot(p.snapshot)
}

// OnChange 注册重载回调。
func (p *FileProvider) OnChange(fn FileChangeListener) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

func (p *FileProvider) reload() error {
	doc, err := readPolicyFile(p.path)
	if err != nil {
		return err
	}
	records := make([]Record, 0, len(doc.Policies))
	for i, entry := range doc.Policies {
		rec, err := entry.toRecord(i)
		if err != nil {
			logger.Warnf("策略条目被跳过 index=%d err=%v", i, err)
			continue
		}
		records = append(records, rec)
	}
	p.mu.Lock()
	p.snapshot = FileSnapshot{
		Version:  p.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Records:  records,
	}
	p.mu.Unlock()
	logger.Infof("policy file loaded count=%d file=%s", len(records), filepath.Base(p.path))
	return nil
}

func (p *FileProvider) notify() {
	p.mu.RLock()
	snap := cloneFileSnapshot(p.snapshot)
	listeners := append([]FileChangeListener(nil), p.listeners...)
	p.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb FileChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("policy file listener panic: %v", r)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func (e fileEntry) toRecord(index int) (Record, error) {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return Record{}, fmt.Errorf("policy name is empty")
	}
	kind := types.Flow(strings.ToLower(strings.TrimSpace(e.Kind)))
	if !kind.Valid() {
		return Record{}, fmt.Errorf("policy %s has unknown kind %q", name, e.Kind)
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		// 未声明创建时间时按声明顺序构造稳定的平级次序。
		createdAt = time.Unix(int64(index), 0)
	}
	return Record{
		Name:      name,
		ModelID:   e.ModelID,
		Kind:      kind,
		Priority:  e.Priority,
		CreatedAt: createdAt,
		Handler:   strings.TrimSpace(e.Handler),
		Source:    e.Source,
		Params:    e.Params,
		Enabled:   !e.Disabled,
	}, nil
}

// SortRecords 按 priority 降序、created_at 升序稳定排序。
func SortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Priority != recs[j].Priority {
			return recs[i].Priority > recs[j].Priority
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
}

func cloneFileSnapshot(src FileSnapshot) FileSnapshot {
	dst := src
	dst.Records = append([]Record(nil), src.Records...)
	return dst
}

func readPolicyFile(path string) (fileDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileDoc{}, fmt.Errorf("read policy file failed: %w", err)
	}
	var doc fileDoc
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return fileDoc{}, fmt.Errorf("parse policy file failed: %w", err)
	}
	return doc, nil
}

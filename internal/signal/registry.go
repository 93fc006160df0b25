package signal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry maps channel identifiers to parser variants. Channels without a
// dedicated entry use the default parser. Variants must satisfy the same
// validity rule as the default (action + base currency present).
type Registry struct {
	mu      sync.RWMutex
	def     Parser
	parsers map[string]Parser
}

// NewRegistry creates a registry around the default parser.
func NewRegistry(def Parser) *Registry {
	return &Registry{def: def, parsers: make(map[string]Parser)}
}

// Register binds a parser variant to a channel identifier.
func (r *Registry) Register(channel string, p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[channel] = p
}

// Lookup returns the parser for channel, falling back to the default.
func (r *Registry) Lookup(channel string) Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.parsers[channel]; ok {
		return p
	}
	return r.def
}

// Parse dispatches to the channel's parser. Any variant failure surfaces as
// ErrNoSignal with channel context, never as a partial signal.
func (r *Registry) Parse(ctx context.Context, text, channel string) (*Signal, error) {
	sig, err := r.Lookup(channel).Parse(ctx, text, channel)
	if err != nil {
		if errors.Is(err, ErrNoSignal) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: channel %s: %v", ErrNoSignal, channel, err)
	}
	if !sig.Usable() {
		return nil, fmt.Errorf("%w: channel %s: parser returned incomplete signal", ErrNoSignal, channel)
	}
	return sig, nil
}

// ChannelConfig is one channel's parser tuning in channels.yaml.
type ChannelConfig struct {
	Channel      string   `yaml:"channel"`
	QuoteDefault string   `yaml:"quote_default"`
	EntryLabels  []string `yaml:"entry_labels"`
	TargetLabels []string `yaml:"target_labels"`
	StopLabels   []string `yaml:"stop_labels"`
}

type channelConfigFile struct {
	Channels []ChannelConfig `yaml:"channels"`
}

// LoadChannelConfigs reads parser variants from a YAML file.
func LoadChannelConfigs(path string) ([]ChannelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file channelConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse channel config: %w", err)
	}
	return file.Channels, nil
}

// BuildRegistry wires the default parser plus one variant per configured
// channel. A missing config file is not an error; every channel then uses
// the default layout.
func BuildRegistry(configPath string, llm Completer, prompts PromptStore) (*Registry, error) {
	reg := NewRegistry(NewTextParser(Options{}, llm, prompts))

	if configPath == "" {
		return reg, nil
	}
	cfgs, err := LoadChannelConfigs(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return nil, err
	}

	for _, cfg := range cfgs {
		if cfg.Channel == "" {
			continue
		}
		reg.Register(cfg.Channel, NewTextParser(Options{
			QuoteDefault: cfg.QuoteDefault,
			EntryLabels:  cfg.EntryLabels,
			TargetLabels: cfg.TargetLabels,
			StopLabels:   cfg.StopLabels,
		}, llm, prompts))
	}
	return reg, nil
}

package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/binaryash/gmail-rulemaster/internal/model"
)

// Source supplies the rule set for a processing run. Implementations are
// consulted once per run so edits between runs take effect.
type Source interface {
	Load(ctx context.Context) (model.RuleSet, error)
}

// Static is a Source that always returns the same rule set.
type Static model.RuleSet

// Load returns the wrapped rule set.
func (s Static) Load(context.Context) (model.RuleSet, error) {
	return model.RuleSet(s), nil
}

// ruleFile mirrors the on-disk layout: {"rules": [...]}.
type ruleFile struct {
	Rules []ruleDef `mapstructure:"rules" json:"rules"`
}

type ruleDef struct {
	ID         string         `mapstructure:"id" json:"id"`
	Name       string         `mapstructure:"name" json:"name"`
	Predicate  string         `mapstructure:"predicate" json:"predicate"`
	Conditions []conditionDef `mapstructure:"conditions" json:"conditions"`
	Actions    []actionDef    `mapstructure:"actions" json:"actions"`
}

type conditionDef struct {
	Field     string `mapstructure:"field" json:"field"`
	Predicate string `mapstructure:"predicate" json:"predicate"`
	Value     any    `mapstructure:"value" json:"value"`
}

type actionDef struct {
	Type  string `mapstructure:"type" json:"type"`
	Value any    `mapstructure:"value" json:"value"`
}

// FileLoader reads the rule set from a JSON or YAML file on every Load.
type FileLoader struct {
	path         string
	writeDefault bool
	log          zerolog.Logger
}

// NewFileLoader creates a loader for path. When writeDefault is set and
// the file does not exist, the default rule set is written there.
func NewFileLoader(path string, writeDefault bool, log zerolog.Logger) *FileLoader {
	return &FileLoader{
		path:         path,
		writeDefault: writeDefault,
		log:          log.With().Str("component", "rules").Logger(),
	}
}

// Load reads and parses the rule file. A missing file yields the default
// rule set. A file that cannot be parsed yields an empty rule set and is
// logged rather than returned, so a bad edit stops matching instead of
// failing the run.
func (l *FileLoader) Load(_ context.Context) (model.RuleSet, error) {
	if _, err := os.Stat(l.path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("checking rules file %s: %w", l.path, err)
		}
		l.log.Info().Str("path", l.path).Msg("rules file not found, using default rules")
		if l.writeDefault {
			if err := WriteRuleSet(l.path, model.DefaultRuleSet()); err != nil {
				l.log.Warn().Err(err).Msg("failed to write default rules file")
			}
		}
		return model.DefaultRuleSet(), nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file %s: %w", l.path, err)
	}

	v := viper.New()
	v.SetConfigType(configType(l.path))
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		l.log.Error().Err(err).Str("path", l.path).Msg("error parsing rules file")
		return model.RuleSet{}, nil
	}

	var file ruleFile
	if err := v.Unmarshal(&file); err != nil {
		l.log.Error().Err(err).Str("path", l.path).Msg("error decoding rules file")
		return model.RuleSet{}, nil
	}

	rs := parseDefs(file.Rules)
	l.logUnknown(rs)
	return rs, nil
}

// parseDefs converts raw rule definitions into a RuleSet. Field and predicate
// strings are mapped onto closed enums; unrecognized values become the
// Unknown variants, which never match.
func parseDefs(defs []ruleDef) model.RuleSet {
	rs := make(model.RuleSet, 0, len(defs))
	for _, d := range defs {
		id := d.ID
		if id == "" {
			id = "unknown"
		}
		name := d.Name
		if name == "" {
			name = "Rule " + id
		}

		rule := model.Rule{
			ID:        id,
			Name:      name,
			Predicate: model.ParseMatch(d.Predicate),
		}
		for _, c := range d.Conditions {
			rule.Conditions = append(rule.Conditions, model.Condition{
				Field:     model.ParseField(c.Field),
				Predicate: model.ParseOp(c.Predicate),
				Value:     stringify(c.Value),
			})
		}
		for _, a := range d.Actions {
			rule.Actions = append(rule.Actions, model.Action{
				Type:  model.ParseActionType(a.Type),
				Value: stringify(a.Value),
			})
		}
		rs = append(rs, rule)
	}
	return rs
}

// WriteRuleSet writes rs to path as indented JSON, creating parent
// directories if needed.
func WriteRuleSet(path string, rs model.RuleSet) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating rules directory: %w", err)
	}

	file := ruleFile{Rules: make([]ruleDef, 0, len(rs))}
	for _, r := range rs {
		d := ruleDef{ID: r.ID, Name: r.Name, Predicate: string(r.Predicate)}
		for _, c := range r.Conditions {
			d.Conditions = append(d.Conditions, conditionDef{
				Field:     string(c.Field),
				Predicate: string(c.Predicate),
				Value:     c.Value,
			})
		}
		for _, a := range r.Actions {
			var value any = a.Value
			if a.Type == model.ActionMarkAsRead {
				value = a.BoolValue()
			}
			d.Actions = append(d.Actions, actionDef{Type: string(a.Type), Value: value})
		}
		file.Rules = append(file.Rules, d)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding rules: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing rules file %s: %w", path, err)
	}
	return nil
}

func (l *FileLoader) logUnknown(rs model.RuleSet) {
	for _, r := range rs {
		for i, c := range r.Conditions {
			if c.Field == model.FieldUnknown || c.Predicate == model.OpUnknown {
				l.log.Warn().
					Str("rule_id", r.ID).
					Int("condition", i).
					Msg("condition has an unrecognized field or predicate and will never match")
			}
		}
		for _, a := range r.Actions {
			if !a.Type.Supported() {
				l.log.Warn().
					Str("rule_id", r.ID).
					Str("action_type", string(a.Type)).
					Msg("action type is not supported")
			}
		}
	}
}

// configType picks the viper decoder from the file extension, defaulting
// to JSON.
func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "json"
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

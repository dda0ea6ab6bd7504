package rules

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"rulemate/internal/action"
)

type fileConfig struct {
	Rulesets []fileRuleset `mapstructure:"rulesets"`
}

type fileRuleset struct {
	Name            string     `mapstructure:"name"`
	GlobalPredicate string     `mapstructure:"global_predicate"`
	Rules           []fileRule `mapstructure:"rules"`
	Actions         []string   `mapstructure:"actions"`
}

type fileRule struct {
	Field     string `mapstructure:"field"`
	Predicate string `mapstructure:"predicate"`
	Value     string `mapstructure:"value"`
}

// Load reads a rules file. The format follows the file extension (json,
// yaml).
func Load(path string, log logrus.FieldLogger) ([]Ruleset, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	return decode(v, log)
}

// Parse reads rules from memory. format is a viper config type such as
// "json" or "yaml".
func Parse(data []byte, format string, log logrus.FieldLogger) ([]Ruleset, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	return decode(v, log)
}

func decode(v *viper.Viper, log logrus.FieldLogger) ([]Ruleset, error) {
	var raw fileConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	return compile(raw, log)
}

// compile resolves fields and parses actions. Unknown fields and unnamed
// rulesets are errors; unknown predicates and actions only warn.
func compile(raw fileConfig, log logrus.FieldLogger) ([]Ruleset, error) {
	var errs []error
	rulesets := make([]Ruleset, 0, len(raw.Rulesets))

	for i, rs := range raw.Rulesets {
		name := strings.TrimSpace(rs.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("ruleset %d: name is required", i))
			continue
		}
		rlog := log.WithField("ruleset", name)

		out := Ruleset{
			Name:            name,
			GlobalPredicate: GlobalPredicate(strings.ToLower(strings.TrimSpace(rs.GlobalPredicate))),
			Rules:           make([]Rule, 0, len(rs.Rules)),
			Actions:         make([]action.Action, 0, len(rs.Actions)),
		}
		if !out.GlobalPredicate.Known() {
			rlog.WithField("global_predicate", rs.GlobalPredicate).Warn("Unknown global predicate, ruleset will never match")
		}

		for j, r := range rs.Rules {
			field, err := ParseField(r.Field)
			if err != nil {
				errs = append(errs, fmt.Errorf("ruleset %q rule %d: %w", name, j, err))
				continue
			}
			pred := Predicate(strings.ToLower(strings.TrimSpace(r.Predicate)))
			if !pred.Known() {
				rlog.WithField("predicate", r.Predicate).Warn("Unknown predicate, rule will evaluate to false")
			}
			out.Rules = append(out.Rules, Rule{Field: field, Predicate: pred, Value: r.Value})
		}

		for _, s := range rs.Actions {
			a := action.Parse(s)
			if !a.Known() {
				rlog.WithField("action", s).Warn("Unknown action, it will fail when executed")
			}
			out.Actions = append(out.Actions, a)
		}

		rulesets = append(rulesets, out)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rulesets, nil
}

// Loader keeps the current rulesets of a file and optionally reloads them
// when the file changes.
type Loader struct {
	path string
	log  logrus.FieldLogger

	mu       sync.RWMutex
	rulesets []Ruleset
	onChange []func([]Ruleset)

	watchOnce sync.Once
}

// NewLoader loads path once. An invalid file is an error.
func NewLoader(path string, log logrus.FieldLogger) (*Loader, error) {
	l := &Loader{path: path, log: log.WithField("rules_file", path)}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Rulesets returns the rulesets currently in effect.
func (l *Loader) Rulesets() []Ruleset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rulesets
}

// OnChange registers fn to be called after every successful reload.
func (l *Loader) OnChange(fn func([]Ruleset)) {
	l.mu.Lock()
	l.onChange = append(l.onChange, fn)
	l.mu.Unlock()
}

// Reload re-reads the file. On error the previous rulesets stay in effect.
func (l *Loader) Reload() error {
	rulesets, err := Load(l.path, l.log)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.rulesets = rulesets
	callbacks := append([]func([]Ruleset){}, l.onChange...)
	l.mu.Unlock()

	l.log.WithField("rulesets", len(rulesets)).Info("Rules loaded")
	for _, fn := range callbacks {
		fn(rulesets)
	}
	return nil
}

// Watch reloads the rules whenever the file is written.
func (l *Loader) Watch() {
	l.watchOnce.Do(func() {
		v := viper.New()
		v.SetConfigFile(l.path)
		v.OnConfigChange(func(e fsnotify.Event) {
			if err := l.Reload(); err != nil {
				l.log.WithError(err).Error("Rules reload failed, keeping previous rulesets")
			}
		})
		v.WatchConfig()
	})
}

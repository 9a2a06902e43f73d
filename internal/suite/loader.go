// Package suite reads declarative test definitions from disk.
package suite

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

// Loader reads every definition file in one directory.
type Loader struct {
	dir    string
	logger *zap.Logger
}

// NewLoader creates a loader for dir.
func NewLoader(dir string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{dir: dir, logger: logger.Named("suite")}
}

// Load parses every .json, .yaml and .yml file in the directory, in name
// order. Any malformed file fails the whole load.
func (l *Loader) Load(ctx context.Context) ([]schemas.FeatureTest, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("reading test directory %s: %w", l.dir, err)
	}

	var tests []schemas.FeatureTest
	seen := make(map[string]string)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !isDefinitionFile(entry.Name()) {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		test, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[test.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate test id %q (already defined in %s)", path, test.ID, prev)
		}
		seen[test.ID] = path
		tests = append(tests, test)
	}

	l.checkPrerequisites(tests)
	l.logger.Info("Loaded test suite.", zap.String("dir", l.dir), zap.Int("tests", len(tests)))
	return tests, nil
}

func (l *Loader) checkPrerequisites(tests []schemas.FeatureTest) {
	position := make(map[string]int, len(tests))
	for i, t := range tests {
		position[t.ID] = i
	}
	for i, t := range tests {
		for _, pre := range t.Prerequisites {
			at, ok := position[pre]
			switch {
			case !ok:
				l.logger.Warn("Prerequisite is not part of the suite.",
					zap.String("test_id", t.ID), zap.String("prerequisite", pre))
			case at > i:
				l.logger.Warn("Prerequisite is loaded after the test that needs it.",
					zap.String("test_id", t.ID), zap.String("prerequisite", pre))
			}
		}
	}
}

func isDefinitionFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadFile parses and validates a single definition file.
func LoadFile(path string) (schemas.FeatureTest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return schemas.FeatureTest{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var def testDefinition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&def)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&def)
	}
	if err != nil {
		return schemas.FeatureTest{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	test := def.toFeatureTest()
	if err := Validate(test); err != nil {
		return schemas.FeatureTest{}, fmt.Errorf("%s: %w", path, err)
	}
	return test, nil
}

// Validate checks the required fields and that every step compiles.
func Validate(t schemas.FeatureTest) error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("test id is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("test %q: name is required", t.ID)
	}
	if len(t.Steps) == 0 {
		return fmt.Errorf("test %q: at least one step is required", t.ID)
	}
	if t.MaxDuration < 0 {
		return fmt.Errorf("test %q: maxDuration must not be negative", t.ID)
	}
	for i, s := range t.Steps {
		if s.Timeout < 0 {
			return fmt.Errorf("test %q step %d: timeout must not be negative", t.ID, i+1)
		}
		if _, err := s.Compile(); err != nil {
			return fmt.Errorf("test %q step %d: %w", t.ID, i+1, err)
		}
	}
	for i, s := range t.Cleanup {
		if _, err := s.Compile(); err != nil {
			return fmt.Errorf("test %q cleanup step %d: %w", t.ID, i+1, err)
		}
	}
	return nil
}

// Filter keeps the tests whose module is listed in features. An empty list
// keeps everything.
func Filter(tests []schemas.FeatureTest, features []string) []schemas.FeatureTest {
	if len(features) == 0 {
		return tests
	}
	want := make(map[string]bool, len(features))
	for _, f := range features {
		want[strings.ToLower(strings.TrimSpace(f))] = true
	}
	kept := make([]schemas.FeatureTest, 0, len(tests))
	for _, t := range tests {
		if want[strings.ToLower(t.Module)] {
			kept = append(kept, t)
		}
	}
	return kept
}

// -- Wire format --

type testDefinition struct {
	ID            string           `json:"id" yaml:"id"`
	Name          string           `json:"name" yaml:"name"`
	Module        string           `json:"module" yaml:"module"`
	Prerequisites []string         `json:"prerequisites" yaml:"prerequisites"`
	Steps         []stepDefinition `json:"steps" yaml:"steps"`
	Cleanup       []stepDefinition `json:"cleanup" yaml:"cleanup"`
	MaxDuration   int64            `json:"maxDuration" yaml:"maxDuration"`
}

type stepDefinition struct {
	Action      string      `json:"action" yaml:"action"`
	Selector    string      `json:"selector" yaml:"selector"`
	Value       scalarValue `json:"value" yaml:"value"`
	Timeout     int64       `json:"timeout" yaml:"timeout"`
	Description string      `json:"description" yaml:"description"`
	Critical    *bool       `json:"critical" yaml:"critical"`
}

// scalarValue accepts a string, number or boolean and keeps its text.
type scalarValue string

func (v *scalarValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = scalarValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*v = scalarValue(n.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = scalarValue(strconv.FormatBool(b))
		return nil
	}
	return fmt.Errorf("value must be a string or number, got %s", data)
}

func (v *scalarValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: value must be a scalar", node.Line)
	}
	*v = scalarValue(node.Value)
	return nil
}

func (d testDefinition) toFeatureTest() schemas.FeatureTest {
	return schemas.FeatureTest{
		ID:            strings.TrimSpace(d.ID),
		Name:          d.Name,
		Module:        d.Module,
		Prerequisites: d.Prerequisites,
		Steps:         toSteps(d.Steps),
		Cleanup:       toSteps(d.Cleanup),
		MaxDuration:   d.MaxDuration,
	}
}

func toSteps(defs []stepDefinition) []schemas.TestStep {
	if len(defs) == 0 {
		return nil
	}
	steps := make([]schemas.TestStep, len(defs))
	for i, d := range defs {
		steps[i] = schemas.TestStep{
			Action:      strings.ToLower(strings.TrimSpace(d.Action)),
			Selector:    d.Selector,
			Value:       string(d.Value),
			Timeout:     d.Timeout,
			Description: d.Description,
			Critical:    d.Critical,
		}
	}
	return steps
}

// Package validation checks the XML files that tasks generate: each file
// must be well-formed and, when a validation command and a schema are
// known, must pass that command.
package validation

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Dans-labs/laf-fabric/internal/config"
	fabricerrors "github.com/Dans-labs/laf-fabric/internal/errors"
)

// Validity is the outcome of validating one file
type Validity string

const (
	Valid    Validity = "VALID"
	NotValid Validity = "NOT VALID"
	Unknown  Validity = "UNKNOWN"
)

// Result is the validation state of a generated file
type Result struct {
	Path     string
	Schema   string
	Validity Validity
	Problem  string
}

// Validator keeps the generated files of a run and their validity
type Validator struct {
	command   []string
	schemaDir string
	logger    *zap.Logger

	mu    sync.Mutex
	files []*Result
	index map[string]*Result
}

// NewValidator creates a validator and copies the schemas of the source
// directory into the destination directory, where the command finds them
func NewValidator(cfg config.ValidateConfig, logger *zap.Logger) (*Validator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Validator{
		command:   strings.Fields(cfg.Command),
		schemaDir: cfg.SchemaDstDir,
		logger:    logger,
		index:     make(map[string]*Result),
	}
	if cfg.SchemaSrcDir != "" && cfg.SchemaDstDir != "" {
		if err := copySchemas(cfg.SchemaSrcDir, cfg.SchemaDstDir); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func copySchemas(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fabricerrors.SourceMissing(src, err)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("failed to create schema directory: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, e.Name()))
		if err != nil {
			return fmt.Errorf("failed to read schema %s: %w", e.Name(), err)
		}
		if err := os.WriteFile(filepath.Join(dst, e.Name()), data, 0644); err != nil {
			return fmt.Errorf("failed to copy schema %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Register adds a generated file, with the name of its schema or ""
func (v *Validator) Register(path, schema string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if r, ok := v.index[path]; ok {
		r.Schema = schema
		r.Validity = Unknown
		r.Problem = ""
		return
	}
	r := &Result{Path: path, Schema: schema, Validity: Unknown}
	v.files = append(v.files, r)
	v.index[path] = r
}

// Validate checks all registered files. It returns the number of files
// that are not valid.
func (v *Validator) Validate(ctx context.Context) int {
	v.mu.Lock()
	files := append([]*Result(nil), v.files...)
	v.mu.Unlock()

	bad := 0
	for _, r := range files {
		validity, problem := v.check(ctx, r)
		v.mu.Lock()
		r.Validity, r.Problem = validity, problem
		v.mu.Unlock()
		if validity == NotValid {
			bad++
			v.logger.Warn("Generated file not valid",
				zap.String("file", r.Path),
				zap.String("schema", r.Schema),
				zap.String("problem", problem))
		}
	}
	return bad
}

func (v *Validator) check(ctx context.Context, r *Result) (Validity, string) {
	if err := wellFormed(r.Path); err != nil {
		return NotValid, err.Error()
	}
	if len(v.command) == 0 || r.Schema == "" {
		return Unknown, ""
	}

	args := make([]string, len(v.command))
	for i, a := range v.command {
		a = strings.ReplaceAll(a, "{schema}", filepath.Join(v.schemaDir, r.Schema))
		args[i] = strings.ReplaceAll(a, "{xmlfile}", r.Path)
	}
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return NotValid, strings.TrimSpace(out.String())
		}
		v.logger.Warn("Cannot run validation command", zap.String("command", args[0]), zap.Error(err))
		return Unknown, err.Error()
	}
	return Valid, ""
}

func wellFormed(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	sawRoot := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if _, ok := tok.(xml.StartElement); ok {
			sawRoot = true
		}
	}
	if !sawRoot {
		return fmt.Errorf("no root element")
	}
	return nil
}

// Results returns the files in registration order
func (v *Validator) Results() []Result {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Result, len(v.files))
	for i, r := range v.files {
		out[i] = *r
	}
	return out
}

// Report writes one line per file
func (v *Validator) Report(w io.Writer) {
	for _, r := range v.Results() {
		if r.Schema == "" {
			fmt.Fprintf(w, "Generated xml file %s %s\n", r.Validity, filepath.Base(r.Path))
			continue
		}
		fmt.Fprintf(w, "Generated xml file %s %s wrt. %s\n", r.Validity, filepath.Base(r.Path), r.Schema)
	}
}

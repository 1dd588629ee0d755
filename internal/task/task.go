// Package task defines the unit of work that runs against loaded data,
// and the built-in tasks.
package task

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Dans-labs/laf-fabric/internal/api"
	fabricerrors "github.com/Dans-labs/laf-fabric/internal/errors"
	"github.com/Dans-labs/laf-fabric/internal/loadspec"
	"github.com/Dans-labs/laf-fabric/internal/logging"
)

// Task is a named piece of work together with the data it needs
type Task interface {
	Name() string
	Spec() *loadspec.Spec
	Run(ctx context.Context, r *Run) error
}

// Registrar records generated files for validation
type Registrar interface {
	Register(path, schema string)
}

// Run is what a running task gets to work with
type Run struct {
	API    *api.API
	Source string
	Annox  string
	Dir    string

	stamp     *logging.Stamp
	registrar Registrar

	mu      sync.Mutex
	results []*result
}

type result struct {
	path string
	file *os.File
	w    *bufio.Writer
}

// NewRun creates the context of one task run that writes into dir
func NewRun(a *api.API, source, annox, dir string, stamp *logging.Stamp, registrar Registrar) *Run {
	return &Run{API: a, Source: source, Annox: annox, Dir: dir, stamp: stamp, registrar: registrar}
}

// AddResult creates an output file in the task directory
func (r *Run) AddResult(name string) (*bufio.Writer, error) {
	return r.addResult(name, "", false)
}

// AddXMLResult creates an XML output file that is validated against
// schema after the run; schema may be empty
func (r *Run) AddXMLResult(name, schema string) (*bufio.Writer, error) {
	return r.addResult(name, schema, true)
}

func (r *Run) addResult(name, schema string, isXML bool) (*bufio.Writer, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fabricerrors.InvalidArgument(fmt.Sprintf("invalid result name %q", name), nil)
	}
	path := filepath.Join(r.Dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create result %s: %w", name, err)
	}
	res := &result{path: path, file: f, w: bufio.NewWriter(f)}

	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()

	if isXML && r.registrar != nil {
		r.registrar.Register(path, schema)
	}
	return res.w, nil
}

// Results returns the paths of the output files created so far
func (r *Run) Results() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, len(r.results))
	for i, res := range r.results {
		paths[i] = res.path
	}
	return paths
}

// Msg writes a progress message with the elapsed time
func (r *Run) Msg(format string, args ...interface{}) {
	if r.stamp != nil {
		r.stamp.Imsg(format, args...)
	}
}

// Close flushes and closes all output files
func (r *Run) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, res := range r.results {
		if res.file == nil {
			continue
		}
		if err := res.w.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := res.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		res.file = nil
	}
	return firstErr
}

// Registry holds the known tasks by name
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

// NewRegistry creates a registry with the given tasks
func NewRegistry(tasks ...Task) *Registry {
	r := &Registry{tasks: make(map[string]Task)}
	for _, t := range tasks {
		r.Register(t)
	}
	return r
}

// Builtin returns a registry with the built-in tasks
func Builtin() *Registry {
	return NewRegistry(NewPlain(), NewInventory(), NewTrees())
}

// Register adds or replaces a task
func (r *Registry) Register(t Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.Name()] = t
}

// Lookup finds a task by name
func (r *Registry) Lookup(name string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	if !ok {
		return nil, fabricerrors.UnknownTask(name)
	}
	return t, nil
}

// Names lists the registered tasks, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tasks))
	for n := range r.tasks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

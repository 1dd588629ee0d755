package names

import (
	"path/filepath"

	fabricerrors "github.com/Dans-labs/laf-fabric/internal/errors"
)

// Info is everything needed to locate and decode a data item
type Info struct {
	IsGraph  bool
	Dir      string
	File     string
	Type     DataType
	Prepared bool
	// Version identifies the compilation the item belongs to
	Version string
}

// Path returns the full path of the data item file
func (i Info) Path() string {
	return filepath.Join(i.Dir, i.File)
}

// CacheKey identifies the item across compilations of the same file
func (i Info) CacheKey() string {
	if i.Version == "" {
		return i.Path()
	}
	return i.Path() + "@" + i.Version
}

// Plan is the difference between two consecutive requests
type Plan struct {
	Clear []string
	Keep  []string
	Load  []string
}

// RequestTable holds one condition per key prefix, e.g. mG00 or mFn0
type RequestTable map[string]Condition

// Names tracks the data items requested now and previously, relative to the
// compiled directories of the current source, annox and preparers.
type Names struct {
	dirs     map[byte]string
	versions map[byte]string

	reqKeys []string
	req     map[string]Info
	oldKeys []string
	old     map[string]Info
}

// New creates a Names for the given compiled directories, keyed by origin letter
func New(dirs map[byte]string) *Names {
	return &Names{
		dirs: dirs,
		req:  make(map[string]Info),
		old:  make(map[string]Info),
	}
}

// SetDirs replaces the compiled directories, e.g. after switching sources
func (n *Names) SetDirs(dirs map[byte]string) {
	n.dirs = dirs
}

// SetVersions records which compilation each origin directory holds. An item
// whose version changed is cleared and loaded again.
func (n *Names) SetVersions(versions map[byte]string) {
	n.versions = versions
}

// RequestInit returns the default request table. Items sharing a prefix
// share a condition; the last registered default wins.
func (n *Names) RequestInit() RequestTable {
	table := make(RequestTable, len(itemDefs))
	for _, d := range itemDefs {
		prefix, _ := Decomp(d.key)
		cond := d.cond
		if cond.Comps != nil {
			cond.Comps = append([][]string(nil), cond.Comps...)
		}
		table[prefix] = cond
	}
	return table
}

// Info resolves a key against the current directories. Temporary items have
// no info.
func (n *Names) Info(dkey string) (Info, bool, error) {
	d, ok := lookup(dkey)
	if !ok {
		return Info{}, false, fabricerrors.UnknownDataKey(dkey)
	}
	p, err := DecompFull(dkey)
	if err != nil {
		return Info{}, false, err
	}
	if p.Group == GroupTemporary {
		return Info{}, false, nil
	}
	return Info{
		IsGraph:  p.Group != GroupFeatures && p.Group != GroupConnectivity,
		Dir:      n.dirs[p.Origin],
		File:     CompFile(p.Group, p.Kind, p.Direction, p.Comps),
		Type:     d.dtype,
		Prepared: p.Origin == OriginPrepared,
		Version:  n.versions[p.Origin],
	}, true, nil
}

// RequestFiles makes the table the current request and returns which items
// to clear, keep and load relative to the previous request. Prepared items
// are never loaded from disk.
func (n *Names) RequestFiles(table RequestTable) (Plan, error) {
	n.oldKeys, n.old = n.reqKeys, n.req
	n.reqKeys, n.req = nil, make(map[string]Info)

	add := func(dkey string) error {
		info, ok, err := n.Info(dkey)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if _, seen := n.req[dkey]; !seen {
			n.reqKeys = append(n.reqKeys, dkey)
		}
		n.req[dkey] = info
		return nil
	}

	for _, d := range itemDefs {
		prefix, _ := Decomp(d.key)
		cond, ok := table[prefix]
		if !ok {
			continue
		}
		switch cond.Mode {
		case CondOn:
			if err := add(d.key); err != nil {
				return Plan{}, err
			}
		case CondList:
			for _, comps := range cond.Comps {
				if err := add(Comp(d.key, comps)); err != nil {
					return Plan{}, err
				}
			}
		}
	}

	var plan Plan
	for _, dkey := range n.oldKeys {
		if info, ok := n.req[dkey]; !ok || info != n.old[dkey] {
			plan.Clear = append(plan.Clear, dkey)
		}
	}
	for _, dkey := range n.reqKeys {
		info := n.req[dkey]
		if old, ok := n.old[dkey]; ok && old == info {
			plan.Keep = append(plan.Keep, dkey)
		} else if !info.Prepared {
			plan.Load = append(plan.Load, dkey)
		}
	}
	return plan, nil
}

// Requested returns the keys of the current request in registration order
func (n *Names) Requested() []string {
	return append([]string(nil), n.reqKeys...)
}

// RequestedInfo returns the info of a key in the current request
func (n *Names) RequestedInfo(dkey string) (Info, bool) {
	info, ok := n.req[dkey]
	return info, ok
}

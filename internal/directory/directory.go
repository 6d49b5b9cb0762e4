package directory

import (
	"sort"
	"sync/atomic"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
)

type snapshot struct {
	supervisorOf map[string]string   // extension -> supervisor
	extensionsOf map[string][]string // supervisor -> sorted extensions
}

// Directory maps agent extensions to supervisors. Lookups read an immutable
// snapshot that Replace swaps atomically.
type Directory struct {
	current atomic.Pointer[snapshot]
}

// New creates an empty directory
func New() *Directory {
	d := &Directory{}
	d.current.Store(&snapshot{
		supervisorOf: map[string]string{},
		extensionsOf: map[string][]string{},
	})
	return d
}

// Replace installs a new mapping. Identifiers are normalized and rows with an
// empty side are skipped.
func (d *Directory) Replace(mappings []types.SupervisorMapping) {
	next := &snapshot{
		supervisorOf: make(map[string]string, len(mappings)),
		extensionsOf: make(map[string][]string),
	}
	for _, m := range mappings {
		ext := types.NormalizeID(m.Extension)
		sup := types.NormalizeID(m.SupervisorID)
		if ext == "" || sup == "" {
			continue
		}
		if prev, ok := next.supervisorOf[ext]; ok {
			next.extensionsOf[prev] = remove(next.extensionsOf[prev], ext)
		}
		next.supervisorOf[ext] = sup
		next.extensionsOf[sup] = append(next.extensionsOf[sup], ext)
	}
	for sup, exts := range next.extensionsOf {
		if len(exts) == 0 {
			delete(next.extensionsOf, sup)
			continue
		}
		sort.Strings(exts)
	}
	d.current.Store(next)
}

// Resolve returns the supervisor of an agent extension
func (d *Directory) Resolve(agentID string) (string, bool) {
	sup, ok := d.current.Load().supervisorOf[types.NormalizeID(agentID)]
	return sup, ok
}

// ExtensionsFor returns the extensions a supervisor monitors
func (d *Directory) ExtensionsFor(supervisorID string) []string {
	exts := d.current.Load().extensionsOf[types.NormalizeID(supervisorID)]
	return append([]string(nil), exts...)
}

// Len returns the number of mapped extensions
func (d *Directory) Len() int {
	return len(d.current.Load().supervisorOf)
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

// Package handle implements the per-core handle table: the map from
// InterfaceHandle to a BasicHandleInfo summary, with secondary indexes by
// name and protected by a reader-writer guard per spec §5 ("many readers for
// public getters, single writer for registrations").
package handle

import (
	"sync"

	"github.com/timmyreynolds/HELICS/internal/herrors"
	"github.com/timmyreynolds/HELICS/internal/ids"
	"github.com/timmyreynolds/HELICS/internal/iface"
)

// BasicHandleInfo is the handle table's summary record for one interface,
// independent of which of the five concrete variants it backs.
type BasicHandleInfo struct {
	Handle   ids.InterfaceHandle
	Federate ids.LocalFederateId
	Kind     iface.Kind
	Key      string
	IsGlobal bool
	Type     string
	Units    string
	Used     bool
}

// Manager is a per-core table mapping InterfaceHandle to BasicHandleInfo.
// Global keys are indexed in one federation-wide namespace; local keys are
// namespaced per federate, per spec §3 ("local keys are implicitly
// namespaced by federate and need not be unique federation-wide — only
// global keys do").
type Manager struct {
	mu           sync.RWMutex
	gen          *ids.HandleGenerator
	byHandle     map[ids.InterfaceHandle]*BasicHandleInfo
	byGlobalName map[string]ids.InterfaceHandle
	byLocalName  map[ids.LocalFederateId]map[string]ids.InterfaceHandle
}

// NewManager returns an empty handle table.
func NewManager() *Manager {
	return &Manager{
		gen:          ids.NewHandleGenerator(),
		byHandle:     make(map[ids.InterfaceHandle]*BasicHandleInfo),
		byGlobalName: make(map[string]ids.InterfaceHandle),
		byLocalName:  make(map[ids.LocalFederateId]map[string]ids.InterfaceHandle),
	}
}

// Register allocates a new local handle and inserts its summary record.
// Registering with global set to true fails with RegistrationFailure if key
// is already taken federation-wide; with global false, the key only needs
// to be unique within fed's own namespace, so two federates may each
// register a local interface called e.g. "input1" without conflict.
func (m *Manager) Register(fed ids.LocalFederateId, kind iface.Kind, key string, global bool) (*BasicHandleInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key != "" {
		if global {
			if _, exists := m.byGlobalName[key]; exists {
				return nil, herrors.NewRegistrationFailure("duplicate global interface key %q", key)
			}
		} else if _, exists := m.byLocalName[fed][key]; exists {
			return nil, herrors.NewRegistrationFailure("duplicate local interface key %q for federate %v", key, fed)
		}
	}

	h := m.gen.Next()
	info := &BasicHandleInfo{
		Handle:   h,
		Federate: fed,
		Kind:     kind,
		Key:      key,
		IsGlobal: global,
	}
	m.byHandle[h] = info
	if key != "" {
		if global {
			m.byGlobalName[key] = h
		} else {
			if m.byLocalName[fed] == nil {
				m.byLocalName[fed] = make(map[string]ids.InterfaceHandle)
			}
			m.byLocalName[fed][key] = h
		}
	}
	return info, nil
}

// Lookup returns the summary record for a handle.
func (m *Manager) Lookup(h ids.InterfaceHandle) (*BasicHandleInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.byHandle[h]
	return info, ok
}

// LookupByName resolves a global interface key, for named-interface
// resolution (spec §4.2). Local keys are not resolvable this way since they
// are only meaningful within their owning federate's namespace.
func (m *Manager) LookupByName(key string) (ids.InterfaceHandle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.byGlobalName[key]
	return h, ok
}

// LookupByLocalName resolves a local interface key within fed's namespace.
func (m *Manager) LookupByLocalName(fed ids.LocalFederateId, key string) (ids.InterfaceHandle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.byLocalName[fed][key]
	return h, ok
}

// MarkUsed flags an interface as having carried traffic, for the
// connection-finalization "unused interface" check.
func (m *Manager) MarkUsed(h ids.InterfaceHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.byHandle[h]; ok {
		info.Used = true
	}
}

// Unused returns the handles that have never carried traffic.
func (m *Manager) Unused() []ids.InterfaceHandle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ids.InterfaceHandle
	for h, info := range m.byHandle {
		if !info.Used {
			out = append(out, h)
		}
	}
	return out
}

// Remove tombstones a handle: it is dropped from lookups so no further
// traffic is delivered to or from it, per the §3 "closed interfaces" rule.
func (m *Manager) Remove(h ids.InterfaceHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.byHandle[h]; ok {
		if info.IsGlobal {
			delete(m.byGlobalName, info.Key)
		} else {
			delete(m.byLocalName[info.Federate], info.Key)
		}
		delete(m.byHandle, h)
	}
}

// Size returns the number of currently registered handles.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byHandle)
}

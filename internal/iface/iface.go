// Package iface defines the five interface variants that make up the value
// and message graph: Publication, Input, Endpoint, Filter and Translator.
// They share the attribute set spec §3 calls out, expressed here as a common
// embedded Base.
package iface

import "github.com/timmyreynolds/HELICS/internal/ids"

// Kind distinguishes the five interface variants for handle-table indexing
// and wire registration frames.
type Kind int

const (
	KindPublication Kind = iota
	KindInput
	KindEndpoint
	KindFilter
	KindCloningFilter
	KindTranslator
)

func (k Kind) String() string {
	switch k {
	case KindPublication:
		return "publication"
	case KindInput:
		return "input"
	case KindEndpoint:
		return "endpoint"
	case KindFilter:
		return "filter"
	case KindCloningFilter:
		return "cloning_filter"
	case KindTranslator:
		return "translator"
	default:
		return "unknown"
	}
}

// Base holds the attributes shared by all five interface variants.
type Base struct {
	Handle  ids.InterfaceHandle
	Global  ids.GlobalHandle
	Fed     ids.LocalFederateId
	Kind    Kind
	Key     string // local or global name, per IsGlobal
	IsGlobal bool
	Type    string
	Units   string
	Info    string
	Tags    map[string]string
	Used    bool // set once traffic has flowed, for connection-finalization checks
}

func newBase(h ids.InterfaceHandle, fed ids.LocalFederateId, kind Kind, key string, global bool) Base {
	return Base{
		Handle:   h,
		Fed:      fed,
		Kind:     kind,
		Key:      key,
		IsGlobal: global,
		Tags:     make(map[string]string),
	}
}

// Publication is a source of typed values with zero or more destination
// input targets.
type Publication struct {
	Base
	DestinationTargets []ids.GlobalHandle
}

// NewPublication constructs a Publication with no targets.
func NewPublication(h ids.InterfaceHandle, fed ids.LocalFederateId, key string, global bool) *Publication {
	return &Publication{Base: newBase(h, fed, KindPublication, key, global)}
}

func (p *Publication) AddDestination(target ids.GlobalHandle) {
	p.DestinationTargets = append(p.DestinationTargets, target)
}

// Input is a sink of values with zero or more source publication targets. It
// stores the last value received per source and an optional default used
// before any value has arrived.
type Input struct {
	Base
	SourceTargets []ids.GlobalHandle
	LastValue     map[ids.GlobalHandle][]byte
	Default       []byte
}

func NewInput(h ids.InterfaceHandle, fed ids.LocalFederateId, key string, global bool) *Input {
	return &Input{
		Base:      newBase(h, fed, KindInput, key, global),
		LastValue: make(map[ids.GlobalHandle][]byte),
	}
}

func (i *Input) AddSource(target ids.GlobalHandle) {
	i.SourceTargets = append(i.SourceTargets, target)
}

func (i *Input) SetValue(source ids.GlobalHandle, value []byte) {
	i.LastValue[source] = value
}

// Value returns the most recent value, falling back to the configured
// default if no value has arrived from any source yet.
func (i *Input) Value() []byte {
	for _, v := range i.LastValue {
		return v
	}
	return i.Default
}

// Endpoint is a bidirectional addressable message port with an optional
// default destination. Its message queue lives in package message, not
// here, since the queue discipline is independently testable.
type Endpoint struct {
	Base
	SourceTargets      []ids.GlobalHandle
	DestinationTargets []ids.GlobalHandle
	DefaultDestination ids.GlobalHandle
}

func NewEndpoint(h ids.InterfaceHandle, fed ids.LocalFederateId, key string, global bool) *Endpoint {
	return &Endpoint{Base: newBase(h, fed, KindEndpoint, key, global)}
}

func (e *Endpoint) AddSource(target ids.GlobalHandle)      { e.SourceTargets = append(e.SourceTargets, target) }
func (e *Endpoint) AddDestination(target ids.GlobalHandle) { e.DestinationTargets = append(e.DestinationTargets, target) }

// FilterMode distinguishes a non-cloning (transform/drop) filter from a
// cloning filter (copies to delivery endpoints without altering the
// primary flow).
type FilterMode int

const (
	FilterNonCloning FilterMode = iota
	FilterCloning
)

// Filter operates on messages passing through its bound source endpoints.
type Filter struct {
	Base
	Mode             FilterMode
	SourceEndpoints  []ids.GlobalHandle
	DestEndpoints    []ids.GlobalHandle // bound targets for non-cloning filters
	DeliveryEndpoints []ids.GlobalHandle // clone destinations for cloning filters
}

func NewFilter(h ids.InterfaceHandle, fed ids.LocalFederateId, key string, global bool, mode FilterMode) *Filter {
	k := KindFilter
	if mode == FilterCloning {
		k = KindCloningFilter
	}
	return &Filter{Base: newBase(h, fed, k, key, global), Mode: mode}
}

func (f *Filter) BindSource(ep ids.GlobalHandle) { f.SourceEndpoints = append(f.SourceEndpoints, ep) }
func (f *Filter) AddDeliveryEndpoint(ep ids.GlobalHandle) {
	f.DeliveryEndpoints = append(f.DeliveryEndpoints, ep)
}

// Encoding names the serialization a Translator uses to bridge the value and
// message domains.
type Encoding int

const (
	EncodingJSON Encoding = iota
	EncodingBinary
	EncodingCustom
)

// Translator bridges value and message domains under one handle: a
// publication-side and input-side for values, an endpoint-side for
// messages.
type Translator struct {
	Base
	Encoding Encoding
	Endpoint ids.GlobalHandle
}

func NewTranslator(h ids.InterfaceHandle, fed ids.LocalFederateId, key string, global bool, enc Encoding) *Translator {
	return &Translator{Base: newBase(h, fed, KindTranslator, key, global), Encoding: enc}
}

// Package rpc re-exposes the dataflow engine's core operations as a thin,
// wire-format surface (spec.md §6): plain Go functions operating on
// JSON-friendly structs, independent of any particular transport.
package rpc

import (
	"context"
	"errors"
	"fmt"

	"go.ncnr.nist.gov/dataflow/dataflow/executor"
	"go.ncnr.nist.gov/dataflow/dataflow/registry"
	"go.ncnr.nist.gov/dataflow/dataflow/template"
)

// ErrNotImplemented is returned by stubbed methods that are explicitly out
// of scope for the core engine (spec.md §1 non-goals).
var ErrNotImplemented = errors.New("rpc: not implemented")

// Server binds the engine's registries and executor to the RPC surface.
type Server struct {
	Registry *registry.Registry
	Executor *executor.Executor
}

// NewServer constructs a Server.
func NewServer(reg *registry.Registry, ex *executor.Executor) *Server {
	return &Server{Registry: reg, Executor: ex}
}

// InstrumentDef is the wire form of a registry.Instrument: just enough to
// populate a client's module palette.
type InstrumentDef struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Modules   []ModuleDef `json:"modules"`
	Datatypes []string    `json:"datatypes"`
}

// ModuleDef is the wire form of a registry.Module.
type ModuleDef struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Name    string `json:"name"`
}

// GetInstrument returns the wire definition of a registered instrument.
func (s *Server) GetInstrument(id string) (*InstrumentDef, error) {
	inst, err := s.Registry.LookupInstrument(id)
	if err != nil {
		return nil, err
	}
	def := &InstrumentDef{ID: inst.ID, Name: inst.Name}
	for _, m := range inst.Modules {
		def.Modules = append(def.Modules, ModuleDef{ID: m.ID, Version: m.Version, Name: m.Name})
	}
	for _, d := range inst.Datatypes {
		def.Datatypes = append(def.Datatypes, d.ID)
	}
	return def, nil
}

// ListInstruments returns the ids of every registered instrument.
func (s *Server) ListInstruments() []string {
	return s.Registry.ListInstruments()
}

// Datasource describes one named, browsable data store an instrument's
// loader modules can read from. The core engine has no archive-access
// concerns of its own (spec.md §1).
type Datasource struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// ListDatasources returns the data sources configured for an instrument.
// The core engine carries no archive connectivity itself and has no way to
// register sources, so this always returns an empty list for a known
// instrument; present for wire-format completeness with the reference RPC
// surface.
func (s *Server) ListDatasources(instrumentID string) ([]Datasource, error) {
	if _, err := s.Registry.LookupInstrument(instrumentID); err != nil {
		return nil, err
	}
	return nil, nil
}

// TemplateDef is the wire form of a diagram plus the instrument it targets;
// CalcTemplate/CalcTerminal build it into a Template on each call.
type TemplateDef struct {
	Instrument string          `json:"instrument"`
	Diagram    []template.Step `json:"diagram"`
}

func (s *Server) build(def TemplateDef) (*registry.Instrument, *template.Template, error) {
	inst, err := s.Registry.LookupInstrument(def.Instrument)
	if err != nil {
		return nil, nil, err
	}
	tpl, err := template.Build(def.Diagram, inst)
	if err != nil {
		return nil, nil, err
	}
	return inst, tpl, nil
}

// ConfigMap is the wire form of executor.Config, keyed by node index as a
// string (JSON object keys are always strings).
type ConfigMap map[string]map[string]any

func (c ConfigMap) toExecutorConfig() executor.Config {
	out := make(executor.Config, len(c))
	for k, v := range c {
		var idx int
		fmt.Sscanf(k, "%d", &idx)
		out[idx] = v
	}
	return out
}

// CalcTemplate evaluates every node of the template and returns every
// node's output bundles.
func (s *Server) CalcTemplate(ctx context.Context, def TemplateDef, config ConfigMap) (executor.Results, error) {
	inst, tpl, err := s.build(def)
	if err != nil {
		return nil, err
	}
	return s.Executor.Run(ctx, inst, tpl, config.toExecutorConfig(), nil)
}

// ReturnType selects how CalcTerminal renders the requested bundle's
// values, mirroring the original implementation's Parameters/Plottable
// get_metadata/get_plottable/export trio.
type ReturnType int

const (
	ReturnFull ReturnType = iota
	ReturnPlottable
	ReturnMetadata
	ReturnExport
)

// MetadataProvider is implemented by domain values that render a metadata
// summary distinct from their full serialized form.
type MetadataProvider interface {
	GetMetadata() (any, error)
}

// PlottableProvider is implemented by domain values that can render
// themselves as a plot-ready structure.
type PlottableProvider interface {
	GetPlottable() (any, error)
}

// ExportResult is the wire form of one value's export() call.
type ExportResult struct {
	Name       string `json:"name"`
	Entry      string `json:"entry"`
	ExportData string `json:"export_string"`
	FileSuffix string `json:"file_suffix"`
}

// Exporter is implemented by domain values that can render themselves as a
// standalone exportable file.
type Exporter interface {
	Export() (ExportResult, error)
}

// CalcTerminal evaluates just the subgraph required to produce one node's
// output terminal, and renders its values per returnType.
func (s *Server) CalcTerminal(ctx context.Context, def TemplateDef, config ConfigMap, node int, terminal string, returnType ReturnType) ([]any, error) {
	inst, tpl, err := s.build(def)
	if err != nil {
		return nil, err
	}
	results, err := s.Executor.Run(ctx, inst, tpl, config.toExecutorConfig(), &executor.Target{Node: node, Terminal: terminal})
	if err != nil {
		return nil, err
	}
	bundle, ok := results[node][terminal]
	if !ok {
		return nil, fmt.Errorf("rpc: node %d has no output %q", node, terminal)
	}

	out := make([]any, len(bundle.Values))
	for i, v := range bundle.Values {
		rendered, err := render(v, returnType)
		if err != nil {
			return nil, err
		}
		out[i] = rendered
	}
	return out, nil
}

func render(v registry.Value, rt ReturnType) (any, error) {
	switch rt {
	case ReturnMetadata:
		if mp, ok := v.(MetadataProvider); ok {
			return mp.GetMetadata()
		}
		return v.Serialize()
	case ReturnPlottable:
		if pp, ok := v.(PlottableProvider); ok {
			return pp.GetPlottable()
		}
		return v.Serialize()
	case ReturnExport:
		if ex, ok := v.(Exporter); ok {
			return ex.Export()
		}
		return nil, fmt.Errorf("rpc: value of type %T does not support export", v)
	default:
		return v.Serialize()
	}
}

// FindCalculated reports which nodes of the template are already cached.
func (s *Server) FindCalculated(ctx context.Context, def TemplateDef, config ConfigMap) ([]bool, error) {
	inst, tpl, err := s.build(def)
	if err != nil {
		return nil, err
	}
	return s.Executor.FindCalculated(ctx, inst, tpl, config.toExecutorConfig())
}

// FileMetadata describes one file in a data archive. Not implemented:
// archive access is out of scope for the core engine (spec.md §1).
type FileMetadata struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// GetFileMetadata always returns ErrNotImplemented.
func (s *Server) GetFileMetadata(ctx context.Context, datasource, path string) (*FileMetadata, error) {
	return nil, ErrNotImplemented
}

// Package executor walks a validated template in dependency order, pulling
// each node's inputs from cache or recomputing them, invoking the backing
// module action with the correct arity, and storing outputs back to cache
// (spec.md §4.8, C8).
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.ncnr.nist.gov/dataflow/dataflow/cache"
	"go.ncnr.nist.gov/dataflow/dataflow/deps"
	"go.ncnr.nist.gov/dataflow/dataflow/fingerprint"
	"go.ncnr.nist.gov/dataflow/dataflow/registry"
	"go.ncnr.nist.gov/dataflow/dataflow/template"
	"go.ncnr.nist.gov/dataflow/internal/logging"
)

// Config is the per-execution field-value overlay, keyed by node index then
// field/input-terminal id, applied on top of each TemplateModule's stored
// config (spec.md §4.8 "fields = config.get(node, {})").
type Config map[int]map[string]any

// Target names a single (node, terminal) pair to evaluate, restricting the
// run to the subgraph required to produce it.
type Target struct {
	Node     int
	Terminal string
}

// Results holds, per node, the Bundle on each of its output terminals.
type Results map[int]map[string]registry.Bundle

// ActionError reports a module action's own failure, identifying the node
// and module that raised it.
type ActionError struct {
	NodeIndex int
	ModuleID  string
	Cause     error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("executor: node %d (%s): %v", e.NodeIndex, e.ModuleID, e.Cause)
}

func (e *ActionError) Unwrap() error { return e.Cause }

// ArityError reports a bundle whose length is incompatible with the
// per-element broadcast rule (length must be 0, 1, or n; spec.md §9).
type ArityError struct {
	NodeIndex int
	Terminal  string
	Got       int
	Want      int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("executor: node %d: terminal %q has length %d, want 0, 1, or %d", e.NodeIndex, e.Terminal, e.Got, e.Want)
}

// MaxConcurrency bounds how many nodes within one topological wave run at
// once.
const MaxConcurrency = 8

// Executor runs templates against a registry and a cache.
type Executor struct {
	Registry *registry.Registry
	Cache    cache.Cache

	inflight sync.Map // fingerprint (string) -> *sync.Once
}

// New builds an Executor bound to reg for module lookups and c for
// persisted node outputs.
func New(reg *registry.Registry, c cache.Cache) *Executor {
	return &Executor{Registry: reg, Cache: c}
}

type actionContext struct {
	nodeIndex int
	runID     string
}

func (c actionContext) NodeIndex() int { return c.nodeIndex }
func (c actionContext) RunID() string  { return c.runID }

// resolvedNode bundles together everything Run needs about one template
// node: its definition, its wires in, and its effective config.
type resolvedNode struct {
	module *registry.Module
	tm     template.TemplateModule
	wires  []template.Wire
	config map[string]any
}

func (ex *Executor) resolve(inst *registry.Instrument, tpl *template.Template, cfg Config) ([]resolvedNode, error) {
	nodes := make([]resolvedNode, len(tpl.Modules))
	for i, tm := range tpl.Modules {
		mod, err := inst.ModuleByID(tm.Module)
		if err != nil {
			return nil, err
		}
		effective := make(map[string]any, len(tm.Config))
		for k, v := range tm.Config {
			effective[k] = v
		}
		for k, v := range cfg[i] {
			effective[k] = v
		}
		var wiresIn []template.Wire
		for _, w := range tpl.Wires {
			if w.TargetNode == i {
				wiresIn = append(wiresIn, w)
			}
		}
		nodes[i] = resolvedNode{module: mod, tm: tm, wires: wiresIn, config: effective}
	}
	return nodes, nil
}

func (ex *Executor) order(tpl *template.Template, target *Target) ([]int, error) {
	var pairs []deps.Pair
	for _, w := range tpl.Wires {
		pairs = append(pairs, deps.Pair{w.SourceNode, w.TargetNode})
	}
	if target == nil {
		return deps.Order(len(tpl.Modules), pairs)
	}
	return deps.ScopedOrder(target.Node, pairs)
}

func (ex *Executor) fingerprints(nodes []resolvedNode, order []int) (map[int]string, error) {
	specs := make([]fingerprint.NodeSpec, len(nodes))
	for i, n := range nodes {
		var inputs []fingerprint.WireRef
		for _, w := range n.wires {
			inputs = append(inputs, fingerprint.WireRef{
				TargetTerminal: w.TargetTerminal,
				SourceTerminal: w.SourceTerminal,
				SourceNode:     w.SourceNode,
			})
		}
		specs[i] = fingerprint.NodeSpec{
			ModuleID:      n.module.ID,
			ModuleVersion: n.module.Version,
			Config:        n.config,
			Inputs:        inputs,
		}
	}
	return fingerprint.All(order, specs)
}

// FindCalculated reports, per node, whether its fingerprint is already
// present in the cache (spec.md §6 find_calculated).
func (ex *Executor) FindCalculated(ctx context.Context, inst *registry.Instrument, tpl *template.Template, cfg Config) ([]bool, error) {
	nodes, err := ex.resolve(inst, tpl, cfg)
	if err != nil {
		return nil, err
	}
	order, err := ex.order(tpl, nil)
	if err != nil {
		return nil, err
	}
	fps, err := ex.fingerprints(nodes, order)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(nodes))
	for i := range nodes {
		ok, err := ex.Cache.Exists(ctx, fps[i])
		if err != nil {
			return nil, err
		}
		out[i] = ok
	}
	return out, nil
}

// Run evaluates tpl. If target is nil, every node is computed and Results
// holds every node's outputs; otherwise only the nodes required to reach
// target are computed and Results holds just that subgraph (with the
// requested bundle also directly retrievable from Results[target.Node]).
func (ex *Executor) Run(ctx context.Context, inst *registry.Instrument, tpl *template.Template, cfg Config, target *Target) (Results, error) {
	runID := uuid.NewString()
	log := logging.Logger.WithField("run_id", runID)

	nodes, err := ex.resolve(inst, tpl, cfg)
	if err != nil {
		return nil, err
	}

	var targetNode *int
	if target != nil {
		targetNode = &target.Node
	}
	order, err := ex.order(tpl, target)
	if err != nil {
		return nil, err
	}
	fps, err := ex.fingerprints(nodes, order)
	if err != nil {
		return nil, err
	}

	waves := waveify(order, tpl.Wires)

	results := Results{}
	var resultsMu sync.Mutex

	for waveIdx, wave := range waves {
		log.WithField("wave", waveIdx).WithField("nodes", wave).Debug("running wave")

		sem := make(chan struct{}, MaxConcurrency)
		var wg sync.WaitGroup
		errs := make([]error, len(wave))

		for w, node := range wave {
			w, node := w, node
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				out, err := ex.runNode(ctx, runID, inst, nodes[node], node, fps[node], results, &resultsMu)
				if err != nil {
					errs[w] = err
					return
				}
				resultsMu.Lock()
				results[node] = out
				resultsMu.Unlock()
			}()
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
		if targetNode != nil {
			for _, node := range wave {
				if node == *targetNode {
					return results, nil
				}
			}
		}
	}

	return results, nil
}

// runNode computes (or fetches from cache) a single node's output bundles,
// deduplicating concurrent identical work within this Run via an in-flight
// sync.Map of fingerprint to *sync.Once.
func (ex *Executor) runNode(ctx context.Context, runID string, inst *registry.Instrument, n resolvedNode, nodeIdx int, fp string, upstream Results, upstreamMu *sync.Mutex) (map[string]registry.Bundle, error) {
	onceVal, _ := ex.inflight.LoadOrStore(fp, &sync.Once{})
	once := onceVal.(*sync.Once)

	var out map[string]registry.Bundle
	var outErr error
	once.Do(func() {
		out, outErr = ex.computeOrFetch(ctx, runID, inst, n, nodeIdx, fp, upstream, upstreamMu)
		ex.inflight.Delete(fp)
	})
	if out == nil && outErr == nil {
		// Another goroutine (in this wave or in a concurrent Run) ran this
		// fingerprint's Once, so this call's closure never ran; re-fetch the
		// result it stored in the cache.
		return ex.loadCached(ctx, inst, n, fp)
	}
	return out, outErr
}

func (ex *Executor) computeOrFetch(ctx context.Context, runID string, inst *registry.Instrument, n resolvedNode, nodeIdx int, fp string, upstream Results, upstreamMu *sync.Mutex) (map[string]registry.Bundle, error) {
	if ok, err := ex.Cache.Exists(ctx, fp); err == nil && ok {
		out, err := ex.loadCached(ctx, inst, n, fp)
		if err == nil {
			return out, nil
		}
		// A decode failure on a cache hit is treated as a miss, not a fatal
		// error: recompute rather than abort the whole run (spec.md §9 Open
		// Question #2).
		logging.Logger.WithField("node", nodeIdx).WithField("fingerprint", fp).
			WithError(err).Warn("cache hit failed to decode, recomputing")
	}

	inputBundles, err := ex.gatherInputs(ctx, inst, n, nodeIdx, fp, upstream, upstreamMu)
	if err != nil {
		return nil, err
	}

	outputs, err := ex.invoke(ctx, runID, n, nodeIdx, inputBundles)
	if err != nil {
		return nil, err
	}

	if err := ex.store(ctx, fp, outputs); err != nil {
		return nil, err
	}
	return outputs, nil
}

func (ex *Executor) loadCached(ctx context.Context, inst *registry.Instrument, n resolvedNode, fp string) (map[string]registry.Bundle, error) {
	raw, err := ex.Cache.Get(ctx, fp)
	if err != nil {
		return nil, err
	}
	return decodeOutputs(raw, inst)
}

// gatherInputs pulls each input wire's source bundle, either from this
// Run's in-memory results or, if the source node was already cached before
// this Run started, by decoding it from the cache.
func (ex *Executor) gatherInputs(ctx context.Context, inst *registry.Instrument, n resolvedNode, nodeIdx int, selfFP string, upstream Results, upstreamMu *sync.Mutex) (map[string][]registry.Value, error) {
	inputBundles := make(map[string][]registry.Value)
	for _, t := range n.module.Inputs {
		inputBundles[t.ID] = nil
	}

	for _, w := range n.wires {
		upstreamMu.Lock()
		nodeOut, ok := upstream[w.SourceNode]
		upstreamMu.Unlock()
		if !ok {
			return nil, fmt.Errorf("executor: node %d: source node %d has not been computed", nodeIdx, w.SourceNode)
		}
		bundle, ok := nodeOut[w.SourceTerminal]
		if !ok {
			return nil, fmt.Errorf("executor: node %d: source node %d has no output %q", nodeIdx, w.SourceNode, w.SourceTerminal)
		}
		inputBundles[w.TargetTerminal] = append(inputBundles[w.TargetTerminal], bundle.Values...)
	}

	return inputBundles, nil
}

// invoke dispatches n's action with the correct arity: a single call with
// whole bundles when every input terminal is multiple, or one call per
// element of the broadcast length otherwise, with results concatenated in
// order (spec.md §4.8).
func (ex *Executor) invoke(ctx context.Context, runID string, n resolvedNode, nodeIdx int, inputs map[string][]registry.Value) (map[string]registry.Bundle, error) {
	actx := actionContext{nodeIndex: nodeIdx, runID: runID}

	args, err := dispatchArgs(n.module, n.config, inputs, nodeIdx)
	if err == nil {
		return ex.call(actx, n, nodeIdx, args)
	}
	if err != errBroadcastRequired {
		return nil, &ActionError{NodeIndex: nodeIdx, ModuleID: n.module.ID, Cause: err}
	}

	count := broadcastLength(n.module, inputs)
	combined := make(map[string][]registry.Value, len(n.module.Outputs))
	for _, t := range n.module.Outputs {
		combined[t.ID] = nil
	}

	for i := 0; i < count; i++ {
		callArgs := registry.ParamMap{}
		for _, f := range n.module.Fields {
			v, err := broadcastField(f, n.config[f.ID], i, count, nodeIdx)
			if err != nil {
				return nil, &ActionError{NodeIndex: nodeIdx, ModuleID: n.module.ID, Cause: err}
			}
			if v != nil {
				callArgs[f.ID] = v
			}
		}
		for _, t := range n.module.Inputs {
			v, err := broadcastTerminal(t, inputs[t.ID], i, count, nodeIdx)
			if err != nil {
				return nil, &ActionError{NodeIndex: nodeIdx, ModuleID: n.module.ID, Cause: err}
			}
			callArgs[t.ID] = v
		}

		out, err := ex.call(actx, n, nodeIdx, callArgs)
		if err != nil {
			return nil, err
		}
		for _, t := range n.module.Outputs {
			combined[t.ID] = append(combined[t.ID], out[t.ID].Values...)
		}
	}

	result := make(map[string]registry.Bundle, len(n.module.Outputs))
	for _, t := range n.module.Outputs {
		result[t.ID] = registry.Bundle{Datatype: t.Datatype, Values: combined[t.ID]}
	}
	return result, nil
}

func (ex *Executor) call(actx actionContext, n resolvedNode, nodeIdx int, args registry.ParamMap) (map[string]registry.Bundle, error) {
	start := time.Now()
	outputs, err := n.module.Action(actx, args)
	logging.Logger.WithFields(map[string]any{
		"run_id":   actx.runID,
		"node":     nodeIdx,
		"module":   n.module.ID,
		"duration": time.Since(start),
	}).Debug("invoked action")
	if err != nil {
		return nil, &ActionError{NodeIndex: nodeIdx, ModuleID: n.module.ID, Cause: err}
	}
	bundles, err := collectOutputs(n.module, outputs)
	if err != nil {
		return nil, &ActionError{NodeIndex: nodeIdx, ModuleID: n.module.ID, Cause: err}
	}
	return bundles, nil
}

func (ex *Executor) store(ctx context.Context, fp string, outputs map[string]registry.Bundle) error {
	raw, err := encodeOutputs(outputs)
	if err != nil {
		return err
	}
	return ex.Cache.Set(ctx, fp, raw)
}

// waveify groups order into waves of nodes whose dependencies are all in
// earlier waves, so a wave's nodes may run concurrently.
func waveify(order []int, wires []template.Wire) [][]int {
	depsOf := make(map[int][]int)
	for _, w := range wires {
		depsOf[w.TargetNode] = append(depsOf[w.TargetNode], w.SourceNode)
	}

	depth := make(map[int]int, len(order))
	position := make(map[int]int, len(order))
	for i, n := range order {
		position[n] = i
	}

	var waves [][]int
	placed := make(map[int]bool, len(order))
	for _, n := range order {
		maxDep := -1
		for _, d := range depsOf[n] {
			if _, ok := position[d]; !ok {
				continue // not part of this order (e.g. outside scoped subset)
			}
			if depth[d] > maxDep {
				maxDep = depth[d]
			}
		}
		d := maxDep + 1
		depth[n] = d
		for len(waves) <= d {
			waves = append(waves, nil)
		}
		waves[d] = append(waves[d], n)
		placed[n] = true
	}
	return waves
}

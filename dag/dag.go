// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

/*
Package dag provides DAG definition and related functionalities.

# Introduction

A Dag is an immutable directed acyclic graph of tasks. It is built once, at
startup, from a declarative list of nodes and edges and it never changes
afterwards. Only the status of particular tasks for a particular logical date
is dynamic and that state lives outside of this package (see package
scheduler).

# Creating new DAG

	d, err := dag.New(dag.Id("sample_dag")).
		AddSchedule(schedule.NewDaily(start, 21, 0)).
		AddNode(checkTask, dag.WithTaskRetries(5)).
		AddNode(writeTask).
		AddEdge(checkTask.Id(), writeTask.Id()).
		Build()

Build validates the graph. Task identifiers must be unique, edges have to
point at existing tasks, the graph must not contain cycles and it has to be a
single weakly-connected component.
*/
package dag

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ppacer/trends/dag/schedule"
	"github.com/ppacer/trends/timeutils"
)

var (
	ErrTaskNotFoundInDag = errors.New("task was not found in the DAG")
	ErrEmptyDag          = errors.New("DAG has no tasks")
	ErrDuplicatedTaskId  = errors.New("task identifier is not unique")
	ErrUnknownTask       = errors.New("edge refers to unknown task")
	ErrCyclic            = errors.New("graph has a cycle")
	ErrSelfLoop          = errors.New("task depends on itself")
	ErrDisconnected      = errors.New("graph has more than one weakly-connected component")
)

// Dag represents a single process that can be scheduled. It contains
// metadata of the process like identifiers, its schedule and the immutable
// graph of tasks to be executed within the process.
type Dag struct {
	Id       Id
	Schedule schedule.Schedule
	Attr     Attr

	nodes    []*Node
	index    map[string]int
	parents  map[string][]string
	children map[string][]string
	order    []string
}

// DAG string identifier.
type Id string

// Attr represents additional attributes and parameters about Dag and its
// scheduling. This object is stored in the database as single value by
// serializing it to JSON.
type Attr struct {
	// If set to true scheduler would catch up missed logical dates since the
	// latest run or schedule start.
	CatchUp bool     `json:"catchUp"`
	Tags    []string `json:"tags"`
}

// Edge is a directed edge between two tasks. Task From has to succeed before
// task To can be started for the same logical date.
type Edge struct {
	From string
	To   string
}

// Builder collects nodes and edges of a DAG. Use New to create one.
type Builder struct {
	id       Id
	schedule schedule.Schedule
	attr     Attr
	nodes    []*Node
	edges    []Edge
}

// New creates new Builder for a Dag of given identifier.
func New(id Id) *Builder {
	return &Builder{id: id}
}

// AddSchedule sets Dag schedule.
func (b *Builder) AddSchedule(sched schedule.Schedule) *Builder {
	b.schedule = sched
	return b
}

// AddAttributes sets Dag attributes.
func (b *Builder) AddAttributes(attr Attr) *Builder {
	b.attr = attr
	return b
}

// AddNode adds new task to the graph with default task configuration
// updated by given config functions.
func (b *Builder) AddNode(task Task, configFuncs ...TaskConfigFunc) *Builder {
	b.nodes = append(b.nodes, NewNode(task, configFuncs...))
	return b
}

// AddEdge adds directed edge from task "from" to task "to".
func (b *Builder) AddEdge(from, to string) *Builder {
	b.edges = append(b.edges, Edge{From: from, To: to})
	return b
}

// AddEdges adds directed edges from each upstream task to task "to".
func (b *Builder) AddEdges(to string, upstream ...string) *Builder {
	for _, from := range upstream {
		b.AddEdge(from, to)
	}
	return b
}

// Build validates collected nodes and edges and returns immutable Dag. When
// the graph is not a valid DAG, non-nil error is returned.
func (b *Builder) Build() (Dag, error) {
	if len(b.nodes) == 0 {
		return Dag{}, fmt.Errorf("%w: %s", ErrEmptyDag, b.id)
	}
	d := Dag{
		Id:       b.id,
		Schedule: b.schedule,
		Attr:     b.attr,
		nodes:    make([]*Node, 0, len(b.nodes)),
		index:    make(map[string]int, len(b.nodes)),
		parents:  make(map[string][]string, len(b.nodes)),
		children: make(map[string][]string, len(b.nodes)),
	}
	for _, n := range b.nodes {
		if n.Task == nil {
			return Dag{}, fmt.Errorf("nil task in DAG %s", b.id)
		}
		taskId := n.Task.Id()
		if _, exists := d.index[taskId]; exists {
			return Dag{}, fmt.Errorf("%w: %s", ErrDuplicatedTaskId, taskId)
		}
		d.index[taskId] = len(d.nodes)
		d.nodes = append(d.nodes, n)
		d.parents[taskId] = []string{}
		d.children[taskId] = []string{}
	}

	seen := make(map[Edge]struct{}, len(b.edges))
	for _, e := range b.edges {
		if _, ok := d.index[e.From]; !ok {
			return Dag{}, fmt.Errorf("%w: %s", ErrUnknownTask, e.From)
		}
		if _, ok := d.index[e.To]; !ok {
			return Dag{}, fmt.Errorf("%w: %s", ErrUnknownTask, e.To)
		}
		if e.From == e.To {
			return Dag{}, fmt.Errorf("%w (%w): %s", ErrSelfLoop, ErrCyclic,
				e.From)
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		d.parents[e.To] = append(d.parents[e.To], e.From)
		d.children[e.From] = append(d.children[e.From], e.To)
	}

	order, acyclic := d.topologicalOrder()
	if !acyclic {
		return Dag{}, fmt.Errorf("%w: DAG %s", ErrCyclic, b.id)
	}
	d.order = order
	if c := d.ComponentsCount(); c != 1 {
		return Dag{}, fmt.Errorf("%w: DAG %s has %d components",
			ErrDisconnected, b.id, c)
	}
	return d, nil
}

// Tasks returns DAG tasks in topological order. Ties are resolved by the
// order in which nodes were added.
func (d *Dag) Tasks() []Task {
	tasks := make([]Task, 0, len(d.order))
	for _, taskId := range d.order {
		tasks = append(tasks, d.nodes[d.index[taskId]].Task)
	}
	return tasks
}

// Nodes returns DAG nodes in topological order.
func (d *Dag) Nodes() []*Node {
	nodes := make([]*Node, 0, len(d.order))
	for _, taskId := range d.order {
		nodes = append(nodes, d.nodes[d.index[taskId]])
	}
	return nodes
}

// TaskIds returns DAG task identifiers in topological order.
func (d *Dag) TaskIds() []string {
	ids := make([]string, len(d.order))
	copy(ids, d.order)
	return ids
}

// Len returns number of tasks in the DAG.
func (d *Dag) Len() int {
	return len(d.nodes)
}

// GetTask return task by its identifier. In case when there is no Task within
// the DAG of given taskId, then ErrTaskNotFoundInDag is returned.
func (d *Dag) GetTask(taskId string) (Task, error) {
	node, err := d.GetNode(taskId)
	if err != nil {
		return nil, err
	}
	return node.Task, nil
}

// GetNode returns node by its task identifier. In case when there is no Task
// within the DAG of given taskId, then ErrTaskNotFoundInDag is returned.
func (d *Dag) GetNode(taskId string) (*Node, error) {
	idx, exists := d.index[taskId]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFoundInDag, taskId)
	}
	return d.nodes[idx], nil
}

// Parents returns identifiers of direct upstream tasks of given task.
func (d *Dag) Parents(taskId string) []string {
	return append([]string{}, d.parents[taskId]...)
}

// Children returns identifiers of direct downstream tasks of given task.
func (d *Dag) Children(taskId string) []string {
	return append([]string{}, d.children[taskId]...)
}

// TaskParents returns mapping of DAG task IDs onto its parents task IDs.
func (d *Dag) TaskParents() map[string][]string {
	taskParents := make(map[string][]string, len(d.parents))
	for taskId, parents := range d.parents {
		taskParents[taskId] = append([]string{}, parents...)
	}
	return taskParents
}

// Roots returns tasks without upstream dependencies, in insertion order.
func (d *Dag) Roots() []string {
	roots := make([]string, 0)
	for _, n := range d.nodes {
		if len(d.parents[n.Task.Id()]) == 0 {
			roots = append(roots, n.Task.Id())
		}
	}
	return roots
}

// Leaves returns tasks without downstream dependents, in insertion order.
func (d *Dag) Leaves() []string {
	leaves := make([]string, 0)
	for _, n := range d.nodes {
		if len(d.children[n.Task.Id()]) == 0 {
			leaves = append(leaves, n.Task.Id())
		}
	}
	return leaves
}

// Downstream returns all transitive downstream tasks of given task (not
// including the task itself) in topological order.
func (d *Dag) Downstream(taskId string) []string {
	reached := map[string]struct{}{}
	stack := append([]string{}, d.children[taskId]...)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := reached[current]; ok {
			continue
		}
		reached[current] = struct{}{}
		stack = append(stack, d.children[current]...)
	}
	downstream := make([]string, 0, len(reached))
	for _, id := range d.order {
		if _, ok := reached[id]; ok {
			downstream = append(downstream, id)
		}
	}
	return downstream
}

// IsAcyclic checks whenever the graph has no cycles. Dag produced by Build is
// always acyclic.
func (d *Dag) IsAcyclic() bool {
	_, acyclic := d.topologicalOrder()
	return acyclic
}

// ComponentsCount returns number of weakly-connected components of the graph.
func (d *Dag) ComponentsCount() int {
	visited := make(map[string]struct{}, len(d.nodes))
	components := 0
	for _, n := range d.nodes {
		start := n.Task.Id()
		if _, ok := visited[start]; ok {
			continue
		}
		components++
		queue := []string{start}
		visited[start] = struct{}{}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			neighbours := append(d.Parents(current), d.children[current]...)
			for _, next := range neighbours {
				if _, ok := visited[next]; !ok {
					visited[next] = struct{}{}
					queue = append(queue, next)
				}
			}
		}
	}
	return components
}

// Kahn's algorithm. Among ready tasks the one added earlier goes first.
func (d *Dag) topologicalOrder() ([]string, bool) {
	inDegree := make(map[string]int, len(d.nodes))
	for taskId, parents := range d.parents {
		inDegree[taskId] = len(parents)
	}
	ready := make([]int, 0)
	for idx, n := range d.nodes {
		if inDegree[n.Task.Id()] == 0 {
			ready = append(ready, idx)
		}
	}
	order := make([]string, 0, len(d.nodes))
	for len(ready) > 0 {
		sort.Ints(ready)
		idx := ready[0]
		ready = ready[1:]
		taskId := d.nodes[idx].Task.Id()
		order = append(order, taskId)
		for _, child := range d.children[taskId] {
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, d.index[child])
			}
		}
	}
	return order, len(order) == len(d.nodes)
}

// HashDagMeta calculates SHA256 hash based on DAG attributes, start time and
// schedule.
func (d *Dag) HashDagMeta() string {
	attrJson, jErr := json.Marshal(d.Attr)
	if jErr != nil {
		slog.Error("Cannot serialize DAG attributes", "attr", d.Attr, "err",
			jErr)
		return "CANNOT SERIALIZE DAG ATTRIBUTES"
	}
	sched := ""
	startTsStr := ""
	if d.Schedule != nil {
		sched = d.Schedule.String()
		startTsStr = timeutils.ToString(d.Schedule.Start())
	}

	hasher := sha256.New()
	hasher.Write(attrJson)
	hasher.Write([]byte(sched))
	hasher.Write([]byte(startTsStr))
	return hex.EncodeToString(hasher.Sum(nil))
}

// HashTasks calculates SHA256 hash based on task identifiers, edges and task
// fingerprints in topological order.
func (d *Dag) HashTasks() string {
	hasher := sha256.New()
	for _, taskId := range d.order {
		hasher.Write([]byte(taskId + ":"))
		hasher.Write([]byte(strings.Join(d.parents[taskId], ",") + ":"))
		hasher.Write([]byte(TaskHash(d.nodes[d.index[taskId]].Task)))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// String return string with information about Dag Id, its schedule and tasks.
func (d *Dag) String() string {
	var s strings.Builder
	sched := "no schedule"
	if d.Schedule != nil {
		sched = d.Schedule.String()
	}
	fmt.Fprintf(&s, "Dag: %s (%s)\nTasks:\n", d.Id, sched)
	for _, taskId := range d.order {
		parents := d.parents[taskId]
		if len(parents) == 0 {
			fmt.Fprintf(&s, "  - %s\n", taskId)
			continue
		}
		fmt.Fprintf(&s, "  - %s <- [%s]\n", taskId, strings.Join(parents, ", "))
	}
	return s.String()
}

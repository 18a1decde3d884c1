// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package dag

import (
	"errors"
	"fmt"
	"sort"
)

var ErrDagNotFound = errors.New("DAG was not found in the registry")

// Registry for DAGs. There is no global registry, it is passed explicitly to
// components which need it.
type Registry map[Id]Dag

// Add adds given DAG to the registry. Non-nil error is returned when DAG of
// the same identifier is already registered.
func (r Registry) Add(d Dag) error {
	if _, exists := r[d.Id]; exists {
		return fmt.Errorf("DAG %s is already registered", d.Id)
	}
	r[d.Id] = d
	return nil
}

// Get returns DAG of given identifier or ErrDagNotFound.
func (r Registry) Get(id Id) (Dag, error) {
	d, exists := r[id]
	if !exists {
		return Dag{}, fmt.Errorf("%w: %s", ErrDagNotFound, id)
	}
	return d, nil
}

// List returns registered DAGs sorted by identifier.
func (r Registry) List() []Dag {
	dags := make([]Dag, 0, len(r))
	for _, d := range r {
		dags = append(dags, d)
	}
	sort.Slice(dags, func(i, j int) bool { return dags[i].Id < dags[j].Id })
	return dags
}

// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cor (Chain of Responsibility) is the execution model for every
// processing workflow in the clipper. A workflow is a Chain of Commands that
// share one Context. Commands read their input from the Context, write their
// output back, and record failures with AddError instead of returning them.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are the keys the BaseChain uses to pipe the output of one
// command into the input of the next.
const (
	CtxIn  = "__IN__"
	CtxOut = "__OUT__"
)

// Context is the shared state of one workflow execution.
type Context interface {
	// SetContext sets the Go context used for cancellation and tracing.
	SetContext(context context.Context)

	// GetContext returns the Go context of the command currently executing.
	GetContext() context.Context

	// Add stores a value under key and returns the Context for chaining.
	Add(key string, value interface{}) Context

	// AddError records a failure under the name of the command that produced it.
	AddError(key string, err error)

	// GetErrors returns all failures keyed by command name.
	GetErrors() map[string]error

	// FirstError returns the earliest failure recorded, or nil.
	FirstError() error

	// Get returns the value stored under key, or nil.
	Get(key string) interface{}

	// Remove deletes key.
	Remove(key string)

	// HasErrors reports whether any command has failed.
	HasErrors() bool

	// AddTempFile registers a file to be removed by Close.
	AddTempFile(file string)

	// GetTempFiles returns every registered temporary file.
	GetTempFiles() []string

	// Close removes the registered temporary files. Callers defer it.
	Close()
}

// Executable is anything that runs against a Context.
type Executable interface {
	Execute(context Context)
}

// Command is a single named step of a workflow.
type Command interface {
	Executable

	GetName() string

	// GetInputParam is the Context key the command reads its input from.
	GetInputParam() string

	// GetOutputParam is the Context key the command writes its output to.
	GetOutputParam() string

	// IsExecutable is checked by the chain before Execute is called.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain runs commands in order. A Chain is itself a Command, so chains nest.
type Chain interface {
	Command

	// ContinueOnFailure keeps the chain running after a command adds an error.
	ContinueOnFailure(bool) Chain

	AddCommand(command Command) Chain
}

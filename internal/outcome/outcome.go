// Package outcome records the result of multi-item steps such as creating
// every variant ad of an A/B test or pausing its losers. Each step names its
// failure policy up front instead of inferring it from error types.
package outcome

import (
	"context"
	"fmt"
)

// Policy decides what a step does when one item fails.
type Policy int

const (
	// Propagate stops at the first failure and returns its error.
	Propagate Policy = iota

	// CollectAndContinue records the failure and moves on to the next item.
	CollectAndContinue
)

// Status summarizes a finished Report.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailure Status = "failure"
)

// Item is the outcome of one unit of work.
type Item struct {
	Key    string `json:"key"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report lists per-item outcomes in the order they ran.
type Report struct {
	Items []Item `json:"items"`
}

// Status is success when every item succeeded, failure when none did (or
// there were none), and partial otherwise.
func (r *Report) Status() Status {
	ok := r.Succeeded()
	switch {
	case len(r.Items) > 0 && ok == len(r.Items):
		return StatusSuccess
	case ok == 0:
		return StatusFailure
	default:
		return StatusPartial
	}
}

// Succeeded counts successful items.
func (r *Report) Succeeded() int {
	n := 0
	for _, it := range r.Items {
		if it.OK {
			n++
		}
	}
	return n
}

// Failed returns the failed items.
func (r *Report) Failed() []Item {
	var out []Item
	for _, it := range r.Items {
		if !it.OK {
			out = append(out, it)
		}
	}
	return out
}

// Details returns the Detail of each successful item, in order.
func (r *Report) Details() []string {
	out := []string{}
	for _, it := range r.Items {
		if it.OK && it.Detail != "" {
			out = append(out, it.Detail)
		}
	}
	return out
}

// Add records a finished item. A nil err means success.
func (r *Report) Add(key, detail string, err error) {
	it := Item{Key: key, OK: err == nil, Detail: detail}
	if err != nil {
		it.Error = err.Error()
	}
	r.Items = append(r.Items, it)
}

// ItemError identifies the item that stopped a Propagate step.
type ItemError struct {
	Key string
	Err error
}

func (e *ItemError) Error() string { return fmt.Sprintf("%s: %v", e.Key, e.Err) }

func (e *ItemError) Unwrap() error { return e.Err }

// Run applies fn to each item under policy. fn returns a short detail line
// for the report. With Propagate the returned error is an *ItemError for the
// first failure; with CollectAndContinue the error is always nil and the
// Report carries every failure. A cancelled context stops either policy.
func Run[T any](ctx context.Context, policy Policy, items []T, key func(T) string, fn func(context.Context, T) (string, error)) (*Report, error) {
	r := &Report{Items: make([]Item, 0, len(items))}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return r, err
		}

		k := key(item)
		detail, err := fn(ctx, item)
		r.Add(k, detail, err)

		if err != nil && policy == Propagate {
			return r, &ItemError{Key: k, Err: err}
		}
	}
	return r, nil
}

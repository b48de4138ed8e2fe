// Package errors defines the structured error taxonomy shared by the build
// stages: template, style, image, inline, filesystem and config failures.
//
// Stages return *PipelineError values so the watcher and CLI can report the
// offending file and error family without string matching.
package errors

import (
	"errors"
	"sync"
)

// Collector gathers independent failures from one stage run, such as one
// error per page that failed to render.
type Collector struct {
	errs  []error
	mutex sync.Mutex
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{errs: make([]error, 0)}
}

// Add records err. Nil errors are ignored.
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.errs = append(c.errs, err)
}

// Len returns the number of recorded errors.
func (c *Collector) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.errs)
}

// Errors returns a copy of the recorded errors.
func (c *Collector) Errors() []error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	result := make([]error, len(c.errs))
	copy(result, c.errs)
	return result
}

// Err joins the recorded errors, or returns nil when there are none.
func (c *Collector) Err() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(c.errs) == 0 {
		return nil
	}
	if len(c.errs) == 1 {
		return c.errs[0]
	}
	return errors.Join(c.errs...)
}

package playbook

import (
	"context"
	"errors"
	"sync"
)

var errBoom = errors.New("boom")

type fakeRunner struct {
	mu       sync.Mutex
	failures map[string]error
	calls    []string
	onRun    func(ctx context.Context, command string)
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{failures: make(map[string]error)}
}

func (f *fakeRunner) Run(ctx context.Context, command string) error {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	hook := f.onRun
	err := f.failures[command]
	f.mu.Unlock()

	if hook != nil {
		hook(ctx, command)
	}
	return err
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type checkResult struct {
	ok  bool
	err error
}

type fakeChecker struct {
	mu      sync.Mutex
	results map[string]checkResult
	calls   []string
}

func newFakeChecker() *fakeChecker {
	return &fakeChecker{results: make(map[string]checkResult)}
}

// Check returns true for any expression without a configured result
func (f *fakeChecker) Check(ctx context.Context, expression string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, expression)
	if res, ok := f.results[expression]; ok {
		return res.ok, res.err
	}
	return true, nil
}

func (f *fakeChecker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeProducer struct {
	text string
	err  error
}

func (f fakeProducer) Generate(ctx context.Context, issue string, issueContext map[string]interface{}) (string, error) {
	return f.text, f.err
}

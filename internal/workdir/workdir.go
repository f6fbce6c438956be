// Package workdir changes the process working directory for the length of
// a scope and restores it on every exit path.
//
// The working directory is shared by the whole process, so only one scope
// may be active at a time. Scopes do not nest.
package workdir

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// ErrActive is returned by Enter while another scope holds the directory.
var ErrActive = errors.New("a working-directory scope is already active")

var active atomic.Bool

// Guard records the directory that was current when it was entered.
type Guard struct {
	original string
	once     sync.Once
	err      error
}

// Enter records the current directory and changes to path.
func Enter(path string) (*Guard, error) {
	if !active.CompareAndSwap(false, true) {
		return nil, ErrActive
	}
	original, err := os.Getwd()
	if err != nil {
		active.Store(false)
		return nil, fmt.Errorf("recording working directory: %w", err)
	}
	if err := os.Chdir(path); err != nil {
		active.Store(false)
		return nil, fmt.Errorf("entering %s: %w", path, err)
	}
	return &Guard{original: original}, nil
}

// Original returns the directory that Exit restores.
func (g *Guard) Original() string {
	return g.original
}

// Exit restores the recorded directory. Only the first call has an effect;
// later calls return the same error.
func (g *Guard) Exit() error {
	g.once.Do(func() {
		if err := os.Chdir(g.original); err != nil {
			g.err = fmt.Errorf("restoring %s: %w", g.original, err)
		}
		active.Store(false)
	})
	return g.err
}

// Within runs fn with path as the working directory. The previous
// directory is restored whether fn returns normally, with an error, or
// by panicking.
func Within(path string, fn func() error) (err error) {
	g, err := Enter(path)
	if err != nil {
		return err
	}
	defer func() {
		if exitErr := g.Exit(); exitErr != nil && err == nil {
			err = exitErr
		}
	}()
	return fn()
}

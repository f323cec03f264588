package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danieljhkim/wcmerge/internal/state"
)

// Init creates the working state for a new repository graph.
// It fails with ErrAlreadyInitialized when state already exists.
func (e *Engine) Init(ctx context.Context) (*InitResult, error) {
	if _, err := e.stateStore.Load(); err == nil {
		return nil, ErrAlreadyInitialized
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to check working state: %w", err)
	}

	var result *InitResult
	err := e.withLock("init", func() error {
		ws := state.NewWorkingState(uuid.NewString())
		if err := e.saveState(ws); err != nil {
			return err
		}
		result = &InitResult{Root: e.paths.Root, GraphID: ws.GraphID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("working copy initialized", zap.String("root", e.paths.Root), zap.String("graph", result.GraphID))
	return result, nil
}

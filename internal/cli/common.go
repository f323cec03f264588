package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/danieljhkim/wcmerge/internal/clock"
	"github.com/danieljhkim/wcmerge/internal/config"
	"github.com/danieljhkim/wcmerge/internal/engine"
	"github.com/danieljhkim/wcmerge/internal/fsops"
	"github.com/danieljhkim/wcmerge/internal/hash"
	"github.com/danieljhkim/wcmerge/internal/logging"
	"github.com/danieljhkim/wcmerge/internal/repo"
	"github.com/danieljhkim/wcmerge/internal/state"
)

// newEngine creates an engine for the working copy containing the current
// directory. The returned function releases the repository and flushes logs.
func newEngine() (*engine.Engine, func(), error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	paths, err := config.Discover(cwd)
	if err != nil {
		return nil, nil, err
	}
	if info, err := os.Stat(paths.Meta); err != nil || !info.IsDir() {
		return nil, nil, config.ErrNotWorkingCopy
	}
	return openEngine(paths)
}

// openEngine creates an engine with real implementations of all dependencies.
func openEngine(paths *config.Paths) (*engine.Engine, func(), error) {
	settings, err := config.Load(paths)
	if err != nil {
		return nil, nil, err
	}

	log, err := logging.New(logging.Options{
		File:     paths.Log,
		Settings: settings.Log,
		Debug:    debugOutput,
		Console:  os.Stderr,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	sqlStore, err := repo.OpenSQLStore(paths.DB, log)
	if err != nil {
		return nil, nil, err
	}
	store, err := repo.NewCachedStore(sqlStore, settings.Cache.Nodes)
	if err != nil {
		_ = sqlStore.Close()
		return nil, nil, err
	}

	fs := fsops.NewRealFS()
	eng := engine.New(
		store,
		state.NewFileStateStore(fs, paths.State),
		state.NewLock(fs, paths.Lock),
		fs,
		hash.NewSHA256Hasher(),
		&clock.RealClock{},
		*paths,
		*settings,
		log,
	)

	cleanup := func() {
		hits, misses := store.Stats()
		log.Debug("node cache", zap.Int("hits", hits), zap.Int("misses", misses))
		if err := sqlStore.Close(); err != nil {
			log.Warn("failed to close repository", zap.Error(err))
		}
		_ = log.Sync()
	}
	return eng, cleanup, nil
}

// errorHints suggests the next command for errors users hit routinely.
var errorHints = []struct {
	err  error
	hint string
}{
	{config.ErrNotWorkingCopy, "run 'wcmerge init' to create a working copy here"},
	{engine.ErrUnresolvedIssues, "review them with 'wcmerge issues' and mark them with 'wcmerge resolve'"},
	{engine.ErrMultipleLeaves, "list them with 'wcmerge leaves'"},
	{engine.ErrStateChanged, "compute the merge again"},
}

// formatError formats an error for display.
func formatError(err error) string {
	msg := errorColor.Sprintf("Error: %v", err)
	for _, h := range errorHints {
		if errors.Is(err, h.err) {
			msg += "\n" + dimColor.Sprintf("Hint: %s", h.hint)
			break
		}
	}
	return msg
}

// outputJSON outputs a value as JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

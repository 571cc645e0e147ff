package cli

import (
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/roach88/deadbolt/internal/policy"
	"github.com/roach88/deadbolt/internal/store"
)

// env is the wiring every command shares: the owned database, the
// read-only evidence filesystem, the loaded policy, and the logger.
type env struct {
	store    *store.Store
	evidence fs.FS
	policy   *policy.Policy
	logger   *zap.Logger
	nodeID   string
}

// commonOptions are flags shared by the stateful commands.
type commonOptions struct {
	Database string
	Evidence string
	Policy   string
}

func (c *commonOptions) register(set interface {
	StringVar(p *string, name string, value string, usage string)
}) {
	set.StringVar(&c.Database, "db", "deadbolt.db", "path to SQLite database")
	set.StringVar(&c.Evidence, "evidence", ".", "evidence root directory (beacons, proofs, credentials)")
	set.StringVar(&c.Policy, "policy", "FEED_LOCK.cue", "policy file, relative to the evidence root")
}

// openEnv loads the policy, opens the database, and builds the logger.
// Callers must Close the returned env.
func openEnv(rootOpts *RootOptions, common commonOptions) (*env, error) {
	logger, err := buildLogger(rootOpts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build logger", err)
	}

	pol, err := policy.Load(filepath.Join(common.Evidence, common.Policy))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load policy", err)
	}

	st, err := store.Open(common.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	nodeID, err := os.Hostname()
	if err != nil {
		nodeID = "unknown"
	}

	return &env{
		store:    st,
		evidence: os.DirFS(common.Evidence),
		policy:   pol,
		logger:   logger,
		nodeID:   nodeID,
	}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Error("error closing database", zap.Error(err))
	}
	_ = e.logger.Sync()
}

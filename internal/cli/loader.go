package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/pagetree/internal/document"
	"github.com/roach88/pagetree/internal/flat"
	"github.com/roach88/pagetree/internal/ir"
	"github.com/roach88/pagetree/internal/registry"
	"github.com/roach88/pagetree/internal/store"
)

// loadRegistry returns the builtin kinds plus every --kinds file.
func loadRegistry(opts *RootOptions, f *OutputFormatter) (*registry.Registry, error) {
	reg := registry.Builtin()
	for _, path := range opts.Kinds {
		f.VerboseLog("Loading kinds from %s", path)
		if err := reg.LoadFile(path); err != nil {
			return nil, f.Fail(ExitCommandError, ErrCodeKinds, fmt.Sprintf("failed to load kinds from %s", path), err)
		}
	}
	return reg, nil
}

// openStore opens the --db database. Unless create is set, a missing file
// is an error rather than a new empty database.
func openStore(opts *RootOptions, f *OutputFormatter, create bool) (*store.Store, error) {
	if !create {
		if _, err := os.Stat(opts.DB); os.IsNotExist(err) {
			return nil, f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.DB), nil)
		}
	}
	st, err := store.Open(opts.DB)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	f.VerboseLog("Opened database %s", opts.DB)
	return st, nil
}

// readDocument reads and imports a document file. An empty pageID skips the
// page id collision check.
func readDocument(path, pageID string, reg *registry.Registry, f *OutputFormatter) ([]*ir.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("document not found: %s", path), nil)
		}
		return nil, f.Fail(ExitCommandError, ErrCodeReadFailed, fmt.Sprintf("failed to read %s", path), err)
	}
	nodes, err := document.Import(data, pageID, reg)
	if err != nil {
		return nil, failDocument(f, path, err)
	}
	return nodes, nil
}

// failDocument reports an import failure, listing each violation.
func failDocument(f *OutputFormatter, path string, err error) error {
	var verrs registry.ValidationErrors
	if !errors.As(err, &verrs) {
		return f.Fail(ExitFailure, ErrCodeInvalidDocument, fmt.Sprintf("%s is not a valid document", path), err)
	}
	if f.Format == "json" {
		_ = f.Error(ErrCodeInvalidDocument, fmt.Sprintf("%s is not a valid document", path), []registry.ValidationError(verrs))
	} else {
		fmt.Fprintf(f.Writer, "%s %s: %d problem(s)\n", failMark("✗"), path, len(verrs))
		for _, e := range verrs {
			fmt.Fprintf(f.Writer, "  %s\n", e.Error())
		}
	}
	return WrapExitError(ExitFailure, fmt.Sprintf("%s: %s is not a valid document", ErrCodeInvalidDocument, path), err)
}

// loadPage reads a stored page and rebuilds its tree.
func loadPage(ctx context.Context, st *store.Store, reg *registry.Registry, pageID string, f *OutputFormatter) ([]*ir.Node, int64, error) {
	rows, rev, err := st.Load(ctx, pageID)
	if err != nil {
		return nil, 0, f.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to load page %s", pageID), err)
	}
	if rev == 0 {
		return nil, 0, f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("page not found: %s", pageID), nil)
	}
	roots, err := flat.Rebuild(rows, reg)
	if err != nil {
		var ie *flat.IntegrityError
		if errors.As(err, &ie) {
			return nil, 0, f.Fail(ExitFailure, ErrCodeIntegrity, fmt.Sprintf("page %s is corrupt (rows %v)", pageID, ie.RowIDs()), err)
		}
		return nil, 0, f.Fail(ExitFailure, ErrCodeIntegrity, fmt.Sprintf("page %s is corrupt", pageID), err)
	}
	f.VerboseLog("Loaded page %s: %d rows at revision %d", pageID, len(rows), rev)
	return roots, rev, nil
}

package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/ValentinKolb/mKV/lib/db"
	"github.com/ValentinKolb/mKV/lib/store"
	"github.com/ValentinKolb/mKV/lib/store/lstore"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("registry")

var (
	// ErrClosed is returned by Attach after Close
	ErrClosed = errors.New("registry closed")
	// ErrInvalidName is returned for names that are not a single path element
	ErrInvalidName = errors.New("invalid database name")
)

// maxNameLength is the longest name accepted, the usual file name limit
const maxNameLength = 255

// Opener opens or creates the store of a database called name at path.
type Opener func(name, path string) (store.IStore, error)

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// Registry maps database names to shared, reference counted store handles.
//
// The table holds one reference per attached name, every Handle holds one
// more. Detach only drops the table's reference; a store stays open until
// the last Handle is released. A name that was detached while still held is
// "live": attaching it again revives the same store instead of opening the
// directory a second time, so at most one store per name is ever open.
//
// All methods are safe for concurrent use. The mutex is held for table
// operations and for opening and closing stores, never while a Handle is used.
type Registry struct {
	root string
	open Opener

	mu     sync.Mutex
	table  map[string]*entry // attached names
	live   map[string]*entry // every open store, attached or not
	closed bool
}

// entry is one open store. refs is guarded by Registry.mu.
type entry struct {
	name  string
	store store.IStore
	refs  int
}

// New creates a registry storing every database in root/<name>, opened with factory.
// root is created if it does not exist.
func New(root string, factory db.Factory) (*Registry, error) {
	return NewWithOpener(root, func(name, path string) (store.IStore, error) {
		return lstore.Open(name, path, factory)
	})
}

// NewWithOpener creates a registry using open to create stores.
func NewWithOpener(root string, open Opener) (*Registry, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create data dir %s", root)
		}
	}
	return &Registry{
		root:  root,
		open:  open,
		table: make(map[string]*entry),
		live:  make(map[string]*entry),
	}, nil
}

// ValidateName checks that name can be used as a single directory name.
func ValidateName(name string) error {
	switch {
	case name == "":
		return errors.Wrap(ErrInvalidName, "name is empty")
	case len(name) > maxNameLength:
		return errors.Wrapf(ErrInvalidName, "name is longer than %d bytes", maxNameLength)
	case !utf8.ValidString(name):
		return errors.Wrap(ErrInvalidName, "name is not valid UTF-8")
	case name == "." || name == "..":
		return errors.Wrapf(ErrInvalidName, "%q is reserved", name)
	case strings.ContainsAny(name, "/\\\x00"):
		return errors.Wrapf(ErrInvalidName, "%q contains a path separator or NUL", name)
	}
	return nil
}

// Attach returns a handle to the database called name, opening or creating it
// at root/name if it is not open yet. Attaching an attached name is idempotent.
func (r *Registry) Attach(name string) (*Handle, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	if e, ok := r.table[name]; ok {
		return r.newHandle(e), nil
	}

	// detached but still held somewhere: put the same store back into the table
	if e, ok := r.live[name]; ok {
		e.refs++
		r.table[name] = e
		Logger.Infof("re-attached database %s (%d holders)", name, e.refs-1)
		return r.newHandle(e), nil
	}

	path := filepath.Join(r.root, name)
	s, err := r.open(name, path)
	if err != nil {
		Logger.Warningf("failed to open database %s at %s: %v", name, path, err)
		return nil, err
	}

	e := &entry{name: name, store: s, refs: 1}
	r.table[name] = e
	r.live[name] = e
	Logger.Infof("attached database %s at %s", name, path)
	return r.newHandle(e), nil
}

// Get returns a handle to an attached database without creating it.
func (r *Registry) Get(name string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.table[name]
	if !ok {
		return nil, false
	}
	return r.newHandle(e), true
}

// Detach removes name from the table. Handles already given out stay valid,
// the store is closed once the last of them is released. Detaching a name
// that is not attached is a no-op.
func (r *Registry) Detach(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.table[name]
	if !ok {
		return
	}
	delete(r.table, name)
	Logger.Infof("detached database %s (%d holders)", name, e.refs-1)
	r.decRef(e)
}

// List returns the sorted names of all attached databases.
func (r *Registry) List() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.table))
	for name := range r.table {
		names = append(names, name)
	}
	r.mu.Unlock()

	sort.Strings(names)
	return names
}

// Len returns the number of attached databases.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.table)
}

// OpenCount returns the number of open stores, including detached ones still held.
func (r *Registry) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Close detaches every database and rejects further attaches with ErrClosed.
// Stores without holders are closed immediately, the others when their last
// handle is released.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs error
	for name, e := range r.table {
		delete(r.table, name)
		if err := r.decRef(e); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	if len(r.live) > 0 {
		Logger.Warningf("registry closed with %d databases still held", len(r.live))
	}
	return errs
}

// newHandle adds a reference to e. Must be called with r.mu held.
func (r *Registry) newHandle(e *entry) *Handle {
	e.refs++
	return &Handle{IStore: e.store, r: r, e: e}
}

// decRef drops a reference and closes the store at zero. Must be called with r.mu held.
func (r *Registry) decRef(e *entry) error {
	e.refs--
	if e.refs > 0 {
		return nil
	}
	delete(r.live, e.name)
	if err := e.store.Close(); err != nil {
		Logger.Errorf("failed to close database %s: %v", e.name, err)
		return err
	}
	Logger.Infof("closed database %s", e.name)
	return nil
}

// --------------------------------------------------------------------------
// Handle
// --------------------------------------------------------------------------

// Handle is one reference to an open store. It is valid until Release,
// regardless of Detach.
type Handle struct {
	store.IStore
	r    *Registry
	e    *entry
	once sync.Once
}

// Release drops the reference. It is safe to call more than once.
// A failure to close the store is logged, use Close to receive it.
func (h *Handle) Release() {
	_ = h.Close()
}

// Close drops the reference like Release. It returns the error of closing the
// store if this was the last reference, later calls return nil.
func (h *Handle) Close() error {
	var err error
	h.once.Do(func() {
		h.r.mu.Lock()
		defer h.r.mu.Unlock()
		err = h.r.decRef(h.e)
	})
	return err
}

// Same reports whether both handles refer to the same open store.
func (h *Handle) Same(other *Handle) bool {
	return other != nil && h.e == other.e
}

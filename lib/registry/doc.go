/*
Package registry keeps the set of named databases a server has attached.

Every name maps to one open store. Callers get a reference counted Handle
from Attach or Get and must Release it when done. Detach removes a name from
the table but never invalidates handles that are still held; the store is
closed when the last reference is gone. Attaching a detached name that is
still held returns the very same store.

Names are single directory names below the registry root, see ValidateName.
*/
package registry

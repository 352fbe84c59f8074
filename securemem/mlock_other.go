//go:build !unix

package securemem

import "errors"

// mlock/munlock have no portable implementation outside the unix build;
// callers still get a working buffer, just without page-pinning.
func mlock(b []byte) error   { return errors.New("securemem: mlock unsupported on this platform") }
func munlock(b []byte) error { return nil }

// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package stagingdir writes output files in a staging location, moving them
// into place only once they are complete.
package stagingdir

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// D manages a staging directory for a single destination file.
//
// The staging directory is created alongside the destination, so that moving
// the staged file into place is an atomic rename. Once finished, D can either
// be committed or destroyed. On commit, the staged file replaces the
// destination; on destroy, it is deleted along with the staging directory.
type D struct {
	dest string

	// dir is the staging directory. It is empty once D has been committed or
	// destroyed.
	dir string
}

// New creates a staging directory for dest.
func New(dest string) (*D, error) {
	dir, err := ioutil.TempDir(filepath.Dir(dest), "."+filepath.Base(dest)+".staging")
	if err != nil {
		return nil, errors.Wrap(err, "creating staging directory")
	}
	return &D{dest: dest, dir: dir}, nil
}

// Path returns the path that the file should be staged at.
func (sd *D) Path() string {
	if sd.dir == "" {
		panic("staging directory is no longer valid")
	}
	return filepath.Join(sd.dir, filepath.Base(sd.dest))
}

// Destroy purges the staging directory and its contents. It does nothing if
// D has already been committed or destroyed.
func (sd *D) Destroy() error {
	if sd.dir == "" {
		return nil
	}

	if err := os.RemoveAll(sd.dir); err != nil {
		return errors.Wrap(err, "removing staging directory")
	}
	sd.dir = ""
	return nil
}

// Commit moves the staged file to its destination, replacing any existing
// file there, and removes the staging directory.
func (sd *D) Commit() error {
	if sd.dir == "" {
		return errors.New("invalid staging directory")
	}

	if err := os.Rename(sd.Path(), sd.dest); err != nil {
		return errors.Wrapf(err, "moving staged file into place (%q => %q)", sd.Path(), sd.dest)
	}
	return sd.Destroy()
}

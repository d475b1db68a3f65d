// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build unix

package storeng

import (
	"os"

	"golang.org/x/sys/unix"
)

// fileLock is an advisory lock on the database file's companion ".lock"
// sidecar, held for the lifetime of a DB. Split unix/other the way the
// teacher pack's own sqlite storage layer splits inode_unix.go/
// inode_windows.go for platform-specific filesystem behavior.
type fileLock struct {
	f *os.File
}

func acquireFileLock(path string, exclusive bool) (fileLock, error) {
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fileLock{}, err
	}
	how := unix.LOCK_SH | unix.LOCK_NB
	if exclusive {
		how = unix.LOCK_EX | unix.LOCK_NB
	}
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		return fileLock{}, err
	}
	return fileLock{f: f}, nil
}

func (l fileLock) release() {
	if l.f == nil {
		return
	}
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	l.f.Close()
}

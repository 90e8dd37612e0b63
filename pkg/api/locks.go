// Copyright (c) 2025, The gpupv Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"strings"
	"sync"

	"k8s.io/apimachinery/pkg/util/sets"
)

// vmLocks admits one configure run per VM. Hyper-V VM names compare
// case-insensitively.
type vmLocks struct {
	mu   sync.Mutex
	busy sets.Set[string]
}

func newVMLocks() *vmLocks {
	return &vmLocks{busy: sets.New[string]()}
}

// tryLock reserves vm and reports whether it was free.
func (l *vmLocks) tryLock(vm string) bool {
	key := strings.ToLower(vm)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.busy.Has(key) {
		return false
	}
	l.busy.Insert(key)
	return true
}

func (l *vmLocks) unlock(vm string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.busy.Delete(strings.ToLower(vm))
}

// active lists the VMs being configured.
func (l *vmLocks) active() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sets.List(l.busy)
}

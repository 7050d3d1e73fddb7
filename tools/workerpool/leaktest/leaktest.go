/* leaktest finds goroutines left running by a test.
 *
 * Copyright 2020 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 *     Unless required by applicable law or agreed to in writing, software
 *     distributed under the License is distributed on an "AS IS" BASIS,
 *     WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *     See the License for the specific language governing permissions and
 *     limitations under the License.
 */
package leaktest

import (
	"runtime"
	"strings"
	"testing"
	"time"
)

// Timeout is how long the returned check waits for goroutines to finish.
var Timeout = 5 * time.Second

// Check snapshots the running goroutines and returns a function that fails t if
// any goroutine started after the snapshot is still running when it is called.
//
//	defer leaktest.Check(t)()
func Check(t testing.TB) func() {
	before := goroutines()
	return func() {
		t.Helper()
		deadline := time.Now().Add(Timeout)
		for {
			leaked := []string{}
			for id, stack := range goroutines() {
				if _, found := before[id]; !found {
					leaked = append(leaked, stack)
				}
			}
			if len(leaked) == 0 {
				return
			}
			if time.Now().After(deadline) {
				t.Errorf("%v leaked goroutines:\n%v", len(leaked), strings.Join(leaked, "\n\n"))
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func goroutines() map[string]string {
	buf := make([]byte, 1<<16)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, 2*len(buf))
	}
	res := map[string]string{}
	for _, stack := range strings.Split(string(buf), "\n\n") {
		// Each stack starts with "goroutine <id> [<state>]:".
		fields := strings.Fields(stack)
		if len(fields) < 2 || fields[0] != "goroutine" {
			continue
		}
		res[fields[1]] = stack
	}
	return res
}

/* workerpool contains code to run a limited number of error handling goroutines concurrently.
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
package workerpool

import (
	"fmt"
	"sync"
)

// MultiErr contains multiple errors.
type MultiErr []error

// Error returns a string representation of the multi error.
func (m MultiErr) Error() string {
	return fmt.Sprint([]error(m))
}

// Unwrap returns the contained errors, so that errors.Is and errors.As see each of them.
func (m MultiErr) Unwrap() []error {
	return []error(m)
}

type job[K comparable] struct {
	key K
	f   func() error
}

type result[K comparable] struct {
	key K
	err error
}

// WorkerPool runs a limited number of keyed, error handling goroutines concurrently.
type WorkerPool[K comparable] struct {
	queue   chan job[K]
	results chan result[K]
	failed  map[K]error
}

// Go will run the function under key. A panicking function fails its key.
func (w *WorkerPool[K]) Go(key K, f func() error) {
	w.queue <- job[K]{key: key, f: f}
}

// Wait stops accepting jobs, waits for all submitted jobs to finish and returns their errors as a MultiErr.
func (w *WorkerPool[K]) Wait() error {
	close(w.queue)
	me := MultiErr{}
	for res := range w.results {
		if res.err != nil {
			w.failed[res.key] = res.err
			me = append(me, res.err)
		}
	}
	if len(me) == 0 {
		return nil
	}
	return me
}

// Failed returns the error of each failed key. Only valid after Wait.
func (w *WorkerPool[K]) Failed() map[K]error {
	return w.failed
}

func run[K comparable](j job[K]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v panicked: %v", j.key, r)
		}
	}()
	return j.f()
}

// New returns a new worker pool. Concurrency <= 0 means unlimited.
func New[K comparable](concurrency int) *WorkerPool[K] {
	w := &WorkerPool[K]{
		queue:   make(chan job[K]),
		results: make(chan result[K]),
		failed:  map[K]error{},
	}

	go func() {
		wg := &sync.WaitGroup{}
		tickets := make(chan struct{}, max(concurrency, 0))
		for j := range w.queue {
			j := j
			if concurrency > 0 {
				tickets <- struct{}{}
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := run(j)
				if concurrency > 0 {
					<-tickets
				}
				w.results <- result[K]{key: j.key, err: err}
			}()
		}
		wg.Wait()
		close(w.results)
	}()
	return w
}

/*
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
package produce

import (
	"fmt"
	"strconv"
	"strings"
)

// Volume is the number of samples to produce, or the whole catalog.
type Volume struct {
	N   int
	Max bool
}

// MaxVolume uses the whole catalog.
var MaxVolume = Volume{Max: true}

// ParseVolume parses a positive sample count or MAX.
func ParseVolume(s string) (Volume, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "MAX") {
		return MaxVolume, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return Volume{}, fmt.Errorf("volume %q is neither a positive integer nor MAX", s)
	}
	return Volume{N: n}, nil
}

func (v Volume) String() string {
	if v.Max {
		return "MAX"
	}
	return strconv.Itoa(v.N)
}

// Reached returns whether produced samples satisfy the volume.
func (v Volume) Reached(produced int) bool {
	return !v.Max && produced >= v.N
}

// Remaining returns how many more samples may be produced, or -1 if unbounded.
func (v Volume) Remaining(produced int) int {
	if v.Max {
		return -1
	}
	if produced >= v.N {
		return 0
	}
	return v.N - produced
}

func (v *Volume) UnmarshalText(b []byte) error {
	parsed, err := ParseVolume(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Volume) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

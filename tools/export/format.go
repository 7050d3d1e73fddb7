/* Package export writes labeled samples to disk in machine learning friendly formats.
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
package export

import (
	"fmt"
	"strings"
)

// Format is an on-disk sample encoding.
type Format int

const (
	// TFRecord stores one tf.Example per sample.
	TFRecord Format = iota
	// JSON stores the same features as TFRecord as a JSON object.
	JSON
	// WAV stores one mono WAV file per channel and label, for listening and quick inspection.
	WAV
)

var formatNames = map[Format]string{
	TFRecord: "TFRECORD",
	JSON:     "JSON",
	WAV:      "WAV",
}

func (f Format) String() string {
	if name, found := formatNames[f]; found {
		return name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat parses a format name case insensitively.
func ParseFormat(s string) (Format, error) {
	for format, name := range formatNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return format, nil
		}
	}
	return 0, fmt.Errorf("unknown export format %q", s)
}

func (f *Format) UnmarshalText(b []byte) error {
	parsed, err := ParseFormat(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

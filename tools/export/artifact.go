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
package export

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/google-research/quakelabeler/tools/spectrum"
	"github.com/google-research/quakelabeler/tools/synthesize/signals"

	tf "github.com/ryszard/tfutils/proto/tensorflow/core/example"
)

// Channel is one named channel of an Artifact.
type Channel struct {
	Name string
	Data signals.Float64Slice
}

// Labels are the per sample training targets of an Artifact.
type Labels struct {
	// Bell is the phase pick label.
	Bell signals.Float64Slice
	// Rect is the detection label.
	Rect signals.Float64Slice
}

// Artifact is a named set of equal length channels plus optional labels, ready to export.
type Artifact struct {
	Name     string
	Rate     signals.Hz
	Start    time.Time
	Channels []Channel
	Labels   *Labels
	// ArrivalSample is the possibly fractional arrival index, NaN when there is none.
	ArrivalSample float64
	// Record is exported as metadata features under the "record" prefix. Fields tagged
	// `export:"-"` are skipped.
	Record interface{}
	// Spectra adds the per bin signal power and the dominant frequency of each channel.
	Spectra bool
}

// Len returns the number of samples per channel.
func (a *Artifact) Len() int {
	if len(a.Channels) == 0 {
		return 0
	}
	return len(a.Channels[0].Data)
}

// Validate checks that the artifact has a name, at least one channel, and equal length channels and labels.
func (a *Artifact) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("artifact without name")
	}
	if len(a.Channels) == 0 {
		return fmt.Errorf("artifact %v has no channels", a.Name)
	}
	n := a.Len()
	for _, ch := range a.Channels {
		if len(ch.Data) != n {
			return fmt.Errorf("artifact %v: channel %v has %v samples, wanted %v", a.Name, ch.Name, len(ch.Data), n)
		}
	}
	if a.Labels != nil && (len(a.Labels.Bell) != n || len(a.Labels.Rect) != n) {
		return fmt.Errorf("artifact %v: labels have %v/%v samples, wanted %v", a.Name, len(a.Labels.Bell), len(a.Labels.Rect), n)
	}
	return nil
}

// Features flattens the artifact into named features. Values are string, int64,
// float64, []float64 or []string.
func (a *Artifact) Features() (map[string]interface{}, error) {
	res := map[string]interface{}{
		"name":           a.Name,
		"start":          a.Start.UTC().Format(time.RFC3339Nano),
		"sampling_rate":  float64(a.Rate),
		"arrival_sample": a.ArrivalSample,
	}
	channels := make([]string, len(a.Channels))
	for idx, ch := range a.Channels {
		channels[idx] = ch.Name
		res["trace/"+ch.Name] = []float64(ch.Data)
		if a.Spectra && len(ch.Data) > 1 {
			spec := spectrum.Compute(ch.Data, a.Rate)
			power := make([]float64, len(spec.SignalPower))
			for bin := range power {
				power[bin] = float64(spec.SignalPower[bin])
			}
			res["spectrum/"+ch.Name] = power
			res["dominant_frequency/"+ch.Name] = float64(spec.Dominant(0, a.Rate/2))
		}
	}
	res["channels"] = channels
	if a.Labels != nil {
		res["label/bell"] = []float64(a.Labels.Bell)
		res["label/rect"] = []float64(a.Labels.Rect)
	}
	if a.Record != nil {
		if err := flatten(reflect.ValueOf(a.Record), "record", res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

var timeType = reflect.TypeOf(time.Time{})

func flatten(val reflect.Value, namePrefix string, res map[string]interface{}) error {
	typ := val.Type()
	if typ == timeType {
		t := val.Interface().(time.Time)
		if !t.IsZero() {
			res[namePrefix] = t.UTC().Format(time.RFC3339Nano)
		}
		return nil
	}
	switch typ.Kind() {
	case reflect.String:
		res[namePrefix] = val.String()
	case reflect.Float32, reflect.Float64:
		res[namePrefix] = val.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		res[namePrefix] = val.Int()
	case reflect.Bool:
		if val.Bool() {
			res[namePrefix] = int64(1)
		} else {
			res[namePrefix] = int64(0)
		}
	case reflect.Slice:
		switch typ.Elem().Kind() {
		case reflect.Float64:
			floats := make([]float64, val.Len())
			for idx := range floats {
				floats[idx] = val.Index(idx).Float()
			}
			res[namePrefix] = floats
		case reflect.String:
			strs := make([]string, val.Len())
			for idx := range strs {
				strs[idx] = val.Index(idx).String()
			}
			res[namePrefix] = strs
		default:
			for elemIdx := 0; elemIdx < val.Len(); elemIdx++ {
				if err := flatten(val.Index(elemIdx), fmt.Sprintf("%v[%v]", namePrefix, elemIdx), res); err != nil {
					return err
				}
			}
		}
	case reflect.Ptr, reflect.Interface:
		if val.IsNil() {
			return nil
		}
		return flatten(val.Elem(), namePrefix, res)
	case reflect.Struct:
		for fieldIdx := 0; fieldIdx < typ.NumField(); fieldIdx++ {
			fieldTyp := typ.Field(fieldIdx)
			if !fieldTyp.IsExported() || fieldTyp.Tag.Get("export") == "-" {
				continue
			}
			name := namePrefix + "." + fieldTyp.Name
			if fieldTyp.Anonymous {
				name = namePrefix
			}
			if err := flatten(val.Field(fieldIdx), name, res); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%v %v is of an invalid type %v", namePrefix, val.Interface(), typ)
	}
	return nil
}

// ToTFExample converts the artifact to a tf.Example.
func (a *Artifact) ToTFExample() (*tf.Example, error) {
	features, err := a.Features()
	if err != nil {
		return nil, err
	}
	ex := &tf.Example{
		Features: &tf.Features{
			Feature: map[string]*tf.Feature{},
		},
	}
	for name, value := range features {
		switch v := value.(type) {
		case string:
			ex.Features.Feature[name] = &tf.Feature{Kind: &tf.Feature_BytesList{BytesList: &tf.BytesList{Value: [][]byte{[]byte(v)}}}}
		case []string:
			bs := make([][]byte, len(v))
			for idx := range v {
				bs[idx] = []byte(v[idx])
			}
			ex.Features.Feature[name] = &tf.Feature{Kind: &tf.Feature_BytesList{BytesList: &tf.BytesList{Value: bs}}}
		case int64:
			ex.Features.Feature[name] = &tf.Feature{Kind: &tf.Feature_Int64List{Int64List: &tf.Int64List{Value: []int64{v}}}}
		case float64:
			ex.Features.Feature[name] = &tf.Feature{Kind: &tf.Feature_FloatList{FloatList: &tf.FloatList{Value: []float32{float32(v)}}}}
		case []float64:
			ex.Features.Feature[name] = &tf.Feature{Kind: &tf.Feature_FloatList{FloatList: &tf.FloatList{Value: signals.Float64Slice(v).ToFloat32()}}}
		default:
			return nil, fmt.Errorf("feature %v has unsupported type %T", name, value)
		}
	}
	return ex, nil
}

// jsonSafe replaces NaN and infinite values, which JSON can't express, with null.
func jsonSafe(features map[string]interface{}) map[string]interface{} {
	bad := func(f float64) bool { return math.IsNaN(f) || math.IsInf(f, 0) }
	res := make(map[string]interface{}, len(features))
	for name, value := range features {
		switch v := value.(type) {
		case float64:
			if bad(v) {
				res[name] = nil
				continue
			}
		case []float64:
			for idx := range v {
				if bad(v[idx]) {
					safe := make([]interface{}, len(v))
					for i, f := range v {
						if !bad(f) {
							safe[i] = f
						}
					}
					value = safe
					break
				}
			}
		}
		res[name] = value
	}
	return res
}

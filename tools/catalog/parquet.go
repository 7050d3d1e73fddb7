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
package catalog

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
)

func arrowType(k Kind) arrow.DataType {
	switch k {
	case Int:
		return arrow.PrimitiveTypes.Int64
	case Float:
		return arrow.PrimitiveTypes.Float64
	case Bool:
		return arrow.FixedWidthTypes.Boolean
	}
	return arrow.BinaryTypes.String
}

// WriteParquet writes the records as a single row group Parquet file with columns
// taken from the first record. Nothing is written for an empty slice.
func WriteParquet(w io.Writer, records []EnrichedSampleRecord) error {
	if len(records) == 0 {
		return nil
	}
	columns := Columns(&records[0])
	fields := make([]arrow.Field, len(columns))
	for idx, col := range columns {
		fields[idx] = arrow.Field{Name: col.Name, Type: arrowType(col.Kind), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	builder := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer builder.Release()
	for recIdx := range records {
		for colIdx, col := range columns {
			switch b := builder.Field(colIdx).(type) {
			case *array.StringBuilder:
				b.Append(col.Value(&records[recIdx]).(string))
			case *array.Int64Builder:
				b.Append(col.Value(&records[recIdx]).(int64))
			case *array.Float64Builder:
				b.Append(col.Value(&records[recIdx]).(float64))
			case *array.BooleanBuilder:
				b.Append(col.Value(&records[recIdx]).(bool))
			default:
				return fmt.Errorf("unsupported builder %T for column %v", b, col.Name)
			}
		}
	}
	record := builder.NewRecord()
	defer record.Release()

	writer, err := pqarrow.NewFileWriter(schema, w, nil, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write parquet record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

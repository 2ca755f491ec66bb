/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package table implements the table heap: slotted tuple pages chained into
an unordered collection of rows, backed by the buffer pool.
*/
package table

import (
	"encoding/binary"
	"errors"
	"fmt"

	"nestdb/internal/storage/page"
)

// ValueType enumerates the column types rows can carry.
type ValueType int

const (
	// TypeInt64 is a signed 64-bit integer column.
	TypeInt64 ValueType = iota
	// TypeString is a variable-length string column.
	TypeString
)

// Column describes one attribute of a schema.
type Column struct {
	Name string
	Type ValueType
}

// Schema is the ordered column list of a table or intermediate result.
type Schema struct {
	Columns []Column
}

// NewSchema builds a schema from columns.
func NewSchema(cols ...Column) *Schema {
	return &Schema{Columns: cols}
}

// ColumnIndex resolves a column name to its position, or -1.
func (s *Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Value is one typed cell of a row.
type Value struct {
	Type ValueType
	Int  int64
	Str  string
}

// IntValue builds an integer cell.
func IntValue(v int64) Value {
	return Value{Type: TypeInt64, Int: v}
}

// StringValue builds a string cell.
func StringValue(v string) Value {
	return Value{Type: TypeString, Str: v}
}

// Equals compares two cells of the same type.
func (v Value) Equals(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	if v.Type == TypeInt64 {
		return v.Int == o.Int
	}
	return v.Str == o.Str
}

// Compare orders two cells of the same type: -1, 0 or 1.
func (v Value) Compare(o Value) int {
	if v.Type == TypeInt64 {
		switch {
		case v.Int < o.Int:
			return -1
		case v.Int > o.Int:
			return 1
		default:
			return 0
		}
	}
	switch {
	case v.Str < o.Str:
		return -1
	case v.Str > o.Str:
		return 1
	default:
		return 0
	}
}

// String renders the cell for display.
func (v Value) String() string {
	if v.Type == TypeInt64 {
		return fmt.Sprintf("%d", v.Int)
	}
	return v.Str
}

// Tuple is one row plus the RID it was read from (when it came from a
// heap).
type Tuple struct {
	RID    page.RID
	Values []Value
}

// NewTuple builds a tuple from values.
func NewTuple(values ...Value) Tuple {
	return Tuple{RID: page.InvalidRID, Values: values}
}

// ErrSchemaMismatch is returned when a tuple does not match the schema it
// is encoded or decoded against.
var ErrSchemaMismatch = errors.New("tuple does not match schema")

// Encode serializes the tuple against the schema: integers as 8 fixed
// bytes, strings as a 2-byte length prefix plus bytes.
func (t Tuple) Encode(schema *Schema) ([]byte, error) {
	if len(t.Values) != len(schema.Columns) {
		return nil, ErrSchemaMismatch
	}
	buf := make([]byte, 0, 16*len(t.Values))
	for i, col := range schema.Columns {
		v := t.Values[i]
		if v.Type != col.Type {
			return nil, ErrSchemaMismatch
		}
		switch col.Type {
		case TypeInt64:
			var cell [8]byte
			binary.LittleEndian.PutUint64(cell[:], uint64(v.Int))
			buf = append(buf, cell[:]...)
		case TypeString:
			if len(v.Str) > 0xFFFF {
				return nil, ErrSchemaMismatch
			}
			var ln [2]byte
			binary.LittleEndian.PutUint16(ln[:], uint16(len(v.Str)))
			buf = append(buf, ln[:]...)
			buf = append(buf, v.Str...)
		}
	}
	return buf, nil
}

// DecodeTuple deserializes a row image against the schema.
func DecodeTuple(data []byte, schema *Schema) (Tuple, error) {
	values := make([]Value, 0, len(schema.Columns))
	off := 0
	for _, col := range schema.Columns {
		switch col.Type {
		case TypeInt64:
			if off+8 > len(data) {
				return Tuple{}, ErrSchemaMismatch
			}
			values = append(values, IntValue(int64(binary.LittleEndian.Uint64(data[off:]))))
			off += 8
		case TypeString:
			if off+2 > len(data) {
				return Tuple{}, ErrSchemaMismatch
			}
			n := int(binary.LittleEndian.Uint16(data[off:]))
			off += 2
			if off+n > len(data) {
				return Tuple{}, ErrSchemaMismatch
			}
			values = append(values, StringValue(string(data[off:off+n])))
			off += n
		}
	}
	return Tuple{RID: page.InvalidRID, Values: values}, nil
}

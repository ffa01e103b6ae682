// Copyright 2026 Dolthub, Inc.
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

package sqlite

import (
	"strings"
)

// DataType is the storage class of a value, numbered like the SQLite C API
// fundamental datatypes. Boolean is not a storage class; it is reported for
// columns declared BOOLEAN.
type DataType int

const (
	Integer DataType = iota + 1
	Float
	Text
	Blob
	Null
	Boolean
)

func (t DataType) String() string {
	switch t {
	case Integer:
		return "INTEGER"
	case Float:
		return "DOUBLE"
	case Text:
		return "TEXT"
	case Blob:
		return "BLOB"
	case Null:
		return "NULL"
	case Boolean:
		return "BOOLEAN"
	}
	return "UNKNOWN"
}

// Affinity is the type affinity of a column, derived from its declared type.
type Affinity int

const (
	NoAffinity Affinity = iota
	TextAffinity
	NumericAffinity
	IntegerAffinity
	RealAffinity
	BlobAffinity
)

// AffinityOf applies SQLite's rules for determining column affinity from a
// declared type name. The rules are checked in order.
func AffinityOf(declType string) Affinity {
	decl := strings.ToUpper(declType)
	switch {
	case strings.Contains(decl, "INT"):
		return IntegerAffinity
	case strings.Contains(decl, "CHAR"), strings.Contains(decl, "CLOB"), strings.Contains(decl, "TEXT"):
		return TextAffinity
	case decl == "", strings.Contains(decl, "BLOB"):
		return BlobAffinity
	case strings.Contains(decl, "REAL"), strings.Contains(decl, "FLOA"), strings.Contains(decl, "DOUB"):
		return RealAffinity
	}
	return NumericAffinity
}

// TypeInfo describes the type of a column or value.
type TypeInfo struct {
	Type     DataType
	Affinity Affinity
}

// Compatible reports whether values of |other| can be decoded as |ti|. The
// storage classes match, or both sides share an affinity.
func (ti TypeInfo) Compatible(other TypeInfo) bool {
	return ti.Type == other.Type || (ti.Affinity != NoAffinity && ti.Affinity == other.Affinity)
}

func (ti TypeInfo) String() string {
	return ti.Type.String()
}

// declaredType returns the type info of a column with the given declared
// type, as seen before any row is read.
func declaredType(declType string) TypeInfo {
	affinity := AffinityOf(declType)
	if strings.EqualFold(strings.TrimSpace(declType), "BOOLEAN") {
		return TypeInfo{Type: Boolean, Affinity: NumericAffinity}
	}
	switch affinity {
	case IntegerAffinity:
		return TypeInfo{Type: Integer, Affinity: affinity}
	case TextAffinity:
		return TypeInfo{Type: Text, Affinity: affinity}
	case RealAffinity:
		return TypeInfo{Type: Float, Affinity: affinity}
	case BlobAffinity:
		return TypeInfo{Type: Blob, Affinity: affinity}
	}
	return TypeInfo{Type: Float, Affinity: affinity}
}

var (
	integerType = TypeInfo{Type: Integer, Affinity: IntegerAffinity}
	floatType   = TypeInfo{Type: Float, Affinity: RealAffinity}
	textType    = TypeInfo{Type: Text, Affinity: TextAffinity}
	blobType    = TypeInfo{Type: Blob, Affinity: BlobAffinity}
	boolType    = TypeInfo{Type: Boolean, Affinity: NumericAffinity}
)

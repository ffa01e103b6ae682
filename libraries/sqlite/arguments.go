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

type argument struct {
	typ DataType
	i   int64
	f   float64
	s   string
	b   []byte
}

// Arguments are the parameters of a statement, bound in order.
type Arguments struct {
	args []argument
}

func NewArguments() *Arguments {
	return &Arguments{}
}

func (a *Arguments) Len() int {
	return len(a.args)
}

func (a *Arguments) add(arg argument) *Arguments {
	a.args = append(a.args, arg)
	return a
}

func (a *Arguments) Null() *Arguments {
	return a.add(argument{typ: Null})
}

func (a *Arguments) Int64(v int64) *Arguments {
	return a.add(argument{typ: Integer, i: v})
}

// Bool binds |v| as the integer 1 or 0.
func (a *Arguments) Bool(v bool) *Arguments {
	if v {
		return a.Int64(1)
	}
	return a.Int64(0)
}

func (a *Arguments) Float64(v float64) *Arguments {
	return a.add(argument{typ: Float, f: v})
}

func (a *Arguments) Text(v string) *Arguments {
	return a.add(argument{typ: Text, s: v})
}

func (a *Arguments) Blob(v []byte) *Arguments {
	return a.add(argument{typ: Blob, b: v})
}

func (a *Arguments) bind(st Statement) error {
	for n, arg := range a.args {
		i := n + 1
		var err error
		switch arg.typ {
		case Integer:
			err = st.BindInt64(i, arg.i)
		case Float:
			err = st.BindFloat64(i, arg.f)
		case Text:
			err = st.BindText(i, arg.s)
		case Blob:
			err = st.BindBlob(i, arg.b)
		default:
			err = st.BindNull(i)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

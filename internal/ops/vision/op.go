// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.



package vision

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mlnoga/spidercam/internal/ops"
	"github.com/mlnoga/spidercam/internal/raster"
)

// Simulates people and spider vision on a source image. Takes one input,
// produces three outputs: the source, the people image and the spider image.
// When inactive, passes its inputs through unchanged
type OpSimulate struct {
	ops.OpBase
	Config
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpSimulateDefault() }) } // register the operator for JSON decoding

func NewOpSimulateDefault() *OpSimulate { return NewOpSimulate(DefaultConfig()) }

func NewOpSimulate(cfg Config) *OpSimulate {
	return &OpSimulate{
		OpBase: ops.OpBase{Type: "simulate", Active: true},
		Config: cfg,
	}
}

// Unmarshals the operator on top of the defaults, so omitted settings keep their default values
func (op *OpSimulate) UnmarshalJSON(data []byte) error {
	type defaults OpSimulate
	def:=defaults(*NewOpSimulateDefault())
	if err:=json.Unmarshal(data, &def); err!=nil { return err }
	*op=OpSimulate(def)
	return nil
}

func (op *OpSimulate) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if !op.Active { return ins, nil }  // pass inputs through unchanged
	if len(ins)!=1 { return nil, fmt.Errorf("%s operator needs exactly one input, have %d", op.Type, len(ins)) }
	if err:=op.Config.Validate(); err!=nil { return nil, err }

	source:=ops.Memoize(ins[0])
	var once sync.Once
	var res *Result
	var resErr error
	simulate:=func() (*Result, error) {
		once.Do(func() {
			src, err:=source()
			if err!=nil { resErr=err; return }
			res, resErr=Simulate(src, op.Config, c)
		})
		return res, resErr
	}

	people:=func() (*raster.Image, error) {
		r, err:=simulate()
		if err!=nil { return nil, err }
		return r.People, nil
	}
	spider:=func() (*raster.Image, error) {
		r, err:=simulate()
		if err!=nil { return nil, err }
		return r.Spider, nil
	}
	return []ops.Promise{source, people, spider}, nil
}

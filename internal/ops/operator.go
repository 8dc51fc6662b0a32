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



package ops

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/pbnjay/memory"

	nl "github.com/mlnoga/spidercam/internal"
	"github.com/mlnoga/spidercam/internal/raster"
)

// An execution context for operators
type Context struct {
	Log           io.Writer
	BaseDir       string  `json:"baseDir"`        // relative file names are resolved against this directory
	RestrictPaths bool    `json:"restrictPaths"`  // reject absolute paths and parent directory references
	MemoryMB      int     `json:"memoryMB"`       // memory budget for convolution working sets
	MaxThreads    int     `json:"maxThreads"`
}

// Creates a context logging to the given writer, with a memory budget of 70% of physical memory
func NewContext(log io.Writer, baseDir string) *Context {
	memoryMB:=int(memory.TotalMemory()/1024/1024)
	return &Context{
		Log:        log,
		BaseDir:    baseDir,
		MemoryMB:   memoryMB*7/10,
		MaxThreads: runtime.GOMAXPROCS(0),
	}
}

// Resolves a file name against the base directory. With restricted paths,
// rejects absolute file names and names leaving the base directory tree
func (c *Context) ResolvePath(fileName string) (string, error) {
	if c.RestrictPaths && !isPathAllowed(fileName) {
		return "", fmt.Errorf("%w: file name %s outside the base directory tree", nl.ErrInvalidArgument, fileName)
	}
	if filepath.IsAbs(fileName) || c.BaseDir=="" { return fileName, nil }
	return filepath.Join(c.BaseDir, fileName), nil
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func isPathAllowed(p string) bool {
	if filepath.IsAbs(p) { return false }          // relative paths only
	if strings.Contains(p, "..") { return false }  // no going outside the tree
	return true
}

// A promise for an image. Returns a materialized image, or an error
type Promise func() (f *raster.Image, err error)

// Wraps a promise so it is materialized at most once, no matter how many consumers call it
func Memoize(p Promise) Promise {
	var once sync.Once
	var f *raster.Image
	var err error
	return func() (*raster.Image, error) {
		once.Do(func() { f, err=p() })
		return f, err
	}
}

// Materializes all promises with given concurrency limit
func MaterializeAll(ins []Promise, maxThreads int, forget bool) (outs []*raster.Image, err error) {
	if len(ins)==0 { return nil, nil }
	if maxThreads<1 { maxThreads=1 }
	if !forget {
		outs=make([]*raster.Image, len(ins))
	}
	limiter:=make(chan bool, maxThreads)
	errs   :=make(chan error, len(ins))
	for i, in:=range ins {
		limiter <- true
		go func(i int, theIn Promise) {
			defer func() { <-limiter }()
			f, err:=theIn() // materialize the promise
			if err!=nil {
				errs <- err
				return
			}
			if !forget {
				outs[i]=f
			}
			errs <- nil
		}(i, in)
	}
	for i:=0; i<cap(limiter); i++ {  // wait for goroutines to finish
		limiter <- true
	}
	var all []error
	for i:=0; i<len(ins); i++ {  // collect errors
		if e:=<-errs; e!=nil { all=append(all, e) }
	}
	return RemoveNils(outs), errors.Join(all...)
}

// Remove nils from an array of images, editing the underlying array in place
func RemoveNils(images []*raster.Image) []*raster.Image {
	o:=0
	for i:=0; i<len(images); i++ {
		if images[i]!=nil {
			images[o]=images[i]
			o++
		}
	}
	for i:=o; i<len(images); i++ {
		images[i]=nil
	}
	return images[:o]
}


// A general image processing operator: takes n promises as inputs,
// and produces m promises as output or an error
type Operator interface {
	GetType() string
	IsActive() bool
	MakePromises(ins []Promise, c *Context) (outs []Promise, err error)
}

// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

func (op *OpBase) GetType() string { return op.Type }
func (op *OpBase) IsActive() bool  { return op.Active }

// Factory method for operators. For JSON serializing/deserializing
type OperatorFactory func() Operator

// Mapping from operator type strings to factory method for the type
var operatorFactories=map[string]OperatorFactory{}

// Returns the operator factory for a given type string
func GetOperatorFactory(t string) OperatorFactory {
	return operatorFactories[t]
}

// Registers a given type string for a given type of Operator, identified via an exemplar generator
func SetOperatorFactory(f OperatorFactory) {
	op:=f()
	t:=op.GetType()
	if GetOperatorFactory(t)!=nil { panic(fmt.Sprintf("error: re-registering operator key %s\n", t)) }
	operatorFactories[t]=f
}

// Decodes a single polymorphic operator from JSON, using the type field to pick the factory
func UnmarshalOperator(raw []byte) (Operator, error) {
	var base OpBase
	if err:=json.Unmarshal(raw, &base); err!=nil { return nil, err }
	factory:=GetOperatorFactory(base.Type)
	if factory==nil {
		return nil, fmt.Errorf("%w: unknown operator type '%s' in raw JSON message '%s'", nl.ErrInvalidArgument, base.Type, string(raw))
	}
	op:=factory()
	if err:=json.Unmarshal(raw, op); err!=nil { return nil, err }
	return op, nil
}


// A unary image processing operator: given n promises as inputs,
// applies itself to each of them individually and returns n output promises or an error
type OperatorUnary interface {
	Operator
	Apply(f *raster.Image, c *Context) (fOut *raster.Image, err error)
}

// Abstract base type for unary operators. Uses golang workaround for abstract classes
// from https://golangbyexample.com/go-abstract-class/
type OpUnaryBase struct {
	OpBase
	Apply func(f *raster.Image, c *Context) (fOut *raster.Image, err error) `json:"-"`
}

func (op *OpUnaryBase) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins)==0 { return nil, fmt.Errorf("%s operator with %d inputs", op.Type, len(ins)) }
	outs=make([]Promise, len(ins))
	for i, in:=range ins {
		outs[i]=op.MakePromise(in, c)
	}
	return outs, nil
}

func (op *OpUnaryBase) MakePromise(in Promise, c *Context) (out Promise) {
	return func() (f *raster.Image, err error) {
		if f, err=in();          err!=nil { return nil, err } // materialize input promise
		if !op.Active { return f, nil }
		if f, err=op.Apply(f,c); err!=nil { return nil, err } // apply unary operator
		return f, nil                                         // wrap output in promise
	}
}


// Load a single image from a single filename. Takes zero inputs, produces one output
type OpLoad struct {
	OpBase
	ID       int    `json:"id"`
	FileName string `json:"fileName"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadDefault() }) } // register the operator for JSON decoding

func NewOpLoadDefault() *OpLoad { return NewOpLoad(0, "") }

func NewOpLoad(id int, fileName string) *OpLoad {
	return &OpLoad{
		OpBase:   OpBase{Type: "load", Active: true},
		ID:       id,
		FileName: fileName,
	}
}

// Load image from a file. Takes no inputs
func (op *OpLoad) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins)>0 { return nil, fmt.Errorf("%s operator with non-zero input", op.Type) }
	fileName, err:=c.ResolvePath(op.FileName)
	if err!=nil { return nil, err }

	out:=func() (f *raster.Image, err error) {
		return op.load(fileName, c)
	}
	return []Promise{out}, nil
}

func (op *OpLoad) load(fileName string, c *Context) (*raster.Image, error) {
	f, err:=raster.NewImageFromFile(fileName, op.ID)
	if err!=nil { return nil, err }
	f.Role="source"
	f.CalcStats()

	warning:=""
	if f.Stats.Max-f.Stats.Min<1e-8 {
		warning="; WARNING low dynamic range"
	}
	fmt.Fprintf(c.Log, "%d: Loaded %d-bit %s image with %v from %s%s\n",
		f.ID, f.Bitpix, f.DimensionsToString(), f.Stats, f.FileName, warning)
	return f, nil
}


// Saves each input into a directory, naming it by prefixing the source file name with the image role.
// Takes n inputs, produces n outputs (the materialized but unchanged inputs)
type OpSave struct {
	OpUnaryBase
	Dir    string `json:"dir"`     // output directory, relative to the base directory. Empty means the base directory
	Format string `json:"format"`  // output suffix like "png" replacing the source suffix. Empty keeps the source suffix
}

func init() { SetOperatorFactory(func() Operator { return NewOpSaveDefault() }) } // register the operator for JSON decoding

func NewOpSaveDefault() *OpSave { return NewOpSave("", "") }

func NewOpSave(dir, format string) *OpSave {
	op:=OpSave{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "save", Active: true}},
		Dir:         dir,
		Format:      format,
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshals the operator and re-binds the abstract apply method
func (op *OpSave) UnmarshalJSON(data []byte) error {
	type defaults OpSave
	def:=defaults(*NewOpSaveDefault())
	if err:=json.Unmarshal(data, &def); err!=nil { return err }
	*op=OpSave(def)
	op.OpUnaryBase.Apply=op.Apply
	return nil
}

// Returns the output file name for the given image
func (op *OpSave) OutputName(f *raster.Image) string {
	base:=filepath.Base(f.FileName)
	if op.Format!="" {
		base=strings.TrimSuffix(base, filepath.Ext(base))+"."+strings.TrimPrefix(op.Format, ".")
	}
	if f.Role!="" {
		base=f.Role+"-"+base
	}
	return filepath.Join(op.Dir, base)
}

func (op *OpSave) Apply(f *raster.Image, c *Context) (result *raster.Image, err error) {
	fileName, err:=c.ResolvePath(op.OutputName(f))
	if err!=nil { return nil, err }
	fmt.Fprintf(c.Log, "%d: Writing %s pixel %s image to %s\n", f.ID, f.DimensionsToString(), f.Role, fileName)
	if err=f.WriteFile(fileName); err!=nil { return nil, err }
	return f, nil
}


// Applies a sequence of operators to a promise. Number of inputs, outputs as per the chained steps
type OpSequence struct {
	OpBase
	Steps    []Operator        `json:"-"`      // the actual steps
	StepsRaw []json.RawMessage `json:"steps"`  // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpSequenceDefault() }) } // register the operator for JSON decoding

func NewOpSequenceDefault() *OpSequence { return NewOpSequence() }

func NewOpSequence(steps ...Operator) *OpSequence {
	return &OpSequence{
		OpBase: OpBase{Type: "seq", Active: len(steps)>0},
		Steps:  steps,
	}
}

// Unmarshals a sequence of polymorphic operators from JSON.
// Uses temporary op.StepsRaw inspired by https://alexkappa.medium.com/json-polymorphism-in-go-4cade1e58ed1
func (op *OpSequence) UnmarshalJSON(b []byte) error {
	type alias OpSequence
	if err:=json.Unmarshal(b, (*alias)(op)); err!=nil { return err }

	op.Steps=nil
	for _, raw:=range op.StepsRaw {
		step, err:=UnmarshalOperator(raw)
		if err!=nil { return err }
		op.Steps=append(op.Steps, step)
	}
	op.StepsRaw=nil
	return nil
}

// Appends one or more operators to the existing sequence
func (op *OpSequence) Append(steps ...Operator) {
	op.Steps=append(op.Steps, steps...)
	op.Active=len(op.Steps)>0
}

// Marshals a sequence with polymorphic operators to JSON.
// Uses the actual op.Steps with label "steps", and ignores op.StepsRaw
func (op *OpSequence) MarshalJSON() (bs []byte, err error) {
	buf:=bytes.Buffer{}
	buf.WriteString("{\"type\":")
	inner, err:=json.Marshal(op.Type)
	if err!=nil { return nil, err }
	buf.Write(inner)
	fmt.Fprintf(&buf, ", \"active\":%v, \"steps\":", op.Active)
	inner, err=json.Marshal(op.Steps)
	if err!=nil { return nil, err }
	buf.Write(inner)
	buf.WriteRune('}')
	return buf.Bytes(), nil
}

func (op *OpSequence) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	return op.applyRecursive(op.Steps, ins, c)
}

func (op *OpSequence) applyRecursive(steps []Operator, ins []Promise, c *Context) (outs []Promise, err error) {
	if len(steps)==0 { return ins, nil }
	ins, err=steps[0].MakePromises(ins, c)
	if err!=nil { return nil, err }
	return op.applyRecursive(steps[1:], ins, c)
}

// Builds the promises of the operator from no inputs, and materializes them all
func Run(op Operator, c *Context) ([]*raster.Image, error) {
	promises, err:=op.MakePromises(nil, c)
	if err!=nil { return nil, err }
	return MaterializeAll(promises, c.MaxThreads, false)
}

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
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"

	nl "github.com/mlnoga/spidercam/internal"
	"github.com/mlnoga/spidercam/internal/raster"
)

func TestMemoize(t *testing.T) {
	var calls int32
	p:=Memoize(func() (*raster.Image, error) {
		atomic.AddInt32(&calls, 1)
		return raster.NewImageFromNaxisn([]int32{2, 2, 3}, nil), nil
	})
	ps:=[]Promise{p, p, p, p, p}
	outs, err:=MaterializeAll(ps, 4, false)
	if err!=nil { t.Fatal(err) }
	if calls!=1 {
		t.Errorf("promise called %d times; want 1", calls)
	}
	for i:=1; i<len(outs); i++ {
		if outs[i]!=outs[0] {
			t.Errorf("output %d is a different image", i)
		}
	}
}

func TestMaterializeAllErrors(t *testing.T) {
	errA, errB:=errors.New("a"), errors.New("b")
	ok:=func() (*raster.Image, error) { return raster.NewImageFromNaxisn([]int32{1, 1, 3}, nil), nil }
	outs, err:=MaterializeAll([]Promise{
		ok,
		func() (*raster.Image, error) { return nil, errA },
		ok,
		func() (*raster.Image, error) { return nil, errB },
	}, 2, false)
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("err=%v; want both errors joined", err)
	}
	if len(outs)!=2 {
		t.Errorf("%d outputs; want 2 successful ones", len(outs))
	}

	outs, err=MaterializeAll([]Promise{ok, ok}, 0, true)
	if err!=nil || len(outs)!=0 {
		t.Errorf("forget: outs=%d err=%v; want 0, nil", len(outs), err)
	}
}

func TestRemoveNils(t *testing.T) {
	a, b:=&raster.Image{ID: 1}, &raster.Image{ID: 2}
	res:=RemoveNils([]*raster.Image{nil, a, nil, nil, b, nil})
	if len(res)!=2 || res[0]!=a || res[1]!=b {
		t.Errorf("got %v; want [a b]", res)
	}
}

func TestResolvePath(t *testing.T) {
	abs:=filepath.Join(string(filepath.Separator), "etc", "passwd")
	tests:=[]struct {
		restrict bool
		name     string
		want     string
		wantErr  bool
	}{
		{false, "a.png", filepath.Join("base", "a.png"), false},
		{false, "sub/a.png", filepath.Join("base", "sub", "a.png"), false},
		{false, abs, abs, false},
		{false, "../a.png", filepath.Join("a.png"), false},
		{true,  "a.png", filepath.Join("base", "a.png"), false},
		{true,  abs, "", true},
		{true,  "../a.png", "", true},
		{true,  "sub/../../a.png", "", true},
	}
	for _, test:=range tests {
		c:=&Context{BaseDir: "base", RestrictPaths: test.restrict}
		got, err:=c.ResolvePath(test.name)
		if test.wantErr {
			if !errors.Is(err, nl.ErrInvalidArgument) {
				t.Errorf("ResolvePath(%q) err=%v; want ErrInvalidArgument", test.name, err)
			}
			continue
		}
		if err!=nil || got!=test.want {
			t.Errorf("ResolvePath(%q)=%q, %v; want %q", test.name, got, err, test.want)
		}
	}
}

func TestOutputName(t *testing.T) {
	tests:=[]struct {
		dir, format, fileName, role string
		want                        string
	}{
		{"",    "",     "/data/moon.jpg",  "people", "people-moon.jpg"},
		{"out", "",     "moon.jpg",        "spider", filepath.Join("out", "spider-moon.jpg")},
		{"",    "png",  "/data/moon.jpg",  "spider", "spider-moon.png"},
		{"",    ".tif", "moon.tar.jpg",    "source", "source-moon.tar.tif"},
		{"",    "",     "moon.jpg",        "",       "moon.jpg"},
	}
	for _, test:=range tests {
		op:=NewOpSave(test.dir, test.format)
		got:=op.OutputName(&raster.Image{FileName: test.fileName, Role: test.role})
		if got!=test.want {
			t.Errorf("OutputName(%q, %q) in %q as %q = %q; want %q", test.fileName, test.role, test.dir, test.format, got, test.want)
		}
	}
}

func TestSequenceJSON(t *testing.T) {
	seq:=NewOpSequence(NewOpLoad(3, "moon.png"), NewOpSave("out", "tif"))
	bs, err:=json.Marshal(seq)
	if err!=nil { t.Fatal(err) }

	op, err:=UnmarshalOperator(bs)
	if err!=nil { t.Fatalf("%v decoding %s", err, bs) }
	got, ok:=op.(*OpSequence)
	if !ok || !got.Active || len(got.Steps)!=2 {
		t.Fatalf("decoded %s into %#v", bs, op)
	}
	load, ok:=got.Steps[0].(*OpLoad)
	if !ok || load.ID!=3 || load.FileName!="moon.png" {
		t.Errorf("step 0 %#v", got.Steps[0])
	}
	save, ok:=got.Steps[1].(*OpSave)
	if !ok || save.Dir!="out" || save.Format!="tif" {
		t.Fatalf("step 1 %#v", got.Steps[1])
	}
	if save.OpUnaryBase.Apply==nil {
		t.Errorf("decoded save operator without apply method")
	}
}

func TestUnmarshalUnknownOperator(t *testing.T) {
	_, err:=UnmarshalOperator([]byte(`{"type":"teleport", "active":true}`))
	if !errors.Is(err, nl.ErrInvalidArgument) {
		t.Errorf("err=%v; want ErrInvalidArgument", err)
	}
	_, err=UnmarshalOperator([]byte(`{"type":"seq", "steps":[{"type":"nope"}]}`))
	if !errors.Is(err, nl.ErrInvalidArgument) {
		t.Errorf("nested err=%v; want ErrInvalidArgument", err)
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	dir:=t.TempDir()
	f:=raster.NewImageFromNaxisn([]int32{5, 4, 3}, nil)
	for i:=range f.Data { f.Data[i]=float32(i)/float32(len(f.Data)) }
	if err:=f.WriteFile(filepath.Join(dir, "in.png")); err!=nil { t.Fatal(err) }

	c:=NewContext(io.Discard, dir)
	c.RestrictPaths=true
	outs, err:=Run(NewOpSequence(NewOpLoad(7, "in.png"), NewOpSave("", "tiff")), c)
	if err!=nil { t.Fatal(err) }
	if len(outs)!=1 || outs[0].ID!=7 || outs[0].Role!="source" {
		t.Fatalf("outputs %v", outs)
	}
	g, err:=raster.NewImageFromFile(filepath.Join(dir, "source-in.tiff"), 0)
	if err!=nil { t.Fatal(err) }
	if d:=raster.MaxAbsDiff(outs[0], g); d>1.0/65535 {
		t.Errorf("saved image differs by %g", d)
	}
}

func TestLoadRejectsEscapingPath(t *testing.T) {
	c:=NewContext(io.Discard, t.TempDir())
	c.RestrictPaths=true
	_, err:=Run(NewOpLoad(0, "../secret.png"), c)
	if !errors.Is(err, nl.ErrInvalidArgument) {
		t.Errorf("err=%v; want ErrInvalidArgument", err)
	}
}

func TestUnaryInactivePassesThrough(t *testing.T) {
	op:=NewOpSave("", "png")
	op.Active=false
	src:=raster.NewImageFromNaxisn([]int32{1, 1, 3}, nil)
	p:=op.MakePromise(func() (*raster.Image, error) { return src, nil }, &Context{Log: io.Discard, BaseDir: "/nonexistent"})
	f, err:=p()
	if err!=nil || f!=src {
		t.Errorf("inactive operator returned %v, %v", f, err)
	}
}

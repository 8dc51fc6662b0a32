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



package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	nl "github.com/mlnoga/spidercam/internal"
	"github.com/mlnoga/spidercam/internal/ops"
	"github.com/mlnoga/spidercam/internal/ops/vision"
	"github.com/mlnoga/spidercam/internal/psf"
)

// Server settings shared by all requests
type Settings struct {
	BaseDir    string  // all request file names are resolved relative to this directory
	MaxThreads int
	MemoryMB   int
}

// Creates the router with all API endpoints
func NewRouter(s Settings) *gin.Engine {
	r:=gin.Default()
	api:=r.Group("/api")
	{
		v1:=api.Group("/v1")
		{
			v1.GET ("/ping",     getPing)
			v1.POST("/psf",      postPSF)
			v1.POST("/simulate", s.postSimulate)
			v1.POST("/run",      s.postRun)
		}
	}
	return r
}

// Listens and serves the API on the given address, e.g. ":8080"
func Serve(addr string, s Settings) error {
	return NewRouter(s).Run(addr)
}

// Returns a fresh operator context for a request, with paths restricted to the base directory tree
func (s Settings) context(log io.Writer) *ops.Context {
	return &ops.Context{
		Log:           log,
		BaseDir:       s.BaseDir,
		RestrictPaths: true,
		MemoryMB:      s.MemoryMB,
		MaxThreads:    s.MaxThreads,
	}
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m,err:=json.MarshalIndent(args, "", "  ")
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

type postPSFArgs struct {
	AngularResolution float64 `json:"angularResolution"`
	PlateScale        float64 `json:"plateScale"`
	ExtentFactor      float64 `json:"extentFactor"`
}

type postPSFResult struct {
	FWHMPixels float64 `json:"fwhmPixels"`
	SizePixels int     `json:"sizePixels"`
	Sum        float64 `json:"sum"`
	Peak       float64 `json:"peak"`
}

// Derives kernel parameters for a resolution and plate scale, and reports the normalized kernel
func postPSF(c *gin.Context) {
	args:=postPSFArgs{PlateScale: psf.DefaultPlateScale, ExtentFactor: psf.DefaultExtentFactor}
	if err:=c.ShouldBindJSON(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fwhm, size, err:=psf.DeriveParameters(args.AngularResolution, args.PlateScale, args.ExtentFactor)
	if err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	k, err:=psf.NewGaussianKernel(size, fwhm, nil)
	if err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, postPSFResult{FWHMPixels: fwhm, SizePixels: size, Sum: k.Sum(), Peak: k.Peak()})
}

type postSimulateArgs struct {
	FileName string `json:"fileName"`
	OutDir   string `json:"outDir"`
	Format   string `json:"format"`
	vision.Config
}

// Simulates people and spider vision for one image, streaming the log as plain text
func (s Settings) postSimulate(c *gin.Context) {
	args:=postSimulateArgs{Config: vision.DefaultConfig()}
	if err:=c.ShouldBindJSON(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err:=args.Config.Validate(); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	seq:=ops.NewOpSequence(ops.NewOpLoad(0, args.FileName), vision.NewOpSimulate(args.Config), ops.NewOpSave(args.OutDir, args.Format))
	s.stream(c, args, seq)
}

// Runs an arbitrary JSON operator graph, streaming the log as plain text
func (s Settings) postRun(c *gin.Context) {
	raw, err:=c.GetRawData()
	if err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	op, err:=ops.UnmarshalOperator(raw)
	if err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.stream(c, op, op)
}

func (s Settings) stream(c *gin.Context, args interface{}, op ops.Operator) {
	header:=c.Writer.Header()
	header.Set("Content-Type", "text/plain")
	c.Writer.WriteHeader(http.StatusOK)
	logWriter:=nl.NewSyncWriter(c.Writer)

	if err:=printArgs(logWriter, "Arguments:\n", "\n", args); err!=nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}
	if _, err:=ops.Run(op, s.context(logWriter)); err!=nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		return
	}
	fmt.Fprintf(logWriter, "Done.\n")
}

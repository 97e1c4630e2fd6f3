/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package localfile implements the §4.C Source contract for a plain
// filesystem path TrackRef. It owns nothing more than the open file handle;
// turning bytes into AudioBlocks is a Decoder's job, provided by a plugin
// resolved through the capability registry.
package localfile

import (
	"os"

	"github.com/friendsincode/audioengine/internal/engineerr"
	"github.com/friendsincode/audioengine/internal/model"
)

// Source opens a local file and hands the *os.File to the decoder as an
// opaque SourceHandle.
type Source struct {
	Path string

	file *os.File
}

// New constructs a Source for path. Prepare does the actual open.
func New(path string) *Source { return &Source{Path: path} }

func (s *Source) Prepare(ctx *model.PipelineContext) (model.SourceHandle, error) {
	if s.Path == "" {
		return model.SourceHandle{}, engineerr.New(engineerr.InvalidInput, "local source: empty path")
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return model.SourceHandle{}, engineerr.Wrap(engineerr.Io, "open local track", err)
	}
	s.file = f
	return model.SourceHandle{Value: f}, nil
}

func (s *Source) SyncRuntimeControl(ctx *model.PipelineContext) error { return nil }

func (s *Source) Stop(ctx *model.PipelineContext) error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return engineerr.Wrap(engineerr.Io, "close local track", err)
	}
	return nil
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sink

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/friendsincode/audioengine/internal/model"
)

// NullDevice discards every sample. It satisfies DeviceStream so the
// session manager always has a usable backend even when no OS-specific
// audio API is wired in (§1 explicitly keeps device enumeration out of
// CORE scope).
type NullDevice struct{}

func (NullDevice) Open(spec model.StreamSpec, format SampleFormat) error { return nil }
func (NullDevice) Close() error                                          { return nil }

// FileDevice writes the device's sample stream to a file as raw
// little-endian samples, one value per ConvertSample call. Useful for
// headless testing and for the "file" backend selected by
// config.Config.DeviceBackend.
type FileDevice struct {
	path   string
	file   *os.File
	spec   model.StreamSpec
	format SampleFormat
}

// NewFileDevice constructs a FileDevice writing to path on Open.
func NewFileDevice(path string) *FileDevice {
	return &FileDevice{path: path}
}

func (d *FileDevice) Open(spec model.StreamSpec, format SampleFormat) error {
	f, err := os.Create(d.path)
	if err != nil {
		return err
	}
	d.file = f
	d.spec = spec
	d.format = format
	return nil
}

func (d *FileDevice) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// WriteConverted writes already-format-converted samples to the
// underlying file. The real device callback in a native backend would
// instead memcpy into a hardware buffer; this stands in for that when the
// session is configured with the "file" backend.
func (d *FileDevice) WriteConverted(samples []float32) error {
	if d.file == nil {
		return io.ErrClosedPipe
	}
	for _, v := range samples {
		converted := ConvertSample(v, d.format)
		if err := binary.Write(d.file, binary.LittleEndian, converted); err != nil {
			return err
		}
	}
	return nil
}

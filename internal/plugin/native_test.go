/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package plugin

import (
	"testing"

	"github.com/friendsincode/audioengine/internal/model"
)

func TestNativeFactoryMissingModuleErrors(t *testing.T) {
	f := NewNativeFactory(t.TempDir())
	_, err := f.NewInstance(model.PluginMetadata{ID: "does-not-exist"}, model.CapabilityDescriptor{}, nil)
	if err == nil {
		t.Fatal("expected an error opening a missing native module")
	}
}

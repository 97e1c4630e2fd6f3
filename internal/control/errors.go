/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package control

import "github.com/friendsincode/audioengine/internal/engineerr"

var errControlFinishTimeout = engineerr.New(engineerr.Timeout, "control finish timeout")

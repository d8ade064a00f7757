/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	got := String()
	if !strings.HasPrefix(got, "ambienced "+Version+" ") || !strings.Contains(got, Commit) {
		t.Errorf("String() = %q", got)
	}
}

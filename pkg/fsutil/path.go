/*
 * shift: terminal-tunneled bidirectional file transfer
 * Copyright 2019-2026 Daniel Selifonov
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package fsutil holds small filesystem path helpers shared by the
// transfer orchestrator and its CLI front-ends.
package fsutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// JoinUnderRoot cleans rel and joins it beneath root, rejecting any path
// that would escape root via ".." segments or an absolute component. The
// wire protocol never validates peer-supplied names, so the receiver must.
func JoinUnderRoot(root, rel string) (string, error) {
	cleanRel := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleanRel) {
		return "", fmt.Errorf("fsutil: absolute path not allowed: %q", rel)
	}
	if cleanRel == ".." || strings.HasPrefix(cleanRel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("fsutil: path escapes transfer root: %q", rel)
	}

	joined := filepath.Join(root, cleanRel)
	cleanRoot := filepath.Clean(root)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("fsutil: path escapes transfer root: %q", rel)
	}
	return joined, nil
}

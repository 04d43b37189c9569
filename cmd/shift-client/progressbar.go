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

package main

import (
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/dselifonov/shift/internal/transfer"
)

// progressRenderer drives one progressbar.ProgressBar per transfer, sized
// to the transfer's total bytes and replaced whenever a report carries a
// different total. Its description stays "transferring" for every file.
type progressRenderer struct {
	bar       *progressbar.ProgressBar
	lastTotal uint64
}

func newProgressRenderer() *progressRenderer {
	return &progressRenderer{}
}

func (p *progressRenderer) onProgress(tp transfer.TransferProgress) {
	if p.bar == nil || p.lastTotal != tp.Total {
		p.bar = progressbar.NewOptions64(
			int64(tp.Total),
			progressbar.OptionSetDescription("transferring"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(15),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		p.lastTotal = tp.Total
	}
	_ = p.bar.Set64(int64(tp.Sent))
}

func (p *progressRenderer) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

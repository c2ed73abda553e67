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

package main

import (
	"path/filepath"
	"strings"

	"github.com/mlnoga/luckystack/internal/source"
)

// openInput picks a source.Producer for the stack subcommand's trailing
// arguments: a single .ser/.raw path opens a RawVideoProducer, anything else
// (one or more image files, typically from shell globbing) opens an
// ImageSetProducer over the whole argument list.
func openInput(paths []string) (source.Producer, error) {
	if len(paths) == 1 {
		switch strings.ToLower(filepath.Ext(paths[0])) {
		case ".ser", ".raw":
			prod := &source.RawVideoProducer{}
			if _, err := prod.Open(paths[0]); err != nil {
				return nil, err
			}
			return prod, nil
		}
	}
	prod := source.NewImageSetProducer(paths, source.DefaultImageDecode)
	if _, err := prod.Open(paths[0]); err != nil {
		return nil, err
	}
	return prod, nil
}

/*
Copyright (C) 2025  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package archive

import "fmt"

var factories = map[string]Factory{
	"file": FileFactory{},
	"s3":   S3Factory{},
	"ceph": CephFactory{},
}

// Open looks up the named backend and opens it with the given config.
// Unless cfg["compress"] is "false", the backend is wrapped with xz
// compression.
func Open(backend string, cfg map[string]string) (SnapshotArchive, error) {
	factory, ok := factories[backend]
	if !ok {
		return nil, fmt.Errorf("archive: unknown backend %q", backend)
	}
	inner, err := factory.Open(cfg)
	if err != nil {
		return nil, err
	}
	if cfg["compress"] == "false" {
		return inner, nil
	}
	return Compressing{Inner: inner}, nil
}

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

package relaystore

import (
	"context"
	"fmt"
)

// Open selects a relay metadata backend by name ("bbolt", "postgres",
// "mysql") the way cmd/lstrelay's config.toml names it, so swapping
// backends never requires touching call sites that only know Store.
func Open(ctx context.Context, backend string, dsn string) (Store, error) {
	switch backend {
	case "", "bbolt":
		return OpenBolt(dsn)
	case "postgres":
		return OpenPostgres(ctx, dsn)
	case "mysql":
		return OpenMySQL(ctx, dsn)
	default:
		return nil, fmt.Errorf("relaystore: unknown backend %q", backend)
	}
}

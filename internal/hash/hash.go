/*
Copyright © 2021 the AerPrep authors.
This file is part of AerPrep.

AerPrep is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

AerPrep is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with AerPrep.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package hash creates the short identifiers that are exposed to the
// dispersion model in place of the longer source identifiers.
package hash

import (
	"crypto/md5"
	"encoding/hex"
)

// UIDLength is the number of hexadecimal characters in a UID.
const UIDLength = 12

// UID returns the first UIDLength hexadecimal characters of the MD5
// digest of id. The result depends only on id.
func UID(id string) string {
	sum := md5.Sum([]byte(id))
	return hex.EncodeToString(sum[:])[:UIDLength]
}

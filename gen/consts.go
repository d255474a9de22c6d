// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package gen

import (
	"bytes"
	"fmt"
)

// EXC_RETURN is the value the ARMv8-M exception-return mechanism
// loads into pc. Two of its bits differ between security domains:
// bit 6 (S) records which stack was in use, and bit 0 (ES) records the
// security domain the exception was taken to. The two must be
// consistent with the domain the image runs in, or the return faults.
const (
	// ExcReturnSecure is used when the image executes in the
	// secure domain.
	ExcReturnSecure uint32 = 0xFFFFFFED

	// ExcReturnNonSecure is used when the image executes in the
	// non-secure domain.
	ExcReturnNonSecure uint32 = 0xFFFFFFAC
)

// ExcReturn selects the exception-return constant from the
// security-domain flag. It is total: "0" selects non-secure, every
// other value (including absent, "") selects secure, and no other
// output exists.
func ExcReturn(secure string) uint32 {
	if secure == "0" {
		return ExcReturnNonSecure
	}

	return ExcReturnSecure
}

func renderConsts(secure string) ([]byte, error) {
	data := struct {
		ExcReturn string
	}{
		ExcReturn: fmt.Sprintf("0x%08X", ExcReturn(secure)),
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "consts_rs.txt", data); err != nil {
		return nil, fmt.Errorf("failed to render consts.rs: %v", err)
	}

	return buf.Bytes(), nil
}

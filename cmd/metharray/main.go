// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"github.com/exposomics/metharray"
)

func main() {
	metharray.Main()
}
